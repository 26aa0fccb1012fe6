// Package events implements ports.EventPublisher, publishing the
// "scheduler.run" metric event after each schedule request. Grounded on
// the teacher's shared/infrastructure/eventbus RabbitMQ publisher, scoped
// down to the one routing key this core emits.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/google/uuid"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// ExchangeName is the topic exchange run-completion events are published
// onto.
const ExchangeName = "orbita.scheduling"

// RoutingKeyScheduleRun is the routing key for the "scheduler.run" event.
const RoutingKeyScheduleRun = "scheduler.run"

// scheduleRunEvent is the wire payload for a "scheduler.run" event.
type scheduleRunEvent struct {
	UserID             uuid.UUID           `json:"user_id"`
	Feasible           bool                `json:"feasible"`
	Status             domain.SolverStatus `json:"status"`
	TotalBlocks        int                 `json:"total_blocks"`
	TotalScheduledMin  int                 `json:"total_scheduled_minutes"`
	UnscheduledTasks   int                 `json:"unscheduled_tasks"`
	SolveTimeMS        int64               `json:"solve_time_ms"`
	ObjectiveValue     float64             `json:"objective_value"`
	PublishedAt        time.Time           `json:"published_at"`
}

// RabbitMQPublisher implements ports.EventPublisher over a RabbitMQ topic
// exchange.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewRabbitMQPublisher dials url, opens a channel, and declares the
// exchange this publisher writes to.
func NewRabbitMQPublisher(url string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info("scheduler event publisher connected", "exchange", ExchangeName)

	return &RabbitMQPublisher{conn: conn, channel: ch, exchange: ExchangeName, logger: logger}, nil
}

func (p *RabbitMQPublisher) PublishScheduleRun(ctx context.Context, userID uuid.UUID, solution *domain.ScheduleSolution) error {
	payload, err := json.Marshal(scheduleRunEvent{
		UserID:            userID,
		Feasible:          solution.Feasible,
		Status:            solution.Status,
		TotalBlocks:       len(solution.Blocks),
		TotalScheduledMin: solution.TotalScheduledMin,
		UnscheduledTasks:  len(solution.UnscheduledTaskIDs),
		SolveTimeMS:       solution.SolveTimeMS,
		ObjectiveValue:    solution.ObjectiveValue,
		PublishedAt:       time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal scheduler.run event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKeyScheduleRun, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		p.logger.Error("failed to publish scheduler.run event", "user_id", userID, "error", err)
		return fmt.Errorf("publish scheduler.run: %w", err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing channel", "error", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NoopPublisher backs local mode when no broker is configured.
type NoopPublisher struct {
	logger *slog.Logger
}

func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) PublishScheduleRun(ctx context.Context, userID uuid.UUID, solution *domain.ScheduleSolution) error {
	p.logger.Debug("noop publish scheduler.run", "user_id", userID, "feasible", solution.Feasible)
	return nil
}

func (p *NoopPublisher) Close() error { return nil }

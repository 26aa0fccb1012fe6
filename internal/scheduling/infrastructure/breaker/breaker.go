// Package breaker wraps collaborator calls (repository, utility/weight
// providers) with a per-collaborator circuit breaker, grounded on the
// teacher's engine/runtime/executor.go which wraps each plugin engine call
// the same way. It composes with, rather than replaces, the SLO Gate's own
// GREEN/YELLOW/ORANGE/RED classification: the gate decides whether a new
// request should be admitted at all, while this breaker trips on a single
// misbehaving collaborator so one stalled dependency can't starve the
// request pool behind a queue of slow calls.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCollaboratorUnavailable is returned in place of a collaborator's own
// error once its breaker has tripped open.
var ErrCollaboratorUnavailable = errors.New("collaborator circuit open")

// Config configures every breaker this guard creates.
type Config struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultConfig trips after 5 consecutive failures and stays open 30s,
// matching the teacher's DefaultExecutorConfig.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Guard holds one circuit breaker per named collaborator (e.g.
// "repository", "utility_provider", "weight_provider"), created lazily on
// first use.
type Guard struct {
	mu       sync.Mutex
	cfg      Config
	logger   *slog.Logger
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// NewGuard builds a Guard using cfg for every collaborator it protects.
func NewGuard(cfg Config, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{cfg: cfg, logger: logger, breakers: make(map[string]*gobreaker.CircuitBreaker[any])}
}

func (g *Guard) breaker(name string) *gobreaker.CircuitBreaker[any] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.breakers[name]; ok {
		return b
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: g.cfg.MaxRequests,
		Interval:    g.cfg.Interval,
		Timeout:     g.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= g.cfg.FailureThreshold
		},
		OnStateChange: func(bname string, from, to gobreaker.State) {
			g.logger.Info("collaborator circuit state changed", "collaborator", bname, "from", from.String(), "to", to.String())
		},
	}
	b := gobreaker.NewCircuitBreaker[any](settings)
	g.breakers[name] = b
	return b
}

// Call runs fn through the named collaborator's breaker, translating an
// open circuit into ErrCollaboratorUnavailable.
func Call[T any](g *Guard, name string, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		b := g.breaker(name)
		result, err := b.Execute(func() (any, error) {
			return fn(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) {
			var zero T
			return zero, ErrCollaboratorUnavailable
		}
		if err != nil {
			var zero T
			return zero, err
		}
		return result.(T), nil
	}
}

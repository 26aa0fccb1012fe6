// Package app wires the scheduler's collaborators into a Container, the
// way the teacher's internal/app/container.go assembles every bounded
// context's repositories and handlers behind NewContainer/NewLocalContainer
// constructors keyed on config.IsLocalMode.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-hclog"

	"github.com/flowforge/scheduler/internal/scheduling/application/ports"
	"github.com/flowforge/scheduler/internal/scheduling/application/services/core"
	"github.com/flowforge/scheduler/internal/scheduling/application/services/slo"
	"github.com/flowforge/scheduler/internal/scheduling/infrastructure/breaker"
	"github.com/flowforge/scheduler/internal/scheduling/infrastructure/cache"
	"github.com/flowforge/scheduler/internal/scheduling/infrastructure/events"
	"github.com/flowforge/scheduler/internal/scheduling/infrastructure/persistence"
	"github.com/flowforge/scheduler/internal/scheduling/infrastructure/plugin"
	"github.com/flowforge/scheduler/pkg/config"
)

// Container holds every collaborator the scheduler core is wired against,
// plus enough infrastructure handles to close them cleanly on shutdown.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	SQLiteRepo   *persistence.SQLiteRepository
	PostgresRepo *persistence.PostgresRepository
	MemoryRepo   *persistence.MemoryRepository

	RedisCache  *cache.RedisCache
	MemoryCache *cache.MemoryCache

	RabbitMQPublisher *events.RabbitMQPublisher
	NoopPublisher     *events.NoopPublisher

	SLOGate       *slo.Gate
	Guard         *breaker.Guard
	PluginHost    *plugin.Host
	Service       *core.Service
	HealthMonitor *core.HealthMonitor
}

// wireCollaborators guards repo (and, if launched, the ML plugin
// providers) behind a breaker.Guard and starts the plugin host named by
// cfg, in either mode. Returns the (possibly guarded/plugin-backed)
// collaborators to hand to core.New.
func wireCollaborators(cfg *config.Config, logger *slog.Logger, repo ports.Repository) (ports.Repository, ports.UtilityProvider, ports.WeightProvider, *breaker.Guard, *plugin.Host) {
	guard := breaker.NewGuard(breaker.DefaultConfig(), logger)
	guardedRepo := newGuardedRepository(repo, guard)

	var utilityProvider ports.UtilityProvider
	var weightProvider ports.WeightProvider
	var host *plugin.Host

	if cfg.UtilityPluginPath != "" || cfg.WeightPluginPath != "" {
		binaryPath := cfg.UtilityPluginPath
		if binaryPath == "" {
			binaryPath = cfg.WeightPluginPath
		}
		launched, err := plugin.Launch(binaryPath, hclog.New(&hclog.LoggerOptions{Name: "scheduler-plugin"}))
		if err != nil {
			logger.Warn("failed to launch ML collaborator plugin, falling back to built-in heuristics", "path", binaryPath, "error", err)
		} else {
			host = launched
			if u, uerr := host.UtilityProvider(); uerr == nil && u != nil {
				utilityProvider = newGuardedUtilityProvider(u, guard)
			}
			if w, werr := host.WeightProvider(); werr == nil && w != nil {
				weightProvider = newGuardedWeightProvider(w, guard)
			}
		}
	}

	return guardedRepo, utilityProvider, weightProvider, guard, host
}

// NewLocalContainer builds a single-binary container: SQLite for solution
// storage, an in-memory repository standing in for the task/calendar/
// preference collaborators, an in-process LRU idempotency cache, and a
// no-op event publisher. This is the zero-external-services path cfg
// defaults to when neither SCHEDULER_LOCAL_MODE nor SCHEDULER_DATABASE_URL
// is set.
func NewLocalContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	sqliteRepo, err := persistence.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	c.SQLiteRepo = sqliteRepo
	c.MemoryRepo = persistence.NewMemoryRepository()

	c.MemoryCache = cache.NewMemoryCache(256)
	c.NoopPublisher = events.NewNoopPublisher(logger)

	c.SLOGate = slo.NewGate(slo.Config{
		RingCapacity:         1000,
		LatencyWindow:        slo.DefaultConfig().LatencyWindow,
		QualityWindow:        slo.DefaultConfig().QualityWindow,
		MaxConcurrentOnRed:   cfg.SLOMaxConcurrentRed,
		P95ThresholdMS:       cfg.SLOP95ThresholdMS,
		P99ThresholdMS:       cfg.SLOP99ThresholdMS,
		FeasibilityThreshold: slo.DefaultConfig().FeasibilityThreshold,
		BlocksRatioThreshold: slo.DefaultConfig().BlocksRatioThreshold,
	})

	repo, utilityProvider, weightProvider, guard, host := wireCollaborators(cfg, logger, localRepository{sqlite: c.SQLiteRepo, memory: c.MemoryRepo})
	c.Guard = guard
	c.PluginHost = host

	c.Service = core.New(core.Config{
		Repository:      repo,
		UtilityProvider:  utilityProvider,
		WeightProvider:   weightProvider,
		Idempotency:     c.MemoryCache,
		EventPublisher:  c.NoopPublisher,
		SLOGate:         c.SLOGate,
		Logger:          logger,
		DeterminismSeed: cfg.DeterminismSeed,
	})
	c.HealthMonitor = core.NewHealthMonitor(c.Service, "local", c.SQLiteRepo.Ping)

	return c, nil
}

// NewContainer builds a full-service container: Postgres for solution
// storage, Redis for the idempotency cache, and RabbitMQ for run-completion
// events. Used whenever cfg.IsLocalMode() is false.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	pgRepo, err := persistence.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres repository: %w", err)
	}
	c.PostgresRepo = pgRepo

	redisCache, err := cache.NewRedisCache(cfg.RedisURL)
	if err != nil {
		pgRepo.Close()
		return nil, fmt.Errorf("open redis cache: %w", err)
	}
	c.RedisCache = redisCache

	publisher, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		pgRepo.Close()
		_ = redisCache.Close()
		return nil, fmt.Errorf("open rabbitmq publisher: %w", err)
	}
	c.RabbitMQPublisher = publisher

	c.SLOGate = slo.NewGate(slo.Config{
		RingCapacity:         1000,
		LatencyWindow:        slo.DefaultConfig().LatencyWindow,
		QualityWindow:        slo.DefaultConfig().QualityWindow,
		MaxConcurrentOnRed:   cfg.SLOMaxConcurrentRed,
		P95ThresholdMS:       cfg.SLOP95ThresholdMS,
		P99ThresholdMS:       cfg.SLOP99ThresholdMS,
		FeasibilityThreshold: slo.DefaultConfig().FeasibilityThreshold,
		BlocksRatioThreshold: slo.DefaultConfig().BlocksRatioThreshold,
	})

	repo, utilityProvider, weightProvider, guard, host := wireCollaborators(cfg, logger, c.PostgresRepo)
	c.Guard = guard
	c.PluginHost = host

	c.Service = core.New(core.Config{
		Repository:      repo,
		UtilityProvider:  utilityProvider,
		WeightProvider:   weightProvider,
		Idempotency:     c.RedisCache,
		EventPublisher:  c.RabbitMQPublisher,
		SLOGate:         c.SLOGate,
		Logger:          logger,
		DeterminismSeed: cfg.DeterminismSeed,
	})
	c.HealthMonitor = core.NewHealthMonitor(c.Service, "full", c.PostgresRepo.Ping)

	return c, nil
}

// Close releases every infrastructure handle the container opened.
func (c *Container) Close() {
	if c.PluginHost != nil {
		c.PluginHost.Close()
	}
	if c.RabbitMQPublisher != nil {
		if err := c.RabbitMQPublisher.Close(); err != nil {
			c.Logger.Warn("error closing rabbitmq publisher", "error", err)
		}
	}
	if c.RedisCache != nil {
		if err := c.RedisCache.Close(); err != nil {
			c.Logger.Warn("error closing redis cache", "error", err)
		}
	}
	if c.PostgresRepo != nil {
		c.PostgresRepo.Close()
	}
	if c.SQLiteRepo != nil {
		if err := c.SQLiteRepo.Close(); err != nil {
			c.Logger.Warn("error closing sqlite repository", "error", err)
		}
	}
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowforge/scheduler/adapter/cli"
	"github.com/flowforge/scheduler/adapter/cli/schedule"
	"github.com/flowforge/scheduler/internal/app"
	"github.com/flowforge/scheduler/internal/scheduling/application/ports"
	"github.com/flowforge/scheduler/pkg/config"
)

// localRepositoryFor returns the concrete, un-guarded collaborator store
// the schedule run command seeds fixture data into. In local mode that is
// the in-memory task/calendar/preference store; in full mode there is no
// seedable store, so the raw (unguarded) Postgres repository is handed
// back and the fixture seeding type-assertion in schedule/run.go simply
// finds nothing to seed.
func localRepositoryFor(c *app.Container) ports.Repository {
	if c.MemoryRepo != nil {
		return c.MemoryRepo
	}
	return c.PostgresRepo
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("failed to load config, using development mode", "error", err)
		cfg = &config.Config{AppEnv: "development", LocalMode: true}
	}

	if cfg.IsDevelopment() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	cli.SetLogger(logger)

	var container *app.Container
	if cfg.IsLocalMode() {
		logger.Info("starting in local mode with SQLite", "database", cfg.SQLitePath)
		container, err = app.NewLocalContainer(ctx, cfg, logger)
	} else {
		container, err = app.NewContainer(ctx, cfg, logger)
	}

	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("failed to initialize container, running without a wired scheduler", "error", err)
		} else {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
	} else {
		defer container.Close()
		cli.SetApp(cli.NewApp(container.Service, container.HealthMonitor, localRepositoryFor(container)))
	}

	cli.AddCommand(schedule.Cmd)
	cli.Execute()
}

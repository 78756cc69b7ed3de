package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"syntax/internal/infrastructure/postgres"
	"syntax/internal/interfaces/scheduler"
	"syntax/internal/shared/config"
	"syntax/internal/shared/logging"
	"syntax/internal/shared/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logging.Init(cfg.Logging.Level, cfg.Logging.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:   cfg.Telemetry.ServiceName,
		Environment:   cfg.Telemetry.Environment,
		OTLPEndpoint:  cfg.Telemetry.OTLPEndpoint,
		MetricsPort:   cfg.Telemetry.MetricsPort,
		TracesEnabled: cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			log.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	deps, err := NewDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := postgres.Migrate(ctx, deps.DB.DB, "up"); err != nil {
		return err
	}

	sched, err := startScheduler(cfg, deps)
	if err != nil {
		return err
	}

	handler := SetupRoutes(deps, cfg)
	srv, redirectSrv, serveErr := StartServers(NewServerConfigFromConfig(handler, cfg))

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		log.Error().Err(err).Msg("server failed")
	}

	GracefulShutdown(srv, redirectSrv, sched, shutdownTimeout)
	return err
}

func startScheduler(cfg *config.Config, deps *Dependencies) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		log.Info().Msg("scheduler is disabled")
		return nil, nil
	}
	if deps.Reconciler == nil {
		log.Warn().Msg("scheduler disabled: CLIENT_ID and CLIENT_SECRET are not set")
		return nil, nil
	}

	sched, err := scheduler.New(scheduler.Config{
		ScheduleTimes: cfg.Scheduler.ScheduleTimes,
		WorkerCount:   cfg.Scheduler.WorkerCount,
		JobDelay:      cfg.Scheduler.JobDelay,
		QueueSize:     cfg.Scheduler.QueueSize,
		RunOnStartup:  cfg.Scheduler.RunOnStartup,
		JobProvider:   deps.Reconciler.Jobs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	sched.Start()
	return sched, nil
}

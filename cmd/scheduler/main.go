package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/relay/internal/bootstrap"
	"github.com/cassiomorais/relay/internal/channel"
	infraRedis "github.com/cassiomorais/relay/internal/infrastructure/redis"
	"github.com/cassiomorais/relay/internal/repository/postgres"
	"github.com/cassiomorais/relay/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "relay-scheduler", "relay_scheduler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	binder := infraRedis.NewStreamBinder(app.Redis)
	registry := channel.NewRegistry(binder, app.Logger, app.Metrics)

	schedCfg := app.Config.Scheduler
	locks := scheduler.LockFactory(func(job string) scheduler.Locker {
		return infraRedis.NewSchedulerLock(app.Redis, job, schedCfg.LockTTL)
	})

	archive := scheduler.NewArchiveJob(outboxRepo, schedCfg.ArchiveDelay, app.Logger, app.Metrics)
	retryJob := scheduler.NewRetryJob(outboxRepo, registry, app.Config.Bridge.FallbackChannel, app.Logger, app.Metrics)
	purge := scheduler.NewPurgeJob(outboxRepo, schedCfg.PurgeRetention, app.Logger)

	app.Logger.Info().
		Dur("archive_period", schedCfg.ArchivePeriod).
		Dur("retry_period", schedCfg.RetryPeriod).
		Dur("purge_period", schedCfg.PurgePeriod).
		Msg("Scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.NewRunner(archive, schedCfg.ArchivePeriod, locks, app.Logger, app.Metrics).Run(gCtx)
	})
	g.Go(func() error {
		return scheduler.NewRunner(retryJob, schedCfg.RetryPeriod, locks, app.Logger, app.Metrics).Run(gCtx)
	})
	g.Go(func() error {
		return scheduler.NewRunner(purge, schedCfg.PurgePeriod, locks, app.Logger, app.Metrics).Run(gCtx)
	})
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down scheduler...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Scheduler error")
	}
	app.Logger.Info().Msg("Scheduler exited")
}

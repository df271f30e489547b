package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/relay/internal/auth"
	"github.com/cassiomorais/relay/internal/bootstrap"
	"github.com/cassiomorais/relay/internal/bridge"
	"github.com/cassiomorais/relay/internal/broker"
	"github.com/cassiomorais/relay/internal/channel"
	infraRedis "github.com/cassiomorais/relay/internal/infrastructure/redis"
	"github.com/cassiomorais/relay/internal/repository/postgres"
	"github.com/cassiomorais/relay/internal/router"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const registryCleanupPeriod = time.Minute

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "relay-router", "relay_router")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	binder := infraRedis.NewStreamBinder(app.Redis)
	registry := channel.NewRegistry(binder, app.Logger, app.Metrics)
	authorizer := auth.NewJWTAuthorizer(app.Config.Auth.JWTSecret, app.Config.Auth.DefaultRole)
	responder := infraRedis.NewListResponder(app.Redis)

	routerCfg := app.Config.Router

	// Output channel handles are part of the router's preconditions and are
	// registered up front; only bridges and retries bind lazily.
	for input, output := range routerCfg.Routes {
		if _, err := registry.Get(ctx, output); err != nil {
			app.Logger.Fatal().Err(err).Str("input", input).Str("output", output).Msg("Failed to register output channel")
		}
	}

	core := router.New(
		routerCfg.Routes,
		registry,
		authorizer,
		outboxRepo,
		app.Config.Auth.TokenField,
		app.Logger,
		app.Metrics,
	)
	processor := router.NewResilientProcessor("router", core, router.ResilienceConfig{
		MaxRetries:         routerCfg.MaxRetries,
		RetryDelay:         routerCfg.RetryDelay,
		BatchTimeout:       routerCfg.BatchTimeout,
		BreakerMinRequests: routerCfg.BreakerMinRequests,
		BreakerRatio:       routerCfg.BreakerRatio,
		BreakerOpenDelay:   routerCfg.BreakerOpenDelay,
	}, app.Logger, app.Metrics)

	backBridge := bridge.NewBackBridge(registry, app.Config.Bridge.ResultChannels, app.Config.Bridge.FallbackChannel, app.Logger, app.Metrics)
	frontBridge := bridge.NewFrontBridge(responder, app.Logger, app.Metrics)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. One routing loop per input channel, plus a recovery loop that
	// reclaims entries left pending by a nack or a dead consumer.
	for input := range routerCfg.Routes {
		consumer := newConsumer(app, input, routerCfg.ConsumerGroup, routerCfg.BatchSize, routerCfg.BlockDuration)
		if err := consumer.CreateGroup(ctx); err != nil {
			app.Logger.Error().Err(err).Str("channel", input).Msg("Failed to create consumer group (may already exist)")
		}
		g.Go(func() error {
			return runRouterLoop(gCtx, app.Logger, consumer, processor, input)
		})

		recovery := router.NewRecovery(consumer, processor, input, routerCfg.ClaimPeriod, app.Logger)
		g.Go(func() error {
			return recovery.Run(gCtx)
		})
	}

	// 2. Back bridge: downstream processing results onto result channels.
	for _, stream := range app.Config.Bridge.ResultStreams {
		consumer := newConsumer(app, stream, app.Config.Bridge.ConsumerGroup, routerCfg.BatchSize, routerCfg.BlockDuration)
		if err := consumer.CreateGroup(ctx); err != nil {
			app.Logger.Error().Err(err).Str("channel", stream).Msg("Failed to create consumer group (may already exist)")
		}
		g.Go(func() error {
			return runBridgeLoop(gCtx, app.Logger, consumer, backBridge.OnResult)
		})
	}

	// 3. Front bridge: result channels back to the original caller address.
	for _, resultChannel := range frontBridgeChannels(app.Config.Bridge.ResultChannels, app.Config.Bridge.FallbackChannel) {
		consumer := newConsumer(app, resultChannel, app.Config.Bridge.ConsumerGroup, routerCfg.BatchSize, routerCfg.BlockDuration)
		if err := consumer.CreateGroup(ctx); err != nil {
			app.Logger.Error().Err(err).Str("channel", resultChannel).Msg("Failed to create consumer group (may already exist)")
		}
		g.Go(func() error {
			return runBridgeLoop(gCtx, app.Logger, consumer, frontBridge.OnResult)
		})
	}

	// 4. Periodic registry cleanup.
	g.Go(func() error {
		ticker := time.NewTicker(registryCleanupPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				registry.Cleanup(gCtx)
			}
		}
	})

	// 5. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down router...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Router error")
	}
	app.Logger.Info().Msg("Router exited")
}

func newConsumer(app *bootstrap.App, stream, group string, batchSize int64, block time.Duration) *infraRedis.StreamConsumer {
	return infraRedis.NewStreamConsumer(app.Redis, stream, group, app.Config.InstanceID, batchSize, block, app.Config.Router.ClaimMinIdle)
}

func frontBridgeChannels(resultChannels map[string]string, fallback string) []string {
	seen := map[string]struct{}{fallback: {}}
	channels := []string{fallback}
	for _, ch := range resultChannels {
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		channels = append(channels, ch)
	}
	return channels
}

func runRouterLoop(
	ctx context.Context,
	logger zerolog.Logger,
	consumer *infraRedis.StreamConsumer,
	processor router.BatchProcessor,
	inputChannel string,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		deliveries, err := consumer.Read(ctx)
		if err != nil {
			logger.Error().Err(err).Str("channel", inputChannel).Msg("Failed to read batch")
			time.Sleep(1 * time.Second)
			continue
		}
		if len(deliveries) == 0 {
			continue
		}

		outcome, err := processor.ProcessBatch(ctx, deliveries, inputChannel)
		if err != nil {
			logger.Error().Err(err).Str("channel", inputChannel).Int("size", len(deliveries)).Msg("Batch failed, requesting redelivery")
			nackAll(ctx, logger, deliveries, err)
			continue
		}

		for _, d := range deliveries {
			if err := d.Ack(ctx); err != nil {
				logger.Error().Err(err).Str("message_id", d.ID).Msg("Failed to ack message")
			}
		}
		logger.Info().
			Str("channel", inputChannel).
			Int("processed", outcome.Processed).
			Int("failed", outcome.Failed).
			Int("missing_token", outcome.MissingToken).
			Int("invalid_token", outcome.InvalidToken).
			Int("insufficient_role", outcome.InsufficientRole).
			Msg("Batch acknowledged")
	}
}

func runBridgeLoop(
	ctx context.Context,
	logger zerolog.Logger,
	consumer *infraRedis.StreamConsumer,
	onResult func(context.Context, broker.Delivery) error,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		deliveries, err := consumer.Read(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read results")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, d := range deliveries {
			if err := onResult(ctx, d); err != nil {
				logger.Debug().Err(err).Str("message_id", d.ID).Msg("Result not bridged")
			}
		}
	}
}

func nackAll(ctx context.Context, logger zerolog.Logger, deliveries []broker.Delivery, cause error) {
	for _, d := range deliveries {
		if err := d.Nack(ctx, cause); err != nil {
			logger.Error().Err(err).Str("message_id", d.ID).Msg("Failed to nack message")
		}
	}
}

package scheduler

import (
	"context"
	"fmt"

	"github.com/cassiomorais/relay/internal/channel"
	"github.com/cassiomorais/relay/internal/domain/outbox"
	"github.com/cassiomorais/relay/internal/infrastructure/observability"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RetryJob re-attempts FAILED records. Each record moves to RETRY, is
// re-sent to its target channel, and lands on PROCESSED or back on FAILED —
// never left at RETRY. Per-record outcomes live in the records themselves;
// the job reports success once every record has been attempted.
type RetryJob struct {
	store           outbox.Repository
	registry        *channel.Registry
	fallbackChannel string
	logger          zerolog.Logger
	metrics         *observability.Metrics
}

func NewRetryJob(store outbox.Repository, registry *channel.Registry, fallbackChannel string, logger zerolog.Logger, metrics *observability.Metrics) *RetryJob {
	return &RetryJob{
		store:           store,
		registry:        registry,
		fallbackChannel: fallbackChannel,
		logger:          logger,
		metrics:         metrics,
	}
}

func (j *RetryJob) Name() string { return "retry" }

func (j *RetryJob) Run(ctx context.Context) (string, error) {
	records, err := j.store.FindByStatus(ctx, outbox.StatusFailed)
	if err != nil {
		return "", fmt.Errorf("find failed records: %w", err)
	}
	if len(records) == 0 {
		return OutcomeEmpty, nil
	}

	g := &errgroup.Group{}
	for _, rec := range records {
		g.Go(func() error {
			j.retryRecord(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	return OutcomeSuccess, nil
}

func (j *RetryJob) retryRecord(ctx context.Context, rec *outbox.Record) {
	if _, err := j.store.UpdateStatus(ctx, rec.ID, outbox.StatusRetry); err != nil {
		// Record stays FAILED and is picked up again next run.
		j.logger.Error().Err(err).Str("record_id", rec.ID.String()).Msg("Retry transition failed")
		return
	}
	j.transitioned(outbox.StatusRetry)

	env := routing.Envelope(rec.Payload)
	target := env.Channel(j.fallbackChannel)

	final := outbox.StatusProcessed
	handle, err := j.registry.Get(ctx, target)
	if err != nil {
		j.logger.Error().Err(err).Str("channel", target).Str("record_id", rec.ID.String()).Msg("Retry channel unavailable")
		final = outbox.StatusFailed
	} else if err := handle.Publish(ctx, env); err != nil {
		j.logger.Error().Err(err).Str("channel", target).Str("record_id", rec.ID.String()).Msg("Retry send failed")
		final = outbox.StatusFailed
	}

	if _, err := j.store.UpdateStatus(ctx, rec.ID, final); err != nil {
		j.logger.Error().Err(err).Str("record_id", rec.ID.String()).Str("status", string(final)).Msg("Retry final transition failed")
		return
	}
	j.transitioned(final)
}

func (j *RetryJob) transitioned(status outbox.Status) {
	if j.metrics != nil {
		j.metrics.SchedulerTransitions.WithLabelValues(j.Name(), string(status)).Inc()
	}
}

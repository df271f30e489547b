package router

import (
	"context"
	"time"

	"github.com/cassiomorais/relay/internal/broker"
	"github.com/rs/zerolog"
)

// StaleClaimer hands over input-channel entries another consumer left
// pending for too long, typically after a nack or a crash.
type StaleClaimer interface {
	ClaimStale(ctx context.Context) ([]broker.Delivery, error)
}

// Recovery periodically claims stale pending entries on one input channel
// and runs them through the batch processor, so a nacked batch is eventually
// redelivered even when its original consumer never acks.
type Recovery struct {
	claimer      StaleClaimer
	processor    BatchProcessor
	inputChannel string
	period       time.Duration
	logger       zerolog.Logger
}

func NewRecovery(
	claimer StaleClaimer,
	processor BatchProcessor,
	inputChannel string,
	period time.Duration,
	logger zerolog.Logger,
) *Recovery {
	return &Recovery{
		claimer:      claimer,
		processor:    processor,
		inputChannel: inputChannel,
		period:       period,
		logger:       logger,
	}
}

// Run claims and reprocesses until the context is cancelled.
func (r *Recovery) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		r.runOnce(ctx)
	}
}

func (r *Recovery) runOnce(ctx context.Context) {
	batch, err := r.claimer.ClaimStale(ctx)
	if err != nil {
		r.logger.Error().Err(err).Str("channel", r.inputChannel).Msg("Failed to claim stale messages")
		return
	}
	if len(batch) == 0 {
		return
	}

	outcome, err := r.processor.ProcessBatch(ctx, batch, r.inputChannel)
	if err != nil {
		r.logger.Error().Err(err).Str("channel", r.inputChannel).Int("size", len(batch)).Msg("Reclaimed batch failed, leaving pending")
		for _, d := range batch {
			if nackErr := d.Nack(ctx, err); nackErr != nil {
				r.logger.Error().Err(nackErr).Str("message_id", d.ID).Msg("Failed to nack reclaimed message")
			}
		}
		return
	}

	for _, d := range batch {
		if err := d.Ack(ctx); err != nil {
			r.logger.Error().Err(err).Str("message_id", d.ID).Msg("Failed to ack reclaimed message")
		}
	}
	r.logger.Info().
		Str("channel", r.inputChannel).
		Int("reclaimed", len(batch)).
		Int("processed", outcome.Processed).
		Int("failed", outcome.Failed).
		Msg("Reclaimed batch acknowledged")
}

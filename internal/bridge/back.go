// Package bridge republishes router processing results: back onto result
// channels, and back-to-front to the address the original request named.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/relay/internal/broker"
	"github.com/cassiomorais/relay/internal/channel"
	"github.com/cassiomorais/relay/internal/infrastructure/observability"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/rs/zerolog"
)

// BackBridge moves processing results onto their result channels with
// at-least-once delivery: ack only after a successful send.
//
// Channel resolution: the static result-kind table first, then the channel
// field embedded in the payload, then the fixed fallback channel. A
// single-entry table reproduces the statically addressed variant.
type BackBridge struct {
	registry        *channel.Registry
	resultChannels  map[string]string
	fallbackChannel string
	logger          zerolog.Logger
	metrics         *observability.Metrics
}

func NewBackBridge(
	registry *channel.Registry,
	resultChannels map[string]string,
	fallbackChannel string,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *BackBridge {
	return &BackBridge{
		registry:        registry,
		resultChannels:  resultChannels,
		fallbackChannel: fallbackChannel,
		logger:          logger,
		metrics:         metrics,
	}
}

// OnResult forwards one processing result. The source message is
// acknowledged on send success and negatively acknowledged with the causing
// error otherwise.
func (b *BackBridge) OnResult(ctx context.Context, delivery broker.Delivery) error {
	env := delivery.Envelope
	operation := env.Operation()

	out := routing.Envelope{
		routing.FieldOperation: operation,
		routing.FieldStatus:    env[routing.FieldStatus],
		routing.FieldData:      env[routing.FieldData],
		routing.FieldMessage:   env[routing.FieldMessage],
		routing.FieldTimestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	// Addressing fields ride along so the front bridge can route the result
	// back to the caller.
	if addr := env.ReplyAddress(); addr != "" {
		out[routing.FieldOriginalReplyAddress] = addr
	}
	if id := env.String(routing.FieldID); id != "" {
		out[routing.FieldID] = id
	}
	if agg := env.AggregateID(); agg != "" {
		out[routing.FieldAggregateID] = agg
	}

	target := b.resolveChannel(operation, env)
	handle, err := b.registry.Get(ctx, target)
	if err != nil {
		return b.nack(ctx, delivery, fmt.Errorf("obtain handle for %q: %w", target, err))
	}
	if err := handle.Publish(ctx, out); err != nil {
		return b.nack(ctx, delivery, fmt.Errorf("send result to %q: %w", target, err))
	}

	b.count("sent")
	return delivery.Ack(ctx)
}

func (b *BackBridge) resolveChannel(operation string, env routing.Envelope) string {
	if ch, ok := b.resultChannels[operation]; ok {
		return ch
	}
	return env.Channel(b.fallbackChannel)
}

func (b *BackBridge) nack(ctx context.Context, delivery broker.Delivery, cause error) error {
	b.logger.Error().Err(cause).Str("message_id", delivery.ID).Msg("Back bridge send failed")
	b.count("nacked")
	if err := delivery.Nack(ctx, cause); err != nil {
		return err
	}
	return cause
}

func (b *BackBridge) count(outcome string) {
	if b.metrics != nil {
		b.metrics.BridgeMessages.WithLabelValues("back", outcome).Inc()
	}
}

package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/relay/internal/broker"
	domainErrors "github.com/cassiomorais/relay/internal/domain/errors"
	"github.com/cassiomorais/relay/internal/infrastructure/observability"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/rs/zerolog"
)

// FrontBridge consumes processing results and delivers them to the reply
// address the original request path embedded in the message.
type FrontBridge struct {
	responder broker.Responder
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func NewFrontBridge(responder broker.Responder, logger zerolog.Logger, metrics *observability.Metrics) *FrontBridge {
	return &FrontBridge{responder: responder, logger: logger, metrics: metrics}
}

// OnResult routes one result back to its caller. A result without a reply
// address cannot be routed further: it is negatively acknowledged without
// any request/reply attempt.
func (b *FrontBridge) OnResult(ctx context.Context, delivery broker.Delivery) error {
	env := delivery.Envelope

	replyAddress := env.ReplyAddress()
	if replyAddress == "" {
		cause := fmt.Errorf("message %s: %w", delivery.ID, domainErrors.ErrMissingReplyAddress)
		return b.nack(ctx, delivery, cause)
	}

	response := routing.Envelope{
		routing.FieldAggregateID:       env.AggregateID(),
		routing.FieldOperation:         env.Operation(),
		routing.FieldStatus:            env[routing.FieldStatus],
		routing.FieldData:              env[routing.FieldData],
		routing.FieldProcessedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		routing.FieldOriginalMessageID: env.String(routing.FieldID),
	}

	if err := b.responder.Respond(ctx, replyAddress, response); err != nil {
		return b.nack(ctx, delivery, fmt.Errorf("deliver result to %q: %w", replyAddress, err))
	}

	b.count("delivered")
	return delivery.Ack(ctx)
}

func (b *FrontBridge) nack(ctx context.Context, delivery broker.Delivery, cause error) error {
	b.logger.Error().Err(cause).Str("message_id", delivery.ID).Msg("Front bridge delivery failed")
	b.count("nacked")
	if err := delivery.Nack(ctx, cause); err != nil {
		return err
	}
	return cause
}

func (b *FrontBridge) count(outcome string) {
	if b.metrics != nil {
		b.metrics.BridgeMessages.WithLabelValues("front", outcome).Inc()
	}
}

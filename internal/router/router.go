// Package router implements batched message routing: authorize, persist,
// forward, record outcome.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/relay/internal/auth"
	"github.com/cassiomorais/relay/internal/broker"
	"github.com/cassiomorais/relay/internal/channel"
	domainErrors "github.com/cassiomorais/relay/internal/domain/errors"
	"github.com/cassiomorais/relay/internal/domain/outbox"
	"github.com/cassiomorais/relay/internal/infrastructure/observability"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/rs/zerolog"
)

// Per-message result labels, reported as the "result" metric label.
const (
	ResultSuccess          = "success"
	ResultFailed           = "failed"
	ResultMissingToken     = "missing_token"
	ResultInvalidToken     = "invalid_token"
	ResultInsufficientRole = "insufficient_role"
)

// Outcome aggregates per-message results for one batch.
type Outcome struct {
	Processed        int
	Failed           int
	MissingToken     int
	InvalidToken     int
	InsufficientRole int
}

// Total returns the number of messages the batch accounted for.
func (o *Outcome) Total() int {
	return o.Processed + o.Failed + o.MissingToken + o.InvalidToken + o.InsufficientRole
}

// BatchProcessor is the router contract the resilience decorator wraps.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batch []broker.Delivery, inputChannel string) (*Outcome, error)
}

// Router routes batches from input channels to their mapped output channels.
// One instance serves one downstream target; variants differ only in their
// static route table.
type Router struct {
	routes     map[string]string
	registry   *channel.Registry
	authorizer auth.Authorizer
	store      outbox.Repository
	tokenField string
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

var _ BatchProcessor = (*Router)(nil)

func New(
	routes map[string]string,
	registry *channel.Registry,
	authorizer auth.Authorizer,
	store outbox.Repository,
	tokenField string,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		routes:     routes,
		registry:   registry,
		authorizer: authorizer,
		store:      store,
		tokenField: tokenField,
		logger:     logger,
		metrics:    metrics,
	}
}

// ProcessBatch routes every message of the batch. A nil error means the
// batch is fully accounted for (including skips) and may be acknowledged; a
// non-nil error means the whole batch must be negatively acknowledged for
// redelivery.
//
// Preconditions: the input channel must have an output mapping and a
// registered handle. Violations fail the batch before any store access.
func (r *Router) ProcessBatch(ctx context.Context, batch []broker.Delivery, inputChannel string) (*Outcome, error) {
	output, ok := r.routes[inputChannel]
	if !ok {
		return nil, fmt.Errorf("input channel %q: %w", inputChannel, domainErrors.ErrNoOutputMapping)
	}
	handle, ok := r.registry.Lookup(output)
	if !ok {
		return nil, fmt.Errorf("output channel %q: %w", output, domainErrors.ErrNoRegisteredHandle)
	}

	outcome := &Outcome{}
	for _, delivery := range batch {
		result, err := r.processMessage(ctx, delivery.Envelope, handle)
		if err != nil {
			// Store unavailable at the create step is unrecoverable for the
			// whole batch.
			return nil, err
		}
		r.count(outcome, result, delivery.Envelope.EventType())
	}
	return outcome, nil
}

// processMessage runs the per-message pipeline. The returned error is only
// non-nil for unrecoverable failures; everything after record creation is
// contained and reflected as a FAILED status.
func (r *Router) processMessage(ctx context.Context, env routing.Envelope, handle broker.Publisher) (string, error) {
	if err := r.authorize(ctx, env); err != nil {
		return skipResult(err), nil
	}

	record, err := r.store.Create(ctx, env.AggregateID(), env.EventType(), env)
	if err != nil {
		return "", fmt.Errorf("create outbox record: %w", err)
	}

	if r.forward(ctx, env, handle) {
		r.transition(ctx, record, outbox.StatusProcessed)
		return ResultSuccess, nil
	}
	r.transition(ctx, record, outbox.StatusFailed)
	return ResultFailed, nil
}

// authorize gates a message on its credential. A non-nil error is one of
// the auth sentinels and means skip: the message is counted but never
// persisted or forwarded.
func (r *Router) authorize(ctx context.Context, env routing.Envelope) error {
	token, present := env.Token(r.tokenField)
	if !present {
		return domainErrors.ErrMissingToken
	}
	if !r.authorizer.Validate(ctx, token) {
		return domainErrors.ErrInvalidToken
	}
	if op := env.Operation(); op != "" && !r.authorizer.IsAuthorizedForOperation(ctx, token, op) {
		return domainErrors.ErrInsufficientRole
	}
	return nil
}

func skipResult(err error) string {
	switch {
	case errors.Is(err, domainErrors.ErrMissingToken):
		return ResultMissingToken
	case errors.Is(err, domainErrors.ErrInvalidToken):
		return ResultInvalidToken
	default:
		return ResultInsufficientRole
	}
}

// forward sends the original message downstream, containing panics so one
// poisoned message cannot abort the batch.
func (r *Router) forward(ctx context.Context, env routing.Envelope, handle broker.Publisher) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Str("channel", handle.Channel()).Msg("Forward panicked")
			ok = false
		}
	}()

	if err := handle.Publish(ctx, env); err != nil {
		r.logger.Error().Err(err).Str("channel", handle.Channel()).Msg("Forward failed")
		return false
	}
	return true
}

func (r *Router) transition(ctx context.Context, record *outbox.Record, status outbox.Status) {
	if _, err := r.store.UpdateStatus(ctx, record.ID, status); err != nil {
		// The record stays behind; the retry scheduler cannot see it until
		// the status lands, so this is worth a loud log line.
		r.logger.Error().Err(err).
			Str("record_id", record.ID.String()).
			Str("status", string(status)).
			Msg("Failed to update outbox status")
	}
}

func (r *Router) count(outcome *Outcome, result, eventType string) {
	switch result {
	case ResultSuccess:
		outcome.Processed++
	case ResultFailed:
		outcome.Failed++
	case ResultMissingToken:
		outcome.MissingToken++
	case ResultInvalidToken:
		outcome.InvalidToken++
	case ResultInsufficientRole:
		outcome.InsufficientRole++
	}
	if r.metrics != nil {
		r.metrics.MessagesRouted.WithLabelValues(eventType, result).Inc()
	}
}

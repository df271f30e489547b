// Package proxy is the synchronous front door: it turns one client request
// into one enriched request/reply exchange with the router tier.
package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/relay/internal/broker"
	domainErrors "github.com/cassiomorais/relay/internal/domain/errors"
	"github.com/cassiomorais/relay/internal/infrastructure/observability"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service enriches an inbound request and relays the backend's reply.
// Retries belong to the router tier; this is a single enrich-and-forward
// pass per caller invocation.
type Service struct {
	requester      broker.Requester
	backendAddress string
	replyTimeout   time.Duration
	logger         zerolog.Logger
	metrics        *observability.Metrics
}

func NewService(requester broker.Requester, backendAddress string, replyTimeout time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		requester:      requester,
		backendAddress: backendAddress,
		replyTimeout:   replyTimeout,
		logger:         logger,
		metrics:        metrics,
	}
}

// Handle stamps a request id and proxy timestamp, bumps the hop count, and
// issues the request/reply call. The caller always gets an answer: the
// backend's reply or the returned error.
func (s *Service) Handle(ctx context.Context, req routing.Envelope) (routing.Envelope, error) {
	start := time.Now()
	requestID := uuid.NewString()
	enriched := req.Enrich(requestID, start)

	callCtx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	defer cancel()

	reply, err := s.requester.Request(callCtx, s.backendAddress, enriched)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		kind := failureKind(err)
		s.logger.Error().Err(err).
			Str("request_id", requestID).
			Str("backend", s.backendAddress).
			Str("failure_kind", kind).
			Msg("Proxy request failed")
		s.record(kind, elapsed)
		if kind == "backend_error" {
			// Timeouts and availability keep their sentinels; anything else
			// surfaces with a stable code for the HTTP error mapping.
			return nil, domainErrors.NewDomainError(kind, "backend request failed", err)
		}
		return nil, err
	}

	s.record("success", elapsed)
	return reply, nil
}

func (s *Service) record(result string, elapsed float64) {
	if s.metrics == nil {
		return
	}
	s.metrics.ProxyRequestsTotal.WithLabelValues(result).Inc()
	s.metrics.ProxyRequestLatency.WithLabelValues(result).Observe(elapsed)
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, domainErrors.ErrReplyTimeout) || errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domainErrors.ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "backend_error"
	}
}

package router

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/relay/internal/broker"
	domainErrors "github.com/cassiomorais/relay/internal/domain/errors"
	"github.com/cassiomorais/relay/internal/infrastructure/observability"
	"github.com/cassiomorais/relay/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ResilienceConfig parameterizes the policies wrapped around batch
// processing: bounded retries with fixed delay, an overall timeout per
// attempt, and a circuit breaker keyed on request volume and failure ratio.
type ResilienceConfig struct {
	MaxRetries         uint
	RetryDelay         time.Duration
	BatchTimeout       time.Duration
	BreakerMinRequests uint32
	BreakerRatio       float64
	BreakerOpenDelay   time.Duration
}

// ResilientProcessor decorates a BatchProcessor with the fault-tolerance
// policies. Composition order per attempt: breaker gate → timeout → inner
// processor; the retry loop sits outside.
type ResilientProcessor struct {
	inner   BatchProcessor
	cfg     ResilienceConfig
	breaker *gobreaker.CircuitBreaker[*Outcome]
	logger  zerolog.Logger
	metrics *observability.Metrics
}

var _ BatchProcessor = (*ResilientProcessor)(nil)

func NewResilientProcessor(name string, inner BatchProcessor, cfg ResilienceConfig, logger zerolog.Logger, metrics *observability.Metrics) *ResilientProcessor {
	p := &ResilientProcessor{inner: inner, cfg: cfg, logger: logger, metrics: metrics}

	p.breaker = gobreaker.NewCircuitBreaker[*Outcome](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMinRequests,
		Interval:    60 * time.Second,
		Timeout:     cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.BreakerMinRequests && failureRatio >= cfg.BreakerRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			}
		},
	})
	return p
}

func (p *ResilientProcessor) ProcessBatch(ctx context.Context, batch []broker.Delivery, inputChannel string) (*Outcome, error) {
	var outcome *Outcome
	start := time.Now()

	onRetry := func(n uint, err error) {
		p.logger.Warn().Err(err).Uint("attempt", n+1).Str("input_channel", inputChannel).Msg("Retrying batch")
		if p.metrics != nil {
			p.metrics.RouterRetries.WithLabelValues(inputChannel).Inc()
		}
	}

	err := retry.DoFixed(ctx, p.cfg.MaxRetries, p.cfg.RetryDelay, onRetry, func() error {
		out, err := p.breaker.Execute(func() (*Outcome, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
			defer cancel()
			return p.inner.ProcessBatch(attemptCtx, batch, inputChannel)
		})
		p.record(err)
		if err != nil {
			// An open breaker fails fast; configuration errors cannot heal
			// within the retry window. Neither is worth another attempt.
			if errors.Is(err, gobreaker.ErrOpenState) ||
				errors.Is(err, gobreaker.ErrTooManyRequests) ||
				errors.Is(err, domainErrors.ErrNoOutputMapping) ||
				errors.Is(err, domainErrors.ErrNoRegisteredHandle) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		outcome = out
		return nil
	})
	p.observeBatch(inputChannel, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (p *ResilientProcessor) observeBatch(inputChannel string, elapsed time.Duration, err error) {
	if p.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	p.metrics.BatchesTotal.WithLabelValues(inputChannel, outcome).Inc()
	p.metrics.BatchDuration.WithLabelValues(inputChannel).Observe(elapsed.Seconds())
}

func (p *ResilientProcessor) record(err error) {
	if p.metrics == nil {
		return
	}
	result := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected_open"
	case err != nil:
		result = "failure"
	}
	p.metrics.CircuitBreakerRequests.WithLabelValues(p.breaker.Name(), result).Inc()
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

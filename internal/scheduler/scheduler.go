// Package scheduler hosts the periodic jobs run against the message store:
// archiving aged-out successes, retrying failures, purging archived records.
package scheduler

import (
	"context"
	"time"

	"github.com/cassiomorais/relay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Job run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomePartial = "partial"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Job is one scheduled unit of work. Run reports an outcome label; the error
// is reserved for failures that prevented the run entirely.
type Job interface {
	Name() string
	Run(ctx context.Context) (string, error)
}

// Locker provides best-effort exclusivity across scheduler instances. The
// jobs stay idempotent, so a lost lock is safe.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory builds a fresh lock attempt for a job run. Nil disables
// locking.
type LockFactory func(job string) Locker

// Runner drives one job on a fixed period until the context is cancelled.
type Runner struct {
	job     Job
	period  time.Duration
	locks   LockFactory
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewRunner(job Job, period time.Duration, locks LockFactory, logger zerolog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{job: job, period: period, locks: locks, logger: logger, metrics: metrics}
}

func (r *Runner) Run(ctx context.Context) error {
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

func (r *Runner) runOnce(ctx context.Context) {
	name := r.job.Name()

	if r.locks != nil {
		lock := r.locks(name)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			r.logger.Error().Err(err).Str("job", name).Msg("Scheduler lock error")
			r.report(name, OutcomeError)
			return
		}
		if !acquired {
			r.logger.Debug().Str("job", name).Msg("Scheduler lock held elsewhere, skipping run")
			r.report(name, OutcomeSkipped)
			return
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				r.logger.Warn().Err(err).Str("job", name).Msg("Scheduler lock release failed")
			}
		}()
	}

	outcome, err := r.job.Run(ctx)
	if err != nil {
		r.logger.Error().Err(err).Str("job", name).Msg("Scheduler run failed")
		r.report(name, OutcomeError)
		return
	}
	r.logger.Info().Str("job", name).Str("outcome", outcome).Msg("Scheduler run finished")
	r.report(name, outcome)
}

func (r *Runner) report(job, outcome string) {
	if r.metrics != nil {
		r.metrics.SchedulerRuns.WithLabelValues(job, outcome).Inc()
	}
}

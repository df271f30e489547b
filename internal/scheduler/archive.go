package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cassiomorais/relay/internal/domain/outbox"
	"github.com/cassiomorais/relay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ArchiveJob promotes PROCESSED records older than the configured delay to
// ARCHIVED. Transitions run in parallel and are joined before the aggregate
// outcome is reported; one failed transition does not block the others.
type ArchiveJob struct {
	store   outbox.Repository
	delay   time.Duration
	now     func() time.Time
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewArchiveJob(store outbox.Repository, delay time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *ArchiveJob {
	return &ArchiveJob{
		store:   store,
		delay:   delay,
		now:     time.Now,
		logger:  logger,
		metrics: metrics,
	}
}

func (j *ArchiveJob) Name() string { return "archive" }

func (j *ArchiveJob) Run(ctx context.Context) (string, error) {
	records, err := j.store.FindByStatus(ctx, outbox.StatusProcessed)
	if err != nil {
		return "", fmt.Errorf("find processed records: %w", err)
	}

	cutoff := j.now().Add(-j.delay)
	eligible := records[:0:0]
	for _, rec := range records {
		if rec.OlderThan(cutoff) {
			eligible = append(eligible, rec)
		}
	}
	if len(eligible) == 0 {
		return OutcomeEmpty, nil
	}

	var failures atomic.Int64
	g := &errgroup.Group{}
	for _, rec := range eligible {
		g.Go(func() error {
			if _, err := j.store.UpdateStatus(ctx, rec.ID, outbox.StatusArchived); err != nil {
				failures.Add(1)
				j.logger.Error().Err(err).Str("record_id", rec.ID.String()).Msg("Archive transition failed")
				return nil
			}
			if j.metrics != nil {
				j.metrics.SchedulerTransitions.WithLabelValues(j.Name(), string(outbox.StatusArchived)).Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failures.Load(); n > 0 {
		j.logger.Warn().Int64("failed", n).Int("eligible", len(eligible)).Msg("Archive run finished with failures")
		return OutcomePartial, nil
	}
	return OutcomeSuccess, nil
}

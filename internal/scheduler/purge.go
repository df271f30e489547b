package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/relay/internal/domain/outbox"
	"github.com/rs/zerolog"
)

// PurgeJob deletes archived records older than the retention window. This is
// the only path that removes records from the store.
type PurgeJob struct {
	store     outbox.Repository
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewPurgeJob(store outbox.Repository, retention time.Duration, logger zerolog.Logger) *PurgeJob {
	return &PurgeJob{store: store, retention: retention, now: time.Now, logger: logger}
}

func (j *PurgeJob) Name() string { return "purge" }

func (j *PurgeJob) Run(ctx context.Context) (string, error) {
	cutoff := j.now().Add(-j.retention)
	deleted, err := j.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return "", fmt.Errorf("purge records: %w", err)
	}
	if deleted == 0 {
		return OutcomeEmpty, nil
	}
	j.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Purged archived records")
	return OutcomeSuccess, nil
}

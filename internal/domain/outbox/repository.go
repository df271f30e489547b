package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the Message Store contract. Each call is a single atomic
// store operation; the core never holds a lock across two calls.
type Repository interface {
	// Create inserts a new PENDING record and returns it.
	Create(ctx context.Context, aggregateID, eventType string, payload map[string]any) (*Record, error)

	// FindByStatus returns all records currently in the given status.
	FindByStatus(ctx context.Context, status Status) ([]*Record, error)

	// UpdateStatus atomically moves a record to the given status and returns
	// the updated row.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Record, error)

	// DeleteOlderThan purges records created before the cutoff, returning the
	// number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

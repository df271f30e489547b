package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Record captures one accepted message's processing status. It decouples
// receipt from downstream delivery and backs the retry/archive jobs.
type Record struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     map[string]any
	Status      Status
	CreatedAt   time.Time
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
	StatusRetry     Status = "RETRY"
	StatusArchived  Status = "ARCHIVED"
)

// DefaultEventType is recorded when the inbound message carries no
// event_type field.
const DefaultEventType = "unknown"

// NewRecord builds a PENDING record. A missing aggregate ID is generated so
// every record correlates to something.
func NewRecord(aggregateID, eventType string, payload map[string]any) *Record {
	if aggregateID == "" {
		aggregateID = uuid.NewString()
	}
	if eventType == "" {
		eventType = DefaultEventType
	}
	return &Record{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     payload,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// transitions is the forward-only lifecycle graph. ARCHIVED is terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusProcessed, StatusFailed},
	StatusFailed:    {StatusRetry},
	StatusRetry:     {StatusProcessed, StatusFailed},
	StatusProcessed: {StatusArchived},
	StatusArchived:  {},
}

// CanTransition reports whether moving from one status to another follows the
// lifecycle graph. Setting the same status again is allowed so transition
// calls stay idempotent under at-least-once scheduling.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OlderThan reports whether the record was created before the cutoff.
// CreatedAt is immutable, so this is the sole input to age-based archival.
func (r *Record) OlderThan(cutoff time.Time) bool {
	return r.CreatedAt.Before(cutoff)
}

package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRecord_Defaults(t *testing.T) {
	rec := NewRecord("", "", map[string]any{"k": "v"})

	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.AggregateID, "missing aggregate id must be generated")
	assert.Equal(t, DefaultEventType, rec.EventType)
	assert.Equal(t, StatusPending, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestNewRecord_KeepsCallerValues(t *testing.T) {
	rec := NewRecord("agg-42", "save", nil)

	assert.Equal(t, "agg-42", rec.AggregateID)
	assert.Equal(t, "save", rec.EventType)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"pending to processed", StatusPending, StatusProcessed, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to archived", StatusPending, StatusArchived, false},
		{"failed to retry", StatusFailed, StatusRetry, true},
		{"failed to processed", StatusFailed, StatusProcessed, false},
		{"retry to processed", StatusRetry, StatusProcessed, true},
		{"retry to failed", StatusRetry, StatusFailed, true},
		{"processed to archived", StatusProcessed, StatusArchived, true},
		{"archived is terminal", StatusArchived, StatusPending, false},
		{"archived to retry", StatusArchived, StatusRetry, false},
		{"idempotent set", StatusProcessed, StatusProcessed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestOlderThan(t *testing.T) {
	rec := NewRecord("agg", "save", nil)
	rec.CreatedAt = time.Now().Add(-2 * time.Hour)

	assert.True(t, rec.OlderThan(time.Now().Add(-time.Hour)))
	assert.False(t, rec.OlderThan(time.Now().Add(-3*time.Hour)))
}

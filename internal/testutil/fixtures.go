package testutil

import (
	"time"

	"github.com/cassiomorais/relay/internal/domain/outbox"
	"github.com/cassiomorais/relay/internal/routing"
)

// NewTestEnvelope builds a routed message with the default token field.
func NewTestEnvelope(operation, eventType, token string) routing.Envelope {
	env := routing.Envelope{
		routing.FieldOperation: operation,
		routing.FieldData:      map[string]any{"title": "test"},
	}
	if eventType != "" {
		env[routing.FieldEventType] = eventType
	}
	if token != "" {
		env["auth_token"] = token
	}
	return env
}

// NewRecordWithStatus builds a stored record in the given status, aged by
// the given amount.
func NewRecordWithStatus(status outbox.Status, age time.Duration, payload map[string]any) *outbox.Record {
	if payload == nil {
		payload = map[string]any{"operation": "save"}
	}
	rec := outbox.NewRecord("agg-1", "save", payload)
	rec.Status = status
	rec.CreatedAt = time.Now().UTC().Add(-age)
	return rec
}

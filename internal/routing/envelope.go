package routing

import (
	"time"
)

// Envelope field names, layered onto the original payload hop to hop.
// Annotations are additive: no hop removes a field added by a previous one,
// except where it is consumed for addressing.
const (
	FieldOperation            = "operation"
	FieldStatus               = "status"
	FieldData                 = "data"
	FieldMessage              = "message"
	FieldTimestamp            = "timestamp"
	FieldAggregateID          = "aggregate_id"
	FieldEventType            = "event_type"
	FieldID                   = "id"
	FieldChannel              = "channel"
	FieldOriginalReplyAddress = "original_reply_address"
	FieldProxyReplyAddress    = "proxy_reply_address"
	FieldHops                 = "hops"
	FieldRequestID            = "request_id"
	FieldProxyTimestamp       = "proxy_timestamp"
	FieldProcessedAt          = "processed_at"
	FieldOriginalMessageID    = "original_message_id"
)

// Envelope is the message payload as it moves between hops. The core treats
// it as an untyped structured document and reads only the fields it needs
// for addressing and authorization.
type Envelope map[string]any

// String returns the named field as a string, or "" when absent or not a
// string.
func (e Envelope) String(field string) string {
	s, _ := e[field].(string)
	return s
}

// Operation returns the routed operation name, or "" when absent.
func (e Envelope) Operation() string {
	return e.String(FieldOperation)
}

// EventType returns the classification string used for routing and metrics,
// defaulting when absent.
func (e Envelope) EventType() string {
	if t := e.String(FieldEventType); t != "" {
		return t
	}
	return "unknown"
}

// AggregateID returns the business-entity correlation id, or "".
func (e Envelope) AggregateID() string {
	return e.String(FieldAggregateID)
}

// Token extracts the bearer credential from the configured field name.
// The second return reports presence, distinguishing a missing token from an
// empty one.
func (e Envelope) Token(field string) (string, bool) {
	v, ok := e[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Channel returns the dynamic target channel embedded in the payload,
// falling back to the given name when absent.
func (e Envelope) Channel(fallback string) string {
	if c := e.String(FieldChannel); c != "" {
		return c
	}
	return fallback
}

// ReplyAddress returns the address the eventual result must be delivered to.
func (e Envelope) ReplyAddress() string {
	if addr := e.String(FieldOriginalReplyAddress); addr != "" {
		return addr
	}
	return e.String(FieldProxyReplyAddress)
}

// Hops returns the current hop count. JSON decoding yields float64 for
// numbers, so both int and float64 are accepted.
func (e Envelope) Hops() int {
	switch v := e[FieldHops].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Clone returns a shallow copy so a hop can annotate without mutating the
// caller's view.
func (e Envelope) Clone() Envelope {
	out := make(Envelope, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Enrich stamps the proxy annotations: request id, proxy timestamp, and an
// incremented hop count.
func (e Envelope) Enrich(requestID string, now time.Time) Envelope {
	out := e.Clone()
	out[FieldRequestID] = requestID
	out[FieldProxyTimestamp] = now.UTC().Format(time.RFC3339Nano)
	out[FieldHops] = e.Hops() + 1
	return out
}

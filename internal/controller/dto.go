package controller

import "github.com/cassiomorais/relay/internal/routing"

// RouteRequest is the inbound body of the proxy's routing endpoint. The
// payload is passed through opaquely; only operation is required so the
// router tier can resolve authorization and addressing.
type RouteRequest struct {
	Operation   string         `json:"operation" validate:"required"`
	AggregateID string         `json:"aggregate_id,omitempty"`
	EventType   string         `json:"event_type,omitempty"`
	AuthToken   string         `json:"auth_token,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Envelope flattens the request into the routing envelope handed to the
// proxy service.
func (r *RouteRequest) Envelope() routing.Envelope {
	env := routing.Envelope{
		routing.FieldOperation: r.Operation,
	}
	if r.AggregateID != "" {
		env[routing.FieldAggregateID] = r.AggregateID
	}
	if r.EventType != "" {
		env[routing.FieldEventType] = r.EventType
	}
	if r.AuthToken != "" {
		env["auth_token"] = r.AuthToken
	}
	if r.Data != nil {
		env[routing.FieldData] = r.Data
	}
	return env
}

// ErrorResponse is the failure payload every proxied caller receives when
// the backend did not answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

package errors

import (
	"errors"
	"fmt"
)

var (
	// Authorization errors — never retried, recorded and skipped or rejected.
	ErrMissingToken     = errors.New("missing auth token")
	ErrInvalidToken     = errors.New("invalid auth token")
	ErrInsufficientRole = errors.New("insufficient role for operation")

	// Routing errors
	ErrNoOutputMapping     = errors.New("no output channel mapped for input channel")
	ErrNoRegisteredHandle  = errors.New("no registered handle for output channel")
	ErrMissingReplyAddress = errors.New("missing reply address")

	// Store errors
	ErrRecordNotFound          = errors.New("outbox record not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// Broker errors
	ErrReplyTimeout = errors.New("request/reply timed out")

	// Proxy errors
	ErrBackendUnavailable = errors.New("backend router unavailable")
)

// DomainError wraps errors with a stable machine-readable code.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a malformed inbound request or message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

package domain

import (
	"errors"
	"fmt"
)

// Pipeline errors. Embedding and catalog failures are returned to the caller;
// generation failures are recovered by the fallback reply and only logged.
var (
	ErrEmbeddingUnavailable = errors.New("query embedding unavailable")
	ErrCatalogUnavailable   = errors.New("event catalog unavailable")
	ErrGenerationFailed     = errors.New("reply generation failed")
)

// Sentinel errors for validation failures.
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrMessageRequired = errors.New("message is required")
	ErrMessageTooLong  = errors.New("message too long")
	ErrUserIDRequired  = errors.New("user_id is required")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

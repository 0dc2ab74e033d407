package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the encounter id is unknown.
	ErrNotFound = errors.New("encounter not found")

	// ErrUnauthorized is returned when the token matches no unrevoked record.
	ErrUnauthorized = errors.New("token not authorized")

	// ErrForbidden is returned when the token is valid but the role lacks
	// permission for the operation.
	ErrForbidden = errors.New("role not permitted")

	// ErrConflict is returned when an optimistic commit lost the race for a
	// version slot in the durable store.
	ErrConflict = errors.New("concurrent modification detected")
)

// ValidationError wraps field-specific validation errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

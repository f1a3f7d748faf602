/*
errors.go - Centralized error types for the recurrence engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with errors.Is / errors.As or the helpers below.

ERROR CATEGORIES:
  1. Validation errors - malformed input, rejected before any store call
  2. Not-found errors  - referenced template/instance absent
  3. Store errors      - the external store's operation failed

SEE ALSO:
  - reconciler.go: Surfaces these errors to callers
  - api/handlers.go: Maps them to HTTP status codes
*/
package recurring

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTemplateNotFound is returned when a referenced template doesn't exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInstanceNotFound is returned when a referenced instance doesn't exist.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrInvalidInput wraps all validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreFailed wraps failures of the external store.
	ErrStoreFailed = errors.New("store operation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a malformed field, detected before any store call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// StoreError wraps a store failure with the operation that caused it.
// Retrying the surrounding reconciler call is safe: delete-then-regenerate
// converges for a fixed effective date, and the existence check suppresses
// re-insertion of instances that already landed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return ErrStoreFailed }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) || errors.Is(err, ErrInstanceNotFound)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

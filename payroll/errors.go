/*
errors.go - Centralized error types for the pay engine

PURPOSE:
  All error kinds in one place. Service packages return these (or wrap
  them with %w) so callers can classify failures with errors.Is.

ERROR CATEGORIES:
  1. Validation   - Input rejected before any write
  2. Not found    - Referenced worker, tier, import or period is missing
  3. Conflict     - Constraint violations (content hash, active tier per mode)

NOTE:
  A duplicate import is NOT an error for callers of the import ledger.
  ErrDuplicateImport only travels between the store and the ledger.

SEE ALSO:
  - api/handlers.go: Maps these to HTTP status codes
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every input validation failure.
	ErrValidation = errors.New("validation failed")

	ErrWorkerNotFound    = errors.New("worker not found")
	ErrTierNotFound      = errors.New("tier not found")
	ErrImportNotFound    = errors.New("import not found")
	ErrPayPeriodNotFound = errors.New("pay period not found")

	// ErrDuplicateImport is returned by ImportStore.CreateImport when the
	// content hash already exists.
	ErrDuplicateImport = errors.New("duplicate import content")

	// ErrTierConflict is returned when a change would leave two active
	// tiers with the same pay mode for one worker.
	ErrTierConflict = errors.New("an active tier with this pay mode already exists")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrTierNotFound) ||
		errors.Is(err, ErrImportNotFound) ||
		errors.Is(err, ErrPayPeriodNotFound)
}

// IsConflict returns true if the error is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrTierConflict) || errors.Is(err, ErrDuplicateImport)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || IsNotFound(err) || IsConflict(err)
}

/*
errors.go - Error types for the sanction engine

ERROR CATEGORIES:
  1. Lookup errors - Missing items, rentals, sanctions
  2. Conflict errors - Lost compare-and-swap or duplicate active sanction
  3. Validation errors - Bad tiers or due dates in stored data

Per-rental errors are wrapped in RentalError so logs carry the rental,
the student, and the stage that failed. The engine never propagates them
past the rental boundary.
*/
package sanction

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrItemNotFound     = errors.New("item not found")
	ErrRentalNotFound   = errors.New("rental not found")
	ErrSanctionNotFound = errors.New("sanction not found")

	// ErrRentalClosed is returned when a rental was returned, lost or damaged
	// and may no longer be flagged overdue.
	ErrRentalClosed = errors.New("rental already closed")

	// ErrActiveSanctionExists is returned when an insert would create a second
	// active sanction for a student.
	ErrActiveSanctionExists = errors.New("student already has an active sanction")

	// ErrConcurrentModification is returned when a sanction's revision no
	// longer matches the one that was read.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrUnknownTier    = errors.New("unknown sanction tier")
	ErrInvalidDueDate = errors.New("invalid due date")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// Stage names the step of rental processing that failed.
type Stage string

const (
	StageLookup  Stage = "lookup"
	StagePersist Stage = "persist"
)

// RentalError wraps a failure while processing one rental.
type RentalError struct {
	RentalID  string
	StudentID string
	Stage     Stage
	Err       error
}

func (e *RentalError) Error() string {
	return fmt.Sprintf("rental %s (student %s) %s: %v", e.RentalID, e.StudentID, e.Stage, e.Err)
}

func (e *RentalError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict reports whether err came from a lost race on the sanction record.
// Conflicts resolve themselves on the next run.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrActiveSanctionExists)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrRentalNotFound) ||
		errors.Is(err, ErrSanctionNotFound)
}

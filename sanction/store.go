/*
store.go - Persistence interface for rentals, items and sanctions

PURPOSE:
  Defines what the engine needs from the database. The engine reads
  active rentals, item names and active sanctions, and writes sanctions
  and rental overdue flags.

CONDITIONAL WRITES:
  Sanction writes are guarded so two overlapping runs cannot both create
  an active sanction for the same student:
  - InsertSanction fails with ErrActiveSanctionExists if one is already active
  - UpdateSanction fails with ErrConcurrentModification if the revision moved

PER-RENTAL TRANSACTIONS:
  WithTx groups the sanction write and the rental update of ONE rental.
  There is no transaction across rentals; a failure only rolls back the
  rental being processed.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - sanction/store/memory.go: In-memory for tests and development
*/
package sanction

import "context"

// Store is the engine's view of the database.
type Store interface {
	// ListActiveRentals returns rentals still out: status rented or overdue.
	ListActiveRentals(ctx context.Context) ([]Rental, error)

	// GetItem returns ErrItemNotFound when the item does not exist.
	GetItem(ctx context.Context, id string) (*Item, error)

	// ActiveSanctions returns the student's active sanctions. The invariant
	// is at most one; callers treat extras as a data anomaly.
	ActiveSanctions(ctx context.Context, studentID string) ([]Sanction, error)

	// InsertSanction stores a new sanction with Revision 1.
	InsertSanction(ctx context.Context, s Sanction) error

	// UpdateSanction replaces the sanction with the same ID if its stored
	// revision equals expectedRevision, and bumps the revision.
	UpdateSanction(ctx context.Context, s Sanction, expectedRevision int64) error

	// MarkRentalOverdue sets status overdue, lastOverdueCheck and appliedTier.
	MarkRentalOverdue(ctx context.Context, check RentalCheck) error
}

// TxStore runs fn atomically. If fn returns an error nothing is written.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Notifier delivers a formatted message to the council's chat channel.
// Failures are reported to the caller, who only logs them.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

/*
engine.go - The return delay check

PURPOSE:
  One Run is one scheduled invocation. It scans active rentals, decides a
  sanction action per rental, persists it, and sends one batched message
  for new or escalated sanctions.

RUN:
  1. Capture now once
  2. List active rentals (failure aborts the run and sends an error message)
  3. For each rental, in its own error boundary:
       delay -> item name -> active sanction -> Decide -> WithTx(persist)
  4. Send the batch message if anything was created or escalated

IDEMPOTENCY:
  A second run against unchanged data classifies every rental to the same
  tier, which Decide reports as unchanged. Nothing is notified and only
  the rental's lastOverdueCheck moves.

FAILURES:
  Item lookup failures fall back to "unknown item". A rental closed by the
  return workflow after it was listed is skipped and its sanction write
  rolled back. An active sanction of unknown type fails the rental
  instead of being overwritten. Any other per-rental failure is logged
  and counted; the run continues with the next rental.
  Notification failures are logged and never fail the run.

SEE ALSO:
  - decision.go: Decide
  - api/scheduler.go: Cron trigger and run history
*/
package sanction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Engine runs the return delay check.
type Engine struct {
	Store    TxStore
	Notifier Notifier

	// Location fixes the calendar used to interpret due dates.
	Location *time.Location

	Clock  func() time.Time
	NewID  func() string
	Logger *log.Logger
}

// NewEngine creates an engine using the wall clock and random UUIDs.
func NewEngine(store TxStore, notifier Notifier, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		Store:    store,
		Notifier: notifier,
		Location: loc,
		Clock:    time.Now,
		NewID:    uuid.NewString,
		Logger:   log.Default(),
	}
}

// RunReport summarises one run.
type RunReport struct {
	StartedAt   time.Time
	Scanned     int
	Overdue     int
	Created     int
	Escalated   int
	Accumulated int
	Unchanged   int
	Failed      int
	Notified    int

	// Entries are the rentals included in the batch message.
	Entries []Entry
}

func (r *RunReport) record(kind DecisionKind) {
	switch kind {
	case DecisionCreated:
		r.Created++
	case DecisionEscalated, DecisionAutoEscalated:
		r.Escalated++
	case DecisionAccumulated:
		r.Accumulated++
	default:
		r.Unchanged++
	}
}

// Run performs one return delay check.
func (e *Engine) Run(ctx context.Context) (RunReport, error) {
	now := e.now()
	report := RunReport{StartedAt: now}

	rentals, err := e.Store.ListActiveRentals(ctx)
	if err != nil {
		err = fmt.Errorf("list active rentals: %w", err)
		e.logf("❌ Run aborted: %v", err)
		if sendErr := e.send(ctx, BuildErrorMessage(err, now)); sendErr != nil {
			e.logf("Error notification failed: %v", sendErr)
		}
		return report, err
	}
	report.Scanned = len(rentals)

	var batch []Entry
	for _, rental := range rentals {
		d, overdue, err := e.processRental(ctx, rental, now)
		if err != nil {
			report.Failed++
			e.logf("❌ %v", err)
			continue
		}
		if !overdue {
			continue
		}
		report.Overdue++
		report.record(d.Kind)

		if d.Notify {
			batch = append(batch, Entry{
				StudentName: rental.StudentName,
				StudentID:   rental.StudentID,
				ItemName:    d.itemName,
				Delay:       d.delay,
				Tier:        d.Sanction.Type,
				Kind:        d.Kind,
				PhoneNumber: rental.PhoneNumber,
			})
		}
	}

	report.Entries = batch
	if len(batch) > 0 {
		if err := e.send(ctx, BuildBatchMessage(batch, now)); err != nil {
			e.logf("Batch notification failed: %v", err)
		} else {
			report.Notified = len(batch)
		}
	}

	if report.Overdue > 0 || report.Failed > 0 {
		e.logf("Completed: %d scanned, %d overdue, %d created, %d escalated, %d accumulated, %d unchanged, %d failed",
			report.Scanned, report.Overdue, report.Created, report.Escalated, report.Accumulated, report.Unchanged, report.Failed)
	}
	return report, nil
}

// rentalOutcome carries the decision plus the values used for the message.
type rentalOutcome struct {
	Decision
	itemName string
	delay    time.Duration
}

// processRental returns overdue=false for rentals that are not late yet.
func (e *Engine) processRental(ctx context.Context, r Rental, now time.Time) (rentalOutcome, bool, error) {
	delay := r.Delay(now, e.Location)
	if delay <= 0 {
		return rentalOutcome{}, false, nil
	}

	itemName := e.itemName(ctx, r)

	active, err := e.activeSanction(ctx, r.StudentID)
	if err != nil {
		return rentalOutcome{}, true, &RentalError{RentalID: r.ID, StudentID: r.StudentID, Stage: StageLookup, Err: err}
	}

	d := Decide(DecisionInput{
		Rental:   r,
		ItemName: itemName,
		Delay:    delay,
		Active:   active,
		Now:      now,
	})
	if d.Sanction != nil && d.Sanction.ID == "" {
		d.Sanction.ID = e.newID()
	}

	check := RentalCheck{RentalID: r.ID, CheckedAt: now, AppliedTier: d.AppliedTier}
	err = e.Store.WithTx(ctx, func(tx Store) error {
		if d.Sanction != nil {
			if active == nil {
				if err := tx.InsertSanction(ctx, *d.Sanction); err != nil {
					return fmt.Errorf("insert sanction: %w", err)
				}
			} else {
				if err := tx.UpdateSanction(ctx, *d.Sanction, active.Revision); err != nil {
					return fmt.Errorf("update sanction %s: %w", active.ID, err)
				}
			}
		}
		if err := tx.MarkRentalOverdue(ctx, check); err != nil {
			return fmt.Errorf("mark rental overdue: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrRentalClosed) {
		e.logf("Rental %s closed during the check, skipped", r.ID)
		return rentalOutcome{}, false, nil
	}
	if err != nil {
		return rentalOutcome{}, true, &RentalError{RentalID: r.ID, StudentID: r.StudentID, Stage: StagePersist, Err: err}
	}

	if d.Changed() {
		e.logf("%s %s for %s (%s): %s", d.Kind, d.Sanction.Type, r.StudentName, r.StudentID, d.Sanction.Reason)
	}
	return rentalOutcome{Decision: d, itemName: itemName, delay: delay}, true, nil
}

func (e *Engine) itemName(ctx context.Context, r Rental) string {
	item, err := e.Store.GetItem(ctx, r.ItemID)
	if err != nil || item == nil {
		e.logf("Item lookup failed for rental %s (item %s): %v", r.ID, r.ItemID, err)
		return UnknownItemName
	}
	return item.Name
}

func (e *Engine) activeSanction(ctx context.Context, studentID string) (*Sanction, error) {
	sanctions, err := e.Store.ActiveSanctions(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("load active sanctions: %w", err)
	}
	if len(sanctions) == 0 {
		return nil, nil
	}
	if len(sanctions) > 1 {
		e.logf("⚠️ Student %s has %d active sanctions, using %s", studentID, len(sanctions), sanctions[0].ID)
	}
	s := sanctions[0]
	if !s.Type.Valid() {
		return nil, fmt.Errorf("sanction %s: %w: %q", s.ID, ErrUnknownTier, s.Type)
	}
	return &s, nil
}

func (e *Engine) send(ctx context.Context, msg Message) error {
	if e.Notifier == nil {
		return nil
	}
	return e.Notifier.Send(ctx, msg)
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

func (e *Engine) newID() string {
	if e.NewID == nil {
		return uuid.NewString()
	}
	return e.NewID()
}

func (e *Engine) logf(format string, args ...any) {
	l := e.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf("[SanctionEngine] "+format, args...)
}

/*
Package sanction implements the overdue-rental sanction engine.

PURPOSE:
  Every minute the engine scans active rentals, measures how late each one
  is, and turns the delay into a progressive sanction on the student:
  warning, 1-week restriction, 1-month restriction, permanent ban.
  Escalations and new sanctions are reported in one batched message.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tier: Ordered sanction severity with an explicit rank table
  - Rental: A checked-out item with a due date (calendar day)
  - Sanction: The single active sanction record per student
  - Item: Name lookup for notification text

DESIGN PRINCIPLES:
  1. One clock read per run: "now" is captured once and passed explicitly
  2. Tiers are ranked by table, never by string comparison
  3. At most one active sanction per student (update in place, CAS on revision)
  4. Each rental is processed in its own error boundary

SEE ALSO:
  - classify.go: Delay -> tier thresholds
  - decision.go: Escalation gate and warning accumulation
  - engine.go: The run loop
  - store.go: Persistence interfaces
*/
package sanction

import (
	"fmt"
	"time"
)

// =============================================================================
// TIER - Ordered sanction severity
// =============================================================================

type Tier string

const (
	TierNone            Tier = ""
	TierWarning         Tier = "warning"
	TierSuspensionWeek  Tier = "suspension_1_week"
	TierSuspensionMonth Tier = "suspension_1_month"
	TierPermanentBan    Tier = "permanent_ban"
)

var tierRank = map[Tier]int{
	TierNone:            0,
	TierWarning:         1,
	TierSuspensionWeek:  2,
	TierSuspensionMonth: 3,
	TierPermanentBan:    4,
}

var tierLabels = map[Tier]string{
	TierNone:            "none",
	TierWarning:         "Warning",
	TierSuspensionWeek:  "1-week rental restriction",
	TierSuspensionMonth: "1-month rental restriction",
	TierPermanentBan:    "Permanent rental ban",
}

// Rank returns the severity rank. Unknown tiers rank below TierNone.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// HigherThan reports whether t is strictly more severe than other.
func (t Tier) HigherThan(other Tier) bool { return t.Rank() > other.Rank() }

func (t Tier) Valid() bool { return t.Rank() > 0 }

// Label is the human-readable name used in notifications.
func (t Tier) Label() string {
	if l, ok := tierLabels[t]; ok {
		return l
	}
	return string(t)
}

// ParseTier converts a stored value back into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if _, ok := tierRank[t]; !ok {
		return TierNone, fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}

// AllTiers lists sanction tiers from least to most severe.
func AllTiers() []Tier {
	return []Tier{TierWarning, TierSuspensionWeek, TierSuspensionMonth, TierPermanentBan}
}

// =============================================================================
// RENTAL
// =============================================================================

type RentalStatus string

const (
	RentalRented   RentalStatus = "rented"
	RentalOverdue  RentalStatus = "overdue"
	RentalReturned RentalStatus = "returned"
	RentalLost     RentalStatus = "lost"
	RentalDamaged  RentalStatus = "damaged"
)

// IsActive reports whether the item is still out with the student.
func (s RentalStatus) IsActive() bool { return s == RentalRented || s == RentalOverdue }

func (s RentalStatus) Valid() bool {
	switch s {
	case RentalRented, RentalOverdue, RentalReturned, RentalLost, RentalDamaged:
		return true
	}
	return false
}

// DateLayout is the storage format of a due date.
const DateLayout = "2006-01-02"

// Rental is a checked-out item.
type Rental struct {
	ID          string
	StudentID   string
	StudentName string
	PhoneNumber string
	ItemID      string
	ItemName    string
	Status      RentalStatus

	// DueDate is a calendar day; only year, month and day are meaningful.
	DueDate time.Time

	LastOverdueCheck *time.Time

	// AppliedTier is the highest tier this rental has pushed onto the
	// student's sanction. TierNone until the rental first changes a sanction.
	AppliedTier Tier

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DueAt is midnight of the due date in loc.
func (r Rental) DueAt(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := r.DueDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Delay is how long past due the rental is at now. Non-positive means not due yet.
func (r Rental) Delay(now time.Time, loc *time.Location) time.Duration {
	return now.Sub(r.DueAt(loc))
}

// ParseDueDate parses a YYYY-MM-DD calendar day.
func ParseDueDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDueDate, s)
	}
	return t, nil
}

// RentalCheck is the rental update written after a qualifying delay.
type RentalCheck struct {
	RentalID    string
	CheckedAt   time.Time
	AppliedTier Tier
}

// =============================================================================
// SANCTION
// =============================================================================

// Sanction is a student's sanction record. Only one may be active per student.
type Sanction struct {
	ID          string
	StudentID   string
	StudentName string
	Type        Tier
	Reason      string

	StartDate time.Time
	EndDate   *time.Time // nil for warning and permanent_ban

	WarningCount  int // consecutive warnings toward auto-escalation
	TotalWarnings int // lifetime, never reset

	IsActive        bool
	RelatedRentalID string

	// Revision increments on every write; updates are conditional on it.
	Revision int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// ITEM
// =============================================================================

type Item struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// UnknownItemName is used when the item lookup fails.
const UnknownItemName = "unknown item"

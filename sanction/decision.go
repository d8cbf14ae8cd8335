package sanction

import "time"

// =============================================================================
// DECISION - Escalation gate for one rental (pure)
// =============================================================================

type DecisionKind string

const (
	// DecisionUnchanged: the delay is not worse than the active sanction.
	// Only the rental's overdue flag is refreshed.
	DecisionUnchanged DecisionKind = "unchanged"

	DecisionCreated   DecisionKind = "created"
	DecisionEscalated DecisionKind = "escalated"

	// DecisionAccumulated: another rental added a warning to an active warning.
	DecisionAccumulated DecisionKind = "accumulated"

	// DecisionAutoEscalated: the accumulated warnings reached the limit and
	// the sanction became a 1-week restriction.
	DecisionAutoEscalated DecisionKind = "auto_escalated"
)

// DecisionInput is everything Decide needs. Now is the run's single clock read.
type DecisionInput struct {
	Rental   Rental
	ItemName string
	Delay    time.Duration
	Active   *Sanction
	Now      time.Time
}

// Decision is the outcome for one rental.
type Decision struct {
	Kind DecisionKind

	// Tier is the tier classified from the delay alone.
	Tier Tier

	// Sanction is the record to persist; nil when Kind is DecisionUnchanged.
	// New sanctions have an empty ID.
	Sanction *Sanction

	Notify bool

	// AppliedTier is the rental's AppliedTier after this decision.
	AppliedTier Tier
}

// Changed reports whether the sanction record must be written.
func (d Decision) Changed() bool { return d.Sanction != nil }

// Decide applies the escalation gate:
//
//	no active sanction              -> create, notify
//	tier > active tier              -> escalate in place, notify
//	warning on warning (new rental) -> accumulate; at 3 warnings auto-escalate, notify
//	otherwise                       -> unchanged
//
// Auto-escalation only happens when the classified tier is a warning.
func Decide(in DecisionInput) Decision {
	tier := Classify(in.Delay)
	d := Decision{Kind: DecisionUnchanged, Tier: tier, AppliedTier: in.Rental.AppliedTier}
	if tier == TierNone {
		return d
	}

	active := in.Active
	switch {
	case active == nil:
		s := &Sanction{
			StudentID:       in.Rental.StudentID,
			StudentName:     in.Rental.StudentName,
			IsActive:        true,
			RelatedRentalID: in.Rental.ID,
			CreatedAt:       in.Now,
		}
		applyTier(s, tier, in.ItemName, in.Delay, in.Now)
		if tier == TierWarning {
			s.WarningCount = 1
			s.TotalWarnings = 1
		}
		d.Kind = DecisionCreated
		d.Sanction = s
		d.Notify = true

	case tier.HigherThan(active.Type):
		s := *active
		applyTier(&s, tier, in.ItemName, in.Delay, in.Now)
		s.WarningCount = 0
		s.RelatedRentalID = in.Rental.ID
		s.StudentName = in.Rental.StudentName
		d.Kind = DecisionEscalated
		d.Sanction = &s
		d.Notify = true

	case tier == TierWarning && active.Type == TierWarning && in.Rental.AppliedTier == TierNone:
		s := *active
		s.WarningCount++
		s.TotalWarnings++
		s.RelatedRentalID = in.Rental.ID
		s.UpdatedAt = in.Now
		d.Kind = DecisionAccumulated
		if s.WarningCount >= AutoEscalationWarnings {
			s.Type = TierSuspensionWeek
			s.Reason = AutoEscalationReason
			s.StartDate = in.Now
			s.EndDate = EndDate(TierSuspensionWeek, in.Now)
			s.WarningCount = 0
			d.Kind = DecisionAutoEscalated
			d.Notify = true
		}
		d.Sanction = &s

	default:
		return d
	}

	if d.Sanction.Type.HigherThan(d.AppliedTier) {
		d.AppliedTier = d.Sanction.Type
	}
	return d
}

func applyTier(s *Sanction, tier Tier, itemName string, delay time.Duration, now time.Time) {
	s.Type = tier
	s.Reason = Reason(tier, itemName, delay)
	s.StartDate = now
	s.EndDate = EndDate(tier, now)
	s.IsActive = true
	s.UpdatedAt = now
}

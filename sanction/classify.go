package sanction

import (
	"fmt"
	"time"
)

// =============================================================================
// THRESHOLDS
// =============================================================================

// Delay thresholds. Comparisons are strict, so a delay of exactly a
// threshold stays in the lower tier.
const (
	WeekThreshold  = 30 * time.Minute
	MonthThreshold = 2 * time.Hour
	BanThreshold   = 24 * time.Hour
)

// Sanction lengths.
const (
	WeekSuspensionDays     = 7
	MonthSuspensionMonths  = 1
	AutoEscalationWarnings = 3
)

// Classify maps a delay to a tier, most severe first.
// Returns TierNone when the rental is not yet late.
func Classify(delay time.Duration) Tier {
	switch {
	case delay <= 0:
		return TierNone
	case delay > BanThreshold:
		return TierPermanentBan
	case delay > MonthThreshold:
		return TierSuspensionMonth
	case delay > WeekThreshold:
		return TierSuspensionWeek
	default:
		return TierWarning
	}
}

// EndDate returns when a sanction of tier t started at start expires.
// Warnings and permanent bans have no end date.
func EndDate(t Tier, start time.Time) *time.Time {
	var end time.Time
	switch t {
	case TierSuspensionWeek:
		end = start.AddDate(0, 0, WeekSuspensionDays)
	case TierSuspensionMonth:
		end = start.AddDate(0, MonthSuspensionMonths, 0)
	default:
		return nil
	}
	return &end
}

// =============================================================================
// TEXT
// =============================================================================

// AutoEscalationReason is the reason recorded when warnings accumulate.
const AutoEscalationReason = "3 accumulated warnings → 1-week restriction"

// Reason builds the sanction reason for a tier.
func Reason(t Tier, itemName string, delay time.Duration) string {
	h, m := splitDelay(delay)
	switch t {
	case TierWarning:
		return fmt.Sprintf("%s returned late by %dm (warning)", itemName, totalMinutes(delay))
	case TierSuspensionWeek:
		return fmt.Sprintf("%s returned late by %dm → 1-week rental restriction", itemName, totalMinutes(delay))
	case TierSuspensionMonth:
		return fmt.Sprintf("%s returned late by %dh %dm → 1-month rental restriction", itemName, h, m)
	case TierPermanentBan:
		return fmt.Sprintf("%s returned late by %dh → permanent rental ban", itemName, h)
	}
	return ""
}

// FormatDelay renders a delay as "1h 5m" or "45m".
func FormatDelay(delay time.Duration) string {
	h, m := splitDelay(delay)
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func splitDelay(delay time.Duration) (hours, minutes int) {
	total := totalMinutes(delay)
	return total / 60, total % 60
}

func totalMinutes(delay time.Duration) int {
	if delay < 0 {
		return 0
	}
	return int(delay / time.Minute)
}

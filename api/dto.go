/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Items:     ItemDTO, CreateItemRequest
  Rentals:   RentalDTO, CreateRentalRequest, ReturnRentalRequest
  Sanctions: SanctionDTO
  Runs:      RunDTO, StatsDTO
  Scenarios: ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/council/rental-sanctions/sanction"
	"github.com/council/rental-sanctions/store/sqlite"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

type ItemDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateItemRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RentalDTO represents a rental. DelayHours is set for active rentals past due.
type RentalDTO struct {
	ID               string           `json:"id"`
	StudentID        string           `json:"student_id"`
	StudentName      string           `json:"student_name"`
	PhoneNumber      string           `json:"phone_number,omitempty"`
	ItemID           string           `json:"item_id"`
	ItemName         string           `json:"item_name"`
	Status           string           `json:"status"`
	DueDate          string           `json:"due_date"`
	LastOverdueCheck *string          `json:"last_overdue_check,omitempty"`
	AppliedTier      string           `json:"applied_tier,omitempty"`
	DelayHours       *decimal.Decimal `json:"delay_hours,omitempty"`
	CreatedAt        string           `json:"created_at"`
}

// CreateRentalRequest creates a rental. ID is generated when empty.
type CreateRentalRequest struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	PhoneNumber string `json:"phone_number"`
	ItemID      string `json:"item_id"`
	DueDate     string `json:"due_date"` // YYYY-MM-DD
}

// ReturnRentalRequest closes a rental; Status defaults to "returned".
type ReturnRentalRequest struct {
	Status string `json:"status"`
}

type SanctionDTO struct {
	ID              string  `json:"id"`
	StudentID       string  `json:"student_id"`
	StudentName     string  `json:"student_name"`
	Type            string  `json:"sanction_type"`
	Label           string  `json:"label"`
	Reason          string  `json:"reason"`
	StartDate       string  `json:"start_date"`
	EndDate         *string `json:"end_date,omitempty"`
	WarningCount    int     `json:"warning_count"`
	TotalWarnings   int     `json:"total_warnings"`
	IsActive        bool    `json:"is_active"`
	RelatedRentalID string  `json:"related_rental_id"`
	Revision        int64   `json:"revision"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// StudentSanctionDTO is the student's current standing plus history.
type StudentSanctionDTO struct {
	StudentID string        `json:"student_id"`
	Active    *SanctionDTO  `json:"active"`
	CanRent   bool          `json:"can_rent"`
	History   []SanctionDTO `json:"history"`
}

type RunDTO struct {
	ID          string  `json:"id"`
	Trigger     string  `json:"trigger"`
	Status      string  `json:"status"`
	Scanned     int     `json:"scanned"`
	Overdue     int     `json:"overdue"`
	Created     int     `json:"created"`
	Escalated   int     `json:"escalated"`
	Accumulated int     `json:"accumulated"`
	Unchanged   int     `json:"unchanged"`
	Failed      int     `json:"failed"`
	Notified    int     `json:"notified"`
	Error       string  `json:"error,omitempty"`
	StartedAt   string  `json:"started_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// StatsDTO summarises the current state for the council dashboard.
type StatsDTO struct {
	RentalsByStatus   map[string]int  `json:"rentals_by_status"`
	ActiveByTier      map[string]int  `json:"active_sanctions_by_tier"`
	OverdueRentals    int             `json:"overdue_rentals"`
	AverageDelayHours decimal.Decimal `json:"average_delay_hours"`
	MaxDelayHours     decimal.Decimal `json:"max_delay_hours"`
	NextRun           *string         `json:"next_run,omitempty"`
	LastRun           *RunDTO         `json:"last_run,omitempty"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toItemDTO(it sanction.Item) ItemDTO {
	return ItemDTO{ID: it.ID, Name: it.Name, CreatedAt: formatTime(it.CreatedAt)}
}

func toRentalDTO(r sanction.Rental, now time.Time, loc *time.Location) RentalDTO {
	dto := RentalDTO{
		ID:               r.ID,
		StudentID:        r.StudentID,
		StudentName:      r.StudentName,
		PhoneNumber:      r.PhoneNumber,
		ItemID:           r.ItemID,
		ItemName:         r.ItemName,
		Status:           string(r.Status),
		DueDate:          r.DueDate.Format(sanction.DateLayout),
		LastOverdueCheck: formatTimePtr(r.LastOverdueCheck),
		AppliedTier:      string(r.AppliedTier),
		CreatedAt:        formatTime(r.CreatedAt),
	}
	if r.Status.IsActive() {
		if delay := r.Delay(now, loc); delay > 0 {
			hours := delayHours(delay)
			dto.DelayHours = &hours
		}
	}
	return dto
}

func toSanctionDTO(s sanction.Sanction) SanctionDTO {
	return SanctionDTO{
		ID:              s.ID,
		StudentID:       s.StudentID,
		StudentName:     s.StudentName,
		Type:            string(s.Type),
		Label:           s.Type.Label(),
		Reason:          s.Reason,
		StartDate:       formatTime(s.StartDate),
		EndDate:         formatTimePtr(s.EndDate),
		WarningCount:    s.WarningCount,
		TotalWarnings:   s.TotalWarnings,
		IsActive:        s.IsActive,
		RelatedRentalID: s.RelatedRentalID,
		Revision:        s.Revision,
		CreatedAt:       formatTime(s.CreatedAt),
		UpdatedAt:       formatTime(s.UpdatedAt),
	}
}

func toRunDTO(r sqlite.SanctionRun) RunDTO {
	return RunDTO{
		ID:          r.ID,
		Trigger:     r.Trigger,
		Status:      string(r.Status),
		Scanned:     r.Scanned,
		Overdue:     r.Overdue,
		Created:     r.Created,
		Escalated:   r.Escalated,
		Accumulated: r.Accumulated,
		Unchanged:   r.Unchanged,
		Failed:      r.Failed,
		Notified:    r.Notified,
		Error:       r.Error,
		StartedAt:   formatTime(r.StartedAt),
		CompletedAt: formatTimePtr(r.CompletedAt),
	}
}

// delayHours converts a delay to hours rounded to 2 places.
func delayHours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d / time.Second)).
		Div(decimal.NewFromInt(3600)).
		Round(2)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

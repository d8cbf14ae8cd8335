/*
scenarios.go - Demo data loaders for development and demonstrations

PURPOSE:

	Populates the database with items, rentals and sanctions that exercise
	the return delay check. Due dates are relative to today in the
	configured timezone, so a scenario behaves the same whenever it loads.

AVAILABLE SCENARIOS:

	mixed-overdue:   On-time, due-today, long-overdue and returned rentals
	repeat-offender: Student with an active warning (2 accumulated) plus a rental due today.
	                 Checked in the first 30 minutes after midnight it adds the third
	                 warning and auto-escalates; later in the day it escalates by delay
	batch-overflow:  12 students two days late, more than one message can list

USAGE VIA API:

	GET  /api/scenarios/current
	POST /api/scenarios/load
	{"scenario_id": "batch-overflow"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/council/rental-sanctions/sanction"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "mixed-overdue",
		Name:        "Mixed Overdue",
		Description: "On-time, due-today, two-days-late and returned rentals",
	},
	{
		ID:          "repeat-offender",
		Name:        "Repeat Offender",
		Description: "Active warning with 2 accumulated warnings and a rental due today; the third warning auto-escalates to a 1-week restriction",
	},
	{
		ID:          "batch-overflow",
		Name:        "Batch Overflow",
		Description: "12 students two days late; the message lists 10 and counts the rest",
	},
}

var demoItems = []sanction.Item{
	{ID: "item-umbrella", Name: "Umbrella"},
	{ID: "item-calculator", Name: "Engineering calculator"},
	{ID: "item-charger", Name: "Laptop charger"},
	{ID: "item-ball", Name: "Basketball"},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the loaded scenario, or null when none is.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

var errUnknownScenario = errors.New("unknown scenario")

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "mixed-overdue":
		load = h.loadMixedOverdueScenario
	case "repeat-offender":
		load = h.loadRepeatOffenderScenario
	case "batch-overflow":
		load = h.loadBatchOverflowScenario
	default:
		return errUnknownScenario
	}

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	if err := h.seedItems(ctx); err != nil {
		return err
	}
	if err := load(ctx); err != nil {
		return err
	}

	h.currentScenario = id
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) seedItems(ctx context.Context) error {
	now := h.now()
	for _, it := range demoItems {
		it.CreatedAt = now
		if err := h.Store.SaveItem(ctx, it); err != nil {
			return fmt.Errorf("save item %s: %w", it.ID, err)
		}
	}
	return nil
}

// today returns midnight of the current day in the handler's timezone,
// expressed as the calendar date rentals store.
func (h *Handler) today() time.Time {
	now := h.now().In(h.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (h *Handler) seedRental(ctx context.Context, r sanction.Rental) error {
	now := h.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = sanction.RentalRented
	}
	if err := h.Store.SaveRental(ctx, r); err != nil {
		return fmt.Errorf("save rental %s: %w", r.ID, err)
	}
	return nil
}

func (h *Handler) loadMixedOverdueScenario(ctx context.Context) error {
	today := h.today()
	rentals := []sanction.Rental{
		{ID: "rental-on-time", StudentID: "20240001", StudentName: "Kim Minji", PhoneNumber: "010-1111-0001",
			ItemID: "item-umbrella", DueDate: today.AddDate(0, 0, 1)},
		{ID: "rental-due-today", StudentID: "20240002", StudentName: "Lee Jun", PhoneNumber: "010-1111-0002",
			ItemID: "item-calculator", DueDate: today},
		{ID: "rental-two-days", StudentID: "20240003", StudentName: "Park Seoyeon", PhoneNumber: "010-1111-0003",
			ItemID: "item-charger", DueDate: today.AddDate(0, 0, -2)},
		{ID: "rental-returned", StudentID: "20240004", StudentName: "Choi Hyun", PhoneNumber: "010-1111-0004",
			ItemID: "item-ball", DueDate: today.AddDate(0, 0, -3), Status: sanction.RentalReturned},
	}
	for _, r := range rentals {
		if err := h.seedRental(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadRepeatOffenderScenario(ctx context.Context) error {
	today := h.today()
	now := h.now()

	// Two earlier rentals already produced the accumulated warnings.
	earlier := []sanction.Rental{
		{ID: "rental-first", StudentID: "20240010", StudentName: "Jung Hana", PhoneNumber: "010-2222-0010",
			ItemID: "item-umbrella", DueDate: today.AddDate(0, 0, -14), Status: sanction.RentalReturned,
			AppliedTier: sanction.TierWarning},
		{ID: "rental-second", StudentID: "20240010", StudentName: "Jung Hana", PhoneNumber: "010-2222-0010",
			ItemID: "item-ball", DueDate: today.AddDate(0, 0, -7), Status: sanction.RentalReturned,
			AppliedTier: sanction.TierWarning},
	}
	for _, r := range earlier {
		if err := h.seedRental(ctx, r); err != nil {
			return err
		}
	}

	start := now.AddDate(0, 0, -7)
	warning := sanction.Sanction{
		ID:              "sanction-repeat",
		StudentID:       "20240010",
		StudentName:     "Jung Hana",
		Type:            sanction.TierWarning,
		Reason:          sanction.Reason(sanction.TierWarning, "Basketball", 12*time.Minute),
		StartDate:       start,
		WarningCount:    2,
		TotalWarnings:   2,
		IsActive:        true,
		RelatedRentalID: "rental-second",
		CreatedAt:       now.AddDate(0, 0, -14),
		UpdatedAt:       start,
	}
	if err := h.Store.InsertSanction(ctx, warning); err != nil {
		return fmt.Errorf("save sanction: %w", err)
	}

	return h.seedRental(ctx, sanction.Rental{
		ID: "rental-third", StudentID: "20240010", StudentName: "Jung Hana", PhoneNumber: "010-2222-0010",
		ItemID: "item-calculator", DueDate: today,
	})
}

func (h *Handler) loadBatchOverflowScenario(ctx context.Context) error {
	due := h.today().AddDate(0, 0, -2)
	for i := 1; i <= 12; i++ {
		r := sanction.Rental{
			ID:          fmt.Sprintf("rental-batch-%02d", i),
			StudentID:   fmt.Sprintf("2024%04d", 100+i),
			StudentName: fmt.Sprintf("Student %02d", i),
			PhoneNumber: fmt.Sprintf("010-3333-%04d", i),
			ItemID:      demoItems[i%len(demoItems)].ID,
			DueDate:     due,
		}
		if err := h.seedRental(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

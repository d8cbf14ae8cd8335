/*
handlers.go - HTTP API handlers for the rental sanction service

PURPOSE:
  Admin surface for council staff: register items and rentals, close
  rentals, inspect and lift sanctions, and watch the scheduled check.

ENDPOINTS:
  Items:
    GET    /api/items                    List items
    POST   /api/items                    Create item

  Rentals:
    GET    /api/rentals?status=          List rentals
    POST   /api/rentals                  Create rental
    GET    /api/rentals/{id}             Get rental
    POST   /api/rentals/{id}/return      Close rental (returned, lost, damaged)

  Sanctions:
    GET    /api/sanctions?active=true    List sanctions
    GET    /api/students/{id}/sanction   Current sanction + history
    POST   /api/sanctions/{id}/deactivate Lift a sanction

  Admin:
    GET    /api/runs                     Recent return delay checks
    POST   /api/admin/check              Run the check now
    GET    /api/admin/stats              Dashboard numbers

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (closed rental, lifted sanction, check already running)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Deploy behind the council's internal network.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/council/rental-sanctions/lock"
	"github.com/council/rental-sanctions/sanction"
	"github.com/council/rental-sanctions/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Scheduler *SanctionScheduler
	Location  *time.Location
	Clock     func() time.Time

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler. scheduler may be nil, which disables
// the manual check endpoint.
func NewHandler(store *sqlite.Store, scheduler *SanctionScheduler, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Store:     store,
		Scheduler: scheduler,
		Location:  loc,
		Clock:     time.Now,
	}
}

func (h *Handler) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock()
}

// Health reports whether the database is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": formatTime(h.now())})
}

// =============================================================================
// ITEM ENDPOINTS
// =============================================================================

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}

	dtos := make([]ItemDTO, 0, len(items))
	for _, it := range items {
		dtos = append(dtos, toItemDTO(it))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	item := sanction.Item{ID: req.ID, Name: req.Name, CreatedAt: h.now()}
	if err := h.Store.SaveItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

// =============================================================================
// RENTAL ENDPOINTS
// =============================================================================

func (h *Handler) ListRentals(w http.ResponseWriter, r *http.Request) {
	status := sanction.RentalStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}

	rentals, err := h.Store.ListRentals(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rentals", err)
		return
	}

	now := h.now()
	dtos := make([]RentalDTO, 0, len(rentals))
	for _, rental := range rentals {
		dtos = append(dtos, toRentalDTO(rental, now, h.Location))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetRental(w http.ResponseWriter, r *http.Request) {
	rental, err := h.Store.GetRental(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "Rental not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toRentalDTO(*rental, h.now(), h.Location))
}

func (h *Handler) CreateRental(w http.ResponseWriter, r *http.Request) {
	var req CreateRentalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.StudentID == "" || req.StudentName == "" || req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "student_id, student_name and item_id are required", nil)
		return
	}
	dueDate, err := sanction.ParseDueDate(req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD", err)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.GetItem(ctx, req.ItemID); err != nil {
		writeStoreError(w, "Item not found", err)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := h.now()
	rental := sanction.Rental{
		ID:          req.ID,
		StudentID:   req.StudentID,
		StudentName: req.StudentName,
		PhoneNumber: req.PhoneNumber,
		ItemID:      req.ItemID,
		Status:      sanction.RentalRented,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.Store.SaveRental(ctx, rental); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rental", err)
		return
	}

	saved, err := h.Store.GetRental(ctx, rental.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load rental", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRentalDTO(*saved, now, h.Location))
}

// ReturnRental closes a rental. Sanctions already applied stay in place.
func (h *Handler) ReturnRental(w http.ResponseWriter, r *http.Request) {
	req := ReturnRentalRequest{Status: string(sanction.RentalReturned)}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		if req.Status == "" {
			req.Status = string(sanction.RentalReturned)
		}
	}

	status := sanction.RentalStatus(req.Status)
	if !status.Valid() || status.IsActive() {
		writeError(w, http.StatusBadRequest, "status must be returned, lost or damaged", nil)
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.Store.ReturnRental(ctx, id, status, h.now()); err != nil {
		writeStoreError(w, "Failed to return rental", err)
		return
	}

	rental, err := h.Store.GetRental(ctx, id)
	if err != nil {
		writeStoreError(w, "Rental not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toRentalDTO(*rental, h.now(), h.Location))
}

// =============================================================================
// SANCTION ENDPOINTS
// =============================================================================

func (h *Handler) ListSanctions(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	list, err := h.Store.ListSanctions(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sanctions", err)
		return
	}

	dtos := make([]SanctionDTO, 0, len(list))
	for _, s := range list {
		dtos = append(dtos, toSanctionDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStudentSanction returns the student's active sanction, whether they
// may rent right now, and their full sanction history.
func (h *Handler) GetStudentSanction(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")

	history, err := h.Store.StudentSanctions(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load sanctions", err)
		return
	}

	resp := StudentSanctionDTO{StudentID: studentID, CanRent: true, History: make([]SanctionDTO, 0, len(history))}
	now := h.now()
	for _, s := range history {
		dto := toSanctionDTO(s)
		resp.History = append(resp.History, dto)
		if s.IsActive && resp.Active == nil {
			active := dto
			resp.Active = &active
			resp.CanRent = !restricts(s, now)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// restricts reports whether an active sanction blocks renting at now.
func restricts(s sanction.Sanction, now time.Time) bool {
	switch s.Type {
	case sanction.TierWarning:
		return false
	case sanction.TierPermanentBan:
		return true
	default:
		return s.EndDate == nil || now.Before(*s.EndDate)
	}
}

// DeactivateSanction lifts a sanction (manual decision by council staff).
func (h *Handler) DeactivateSanction(w http.ResponseWriter, r *http.Request) {
	s, err := h.Store.DeactivateSanction(r.Context(), chi.URLParam(r, "id"), h.now())
	if err != nil {
		writeStoreError(w, "Failed to deactivate sanction", err)
		return
	}
	writeJSON(w, http.StatusOK, toSanctionDTO(*s))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunCheck runs the return delay check immediately.
func (h *Handler) RunCheck(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}

	run, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			writeError(w, http.StatusConflict, "A check is already running", err)
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Check failed", Details: toRunDTO(run)})
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// Stats returns rental/sanction counts and the current delay of overdue rentals.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rentals, err := h.Store.ListRentals(ctx, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rentals", err)
		return
	}
	active, err := h.Store.ListSanctions(ctx, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sanctions", err)
		return
	}

	now := h.now()
	stats := StatsDTO{
		RentalsByStatus:   make(map[string]int),
		ActiveByTier:      make(map[string]int),
		AverageDelayHours: decimal.Zero,
		MaxDelayHours:     decimal.Zero,
	}

	total := decimal.Zero
	for _, rental := range rentals {
		stats.RentalsByStatus[string(rental.Status)]++
		if !rental.Status.IsActive() {
			continue
		}
		delay := rental.Delay(now, h.Location)
		if delay <= 0 {
			continue
		}
		hours := delayHours(delay)
		stats.OverdueRentals++
		total = total.Add(hours)
		if hours.GreaterThan(stats.MaxDelayHours) {
			stats.MaxDelayHours = hours
		}
	}
	if stats.OverdueRentals > 0 {
		stats.AverageDelayHours = total.Div(decimal.NewFromInt(int64(stats.OverdueRentals))).Round(2)
	}

	for _, s := range active {
		stats.ActiveByTier[string(s.Type)]++
	}

	if h.Scheduler != nil {
		if next := h.Scheduler.NextRun(); !next.IsZero() {
			stats.NextRun = formatTimePtr(&next)
		}
	}
	if runs, err := h.Store.ListRuns(ctx, 1); err == nil && len(runs) > 0 {
		last := toRunDTO(runs[0])
		stats.LastRun = &last
	}

	writeJSON(w, http.StatusOK, stats)
}

// ResetDatabase clears all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeStoreError maps store errors to 404/409/500.
func writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case sanction.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case sanction.IsConflict(err),
		errors.Is(err, sanction.ErrRentalClosed),
		errors.Is(err, sqlite.ErrSanctionInactive):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

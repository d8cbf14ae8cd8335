/*
handlers_test.go - HTTP tests for the admin API

Tests for:
- Item and rental registration
- Returning rentals
- Sanction lookup and manual lifting
- Manual check, run history and stats
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/council/rental-sanctions/lock"
	"github.com/council/rental-sanctions/sanction"
	"github.com/council/rental-sanctions/store/sqlite"
)

var kst = time.FixedZone("KST", 9*60*60)

// testNow is 00:40 KST on 2026-03-02.
var testNow = time.Date(2026, time.March, 2, 0, 40, 0, 0, kst)

type testEnv struct {
	handler *Handler
	router  *chi.Mux
	store   *sqlite.Store

	mu   sync.Mutex
	sent []sanction.Message
}

func (e *testEnv) messages() []sanction.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sanction.Message(nil), e.sent...)
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{store: store}
	quiet := log.New(io.Discard, "", 0)

	engine := sanction.NewEngine(store, sanction.NotifierFunc(func(_ context.Context, m sanction.Message) error {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.sent = append(env.sent, m)
		return nil
	}), kst)
	engine.Clock = func() time.Time { return testNow }
	engine.Logger = quiet

	scheduler := NewSanctionScheduler(engine, store, lock.NewLocal())
	scheduler.Logger = quiet

	h := NewHandler(store, scheduler, kst)
	h.Clock = func() time.Time { return testNow }

	env.handler = h
	env.router = NewRouter(h, nil)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) createRental(t *testing.T, id, studentID, dueDate string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/rentals", CreateRentalRequest{
		ID:          id,
		StudentID:   studentID,
		StudentName: "Student " + studentID,
		PhoneNumber: "010-0000-0000",
		ItemID:      "item-1",
		DueDate:     dueDate,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// ITEMS AND RENTALS
// =============================================================================

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestCreateItem_Validation(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/items", CreateItemRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/items", CreateItemRequest{Name: "Umbrella"})
	require.Equal(t, http.StatusCreated, rec.Code)
	item := decode[ItemDTO](t, rec)
	assert.NotEmpty(t, item.ID)

	rec = env.do(t, http.MethodGet, "/api/items", nil)
	items := decode[[]ItemDTO](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "Umbrella", items[0].Name)
}

func TestCreateRental(t *testing.T) {
	// GIVEN: An item and a rental due yesterday
	// THEN: The rental reports its current delay in hours
	env := setupTestEnv(t)
	env.do(t, http.MethodPost, "/api/items", CreateItemRequest{ID: "item-1", Name: "Umbrella"})

	rec := env.do(t, http.MethodPost, "/api/rentals", CreateRentalRequest{
		ID: "r-1", StudentID: "stu-1", StudentName: "Kim Minji", ItemID: "item-1", DueDate: "2026-03-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	dto := decode[RentalDTO](t, rec)
	assert.Equal(t, "rented", dto.Status)
	assert.Equal(t, "Umbrella", dto.ItemName)
	require.NotNil(t, dto.DelayHours)
	assert.Equal(t, "24.67", dto.DelayHours.String())
}

func TestCreateRental_Validation(t *testing.T) {
	env := setupTestEnv(t)
	env.do(t, http.MethodPost, "/api/items", CreateItemRequest{ID: "item-1", Name: "Umbrella"})

	cases := []struct {
		name string
		req  CreateRentalRequest
		want int
	}{
		{"missing student", CreateRentalRequest{ItemID: "item-1", DueDate: "2026-03-01"}, http.StatusBadRequest},
		{"bad date", CreateRentalRequest{StudentID: "s", StudentName: "S", ItemID: "item-1", DueDate: "03/01/2026"}, http.StatusBadRequest},
		{"unknown item", CreateRentalRequest{StudentID: "s", StudentName: "S", ItemID: "nope", DueDate: "2026-03-01"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/rentals", tc.req)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestReturnRental(t *testing.T) {
	env := setupTestEnv(t)
	env.do(t, http.MethodPost, "/api/items", CreateItemRequest{ID: "item-1", Name: "Umbrella"})
	env.createRental(t, "r-1", "stu-1", "2026-03-01")

	rec := env.do(t, http.MethodPost, "/api/rentals/r-1/return", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decode[RentalDTO](t, rec)
	assert.Equal(t, "returned", dto.Status)
	assert.Nil(t, dto.DelayHours)

	rec = env.do(t, http.MethodPost, "/api/rentals/r-1/return", ReturnRentalRequest{Status: "lost"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/rentals/missing/return", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/rentals/r-1/return", ReturnRentalRequest{Status: "overdue"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/rentals?status=returned", nil)
	assert.Len(t, decode[[]RentalDTO](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/rentals?status=borrowed", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CHECK, SANCTIONS AND RUNS
// =============================================================================

func TestRunCheck_CreatesSanctionsAndRecordsRun(t *testing.T) {
	// GIVEN: One rental 40 minutes late and one a day late
	// WHEN: The check is triggered manually
	// THEN: 1-week restriction and permanent ban, one message, one run record
	env := setupTestEnv(t)
	env.do(t, http.MethodPost, "/api/items", CreateItemRequest{ID: "item-1", Name: "Umbrella"})
	env.createRental(t, "r-1", "stu-1", "2026-03-02")
	env.createRental(t, "r-2", "stu-2", "2026-03-01")
	env.createRental(t, "r-3", "stu-3", "2026-03-03")

	rec := env.do(t, http.MethodPost, "/api/admin/check", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[RunDTO](t, rec)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, TriggerManual, run.Trigger)
	assert.Equal(t, 3, run.Scanned)
	assert.Equal(t, 2, run.Overdue)
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 2, run.Notified)
	require.Len(t, env.messages(), 1)

	rec = env.do(t, http.MethodGet, "/api/students/stu-1/sanction", nil)
	standing := decode[StudentSanctionDTO](t, rec)
	require.NotNil(t, standing.Active)
	assert.Equal(t, "suspension_1_week", standing.Active.Type)
	assert.False(t, standing.CanRent)
	require.NotNil(t, standing.Active.EndDate)

	rec = env.do(t, http.MethodGet, "/api/students/stu-3/sanction", nil)
	clean := decode[StudentSanctionDTO](t, rec)
	assert.Nil(t, clean.Active)
	assert.True(t, clean.CanRent)
	assert.Empty(t, clean.History)

	rec = env.do(t, http.MethodGet, "/api/sanctions?active=true", nil)
	assert.Len(t, decode[[]SanctionDTO](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/rentals/r-1", nil)
	r1 := decode[RentalDTO](t, rec)
	assert.Equal(t, "overdue", r1.Status)
	assert.Equal(t, "suspension_1_week", r1.AppliedTier)

	// Second manual run changes nothing.
	rec = env.do(t, http.MethodPost, "/api/admin/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[RunDTO](t, rec).Unchanged)
	assert.Len(t, env.messages(), 1)

	rec = env.do(t, http.MethodGet, "/api/runs", nil)
	assert.Len(t, decode[[]RunDTO](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/runs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeactivateSanction(t *testing.T) {
	env := setupTestEnv(t)
	env.do(t, http.MethodPost, "/api/items", CreateItemRequest{ID: "item-1", Name: "Umbrella"})
	env.createRental(t, "r-1", "stu-1", "2026-03-01")
	env.do(t, http.MethodPost, "/api/admin/check", nil)

	rec := env.do(t, http.MethodGet, "/api/sanctions?active=true", nil)
	list := decode[[]SanctionDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "permanent_ban", list[0].Type)

	rec = env.do(t, http.MethodPost, "/api/sanctions/"+list[0].ID+"/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[SanctionDTO](t, rec).IsActive)

	rec = env.do(t, http.MethodPost, "/api/sanctions/"+list[0].ID+"/deactivate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sanctions/missing/deactivate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/students/stu-1/sanction", nil)
	standing := decode[StudentSanctionDTO](t, rec)
	assert.Nil(t, standing.Active)
	assert.True(t, standing.CanRent)
	assert.Len(t, standing.History, 1)
}

func TestRunCheck_LockHeld(t *testing.T) {
	env := setupTestEnv(t)
	l := lock.NewLocal()
	env.handler.Scheduler.Lock = l

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release(context.Background())

	rec := env.do(t, http.MethodPost, "/api/admin/check", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	runs, err := env.store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sqlite.RunSkipped, runs[0].Status)
}

func TestRunCheck_NoScheduler(t *testing.T) {
	env := setupTestEnv(t)
	env.handler.Scheduler = nil

	rec := env.do(t, http.MethodPost, "/api/admin/check", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStats(t *testing.T) {
	// GIVEN: Rentals 40m and 24h40m late, one not due, one returned
	// THEN: average 12.67h, max 24.67h
	env := setupTestEnv(t)
	env.do(t, http.MethodPost, "/api/items", CreateItemRequest{ID: "item-1", Name: "Umbrella"})
	env.createRental(t, "r-1", "stu-1", "2026-03-02")
	env.createRental(t, "r-2", "stu-2", "2026-03-01")
	env.createRental(t, "r-3", "stu-3", "2026-03-05")
	env.createRental(t, "r-4", "stu-4", "2026-02-20")
	env.do(t, http.MethodPost, "/api/rentals/r-4/return", nil)
	env.do(t, http.MethodPost, "/api/admin/check", nil)

	rec := env.do(t, http.MethodGet, "/api/admin/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatsDTO](t, rec)

	assert.Equal(t, 2, stats.OverdueRentals)
	assert.Equal(t, "12.67", stats.AverageDelayHours.String())
	assert.Equal(t, "24.67", stats.MaxDelayHours.String())
	assert.Equal(t, 2, stats.RentalsByStatus["overdue"])
	assert.Equal(t, 1, stats.RentalsByStatus["rented"])
	assert.Equal(t, 1, stats.RentalsByStatus["returned"])
	assert.Equal(t, 1, stats.ActiveByTier["suspension_1_week"])
	assert.Equal(t, 1, stats.ActiveByTier["permanent_ban"])
	require.NotNil(t, stats.LastRun)
	assert.Equal(t, "completed", stats.LastRun.Status)
}

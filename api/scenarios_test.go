/*
scenarios_test.go - Tests for demo scenarios

Each scenario is loaded and then checked once, so the tests double as
end-to-end runs of the engine against SQLite.
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/council/rental-sanctions/sanction"
)

func TestScenario_MixedOverdue(t *testing.T) {
	// GIVEN: Mixed overdue scenario at 00:40 KST
	// WHEN: The check runs
	// THEN: due-today is a 1-week restriction, two-days-late a ban, the rest untouched
	env := setupTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.handler.loadScenario(ctx, "mixed-overdue"))

	run, err := env.handler.Scheduler.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Scanned)
	assert.Equal(t, 2, run.Created)

	today, err := env.store.ActiveSanctions(ctx, "20240002")
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, sanction.TierSuspensionWeek, today[0].Type)

	late, err := env.store.ActiveSanctions(ctx, "20240003")
	require.NoError(t, err)
	require.Len(t, late, 1)
	assert.Equal(t, sanction.TierPermanentBan, late[0].Type)

	for _, student := range []string{"20240001", "20240004"} {
		none, err := env.store.ActiveSanctions(ctx, student)
		require.NoError(t, err)
		assert.Empty(t, none, student)
	}
}

func TestScenario_RepeatOffender(t *testing.T) {
	// GIVEN: Active warning with 2 accumulated and a rental due today, checked at 00:40 KST
	// THEN: 40m late escalates the existing record to a 1-week restriction; lifetime warnings stay 2
	env := setupTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.handler.loadScenario(ctx, "repeat-offender"))

	run, err := env.handler.Scheduler.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Escalated)

	all, err := env.store.StudentSanctions(ctx, "20240010")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "sanction-repeat", all[0].ID)
	assert.Equal(t, sanction.TierSuspensionWeek, all[0].Type)
	assert.Equal(t, 0, all[0].WarningCount)
	assert.Equal(t, 2, all[0].TotalWarnings)
	assert.Equal(t, "rental-third", all[0].RelatedRentalID)
}

func TestScenario_RepeatOffender_ThirdWarningAutoEscalates(t *testing.T) {
	// GIVEN: The repeat offender scenario checked at 00:10 KST (rental-third 10m late)
	// WHEN: The check runs
	// THEN: The third warning auto-escalates the record to a 1-week restriction and is notified
	env := setupTestEnv(t)
	ctx := context.Background()
	early := time.Date(2026, time.March, 2, 0, 10, 0, 0, kst)
	env.handler.Clock = func() time.Time { return early }
	env.handler.Scheduler.Engine.Clock = func() time.Time { return early }
	require.NoError(t, env.handler.loadScenario(ctx, "repeat-offender"))

	run, err := env.handler.Scheduler.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Escalated)
	assert.Equal(t, 1, run.Notified)

	all, err := env.store.StudentSanctions(ctx, "20240010")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, sanction.TierSuspensionWeek, all[0].Type)
	assert.Equal(t, sanction.AutoEscalationReason, all[0].Reason)
	assert.Equal(t, 0, all[0].WarningCount)
	assert.Equal(t, 3, all[0].TotalWarnings)
	require.NotNil(t, all[0].EndDate)
	assert.True(t, early.AddDate(0, 0, 7).Equal(*all[0].EndDate))

	msgs := env.messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Fields, 1)
	assert.Contains(t, msgs[0].Fields[0].Value, "1-week rental restriction")
}

func TestScenario_BatchOverflow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.handler.loadScenario(ctx, "batch-overflow"))

	run, err := env.handler.Scheduler.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, run.Created)
	assert.Equal(t, 12, run.Notified)

	msgs := env.messages()
	require.Len(t, msgs, 1)
	assert.Len(t, msgs[0].Fields, sanction.MaxMessageFields)
	assert.Contains(t, msgs[0].Footer, "2 more")
}

func TestScenario_LoadViaAPI(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	rec = env.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "unknown"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	for _, s := range scenarios {
		rec = env.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: s.ID})
		assert.Equal(t, http.StatusOK, rec.Code, s.ID)

		rec = env.do(t, http.MethodGet, "/api/scenarios/current", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, s, decode[ScenarioDTO](t, rec))
	}

	rec = env.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/rentals", nil)
	assert.Empty(t, decode[[]RentalDTO](t, rec))
	rec = env.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

package api

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/council/rental-sanctions/sanction"
	"github.com/council/rental-sanctions/sanction/store"
	"github.com/council/rental-sanctions/store/sqlite"
)

func TestScheduler_StartStop(t *testing.T) {
	env := setupTestEnv(t)
	s := env.handler.Scheduler

	assert.True(t, s.NextRun().IsZero())

	require.NoError(t, s.Start())
	// Starting twice is a no-op.
	require.NoError(t, s.Start())

	next := s.NextRun()
	assert.False(t, next.IsZero())
	assert.True(t, next.After(time.Now().Add(-time.Second)))
	assert.True(t, next.Before(time.Now().Add(61*time.Second)))

	s.Stop()
	s.Stop()
	assert.True(t, s.NextRun().IsZero())
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	env := setupTestEnv(t)
	s := env.handler.Scheduler
	s.Schedule = "every minute"

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

// failingRentals makes ListActiveRentals fail.
type failingRentals struct {
	*store.TxMemory
}

func (f failingRentals) ListActiveRentals(context.Context) ([]sanction.Rental, error) {
	return nil, errors.New("database is locked")
}

func TestScheduler_RecordsFailedRun(t *testing.T) {
	// GIVEN: The rental query fails
	// THEN: The run is recorded as failed with the error, and an error message is sent
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var sent []sanction.Message
	engine := sanction.NewEngine(failingRentals{store.NewTxMemory()}, sanction.NotifierFunc(func(_ context.Context, m sanction.Message) error {
		sent = append(sent, m)
		return nil
	}), kst)
	engine.Clock = func() time.Time { return testNow }
	engine.Logger = log.New(io.Discard, "", 0)

	s := NewSanctionScheduler(engine, db, nil)
	s.Logger = log.New(io.Discard, "", 0)

	run, err := s.RunNow(context.Background())
	require.Error(t, err)
	assert.Equal(t, sqlite.RunFailed, run.Status)
	require.Len(t, sent, 1)
	assert.Equal(t, sanction.LevelError, sent[0].Level)

	runs, err := db.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sqlite.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "database is locked")
	assert.Equal(t, TriggerManual, runs[0].Trigger)
}

/*
scheduler.go - Cron-driven return delay check

PURPOSE:
  Invokes the sanction engine on a cron schedule (every minute by default)
  and records each invocation as a SanctionRun for the admin API.

DESIGN:
  - robfig/cron with SkipIfStillRunning: a slow run makes the next tick skip
  - Recover wrapper: a panic in one run never stops the schedule
  - Optional lock.Locker around every run (Redis across processes)
  - Skipped, failed and completed runs are all recorded

USAGE:
  scheduler := NewSanctionScheduler(engine, store, lock.NewLocal())
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunCheck endpoint (manual run)
  - sanction/engine.go: Engine.Run
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/council/rental-sanctions/lock"
	"github.com/council/rental-sanctions/sanction"
	"github.com/council/rental-sanctions/store/sqlite"
)

// Run triggers.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// SanctionScheduler runs the return delay check on a schedule.
type SanctionScheduler struct {
	Engine   *sanction.Engine
	Store    *sqlite.Store
	Lock     lock.Locker
	Schedule string
	Location *time.Location
	Logger   *log.Logger

	// RunTimeout bounds one invocation.
	RunTimeout time.Duration

	cron *cron.Cron
	mu   sync.Mutex
}

// NewSanctionScheduler creates a scheduler firing every minute.
func NewSanctionScheduler(engine *sanction.Engine, store *sqlite.Store, locker lock.Locker) *SanctionScheduler {
	loc := time.UTC
	if engine != nil && engine.Location != nil {
		loc = engine.Location
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &SanctionScheduler{
		Engine:     engine,
		Store:      store,
		Lock:       locker,
		Schedule:   "* * * * *",
		Location:   loc,
		Logger:     log.Default(),
		RunTimeout: 50 * time.Second,
	}
}

// Start registers the cron job and starts it.
func (ss *SanctionScheduler) Start() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.cron != nil {
		return nil
	}

	cronLogger := cron.PrintfLogger(ss.logger())
	c := cron.New(
		cron.WithLocation(ss.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(ss.Schedule, func() {
		ss.runOnce(context.Background(), TriggerSchedule)
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", ss.Schedule, err)
	}

	c.Start()
	ss.cron = c
	ss.logf("Started with schedule %q (%s)", ss.Schedule, ss.Location)
	return nil
}

// Stop stops the schedule and waits for a running check to finish.
func (ss *SanctionScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.cron == nil {
		return
	}
	<-ss.cron.Stop().Done()
	ss.cron = nil
	ss.logf("Stopped")
}

// NextRun returns the next scheduled check, or zero if not started.
func (ss *SanctionScheduler) NextRun() time.Time {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.cron == nil {
		return time.Time{}
	}
	entries := ss.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow triggers an immediate check (for testing/admin). It returns
// lock.ErrNotAcquired if another check is running.
func (ss *SanctionScheduler) RunNow(ctx context.Context) (sqlite.SanctionRun, error) {
	return ss.runOnce(ctx, TriggerManual)
}

func (ss *SanctionScheduler) runOnce(ctx context.Context, trigger string) (sqlite.SanctionRun, error) {
	if ss.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ss.RunTimeout)
		defer cancel()
	}

	run := sqlite.SanctionRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}

	release, err := ss.Lock.Acquire(ctx)
	if err != nil {
		run.Status = sqlite.RunSkipped
		run.Error = err.Error()
		ss.finish(ctx, &run)
		if errors.Is(err, lock.ErrNotAcquired) {
			ss.logf("Skipped %s run: previous check still running", trigger)
		} else {
			ss.logf("Skipped %s run: %v", trigger, err)
		}
		return run, err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			ss.logf("Lock release failed: %v", err)
		}
	}()

	report, runErr := ss.Engine.Run(ctx)
	run.StartedAt = report.StartedAt
	run.Scanned = report.Scanned
	run.Overdue = report.Overdue
	run.Created = report.Created
	run.Escalated = report.Escalated
	run.Accumulated = report.Accumulated
	run.Unchanged = report.Unchanged
	run.Failed = report.Failed
	run.Notified = report.Notified
	if runErr != nil {
		run.Status = sqlite.RunFailed
		run.Error = runErr.Error()
	} else {
		run.Status = sqlite.RunCompleted
	}
	ss.finish(ctx, &run)

	return run, runErr
}

func (ss *SanctionScheduler) finish(ctx context.Context, run *sqlite.SanctionRun) {
	completed := time.Now()
	run.CompletedAt = &completed
	if run.StartedAt.IsZero() {
		run.StartedAt = completed
	}
	if ss.Store == nil {
		return
	}
	// The run context may have expired; the record is still wanted.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := ss.Store.SaveRun(ctx, *run); err != nil {
		ss.logf("Error saving run %s: %v", run.ID, err)
	}
}

func (ss *SanctionScheduler) logger() *log.Logger {
	if ss.Logger == nil {
		return log.Default()
	}
	return ss.Logger
}

func (ss *SanctionScheduler) logf(format string, args ...any) {
	ss.logger().Printf("[Scheduler] "+format, args...)
}

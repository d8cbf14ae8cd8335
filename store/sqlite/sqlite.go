/*
Package sqlite provides a SQLite-backed implementation of sanction.TxStore.

PURPOSE:
  Persists items, rentals, sanctions and the history of scheduled runs.
  The engine only sees the sanction.Store methods; the admin API also uses
  the item/rental/run queries defined here.

KEY TABLES:
  items:          Rentable items (name is resolved at check time)
  rentals:        One row per rental, status + overdue bookkeeping
  sanctions:      One row per sanction, updated in place on escalation
  sanction_runs:  Result of every return delay check

INDEXES:
  - idx_sanctions_one_active: at most one active sanction per student.
    A losing concurrent insert fails with ErrActiveSanctionExists.
  - idx_rentals_status_due: active rental scan (hot path)

CONDITIONAL UPDATES:
  Sanction updates carry the expected revision in the WHERE clause.
  Zero affected rows means another writer got there first.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, plus a single pooled connection so
  ":memory:" databases are shared by every query and transaction.

USAGE:
  store, err := sqlite.New("./data/rental.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := sanction.NewEngine(store, notifier, loc)

SEE ALSO:
  - sanction/store.go: Interface definitions
  - sanction/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/council/rental-sanctions/sanction"
)

// Store implements sanction.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- item_id is not a foreign key: items may be removed while rentals remain
	CREATE TABLE IF NOT EXISTS rentals (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		student_name TEXT NOT NULL,
		phone_number TEXT NOT NULL DEFAULT '',
		item_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'rented',
		due_date TEXT NOT NULL,
		last_overdue_check TEXT,
		applied_tier TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rentals_status_due
		ON rentals(status, due_date);
	CREATE INDEX IF NOT EXISTS idx_rentals_student
		ON rentals(student_id);

	CREATE TABLE IF NOT EXISTS sanctions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		student_name TEXT NOT NULL,
		sanction_type TEXT NOT NULL,
		reason TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		warning_count INTEGER NOT NULL DEFAULT 0,
		total_warnings INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		related_rental_id TEXT NOT NULL DEFAULT '',
		revision INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sanctions_student
		ON sanctions(student_id);

	-- CRITICAL: at most one active sanction per student
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sanctions_one_active
		ON sanctions(student_id) WHERE is_active = 1;

	CREATE TABLE IF NOT EXISTS sanction_runs (
		id TEXT PRIMARY KEY,
		trigger_source TEXT NOT NULL,
		status TEXT NOT NULL,
		scanned INTEGER NOT NULL DEFAULT 0,
		overdue INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		escalated INTEGER NOT NULL DEFAULT 0,
		accumulated INTEGER NOT NULL DEFAULT 0,
		unchanged INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		notified INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sanction_runs_started
		ON sanction_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ENGINE STORE (sanction.Store interface)
// =============================================================================

func (s *Store) ListActiveRentals(ctx context.Context) ([]sanction.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActiveRentals(ctx, s.db)
}

func (s *Store) GetItem(ctx context.Context, id string) (*sanction.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.db, id)
}

func (s *Store) ActiveSanctions(ctx context.Context, studentID string) ([]sanction.Sanction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return querySanctions(ctx, s.db, sanctionColumns+` WHERE student_id = ? AND is_active = 1 ORDER BY created_at, id`, studentID)
}

func (s *Store) InsertSanction(ctx context.Context, sn sanction.Sanction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSanction(ctx, s.db, sn)
}

func (s *Store) UpdateSanction(ctx context.Context, sn sanction.Sanction, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateSanction(ctx, s.db, sn, expectedRevision)
}

func (s *Store) MarkRentalOverdue(ctx context.Context, check sanction.RentalCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markRentalOverdue(ctx, s.db, check)
}

func listActiveRentals(ctx context.Context, db queryer) ([]sanction.Rental, error) {
	return queryRentals(ctx, db, rentalColumns+`
		WHERE r.status IN (?, ?)
		ORDER BY r.due_date, r.id`,
		sanction.RentalRented, sanction.RentalOverdue)
}

func getItem(ctx context.Context, db queryer, id string) (*sanction.Item, error) {
	var it sanction.Item
	var createdAt string
	err := db.QueryRowContext(ctx, `SELECT id, name, created_at FROM items WHERE id = ?`, id).
		Scan(&it.ID, &it.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sanction.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	it.CreatedAt = parseTime(createdAt)
	return &it, nil
}

func insertSanction(ctx context.Context, db queryer, sn sanction.Sanction) error {
	query := `
		INSERT INTO sanctions (id, student_id, student_name, sanction_type, reason,
			start_date, end_date, warning_count, total_warnings, is_active,
			related_rental_id, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`
	createdAt := sn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := sn.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err := db.ExecContext(ctx, query,
		sn.ID, sn.StudentID, sn.StudentName, string(sn.Type), sn.Reason,
		formatTime(sn.StartDate), formatTimePtr(sn.EndDate),
		sn.WarningCount, sn.TotalWarnings, sn.IsActive,
		sn.RelatedRentalID, formatTime(createdAt), formatTime(updatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "sanctions.student_id") {
				return sanction.ErrActiveSanctionExists
			}
			return sanction.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert sanction: %w", err)
	}
	return nil
}

func updateSanction(ctx context.Context, db queryer, sn sanction.Sanction, expectedRevision int64) error {
	query := `
		UPDATE sanctions SET
			student_name = ?, sanction_type = ?, reason = ?, start_date = ?, end_date = ?,
			warning_count = ?, total_warnings = ?, is_active = ?, related_rental_id = ?,
			revision = revision + 1, updated_at = ?
		WHERE id = ? AND revision = ?
	`
	res, err := db.ExecContext(ctx, query,
		sn.StudentName, string(sn.Type), sn.Reason,
		formatTime(sn.StartDate), formatTimePtr(sn.EndDate),
		sn.WarningCount, sn.TotalWarnings, sn.IsActive, sn.RelatedRentalID,
		formatTime(sn.UpdatedAt),
		sn.ID, expectedRevision,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return sanction.ErrActiveSanctionExists
		}
		return fmt.Errorf("failed to update sanction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Distinguish a missing row from a moved revision.
	var exists int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sanctions WHERE id = ?`, sn.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return sanction.ErrSanctionNotFound
	}
	return sanction.ErrConcurrentModification
}

func markRentalOverdue(ctx context.Context, db queryer, check sanction.RentalCheck) error {
	res, err := db.ExecContext(ctx, `
		UPDATE rentals SET status = ?, last_overdue_check = ?, applied_tier = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		sanction.RentalOverdue, formatTime(check.CheckedAt), string(check.AppliedTier),
		formatTime(check.CheckedAt), check.RentalID,
		sanction.RentalRented, sanction.RentalOverdue,
	)
	if err != nil {
		return fmt.Errorf("failed to update rental: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Closed by the return workflow since it was listed, or gone.
	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rentals WHERE id = ?`, check.RentalID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return sanction.ErrRentalNotFound
	}
	return sanction.ErrRentalClosed
}

// =============================================================================
// TRANSACTIONAL STORE (sanction.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store sanction.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every query on the open transaction; the parent lock is held.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) ListActiveRentals(ctx context.Context) ([]sanction.Rental, error) {
	return listActiveRentals(ctx, ts.tx)
}

func (ts *txStore) GetItem(ctx context.Context, id string) (*sanction.Item, error) {
	return getItem(ctx, ts.tx, id)
}

func (ts *txStore) ActiveSanctions(ctx context.Context, studentID string) ([]sanction.Sanction, error) {
	return querySanctions(ctx, ts.tx, sanctionColumns+` WHERE student_id = ? AND is_active = 1 ORDER BY created_at, id`, studentID)
}

func (ts *txStore) InsertSanction(ctx context.Context, sn sanction.Sanction) error {
	return insertSanction(ctx, ts.tx, sn)
}

func (ts *txStore) UpdateSanction(ctx context.Context, sn sanction.Sanction, expectedRevision int64) error {
	return updateSanction(ctx, ts.tx, sn, expectedRevision)
}

func (ts *txStore) MarkRentalOverdue(ctx context.Context, check sanction.RentalCheck) error {
	return markRentalOverdue(ctx, ts.tx, check)
}

// =============================================================================
// ITEM STORE
// =============================================================================

// SaveItem inserts or updates an item.
func (s *Store) SaveItem(ctx context.Context, it sanction.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		it.ID, it.Name, formatTime(it.CreatedAt),
	)
	return err
}

// ListItems returns all items ordered by name.
func (s *Store) ListItems(ctx context.Context) ([]sanction.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM items ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []sanction.Item
	for rows.Next() {
		var it sanction.Item
		var createdAt string
		if err := rows.Scan(&it.ID, &it.Name, &createdAt); err != nil {
			return nil, err
		}
		it.CreatedAt = parseTime(createdAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteItem removes an item. Rentals referencing it are kept.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	return err
}

// =============================================================================
// RENTAL STORE
// =============================================================================

const rentalColumns = `
	SELECT r.id, r.student_id, r.student_name, r.phone_number, r.item_id,
		COALESCE(i.name, ''), r.status, r.due_date, r.last_overdue_check,
		r.applied_tier, r.created_at, r.updated_at
	FROM rentals r LEFT JOIN items i ON i.id = r.item_id`

// SaveRental inserts or replaces a rental.
func (s *Store) SaveRental(ctx context.Context, r sanction.Rental) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	if r.Status == "" {
		r.Status = sanction.RentalRented
	}

	var lastCheck *string
	if r.LastOverdueCheck != nil {
		v := formatTime(*r.LastOverdueCheck)
		lastCheck = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rentals (id, student_id, student_name, phone_number, item_id, status,
			due_date, last_overdue_check, applied_tier, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			student_id = excluded.student_id,
			student_name = excluded.student_name,
			phone_number = excluded.phone_number,
			item_id = excluded.item_id,
			status = excluded.status,
			due_date = excluded.due_date,
			last_overdue_check = excluded.last_overdue_check,
			applied_tier = excluded.applied_tier,
			updated_at = excluded.updated_at`,
		r.ID, r.StudentID, r.StudentName, r.PhoneNumber, r.ItemID, string(r.Status),
		r.DueDate.Format(sanction.DateLayout), lastCheck, string(r.AppliedTier),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	return err
}

// GetRental returns a rental with its item name resolved.
func (s *Store) GetRental(ctx context.Context, id string) (*sanction.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rentals, err := queryRentals(ctx, s.db, rentalColumns+` WHERE r.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rentals) == 0 {
		return nil, sanction.ErrRentalNotFound
	}
	return &rentals[0], nil
}

// ListRentals returns rentals, optionally filtered by status.
func (s *Store) ListRentals(ctx context.Context, status sanction.RentalStatus) ([]sanction.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status != "" {
		return queryRentals(ctx, s.db, rentalColumns+` WHERE r.status = ? ORDER BY r.due_date, r.id`, string(status))
	}
	return queryRentals(ctx, s.db, rentalColumns+` ORDER BY r.due_date, r.id`)
}

// ReturnRental closes a rental with a final status (returned, lost or damaged).
func (s *Store) ReturnRental(ctx context.Context, id string, status sanction.RentalStatus, at time.Time) error {
	if status.IsActive() || !status.Valid() {
		return fmt.Errorf("invalid closing status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE rentals SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(status), formatTime(at), id, sanction.RentalRented, sanction.RentalOverdue,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rentals WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return sanction.ErrRentalNotFound
		}
		return sanction.ErrRentalClosed
	}
	return nil
}

func queryRentals(ctx context.Context, db queryer, query string, args ...any) ([]sanction.Rental, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rentals []sanction.Rental
	for rows.Next() {
		var r sanction.Rental
		var status, dueDate, appliedTier, createdAt, updatedAt string
		var lastCheck sql.NullString
		if err := rows.Scan(
			&r.ID, &r.StudentID, &r.StudentName, &r.PhoneNumber, &r.ItemID,
			&r.ItemName, &status, &dueDate, &lastCheck,
			&appliedTier, &createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}

		r.Status = sanction.RentalStatus(status)
		if r.AppliedTier, err = sanction.ParseTier(appliedTier); err != nil {
			return nil, fmt.Errorf("rental %s: %w", r.ID, err)
		}
		if r.DueDate, err = sanction.ParseDueDate(dueDate); err != nil {
			return nil, fmt.Errorf("rental %s: %w", r.ID, err)
		}
		if lastCheck.Valid {
			t := parseTime(lastCheck.String)
			r.LastOverdueCheck = &t
		}
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		rentals = append(rentals, r)
	}
	return rentals, rows.Err()
}

// =============================================================================
// SANCTION STORE
// =============================================================================

const sanctionColumns = `
	SELECT id, student_id, student_name, sanction_type, reason, start_date, end_date,
		warning_count, total_warnings, is_active, related_rental_id, revision,
		created_at, updated_at
	FROM sanctions`

// GetSanction returns a sanction by ID.
func (s *Store) GetSanction(ctx context.Context, id string) (*sanction.Sanction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := querySanctions(ctx, s.db, sanctionColumns+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, sanction.ErrSanctionNotFound
	}
	return &list[0], nil
}

// ListSanctions returns sanctions, newest first. activeOnly filters lifted ones.
func (s *Store) ListSanctions(ctx context.Context, activeOnly bool) ([]sanction.Sanction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if activeOnly {
		return querySanctions(ctx, s.db, sanctionColumns+` WHERE is_active = 1 ORDER BY created_at DESC, id`)
	}
	return querySanctions(ctx, s.db, sanctionColumns+` ORDER BY created_at DESC, id`)
}

// StudentSanctions returns every sanction of a student, oldest first.
func (s *Store) StudentSanctions(ctx context.Context, studentID string) ([]sanction.Sanction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return querySanctions(ctx, s.db, sanctionColumns+` WHERE student_id = ? ORDER BY created_at, id`, studentID)
}

// DeactivateSanction lifts an active sanction. The revision is bumped so an
// engine run holding the old revision fails its update.
func (s *Store) DeactivateSanction(ctx context.Context, id string, at time.Time) (*sanction.Sanction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE sanctions SET is_active = 0, revision = revision + 1, updated_at = ?
		WHERE id = ? AND is_active = 1`,
		formatTime(at), id,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	list, err := querySanctions(ctx, s.db, sanctionColumns+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, sanction.ErrSanctionNotFound
	}
	if n == 0 {
		return nil, ErrSanctionInactive
	}
	return &list[0], nil
}

// ErrSanctionInactive is returned when lifting a sanction that is not active.
var ErrSanctionInactive = errors.New("sanction is not active")

func querySanctions(ctx context.Context, db queryer, query string, args ...any) ([]sanction.Sanction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []sanction.Sanction
	for rows.Next() {
		var sn sanction.Sanction
		var sanctionType, startDate, createdAt, updatedAt string
		var endDate sql.NullString
		if err := rows.Scan(
			&sn.ID, &sn.StudentID, &sn.StudentName, &sanctionType, &sn.Reason,
			&startDate, &endDate, &sn.WarningCount, &sn.TotalWarnings, &sn.IsActive,
			&sn.RelatedRentalID, &sn.Revision, &createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}

		if sn.Type, err = sanction.ParseTier(sanctionType); err != nil {
			return nil, fmt.Errorf("sanction %s: %w", sn.ID, err)
		}
		sn.StartDate = parseTime(startDate)
		if endDate.Valid {
			t := parseTime(endDate.String)
			sn.EndDate = &t
		}
		sn.CreatedAt = parseTime(createdAt)
		sn.UpdatedAt = parseTime(updatedAt)
		list = append(list, sn)
	}
	return list, rows.Err()
}

// =============================================================================
// SANCTION RUNS STORE
// =============================================================================

// RunStatus is the outcome of one scheduled check.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// SanctionRun records one return delay check.
type SanctionRun struct {
	ID          string
	Trigger     string // schedule, manual
	Status      RunStatus
	Scanned     int
	Overdue     int
	Created     int
	Escalated   int
	Accumulated int
	Unchanged   int
	Failed      int
	Notified    int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// SaveRun inserts or updates a run record.
func (s *Store) SaveRun(ctx context.Context, r SanctionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sanction_runs (id, trigger_source, status, scanned, overdue, created,
			escalated, accumulated, unchanged, failed, notified, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			scanned = excluded.scanned,
			overdue = excluded.overdue,
			created = excluded.created,
			escalated = excluded.escalated,
			accumulated = excluded.accumulated,
			unchanged = excluded.unchanged,
			failed = excluded.failed,
			notified = excluded.notified,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Trigger, string(r.Status),
		r.Scanned, r.Overdue, r.Created, r.Escalated, r.Accumulated, r.Unchanged, r.Failed, r.Notified,
		nullString(r.Error), formatTime(r.StartedAt), formatTimePtr(r.CompletedAt),
	)
	return err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]SanctionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_source, status, scanned, overdue, created, escalated,
			accumulated, unchanged, failed, notified, error, started_at, completed_at
		FROM sanction_runs
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []SanctionRun
	for rows.Next() {
		var r SanctionRun
		var status, startedAt string
		var runErr, completedAt sql.NullString
		if err := rows.Scan(
			&r.ID, &r.Trigger, &status, &r.Scanned, &r.Overdue, &r.Created, &r.Escalated,
			&r.Accumulated, &r.Unchanged, &r.Failed, &r.Notified, &runErr, &startedAt, &completedAt,
		); err != nil {
			return nil, err
		}

		r.Status = RunStatus(status)
		r.Error = runErr.String
		r.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"sanctions", "rentals", "items", "sanction_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

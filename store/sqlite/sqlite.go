/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists generated schedules and the holiday calendar used to adjust due
  dates. The same schema runs on PostgreSQL (store/postgres) with only
  dialect differences.

INTERFACES IMPLEMENTED:
  schedule.Store:          Versioned schedule records
  generic.HolidayCalendar: Holiday lookup for the date generator

APPEND-ONLY ENFORCEMENT:
  - A schedule version is inserted once with all of its rows
  - The only UPDATE on schedules flips the stale flag
  - No DELETE on schedules or schedule_periods
  - Re-derivation inserts version N+1

KEY TABLES:
  schedules:        One row per (loan_ref, version) with the loan config JSON
  schedule_periods: Flattened rows of each schedule, ordered by seq
  holidays:         Office-specific ('' = global) and recurring holidays

INDEXES:
  - idx_schedules_loan_version: Unique, latest-version lookups (hot path)
  - idx_schedules_stale: Re-derivation sweep
  - idx_holidays_office_date: Holiday checks during generation

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In-memory databases are pinned to a
  single connection, since every new connection would see an empty database.

USAGE:
  store, err := sqlite.New("./data/schedules.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - schedule/store.go: Interface definitions
  - schedule/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/schedule"
)

// timeLayout sorts lexically, unlike RFC3339Nano which trims zeros.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ schedule.Store          = (*Store)(nil)
	_ generic.HolidayCalendar = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

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

// Ping checks the connection for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Schedules (append-only, stale flag excepted)
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		loan_ref TEXT NOT NULL,
		version INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		office_id TEXT NOT NULL DEFAULT '',
		config_json TEXT NOT NULL,
		currency TEXT NOT NULL,
		decimal_places INTEGER NOT NULL,
		loan_term_days INTEGER NOT NULL,
		stale BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_schedules_loan_version
		ON schedules(loan_ref, version);
	CREATE INDEX IF NOT EXISTS idx_schedules_stale
		ON schedules(stale, created_at);
	CREATE INDEX IF NOT EXISTS idx_schedules_office
		ON schedules(office_id);

	-- Schedule rows
	CREATE TABLE IF NOT EXISTS schedule_periods (
		schedule_id TEXT NOT NULL REFERENCES schedules(id),
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		installment_no INTEGER NOT NULL DEFAULT 0,
		period_no INTEGER NOT NULL DEFAULT 0,
		from_date TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		charges TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest TEXT NOT NULL,
		fees TEXT NOT NULL,
		penalties TEXT NOT NULL,
		outstanding TEXT NOT NULL,
		recalculated BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (schedule_id, seq)
	);

	-- Holidays
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		office_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_office_date
		ON holidays(office_id, date, name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCHEDULE STORE (schedule.Store interface)
// =============================================================================

const scheduleColumns = `id, loan_ref, version, strategy, office_id, config_json,
	currency, decimal_places, loan_term_days, stale, created_at`

// Save inserts a schedule version and its rows atomically.
func (s *Store) Save(ctx context.Context, rec *schedule.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	currency := rec.Schedule.Currency()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID.String(),
		rec.LoanRef,
		rec.Version,
		string(rec.Strategy),
		rec.OfficeID,
		string(rec.Config),
		currency.Code,
		currency.DecimalPlaces,
		rec.Schedule.LoanTermInDays(),
		rec.Stale,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s v%d", generic.ErrScheduleExists, rec.LoanRef, rec.Version)
		}
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO schedule_periods
		(schedule_id, seq, kind, installment_no, period_no, from_date, date,
		 amount, charges, principal, interest, fees, penalties, outstanding, recalculated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare period insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rec.Schedule.Rows() {
		_, err := stmt.ExecContext(ctx,
			rec.ID.String(), r.Seq, string(r.Kind), r.InstallmentNo, r.PeriodNo, r.From, r.Date,
			r.Amount.String(), r.Charges.String(), r.Principal.String(), r.Interest.String(),
			r.Fees.String(), r.Penalties.String(), r.Outstanding.String(), r.RecalculatedInterest,
		)
		if err != nil {
			return fmt.Errorf("failed to save period %d: %w", r.Seq, err)
		}
	}

	return tx.Commit()
}

// Get returns a schedule by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*schedule.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.queryRecords(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, generic.ErrScheduleNotFound
	}
	return recs[0], nil
}

// Latest returns the highest version for a loan.
func (s *Store) Latest(ctx context.Context, loanRef string) (*schedule.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.queryRecords(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE loan_ref = ?
		ORDER BY version DESC
		LIMIT 1
	`, loanRef)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, generic.ErrScheduleNotFound
	}
	return recs[0], nil
}

// History returns every version of a loan, oldest first.
func (s *Store) History(ctx context.Context, loanRef string) ([]*schedule.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE loan_ref = ?
		ORDER BY version ASC
	`, loanRef)
}

// MarkStale flags the latest version of each loan in an office.
func (s *Store) MarkStale(ctx context.Context, officeID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET stale = TRUE
		WHERE stale = FALSE
		  AND (? = '' OR office_id = ?)
		  AND version = (SELECT MAX(s2.version) FROM schedules s2 WHERE s2.loan_ref = schedules.loan_ref)
	`, officeID, officeID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark schedules stale: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListStale returns stale latest versions, oldest first.
func (s *Store) ListStale(ctx context.Context, limit int) ([]*schedule.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	return s.queryRecords(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE stale = TRUE
		  AND version = (SELECT MAX(s2.version) FROM schedules s2 WHERE s2.loan_ref = schedules.loan_ref)
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
}

// queryRecords loads headers first and rows second, so only one cursor is
// open at a time on a single-connection database.
func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*schedule.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}

	type header struct {
		rec      *schedule.Record
		currency generic.Currency
		termDays int
	}
	var headers []header
	for rows.Next() {
		var (
			h                     header
			id, config, createdAt string
			strategy              string
		)
		h.rec = &schedule.Record{}
		if err := rows.Scan(&id, &h.rec.LoanRef, &h.rec.Version, &strategy, &h.rec.OfficeID, &config,
			&h.currency.Code, &h.currency.DecimalPlaces, &h.termDays, &h.rec.Stale, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		if h.rec.ID, err = uuid.Parse(id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("bad schedule id %q: %w", id, err)
		}
		h.rec.Strategy = schedule.Strategy(strategy)
		h.rec.Config = []byte(config)
		h.rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make([]*schedule.Record, 0, len(headers))
	for _, h := range headers {
		periods, err := s.loadRows(ctx, h.rec.ID)
		if err != nil {
			return nil, err
		}
		h.rec.Schedule, err = schedule.ModelFromRows(h.currency, periods, h.termDays)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", h.rec.ID, err)
		}
		out = append(out, h.rec)
	}
	return out, nil
}

func (s *Store) loadRows(ctx context.Context, id uuid.UUID) ([]schedule.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, installment_no, period_no, from_date, date,
		       amount, charges, principal, interest, fees, penalties, outstanding, recalculated
		FROM schedule_periods
		WHERE schedule_id = ?
		ORDER BY seq ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load periods: %w", err)
	}
	defer rows.Close()

	var out []schedule.Row
	for rows.Next() {
		var (
			r    schedule.Row
			kind string
		)
		if err := rows.Scan(&r.Seq, &kind, &r.InstallmentNo, &r.PeriodNo, &r.From, &r.Date,
			&r.Amount, &r.Charges, &r.Principal, &r.Interest, &r.Fees, &r.Penalties, &r.Outstanding,
			&r.RecalculatedInterest); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		r.Kind = schedule.PeriodKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// HOLIDAY CALENDAR IMPLEMENTATION
// =============================================================================

// SaveHoliday saves a holiday to the database.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, office_id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(office_id, date, name) DO UPDATE SET
			recurring = excluded.recurring
	`

	_, err := s.db.ExecContext(ctx, query,
		h.ID,
		h.OfficeID,
		h.Date.String(),
		h.Name,
		h.Recurring,
		time.Now().UTC().Format(timeLayout),
	)
	return err
}

// DeleteHoliday deletes a holiday by ID and returns it, so callers know
// which office was affected.
func (s *Store) DeleteHoliday(ctx context.Context, id string) (*generic.Holiday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		h       generic.Holiday
		dateStr string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, office_id, date, name, recurring FROM holidays WHERE id = ?", id,
	).Scan(&h.ID, &h.OfficeID, &dateStr, &h.Name, &h.Recurring)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrHolidayNotFound
	}
	if err != nil {
		return nil, err
	}
	h.Date, _ = generic.ParseDate(dateStr)

	if _, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &h, nil
}

// GetHolidays returns all holidays for an office in a given year.
// Includes both office-specific and global holidays.
func (s *Store) GetHolidays(officeID string, year int) []generic.Holiday {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, office_id, date, name, recurring
		FROM holidays
		WHERE (office_id = ? OR office_id = '')
		  AND (recurring = TRUE OR strftime('%Y', date) = ?)
		ORDER BY strftime('%m-%d', date) ASC
	`

	rows, err := s.db.Query(query, officeID, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		h, err := scanHoliday(rows)
		if err != nil {
			continue
		}
		// If recurring, move to the requested year
		if h.Recurring {
			h.Date = generic.NewTimePoint(year, h.Date.Month(), h.Date.Day())
		}
		holidays = append(holidays, h)
	}

	return holidays
}

// IsHoliday checks if a date is a holiday for the given office.
func (s *Store) IsHoliday(officeID string, date generic.TimePoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT COUNT(*) FROM holidays
		WHERE (office_id = ? OR office_id = '')
		  AND (
			(recurring = FALSE AND date = ?)
			OR (recurring = TRUE AND strftime('%m-%d', date) = ?)
		  )
	`

	var count int
	err := s.db.QueryRow(query, officeID, date.String(), date.Time.Format("01-02")).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// ListHolidays returns every holiday visible to an office (for the admin API).
// An empty officeID lists global holidays only.
func (s *Store) ListHolidays(ctx context.Context, officeID string) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, office_id, date, name, recurring
		FROM holidays
		WHERE office_id = ? OR office_id = ''
		ORDER BY date ASC
	`

	rows, err := s.db.QueryContext(ctx, query, officeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		h, err := scanHoliday(rows)
		if err != nil {
			return nil, err
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

func scanHoliday(rows *sql.Rows) (generic.Holiday, error) {
	var (
		h       generic.Holiday
		dateStr string
	)
	if err := rows.Scan(&h.ID, &h.OfficeID, &dateStr, &h.Name, &h.Recurring); err != nil {
		return h, err
	}
	d, err := generic.ParseDate(dateStr)
	if err != nil {
		return h, err
	}
	h.Date = d
	return h, nil
}

// Helper functions

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

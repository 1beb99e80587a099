package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/schedule"
)

// uniqueViolation is the SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS schedules (
	id UUID PRIMARY KEY,
	loan_ref TEXT NOT NULL,
	version INTEGER NOT NULL,
	strategy TEXT NOT NULL,
	office_id TEXT NOT NULL DEFAULT '',
	config_json JSONB NOT NULL,
	currency TEXT NOT NULL,
	decimal_places INTEGER NOT NULL,
	loan_term_days INTEGER NOT NULL,
	stale BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (loan_ref, version)
);
CREATE INDEX IF NOT EXISTS idx_schedules_stale ON schedules(stale, created_at);
CREATE INDEX IF NOT EXISTS idx_schedules_office ON schedules(office_id);

CREATE TABLE IF NOT EXISTS schedule_periods (
	schedule_id UUID NOT NULL REFERENCES schedules(id),
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	installment_no INTEGER NOT NULL DEFAULT 0,
	period_no INTEGER NOT NULL DEFAULT 0,
	from_date DATE,
	date DATE NOT NULL,
	amount NUMERIC NOT NULL,
	charges NUMERIC NOT NULL,
	principal NUMERIC NOT NULL,
	interest NUMERIC NOT NULL,
	fees NUMERIC NOT NULL,
	penalties NUMERIC NOT NULL,
	outstanding NUMERIC NOT NULL,
	recalculated BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (schedule_id, seq)
);

CREATE TABLE IF NOT EXISTS holidays (
	id TEXT PRIMARY KEY,
	office_id TEXT NOT NULL DEFAULT '',
	date DATE NOT NULL,
	name TEXT NOT NULL,
	recurring BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (office_id, date, name)
);
`

// Store implements schedule.Store and generic.HolidayCalendar.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ schedule.Store          = (*Store)(nil)
	_ generic.HolidayCalendar = (*Store)(nil)
)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// =============================================================================
// SCHEDULE STORE
// =============================================================================

const scheduleColumns = `id, loan_ref, version, strategy, office_id, config_json,
	currency, decimal_places, loan_term_days, stale, created_at`

// latestOnly restricts a query on schedules to each loan's highest version.
const latestOnly = `version = (SELECT MAX(s2.version) FROM schedules s2 WHERE s2.loan_ref = schedules.loan_ref)`

// Save persists a schedule version and its rows in one transaction.
func (s *Store) Save(ctx context.Context, rec *schedule.Record) error {
	return withTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		currency := rec.Schedule.Currency()
		_, err := tx.Exec(ctx, `
			INSERT INTO schedules (`+scheduleColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
			rec.ID, rec.LoanRef, rec.Version, string(rec.Strategy), rec.OfficeID, []byte(rec.Config),
			currency.Code, currency.DecimalPlaces, rec.Schedule.LoanTermInDays(), rec.Stale, rec.CreatedAt.UTC(),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s v%d", generic.ErrScheduleExists, rec.LoanRef, rec.Version)
			}
			return fmt.Errorf("save schedule: %w", err)
		}

		batch := &pgx.Batch{}
		for _, r := range rec.Schedule.Rows() {
			var from *string
			if r.From != "" {
				f := r.From
				from = &f
			}
			batch.Queue(`
				INSERT INTO schedule_periods
				(schedule_id, seq, kind, installment_no, period_no, from_date, date,
				 amount, charges, principal, interest, fees, penalties, outstanding, recalculated)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			`,
				rec.ID, r.Seq, string(r.Kind), r.InstallmentNo, r.PeriodNo, from, r.Date,
				r.Amount, r.Charges, r.Principal, r.Interest, r.Fees, r.Penalties, r.Outstanding,
				r.RecalculatedInterest,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save schedule periods: %w", err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*schedule.Record, error) {
	recs, err := s.queryRecords(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, generic.ErrScheduleNotFound
	}
	return recs[0], nil
}

func (s *Store) Latest(ctx context.Context, loanRef string) (*schedule.Record, error) {
	recs, err := s.queryRecords(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE loan_ref = $1 ORDER BY version DESC LIMIT 1
	`, loanRef)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, generic.ErrScheduleNotFound
	}
	return recs[0], nil
}

func (s *Store) History(ctx context.Context, loanRef string) ([]*schedule.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE loan_ref = $1 ORDER BY version ASC
	`, loanRef)
}

func (s *Store) MarkStale(ctx context.Context, officeID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE schedules SET stale = TRUE
		WHERE stale = FALSE AND ($1 = '' OR office_id = $1) AND `+latestOnly, officeID)
	if err != nil {
		return 0, fmt.Errorf("mark schedules stale: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ListStale(ctx context.Context, limit int) ([]*schedule.Record, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	return s.queryRecords(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE stale = TRUE AND `+latestOnly+`
		ORDER BY created_at ASC
		LIMIT $1
	`, lim)
}

type header struct {
	rec      *schedule.Record
	currency generic.Currency
	termDays int
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*schedule.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	headers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (header, error) {
		var (
			h        header
			strategy string
			config   []byte
		)
		h.rec = &schedule.Record{}
		err := row.Scan(&h.rec.ID, &h.rec.LoanRef, &h.rec.Version, &strategy, &h.rec.OfficeID, &config,
			&h.currency.Code, &h.currency.DecimalPlaces, &h.termDays, &h.rec.Stale, &h.rec.CreatedAt)
		h.rec.Strategy = schedule.Strategy(strategy)
		h.rec.Config = config
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan schedules: %w", err)
	}

	out := make([]*schedule.Record, 0, len(headers))
	for _, h := range headers {
		periods, err := s.loadRows(ctx, h.rec.ID)
		if err != nil {
			return nil, err
		}
		if h.rec.Schedule, err = schedule.ModelFromRows(h.currency, periods, h.termDays); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", h.rec.ID, err)
		}
		out = append(out, h.rec)
	}
	return out, nil
}

func (s *Store) loadRows(ctx context.Context, id uuid.UUID) ([]schedule.Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, kind, installment_no, period_no, from_date, date,
		       amount, charges, principal, interest, fees, penalties, outstanding, recalculated
		FROM schedule_periods WHERE schedule_id = $1 ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load periods: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (schedule.Row, error) {
		var (
			r    schedule.Row
			kind string
			from *time.Time
			date time.Time
		)
		err := row.Scan(&r.Seq, &kind, &r.InstallmentNo, &r.PeriodNo, &from, &date,
			&r.Amount, &r.Charges, &r.Principal, &r.Interest, &r.Fees, &r.Penalties, &r.Outstanding,
			&r.RecalculatedInterest)
		r.Kind = schedule.PeriodKind(kind)
		r.Date = generic.FromTime(date).String()
		if from != nil {
			r.From = generic.FromTime(*from).String()
		}
		return r, err
	})
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO holidays (id, office_id, date, name, recurring)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (office_id, date, name) DO UPDATE SET recurring = EXCLUDED.recurring
	`, h.ID, h.OfficeID, h.Date.Time, h.Name, h.Recurring)
	return err
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) (*generic.Holiday, error) {
	row := s.pool.QueryRow(ctx, `
		DELETE FROM holidays WHERE id = $1
		RETURNING id, office_id, date, name, recurring
	`, id)
	h, err := scanHoliday(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrHolidayNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// GetHolidays implements generic.HolidayCalendar. Lookup failures read as
// no holidays, matching the calendar's boolean contract.
func (s *Store) GetHolidays(officeID string, year int) []generic.Holiday {
	rows, err := s.pool.Query(context.Background(), `
		SELECT id, office_id, date, name, recurring FROM holidays
		WHERE (office_id = $1 OR office_id = '')
		  AND (recurring OR EXTRACT(YEAR FROM date) = $2)
		ORDER BY EXTRACT(MONTH FROM date), EXTRACT(DAY FROM date)
	`, officeID, year)
	if err != nil {
		return nil
	}
	holidays, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (generic.Holiday, error) {
		return scanHoliday(row)
	})
	if err != nil {
		return nil
	}
	for i := range holidays {
		if holidays[i].Recurring {
			holidays[i].Date = generic.NewTimePoint(year, holidays[i].Date.Month(), holidays[i].Date.Day())
		}
	}
	return holidays
}

func (s *Store) IsHoliday(officeID string, date generic.TimePoint) bool {
	var exists bool
	err := s.pool.QueryRow(context.Background(), `
		SELECT EXISTS (
			SELECT 1 FROM holidays
			WHERE (office_id = $1 OR office_id = '')
			  AND (date = $2 OR (recurring AND EXTRACT(MONTH FROM date) = $3 AND EXTRACT(DAY FROM date) = $4))
		)
	`, officeID, date.Time, int(date.Month()), date.Day()).Scan(&exists)
	return err == nil && exists
}

func (s *Store) ListHolidays(ctx context.Context, officeID string) ([]generic.Holiday, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, office_id, date, name, recurring FROM holidays
		WHERE office_id = $1 OR office_id = ''
		ORDER BY date ASC
	`, officeID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (generic.Holiday, error) {
		return scanHoliday(row)
	})
}

func scanHoliday(row pgx.Row) (generic.Holiday, error) {
	var (
		h    generic.Holiday
		date time.Time
	)
	if err := row.Scan(&h.ID, &h.OfficeID, &date, &h.Name, &h.Recurring); err != nil {
		return h, err
	}
	h.Date = generic.FromTime(date)
	return h, nil
}

package fiscal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for fiscal years and periods.
type Repository interface {
	ListYears(ctx context.Context) ([]FiscalYear, error)
	GetYear(ctx context.Context, id int64) (FiscalYear, error)
	ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error)
	ResolveByDate(ctx context.Context, date time.Time) (ResolvedPeriod, error)
	YearRangeConflict(ctx context.Context, start, end time.Time) (bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	InsertYear(ctx context.Context, in CreateYearInput, end time.Time) (FiscalYear, error)
	InsertPeriod(ctx context.Context, p Period) (Period, error)
	GetPeriodForUpdate(ctx context.Context, periodID int64) (Period, error)
	UpdatePeriodStatus(ctx context.Context, periodID int64, status PeriodStatus, actorID int64) error
	InsertLockAudit(ctx context.Context, audit LockAudit) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const yearColumns = `id, name, start_date, end_date, status, closed_at, closed_by, created_at, updated_at`
const periodColumns = `id, fiscal_year_id, code, start_date, end_date, status, closed_at, locked_by, created_at, updated_at`

func scanYear(row pgx.Row) (FiscalYear, error) {
	var y FiscalYear
	err := row.Scan(&y.ID, &y.Name, &y.StartDate, &y.EndDate, &y.Status, &y.ClosedAt, &y.ClosedBy, &y.CreatedAt, &y.UpdatedAt)
	return y, err
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.FiscalYearID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.LockedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) ListYears(ctx context.Context) ([]FiscalYear, error) {
	rows, err := r.db.Query(ctx, `SELECT `+yearColumns+` FROM fiscal_years ORDER BY start_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var years []FiscalYear
	for rows.Next() {
		y, err := scanYear(rows)
		if err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

func (r *repository) GetYear(ctx context.Context, id int64) (FiscalYear, error) {
	y, err := scanYear(r.db.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, ErrYearNotFound
		}
		return FiscalYear{}, err
	}
	return y, nil
}

func (r *repository) ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE fiscal_year_id=$1 ORDER BY start_date`, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// ResolveByDate returns the period and year covering the supplied date.
func (r *repository) ResolveByDate(ctx context.Context, date time.Time) (ResolvedPeriod, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE $1 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ResolvedPeriod{}, ErrNoPeriodForDate
		}
		return ResolvedPeriod{}, err
	}
	y, err := scanYear(r.db.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE id=$1`, p.FiscalYearID))
	if err != nil {
		return ResolvedPeriod{}, err
	}
	return ResolvedPeriod{Year: y, Period: p}, nil
}

func (r *repository) YearRangeConflict(ctx context.Context, start, end time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fiscal_years WHERE start_date <= $2 AND end_date >= $1)`, start, end).Scan(&exists)
	return exists, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertYear(ctx context.Context, in CreateYearInput, end time.Time) (FiscalYear, error) {
	y, err := scanYear(r.tx.QueryRow(ctx, `INSERT INTO fiscal_years (name, start_date, end_date, status)
VALUES ($1, $2, $3, 'OPEN') RETURNING `+yearColumns, in.Name, in.StartDate, end))
	if err != nil {
		return FiscalYear{}, err
	}
	return y, nil
}

func (r *txRepository) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	inserted, err := scanPeriod(r.tx.QueryRow(ctx, `INSERT INTO accounting_periods (fiscal_year_id, code, start_date, end_date, status)
VALUES ($1, $2, $3, $4, 'OPEN') RETURNING `+periodColumns, p.FiscalYearID, p.Code, p.StartDate, p.EndDate))
	if err != nil {
		return Period{}, err
	}
	return inserted, nil
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, periodID int64) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE id=$1 FOR UPDATE`, periodID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *txRepository) UpdatePeriodStatus(ctx context.Context, periodID int64, status PeriodStatus, actorID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET status=$2, closed_at=CASE WHEN $2='OPEN' THEN NULL ELSE NOW() END,
locked_by=CASE WHEN $2='LOCKED' THEN $3 ELSE locked_by END, updated_at=NOW() WHERE id=$1`, periodID, status, actorID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) InsertLockAudit(ctx context.Context, audit LockAudit) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO period_lock_audit (period_id, actor_id, from_status, to_status, allowed, note, at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`, audit.PeriodID, audit.ActorID, audit.From, audit.To, audit.Allowed, audit.Note, audit.At)
	return err
}

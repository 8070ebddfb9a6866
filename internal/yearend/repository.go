package yearend

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/transactions"
)

// ErrNoClosingRun indicates no closing has been executed for the year.
var ErrNoClosingRun = errors.New("yearend: no closing run for fiscal year")

// ErrYearStateChanged indicates the fiscal year left the expected status
// between the readiness checks and the guarded status update.
var ErrYearStateChanged = errors.New("yearend: fiscal year status changed")

// Repository encapsulates DB operations for year-end closing.
type Repository interface {
	IncomeExpenseBalances(ctx context.Context, start, end time.Time) ([]accounts.Balance, error)
	LatestRun(ctx context.Context, fiscalYearID int64) (ClosingRun, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository groups the statements of one closing or reversal into a
// single database transaction.
type TxRepository interface {
	InsertRun(ctx context.Context, run *ClosingRun) error
	MarkReversed(ctx context.Context, runID int64) error
	SetYearStatus(ctx context.Context, yearID int64, from, to fiscal.YearStatus, actorID int64) error
	Documents() transactions.TxRepository
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// IncomeExpenseBalances aggregates posted entry amounts per INCOME/EXPENSE
// account over the year's date range. Net is debits minus credits.
func (r *repository) IncomeExpenseBalances(ctx context.Context, start, end time.Time) ([]accounts.Balance, error) {
	rows, err := r.db.Query(ctx, `SELECT a.id, a.code, a.name, a.type,
  COALESCE(SUM(e.debit), 0) AS debits,
  COALESCE(SUM(e.credit), 0) AS credits
FROM accounts a
JOIN transaction_entries e ON e.account_id = a.id
JOIN transactions t ON t.id = e.transaction_id
WHERE a.type IN ('INCOME', 'EXPENSE')
  AND t.status IN ('APPROVED', 'POSTED')
  AND t.date BETWEEN $1 AND $2
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []accounts.Balance
	for rows.Next() {
		var b accounts.Balance
		if err := rows.Scan(&b.AccountID, &b.AccountCode, &b.AccountName, &b.Type, &b.Debits, &b.Credits); err != nil {
			return nil, err
		}
		b.Net = b.Debits - b.Credits
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (r *repository) LatestRun(ctx context.Context, fiscalYearID int64) (ClosingRun, error) {
	var run ClosingRun
	err := r.db.QueryRow(ctx, `SELECT id, fiscal_year_id, transaction_id, net_income, reversed, executed_by, executed_at
FROM year_end_closings WHERE fiscal_year_id=$1 ORDER BY executed_at DESC LIMIT 1`, fiscalYearID).
		Scan(&run.ID, &run.FiscalYearID, &run.TransactionID, &run.NetIncome, &run.Reversed, &run.ExecutedBy, &run.ExecutedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClosingRun{}, ErrNoClosingRun
		}
		return ClosingRun{}, err
	}
	return run, nil
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

func (r *txRepository) InsertRun(ctx context.Context, run *ClosingRun) error {
	return r.tx.QueryRow(ctx, `INSERT INTO year_end_closings (fiscal_year_id, transaction_id, net_income, reversed, executed_by, executed_at)
VALUES ($1,$2,$3,FALSE,$4,$5) RETURNING id`,
		run.FiscalYearID, run.TransactionID, run.NetIncome, run.ExecutedBy, run.ExecutedAt).
		Scan(&run.ID)
}

func (r *txRepository) MarkReversed(ctx context.Context, runID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE year_end_closings SET reversed=TRUE WHERE id=$1 AND NOT reversed`, runID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoClosingRun
	}
	return nil
}

// SetYearStatus flips the fiscal year status, guarded on the status observed
// during the readiness checks. Zero rows affected means a concurrent run won.
func (r *txRepository) SetYearStatus(ctx context.Context, yearID int64, from, to fiscal.YearStatus, actorID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fiscal_years SET status=$3,
  closed_at=CASE WHEN $3='OPEN' THEN NULL ELSE NOW() END,
  closed_by=CASE WHEN $3='OPEN' THEN NULL ELSE $4 END,
  updated_at=NOW()
WHERE id=$1 AND status=$2`, yearID, from, to, actorID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrYearStateChanged
	}
	return nil
}

func (r *txRepository) Documents() transactions.TxRepository {
	return transactions.NewTxRepository(r.tx)
}

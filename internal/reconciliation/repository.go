package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrBankTransactionNotFound indicates a missing statement line.
var ErrBankTransactionNotFound = errors.New("reconciliation: bank transaction not found")

// Repository encapsulates DB operations for reconciliation.
type Repository interface {
	ImportBankTransactions(ctx context.Context, txns []BankTransaction) (int64, error)
	GetBankTransaction(ctx context.Context, id int64) (BankTransaction, error)
	ListUnmatchedBank(ctx context.Context, bankAccountID int64) ([]BankTransaction, error)
	ListUnmatchedAccounting(ctx context.Context) ([]AccountingTransaction, error)
	SaveMatch(ctx context.Context, s Suggestion, status MatchStatus) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// ImportBankTransactions bulk-loads statement lines with COPY.
func (r *repository) ImportBankTransactions(ctx context.Context, txns []BankTransaction) (int64, error) {
	rows := make([][]any, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, []any{t.BankAccountID, t.Amount, t.Date, t.Description, t.Reference, t.ChequeNumber})
	}
	return r.db.CopyFrom(ctx,
		pgx.Identifier{"bank_transactions"},
		[]string{"bank_account_id", "amount", "date", "description", "reference", "cheque_number"},
		pgx.CopyFromRows(rows))
}

func (r *repository) GetBankTransaction(ctx context.Context, id int64) (BankTransaction, error) {
	var t BankTransaction
	err := r.db.QueryRow(ctx, `SELECT id, bank_account_id, amount, date, description, reference, cheque_number, matched
FROM bank_transactions WHERE id=$1`, id).
		Scan(&t.ID, &t.BankAccountID, &t.Amount, &t.Date, &t.Description, &t.Reference, &t.ChequeNumber, &t.Matched)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankTransaction{}, ErrBankTransactionNotFound
		}
		return BankTransaction{}, err
	}
	return t, nil
}

func (r *repository) ListUnmatchedBank(ctx context.Context, bankAccountID int64) ([]BankTransaction, error) {
	rows, err := r.db.Query(ctx, `SELECT id, bank_account_id, amount, date, description, reference, cheque_number, matched
FROM bank_transactions WHERE bank_account_id=$1 AND NOT matched ORDER BY date, id`, bankAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []BankTransaction
	for rows.Next() {
		var t BankTransaction
		if err := rows.Scan(&t.ID, &t.BankAccountID, &t.Amount, &t.Date, &t.Description, &t.Reference, &t.ChequeNumber, &t.Matched); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// ListUnmatchedAccounting projects approved or posted transactions that are
// not yet consumed by a confirmed match. The amount is the document's total
// debit side.
func (r *repository) ListUnmatchedAccounting(ctx context.Context) ([]AccountingTransaction, error) {
	rows, err := r.db.Query(ctx, `SELECT t.id, COALESCE(SUM(e.debit), 0) AS amount, t.date, t.memo
FROM transactions t
LEFT JOIN transaction_entries e ON e.transaction_id = t.id
WHERE t.status IN ('APPROVED', 'POSTED')
  AND NOT EXISTS (
    SELECT 1 FROM reconciliation_matches m
    WHERE m.accounting_transaction_id = t.id AND m.status = 'MATCHED'
  )
GROUP BY t.id, t.date, t.memo
ORDER BY t.date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []AccountingTransaction
	for rows.Next() {
		var t AccountingTransaction
		if err := rows.Scan(&t.ID, &t.Amount, &t.Date, &t.Description); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// SaveMatch records the match rows and, for confirmed matches, flags the
// bank transaction so later sweeps skip it. Everything happens in one
// database transaction.
func (r *repository) SaveMatch(ctx context.Context, s Suggestion, status MatchStatus) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for _, accID := range s.AccountingTransactionIDs {
		if err := insertMatchRow(ctx, tx, s.BankTransactionID, accID, s.Score, status, now); err != nil {
			return err
		}
	}
	if status == MatchStatusMatched {
		cmd, err := tx.Exec(ctx, `UPDATE bank_transactions SET matched=TRUE WHERE id=$1 AND NOT matched`, s.BankTransactionID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrBankTransactionNotFound
		}
	}
	return tx.Commit(ctx)
}

func insertMatchRow(ctx context.Context, tx pgx.Tx, bankID int64, accID uuid.UUID, score float64, status MatchStatus, at time.Time) error {
	_, err := tx.Exec(ctx, `INSERT INTO reconciliation_matches (bank_transaction_id, accounting_transaction_id, score, status, created_at)
VALUES ($1,$2,$3,$4,$5)`, bankID, accID, score, status, at)
	return err
}

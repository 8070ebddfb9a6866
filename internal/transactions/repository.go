package transactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// ErrTransactionNotFound indicates a missing transaction document.
var ErrTransactionNotFound = errors.New("transactions: not found")

// ListFilter narrows transaction listings.
type ListFilter struct {
	Status Status
	Type   Type
	Limit  int
}

// Repository encapsulates DB operations for transactions.
type Repository interface {
	Insert(ctx context.Context, txn *Transaction) error
	InsertBatch(ctx context.Context, txns []*Transaction) error
	Get(ctx context.Context, id uuid.UUID) (Transaction, error)
	List(ctx context.Context, filter ListFilter) ([]Transaction, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	Insert(ctx context.Context, txn *Transaction) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (Transaction, error)
	UpdateApproval(ctx context.Context, txn Transaction) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, txn *Transaction) error {
	return r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, txn)
	})
}

// InsertBatch writes several transactions through one pipelined batch inside
// a single database transaction.
func (r *repository) InsertBatch(ctx context.Context, txns []*Transaction) error {
	return r.WithTx(ctx, func(ctx context.Context, txRepo TxRepository) error {
		wrapper, ok := txRepo.(*txRepository)
		if !ok {
			for _, txn := range txns {
				if err := txRepo.Insert(ctx, txn); err != nil {
					return err
				}
			}
			return nil
		}
		for _, txn := range txns {
			if err := wrapper.insertHeader(ctx, txn); err != nil {
				return err
			}
		}
		batch := &pgx.Batch{}
		for _, txn := range txns {
			queueEntries(batch, txn)
		}
		results := wrapper.tx.SendBatch(ctx, batch)
		defer results.Close()
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Transaction, error) {
	var txn Transaction
	err := r.db.QueryRow(ctx, `SELECT id, number, type, status, date, memo, approver_id, rejection_reason, created_by, created_at, updated_at
FROM transactions WHERE id=$1`, id).
		Scan(&txn.ID, &txn.Number, &txn.Type, &txn.Status, &txn.Date, &txn.Memo, &txn.ApproverID, &txn.RejectionReason, &txn.CreatedBy, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	entries, err := r.loadEntries(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	txn.Entries = entries
	history, err := r.loadHistory(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	txn.ApprovalHistory = history
	return txn, nil
}

func (r *repository) loadEntries(ctx context.Context, id uuid.UUID) ([]ledger.Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT account_id, entity_id, entity_type, debit, credit, description, account_code, account_name
FROM transaction_entries WHERE transaction_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.AccountID, &e.EntityID, &e.EntityType, &e.Debit, &e.Credit, &e.Description, &e.AccountCode, &e.AccountName); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) loadHistory(ctx context.Context, id uuid.UUID) (ApprovalHistory, error) {
	rows, err := r.db.Query(ctx, `SELECT action, actor_id, comment, at FROM approval_records WHERE transaction_id=$1 ORDER BY at, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history ApprovalHistory
	for rows.Next() {
		var rec ApprovalRecord
		if err := rows.Scan(&rec.Action, &rec.ActorID, &rec.Comment, &rec.At); err != nil {
			return nil, err
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	query := `SELECT id, number, type, status, date, memo, approver_id, rejection_reason, created_by, created_at, updated_at FROM transactions WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type=$%d", len(args))
	}
	query += " ORDER BY number DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []Transaction
	for rows.Next() {
		var txn Transaction
		if err := rows.Scan(&txn.ID, &txn.Number, &txn.Type, &txn.Status, &txn.Date, &txn.Memo, &txn.ApproverID, &txn.RejectionReason, &txn.CreatedBy, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
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

// NewTxRepository wraps an open pgx transaction so other modules can compose
// transaction writes with their own statements in one commit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) Insert(ctx context.Context, txn *Transaction) error {
	if err := r.insertHeader(ctx, txn); err != nil {
		return err
	}
	for _, entry := range txn.Entries {
		if _, err := r.tx.Exec(ctx, insertEntrySQL, txn.ID, entry.AccountID, entry.EntityID, entry.EntityType, toNumeric(entry.Debit), toNumeric(entry.Credit), entry.Description, entry.AccountCode, entry.AccountName); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) insertHeader(ctx context.Context, txn *Transaction) error {
	return r.tx.QueryRow(ctx, `INSERT INTO transactions (id, type, status, date, memo, approver_id, rejection_reason, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING number, created_at, updated_at`,
		txn.ID, txn.Type, txn.Status, txn.Date, txn.Memo, txn.ApproverID, txn.RejectionReason, txn.CreatedBy).
		Scan(&txn.Number, &txn.CreatedAt, &txn.UpdatedAt)
}

const insertEntrySQL = `INSERT INTO transaction_entries (transaction_id, account_id, entity_id, entity_type, debit, credit, description, account_code, account_name)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

func queueEntries(batch *pgx.Batch, txn *Transaction) {
	for _, entry := range txn.Entries {
		batch.Queue(insertEntrySQL, txn.ID, entry.AccountID, entry.EntityID, entry.EntityType, toNumeric(entry.Debit), toNumeric(entry.Credit), entry.Description, entry.AccountCode, entry.AccountName)
	}
}

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (Transaction, error) {
	var txn Transaction
	err := r.tx.QueryRow(ctx, `SELECT id, number, type, status, date, memo, approver_id, rejection_reason, created_by, created_at, updated_at
FROM transactions WHERE id=$1 FOR UPDATE`, id).
		Scan(&txn.ID, &txn.Number, &txn.Type, &txn.Status, &txn.Date, &txn.Memo, &txn.ApproverID, &txn.RejectionReason, &txn.CreatedBy, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT action, actor_id, comment, at FROM approval_records WHERE transaction_id=$1 ORDER BY at, id`, id)
	if err != nil {
		return Transaction{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var rec ApprovalRecord
		if err := rows.Scan(&rec.Action, &rec.ActorID, &rec.Comment, &rec.At); err != nil {
			return Transaction{}, err
		}
		txn.ApprovalHistory = append(txn.ApprovalHistory, rec)
	}
	return txn, rows.Err()
}

// UpdateApproval persists a status transition and the newest history record.
func (r *txRepository) UpdateApproval(ctx context.Context, txn Transaction) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE transactions SET status=$2, rejection_reason=$3, updated_at=NOW() WHERE id=$1`,
		txn.ID, txn.Status, txn.RejectionReason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	if len(txn.ApprovalHistory) == 0 {
		return nil
	}
	latest := txn.ApprovalHistory[len(txn.ApprovalHistory)-1]
	_, err = r.tx.Exec(ctx, `INSERT INTO approval_records (transaction_id, action, actor_id, comment, at)
VALUES ($1,$2,$3,$4,$5)`, txn.ID, latest.Action, latest.ActorID, latest.Comment, latest.At)
	return err
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for payment batches.
type Repository interface {
	InsertBatch(ctx context.Context, batch *Batch) error
	GetBatch(ctx context.Context, id int64) (Batch, error)
	ListBatches(ctx context.Context, status BatchStatus) ([]Batch, error)
	SetItemPayment(ctx context.Context, itemID int64, txnID uuid.UUID) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetBatchForUpdate(ctx context.Context, id int64) (Batch, error)
	InsertItem(ctx context.Context, item *Item) error
	ListItems(ctx context.Context, batchID int64) ([]Item, error)
	AddToTotal(ctx context.Context, batchID int64, delta float64) error
	UpdateBatchStatus(ctx context.Context, batchID int64, status BatchStatus, processedAt *time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const batchColumns = `id, code, status, total, currency, created_by, created_at, updated_at, processed_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.Code, &b.Status, &b.Total, &b.Currency, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt, &b.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (r *repository) InsertBatch(ctx context.Context, batch *Batch) error {
	return r.db.QueryRow(ctx, `INSERT INTO payment_batches (code, status, total, currency, created_by)
VALUES ($1,$2,0,$3,$4) RETURNING id, created_at, updated_at`,
		batch.Code, batch.Status, batch.Currency, batch.CreatedBy).
		Scan(&batch.ID, &batch.CreatedAt, &batch.UpdatedAt)
}

func (r *repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	batch, err := scanBatch(r.db.QueryRow(ctx, `SELECT `+batchColumns+` FROM payment_batches WHERE id=$1`, id))
	if err != nil {
		return Batch{}, err
	}
	items, err := r.listItems(ctx, r.db, id)
	if err != nil {
		return Batch{}, err
	}
	batch.Items = items
	return batch, nil
}

func (r *repository) ListBatches(ctx context.Context, status BatchStatus) ([]Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM payment_batches`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *repository) SetItemPayment(ctx context.Context, itemID int64, txnID uuid.UUID) error {
	cmd, err := r.db.Exec(ctx, `UPDATE payment_batch_items SET payment_txn_id=$2 WHERE id=$1`, itemID, txnID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("payments: item %d not found", itemID)
	}
	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *repository) listItems(ctx context.Context, q queryer, batchID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, batch_id, bill_id, vendor_id, amount, payment_txn_id, created_at
FROM payment_batch_items WHERE batch_id=$1 ORDER BY id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.BatchID, &item.BillID, &item.VendorID, &item.Amount, &item.PaymentTxnID, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx, parent: r}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx     pgx.Tx
	parent *repository
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	return scanBatch(r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM payment_batches WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) InsertItem(ctx context.Context, item *Item) error {
	return r.tx.QueryRow(ctx, `INSERT INTO payment_batch_items (batch_id, bill_id, vendor_id, amount)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		item.BatchID, item.BillID, item.VendorID, item.Amount).
		Scan(&item.ID, &item.CreatedAt)
}

func (r *txRepository) ListItems(ctx context.Context, batchID int64) ([]Item, error) {
	return r.parent.listItems(ctx, r.tx, batchID)
}

func (r *txRepository) AddToTotal(ctx context.Context, batchID int64, delta float64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE payment_batches SET total = total + $2, updated_at=NOW() WHERE id=$1`, batchID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *txRepository) UpdateBatchStatus(ctx context.Context, batchID int64, status BatchStatus, processedAt *time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE payment_batches SET status=$2, processed_at=COALESCE($3, processed_at), updated_at=NOW() WHERE id=$1`,
		batchID, status, processedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

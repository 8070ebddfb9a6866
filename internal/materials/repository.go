package materials

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for materials.
type Repository interface {
	GetMaterial(ctx context.Context, id int64) (Material, error)
	ListMaterials(ctx context.Context, category Category) ([]Material, error)
	InsertPrice(ctx context.Context, price *Price) error
	ListPrices(ctx context.Context, materialID int64) ([]Price, error)
	ListMovements(ctx context.Context, materialID int64, limit int) ([]Movement, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	NextCodeSequence(ctx context.Context, category Category) (int64, error)
	InsertMaterial(ctx context.Context, material *Material) error
	GetMaterialForUpdate(ctx context.Context, id int64) (Material, error)
	InsertMovement(ctx context.Context, movement *Movement) error
	UpdateStock(ctx context.Context, materialID int64, qty, avgCost float64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const materialColumns = `id, code, name, category, unit, stock_qty, avg_cost, is_active, created_at, updated_at`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.Category, &m.Unit, &m.StockQty, &m.AvgCost, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, ErrMaterialNotFound
		}
		return Material{}, err
	}
	return m, nil
}

func (r *repository) GetMaterial(ctx context.Context, id int64) (Material, error) {
	return scanMaterial(r.db.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1`, id))
}

func (r *repository) ListMaterials(ctx context.Context, category Category) ([]Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials`
	args := []any{}
	if category != "" {
		query += ` WHERE category=$1`
		args = append(args, category)
	}
	query += ` ORDER BY code`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var materials []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

func (r *repository) InsertPrice(ctx context.Context, price *Price) error {
	return r.db.QueryRow(ctx, `INSERT INTO material_prices (material_id, price, currency, valid_from, created_by)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		price.MaterialID, price.Price, price.Currency, price.ValidFrom, price.CreatedBy).
		Scan(&price.ID, &price.CreatedAt)
}

func (r *repository) ListPrices(ctx context.Context, materialID int64) ([]Price, error) {
	rows, err := r.db.Query(ctx, `SELECT id, material_id, price, currency, valid_from, created_by, created_at
FROM material_prices WHERE material_id=$1 ORDER BY valid_from DESC`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var prices []Price
	for rows.Next() {
		var p Price
		if err := rows.Scan(&p.ID, &p.MaterialID, &p.Price, &p.Currency, &p.ValidFrom, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

func (r *repository) ListMovements(ctx context.Context, materialID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT id, material_id, type, qty, unit_cost, balance_qty, note, ref_entity, ref_id, actor_id, posted_at
FROM stock_movements WHERE material_id=$1 ORDER BY posted_at DESC, id DESC LIMIT $2`, materialID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.MaterialID, &m.Type, &m.Qty, &m.UnitCost, &m.BalanceQty, &m.Note, &m.RefEntity, &m.RefID, &m.ActorID, &m.PostedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
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

func (r *txRepository) NextCodeSequence(ctx context.Context, category Category) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO material_code_sequences (category, last_value)
VALUES ($1, 1)
ON CONFLICT (category) DO UPDATE SET last_value = material_code_sequences.last_value + 1
RETURNING last_value`, category).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertMaterial(ctx context.Context, material *Material) error {
	return r.tx.QueryRow(ctx, `INSERT INTO materials (code, name, category, unit, stock_qty, avg_cost, is_active)
VALUES ($1,$2,$3,$4,0,0,$5) RETURNING id, created_at, updated_at`,
		material.Code, material.Name, material.Category, material.Unit, material.IsActive).
		Scan(&material.ID, &material.CreatedAt, &material.UpdatedAt)
}

func (r *txRepository) GetMaterialForUpdate(ctx context.Context, id int64) (Material, error) {
	return scanMaterial(r.tx.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) InsertMovement(ctx context.Context, movement *Movement) error {
	return r.tx.QueryRow(ctx, `INSERT INTO stock_movements (material_id, type, qty, unit_cost, balance_qty, note, ref_entity, ref_id, actor_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		movement.MaterialID, movement.Type, movement.Qty, movement.UnitCost, movement.BalanceQty,
		movement.Note, movement.RefEntity, movement.RefID, movement.ActorID, movement.PostedAt).
		Scan(&movement.ID)
}

func (r *txRepository) UpdateStock(ctx context.Context, materialID int64, qty, avgCost float64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE materials SET stock_qty=$2, avg_cost=$3, updated_at=NOW() WHERE id=$1`, materialID, qty, avgCost)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMaterialNotFound
	}
	return nil
}

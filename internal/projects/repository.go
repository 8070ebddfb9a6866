package projects

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for projects.
type Repository interface {
	Insert(ctx context.Context, project *Project) error
	Get(ctx context.Context, id int64) (Project, error)
	List(ctx context.Context) ([]Project, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (Project, error)
	ListCommitments(ctx context.Context, projectID int64) ([]Commitment, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Project, error)
	InsertCommitment(ctx context.Context, commitment *Commitment) error
	DeleteCommitment(ctx context.Context, id int64) (Commitment, error)
	AddCommitted(ctx context.Context, projectID int64, delta float64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const projectColumns = `id, code, name, budget, committed, status, owner_id, created_at, updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Budget, &p.Committed, &p.Status, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrProjectNotFound
		}
		return Project{}, err
	}
	return p, nil
}

func (r *repository) Insert(ctx context.Context, project *Project) error {
	err := r.db.QueryRow(ctx, `INSERT INTO projects (code, name, budget, committed, status, owner_id)
VALUES ($1,$2,$3,0,$4,$5) RETURNING id, created_at, updated_at`,
		project.Code, project.Name, project.Budget, project.Status, project.OwnerID).
		Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id int64) (Project, error) {
	return scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, id))
}

func (r *repository) List(ctx context.Context) ([]Project, error) {
	rows, err := r.db.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) (Project, error) {
	return scanProject(r.db.QueryRow(ctx, `UPDATE projects SET status=$2, updated_at=NOW() WHERE id=$1
RETURNING `+projectColumns, id, status))
}

func (r *repository) ListCommitments(ctx context.Context, projectID int64) ([]Commitment, error) {
	rows, err := r.db.Query(ctx, `SELECT id, project_id, amount, ref_entity, ref_id, note, actor_id, created_at
FROM project_commitments WHERE project_id=$1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var commitments []Commitment
	for rows.Next() {
		var c Commitment
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Amount, &c.RefEntity, &c.RefID, &c.Note, &c.ActorID, &c.CreatedAt); err != nil {
			return nil, err
		}
		commitments = append(commitments, c)
	}
	return commitments, rows.Err()
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

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Project, error) {
	return scanProject(r.tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) InsertCommitment(ctx context.Context, commitment *Commitment) error {
	return r.tx.QueryRow(ctx, `INSERT INTO project_commitments (project_id, amount, ref_entity, ref_id, note, actor_id)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		commitment.ProjectID, commitment.Amount, commitment.RefEntity, commitment.RefID, commitment.Note, commitment.ActorID).
		Scan(&commitment.ID, &commitment.CreatedAt)
}

func (r *txRepository) DeleteCommitment(ctx context.Context, id int64) (Commitment, error) {
	var c Commitment
	err := r.tx.QueryRow(ctx, `DELETE FROM project_commitments WHERE id=$1
RETURNING id, project_id, amount, ref_entity, ref_id, note, actor_id, created_at`, id).
		Scan(&c.ID, &c.ProjectID, &c.Amount, &c.RefEntity, &c.RefID, &c.Note, &c.ActorID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Commitment{}, errors.New("projects: commitment not found")
		}
		return Commitment{}, err
	}
	return c, nil
}

func (r *txRepository) AddCommitted(ctx context.Context, projectID int64, delta float64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE projects SET committed = committed + $2, updated_at=NOW() WHERE id=$1`, projectID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

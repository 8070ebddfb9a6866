package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for accounts and tokens.
type Repository interface {
	InsertUser(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	InsertToken(ctx context.Context, token *Token) error
	FindToken(ctx context.Context, id int64) (Token, error)
	TouchToken(ctx context.Context, id int64, at time.Time) error
	DeleteToken(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const userColumns = `id, email, name, password_hash, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *repository) InsertUser(ctx context.Context, user *User) error {
	err := r.db.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, is_active)
VALUES ($1,$2,$3,$4) RETURNING id, created_at, updated_at`,
		user.Email, user.Name, user.PasswordHash, user.IsActive).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *repository) FindByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (r *repository) InsertToken(ctx context.Context, token *Token) error {
	return r.db.QueryRow(ctx, `INSERT INTO api_tokens (user_id, label, secret_hash, expires_at)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		token.UserID, token.Label, token.SecretHash, token.ExpiresAt).
		Scan(&token.ID, &token.CreatedAt)
}

func (r *repository) FindToken(ctx context.Context, id int64) (Token, error) {
	var t Token
	err := r.db.QueryRow(ctx, `SELECT id, user_id, label, secret_hash, expires_at, last_used_at, created_at
FROM api_tokens WHERE id=$1`, id).
		Scan(&t.ID, &t.UserID, &t.Label, &t.SecretHash, &t.ExpiresAt, &t.LastUsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrTokenInvalid
		}
		return Token{}, err
	}
	return t, nil
}

func (r *repository) TouchToken(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE api_tokens SET last_used_at=$2 WHERE id=$1`, id, at)
	return err
}

func (r *repository) DeleteToken(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM api_tokens WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTokenInvalid
	}
	return nil
}

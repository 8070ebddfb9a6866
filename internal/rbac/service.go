package rbac

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads permission grants.
type Repository interface {
	PermissionsForUser(ctx context.Context, userID int64) ([]string, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed permission repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) PermissionsForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT p.name FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
JOIN user_roles ur ON ur.role_id = rp.role_id
WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

// Service resolves effective permissions and enforces checks.
type Service struct {
	repo Repository
}

// NewService constructs the RBAC service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// EffectivePermissions returns the flattened permission set for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.PermissionsForUser(ctx, userID)
}

// RequirePermission is the in-process authorization check used by services.
// It returns *AuthorizationError when the actor lacks the permission.
func (s *Service) RequirePermission(ctx context.Context, actorID int64, required, operation string) error {
	granted, err := s.repo.PermissionsForUser(ctx, actorID)
	if err != nil {
		return err
	}
	required = strings.ToLower(strings.TrimSpace(required))
	for _, p := range granted {
		if strings.ToLower(p) == required {
			return nil
		}
	}
	return &AuthorizationError{Required: required, ActorID: actorID, Operation: operation}
}

package accounts

import "context"

// Service exposes chart of accounts reads and control-account resolution.
type Service struct {
	repo Repository
}

// NewService constructs the accounts service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetByID(ctx, id)
}

// ResolveControlAccount maps an entity type to its control account.
func (s *Service) ResolveControlAccount(ctx context.Context, entityType EntityType) (Account, error) {
	return s.repo.ControlAccountFor(ctx, entityType)
}

// RetainedEarnings resolves the retained earnings equity account by its
// reserved code. Year-end closing refuses to run without it.
func (s *Service) RetainedEarnings(ctx context.Context) (Account, error) {
	return s.repo.FindByCode(ctx, RetainedEarningsCode)
}

// RetainedEarningsCode is the reserved chart code for the closing target account.
const RetainedEarningsCode = "3200"

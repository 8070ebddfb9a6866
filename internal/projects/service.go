package projects

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service coordinates project and commitment operations.
type Service struct {
	repo   Repository
	audit  shared.AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the projects service.
func NewService(repo Repository, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// Create inserts a project.
func (s *Service) Create(ctx context.Context, in CreateProjectInput) (Project, error) {
	if err := in.Validate(); err != nil {
		return Project{}, err
	}
	project := Project{
		Code:    strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:    strings.TrimSpace(in.Name),
		Budget:  in.Budget,
		Status:  StatusActive,
		OwnerID: in.OwnerID,
	}
	if err := s.repo.Insert(ctx, &project); err != nil {
		return Project{}, err
	}
	s.recordAudit(ctx, in.ActorID, "project.create", project.ID)
	return project, nil
}

// Get loads one project.
func (s *Service) Get(ctx context.Context, id int64) (Project, error) {
	return s.repo.Get(ctx, id)
}

// List returns all projects.
func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx)
}

// SetStatus transitions the project lifecycle.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status, actorID int64) (Project, error) {
	switch status {
	case StatusActive, StatusOnHold, StatusCompleted:
	default:
		return Project{}, errors.New("projects: unknown status")
	}
	project, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return Project{}, err
	}
	s.recordAudit(ctx, actorID, "project.status", id)
	return project, nil
}

// Commit reserves budget on an active project. The check and the update run
// in one database transaction with the row locked, so two concurrent
// commitments cannot jointly exceed the budget.
func (s *Service) Commit(ctx context.Context, projectID int64, amount float64, refEntity, refID, note string, actorID int64) (Commitment, error) {
	if amount <= 0 {
		return Commitment{}, errors.New("projects: commitment amount must be positive")
	}
	var commitment Commitment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		project, err := tx.GetForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		if project.Status != StatusActive {
			return ErrProjectNotActive
		}
		if amount > project.Available()+1e-9 {
			return &OverCommitError{
				ProjectCode: project.Code,
				Requested:   amount,
				Available:   project.Available(),
			}
		}
		commitment = Commitment{
			ProjectID: projectID,
			Amount:    amount,
			RefEntity: refEntity,
			RefID:     refID,
			Note:      note,
			ActorID:   actorID,
		}
		if err := tx.InsertCommitment(ctx, &commitment); err != nil {
			return err
		}
		return tx.AddCommitted(ctx, projectID, amount)
	})
	if err != nil {
		return Commitment{}, err
	}
	s.recordAudit(ctx, actorID, "project.commit", projectID)
	return commitment, nil
}

// ReleaseCommitment cancels a commitment and returns its amount to the budget.
func (s *Service) ReleaseCommitment(ctx context.Context, commitmentID, actorID int64) error {
	var projectID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		commitment, err := tx.DeleteCommitment(ctx, commitmentID)
		if err != nil {
			return err
		}
		projectID = commitment.ProjectID
		return tx.AddCommitted(ctx, commitment.ProjectID, -commitment.Amount)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "project.release", projectID)
	return nil
}

// Commitments lists the commitments of a project.
func (s *Service) Commitments(ctx context.Context, projectID int64) ([]Commitment, error) {
	return s.repo.ListCommitments(ctx, projectID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, projectID int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "project",
		EntityID: strconv.FormatInt(projectID, 10),
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}

package fiscal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service orchestrates the fiscal year and period lifecycle.
type Service struct {
	repo   Repository
	audit  shared.AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the fiscal service.
func NewService(repo Repository, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) ListYears(ctx context.Context) ([]FiscalYear, error) {
	return s.repo.ListYears(ctx)
}

func (s *Service) GetYear(ctx context.Context, id int64) (FiscalYear, error) {
	return s.repo.GetYear(ctx, id)
}

func (s *Service) ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	return s.repo.ListPeriods(ctx, fiscalYearID)
}

// ResolvePeriod finds the year and period covering a transaction date.
func (s *Service) ResolvePeriod(ctx context.Context, date time.Time) (ResolvedPeriod, error) {
	return s.repo.ResolveByDate(ctx, date)
}

// CreateYear inserts a fiscal year and generates twelve monthly periods.
func (s *Service) CreateYear(ctx context.Context, in CreateYearInput) (FiscalYear, error) {
	if err := in.Validate(); err != nil {
		return FiscalYear{}, err
	}
	start := in.StartDate
	end := start.AddDate(1, 0, -1)
	conflict, err := s.repo.YearRangeConflict(ctx, start, end)
	if err != nil {
		return FiscalYear{}, err
	}
	if conflict {
		return FiscalYear{}, ErrYearOverlap
	}
	var year FiscalYear
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var e error
		year, e = tx.InsertYear(ctx, in, end)
		if e != nil {
			return e
		}
		for i := 0; i < 12; i++ {
			pStart := start.AddDate(0, i, 0)
			pEnd := start.AddDate(0, i+1, -1)
			if pEnd.After(end) {
				pEnd = end
			}
			period := Period{
				FiscalYearID: year.ID,
				Code:         fmt.Sprintf("%s-%02d", in.Name, i+1),
				StartDate:    pStart,
				EndDate:      pEnd,
			}
			if _, e := tx.InsertPeriod(ctx, period); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return FiscalYear{}, err
	}
	return year, nil
}

// ClosePeriod moves an OPEN period to CLOSED.
func (s *Service) ClosePeriod(ctx context.Context, periodID, actorID int64) (Period, error) {
	return s.transitionPeriod(ctx, periodID, actorID, PeriodStatusClosed, "close")
}

// LockPeriod moves a CLOSED period to LOCKED. Locked periods never reopen.
func (s *Service) LockPeriod(ctx context.Context, periodID, actorID int64) (Period, error) {
	return s.transitionPeriod(ctx, periodID, actorID, PeriodStatusLocked, "lock")
}

// ReopenPeriod moves a CLOSED period back to OPEN. Denied attempts against
// LOCKED periods are still recorded in the lock audit.
func (s *Service) ReopenPeriod(ctx context.Context, periodID, actorID int64) (Period, error) {
	return s.transitionPeriod(ctx, periodID, actorID, PeriodStatusOpen, "reopen")
}

func (s *Service) transitionPeriod(ctx context.Context, periodID, actorID int64, target PeriodStatus, note string) (Period, error) {
	if actorID == 0 {
		return Period{}, errors.New("fiscal: actor required")
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		transitionErr := shared.ValidatePeriodTransition(string(current.Status), string(target))
		audit := LockAudit{
			PeriodID: periodID,
			ActorID:  actorID,
			From:     current.Status,
			To:       target,
			Allowed:  transitionErr == nil,
			Note:     note,
			At:       s.now(),
		}
		if err := tx.InsertLockAudit(ctx, audit); err != nil {
			return err
		}
		if transitionErr != nil {
			if current.Status == PeriodStatusLocked {
				return ErrPeriodLocked
			}
			return transitionErr
		}
		if err := tx.UpdatePeriodStatus(ctx, periodID, target, actorID); err != nil {
			return err
		}
		period = current
		period.Status = target
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, actorID, "period."+note, periodID)
	return period, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fiscal",
		EntityID: fmt.Sprintf("%d", entityID),
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}

package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/notify"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// PeriodResolver maps a transaction date to its accounting period.
type PeriodResolver interface {
	ResolvePeriod(ctx context.Context, date time.Time) (fiscal.ResolvedPeriod, error)
}

// ControlResolver maps entity references to control accounts.
type ControlResolver interface {
	ResolveControlAccount(ctx context.Context, entityType accounts.EntityType) (accounts.Account, error)
}

// Config carries service policy knobs.
type Config struct {
	// AllowUnresolvedPeriod permits a write when no fiscal period covers the
	// transaction date (fiscal years not configured yet). A resolved
	// CLOSED/LOCKED period always fails regardless of this flag, and so do
	// infrastructure errors during resolution.
	AllowUnresolvedPeriod bool
}

// DefaultConfig matches the production posture: incomplete fiscal
// configuration does not block writes.
func DefaultConfig() Config {
	return Config{AllowUnresolvedPeriod: true}
}

// Service persists transactions, enforcing double-entry validation and
// period checks on every write path.
type Service struct {
	repo     Repository
	periods  PeriodResolver
	controls ControlResolver
	audit    shared.AuditPort
	notify   notify.BestEffort
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewService constructs the transaction service.
func NewService(repo Repository, periods PeriodResolver, controls ControlResolver, audit shared.AuditPort, notifier notify.BestEffort, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		periods:  periods,
		controls: controls,
		audit:    audit,
		notify:   notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// EnforceDoubleEntry validates entries before any write. Empty entry lists
// pass: entry-less transactions (for example cash-free payments) are legal.
// On failure it returns an UnbalancedEntriesError carrying both totals and
// every validation error; it never silently coerces amounts.
func (s *Service) EnforceDoubleEntry(entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	res := ledger.Validate(entries)
	if res.IsValid {
		return nil
	}
	balance := ledger.CalculateBalance(entries)
	return &UnbalancedEntriesError{
		TotalDebits:  balance.TotalDebits,
		TotalCredits: balance.TotalCredits,
		Errors:       res.Errors,
	}
}

// prepare runs the shared validation funnel: double-entry check, entity
// resolution, then period check. Every persistence entry point goes through
// it, so no caller can bypass the invariants by picking a different path.
func (s *Service) prepare(ctx context.Context, txn *Transaction) error {
	if err := s.EnforceDoubleEntry(txn.Entries); err != nil {
		return err
	}
	if err := s.resolveEntities(ctx, txn); err != nil {
		return err
	}
	return s.checkPeriod(ctx, txn.Date)
}

// resolveEntities rewrites entity references to their control accounts.
func (s *Service) resolveEntities(ctx context.Context, txn *Transaction) error {
	for i := range txn.Entries {
		entry := &txn.Entries[i]
		if entry.AccountID != 0 || entry.EntityID == 0 {
			continue
		}
		if s.controls == nil {
			return fmt.Errorf("transactions: entry %d references entity %d but no control resolver configured", i+1, entry.EntityID)
		}
		control, err := s.controls.ResolveControlAccount(ctx, entry.EntityType)
		if err != nil {
			return fmt.Errorf("transactions: resolve control account for entity %d: %w", entry.EntityID, err)
		}
		entry.AccountID = control.ID
		entry.AccountCode = control.Code
		entry.AccountName = control.Name
	}
	return nil
}

func (s *Service) checkPeriod(ctx context.Context, date time.Time) error {
	if s.periods == nil {
		return nil
	}
	resolved, err := s.periods.ResolvePeriod(ctx, date)
	if err != nil {
		if errors.Is(err, fiscal.ErrNoPeriodForDate) {
			if s.cfg.AllowUnresolvedPeriod {
				s.logger.Warn("no accounting period covers transaction date; write permitted",
					slog.Time("date", date))
				return nil
			}
			return &ClosedPeriodError{PeriodCode: "UNRESOLVED", Status: "MISSING"}
		}
		return err
	}
	if !resolved.IsOpenForPosting() {
		status := string(resolved.Period.Status)
		if resolved.Year.Status != fiscal.YearStatusOpen {
			status = string(resolved.Year.Status)
		}
		return &ClosedPeriodError{PeriodCode: resolved.Period.Code, Status: status}
	}
	return nil
}

// SaveTransaction persists via a single write.
func (s *Service) SaveTransaction(ctx context.Context, txn *Transaction) error {
	if err := s.initialize(txn); err != nil {
		return err
	}
	if err := s.prepare(ctx, txn); err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, txn); err != nil {
		return err
	}
	s.recordAudit(ctx, txn.CreatedBy, "transaction.save", txn)
	return nil
}

// SaveTransactionAtomic persists inside a database transaction, for callers
// composing the write with other statements.
func (s *Service) SaveTransactionAtomic(ctx context.Context, txn *Transaction) error {
	if err := s.initialize(txn); err != nil {
		return err
	}
	if err := s.prepare(ctx, txn); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, txn)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, txn.CreatedBy, "transaction.save", txn)
	return nil
}

// SaveTransactionBatch persists several transactions in one batched write.
// Validation runs for every transaction before anything is written.
func (s *Service) SaveTransactionBatch(ctx context.Context, txns []*Transaction) error {
	for _, txn := range txns {
		if err := s.initialize(txn); err != nil {
			return err
		}
		if err := s.prepare(ctx, txn); err != nil {
			return err
		}
	}
	if err := s.repo.InsertBatch(ctx, txns); err != nil {
		return err
	}
	for _, txn := range txns {
		s.recordAudit(ctx, txn.CreatedBy, "transaction.save", txn)
	}
	return nil
}

// SaveWithoutPeriodCheckTx persists a document dated inside a closed period,
// writing through the caller's open database transaction so the document
// commits or rolls back together with the caller's other statements.
// Double-entry validation and entity resolution still run; only the period
// gate is skipped. Year-end closing uses this to post into a year whose
// periods are already closed.
func (s *Service) SaveWithoutPeriodCheckTx(ctx context.Context, tx TxRepository, txn *Transaction) error {
	if err := s.initialize(txn); err != nil {
		return err
	}
	if err := s.EnforceDoubleEntry(txn.Entries); err != nil {
		return err
	}
	if err := s.resolveEntities(ctx, txn); err != nil {
		return err
	}
	if err := tx.Insert(ctx, txn); err != nil {
		return err
	}
	s.recordAudit(ctx, txn.CreatedBy, "transaction.save", txn)
	return nil
}

// Get loads one transaction with entries and approval history.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return s.repo.Get(ctx, id)
}

// List returns transactions filtered by status and type.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) initialize(txn *Transaction) error {
	if txn == nil {
		return errors.New("transactions: transaction required")
	}
	if txn.Date.IsZero() {
		return errors.New("transactions: date required")
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.Status == "" {
		txn.Status = StatusDraft
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, txn *Transaction) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "transaction",
		EntityID: txn.ID.String(),
		Meta: map[string]any{
			"type":   string(txn.Type),
			"status": string(txn.Status),
		},
		At: s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}

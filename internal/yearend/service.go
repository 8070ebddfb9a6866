package yearend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/transactions"
)

// FiscalGateway is the slice of the fiscal service the closing run needs.
// Year status writes happen through TxRepository.SetYearStatus so they share
// the closing transaction.
type FiscalGateway interface {
	GetYear(ctx context.Context, id int64) (fiscal.FiscalYear, error)
	ListPeriods(ctx context.Context, fiscalYearID int64) ([]fiscal.Period, error)
}

// RetainedEarningsResolver locates the equity account absorbing net income.
type RetainedEarningsResolver interface {
	RetainedEarnings(ctx context.Context) (accounts.Account, error)
}

// TransactionWriter persists the closing and reversal documents through an
// open database transaction supplied by the caller.
type TransactionWriter interface {
	SaveWithoutPeriodCheckTx(ctx context.Context, tx transactions.TxRepository, txn *transactions.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (transactions.Transaction, error)
}

// Service executes and reverses year-end closings.
type Service struct {
	repo     Repository
	fiscalGW FiscalGateway
	retained RetainedEarningsResolver
	writer   TransactionWriter
	audit    shared.AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the year-end service.
func NewService(repo Repository, fiscalGW FiscalGateway, retained RetainedEarningsResolver, writer TransactionWriter, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		fiscalGW: fiscalGW,
		retained: retained,
		writer:   writer,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CheckReadiness reports whether the fiscal year can be closed. Infrastructure
// failures return an error; business blockers land in Readiness.Issues.
func (s *Service) CheckReadiness(ctx context.Context, fiscalYearID int64) (Readiness, error) {
	var r Readiness
	year, err := s.fiscalGW.GetYear(ctx, fiscalYearID)
	if err != nil {
		return r, err
	}
	if year.Status != fiscal.YearStatusOpen {
		r.Issues = append(r.Issues, fmt.Sprintf("fiscal year is %s", year.Status))
	}
	periods, err := s.fiscalGW.ListPeriods(ctx, fiscalYearID)
	if err != nil {
		return r, err
	}
	for _, p := range periods {
		if p.Status == fiscal.PeriodStatusOpen {
			r.OpenPeriods = append(r.OpenPeriods, p.Code)
		}
	}
	if len(r.OpenPeriods) > 0 {
		r.Issues = append(r.Issues, fmt.Sprintf("%d periods still open", len(r.OpenPeriods)))
	}
	retained, err := s.retained.RetainedEarnings(ctx)
	if err != nil {
		r.Issues = append(r.Issues, "retained earnings account not resolvable")
	} else {
		r.RetainedEarningsID = retained.ID
	}
	r.Ready = len(r.Issues) == 0
	return r, nil
}

// Execute closes the fiscal year: every non-zero INCOME/EXPENSE balance is
// zeroed and the net lands on Retained Earnings, all in one posted document.
func (s *Service) Execute(ctx context.Context, fiscalYearID, actorID int64) (ClosingRun, error) {
	year, err := s.fiscalGW.GetYear(ctx, fiscalYearID)
	if err != nil {
		return ClosingRun{}, err
	}
	if year.Status != fiscal.YearStatusOpen {
		return ClosingRun{}, &ClosingError{Code: CodeAlreadyClosed, Message: fmt.Sprintf("fiscal year %s is %s", year.Name, year.Status)}
	}
	periods, err := s.fiscalGW.ListPeriods(ctx, fiscalYearID)
	if err != nil {
		return ClosingRun{}, err
	}
	for _, p := range periods {
		if p.Status == fiscal.PeriodStatusOpen {
			return ClosingRun{}, &ClosingError{Code: CodePeriodsOpen, Message: fmt.Sprintf("period %s is still open", p.Code)}
		}
	}
	retained, err := s.retained.RetainedEarnings(ctx)
	if err != nil {
		return ClosingRun{}, &ClosingError{Code: CodeNoRetainedEarnings, Message: err.Error()}
	}

	balances, err := s.repo.IncomeExpenseBalances(ctx, year.StartDate, year.EndDate)
	if err != nil {
		return ClosingRun{}, err
	}
	entries, netIncome := BuildClosingEntries(balances, retained)
	if len(entries) == 0 {
		return ClosingRun{}, &ClosingError{Code: CodeNothingToClose, Message: "no income or expense balances to close"}
	}
	if res := ledger.Validate(entries); !res.IsValid {
		return ClosingRun{}, &ClosingError{Code: CodeUnbalanced, Message: strings.Join(res.Errors, "; ")}
	}

	txn := &transactions.Transaction{
		Type:      transactions.TypeJournalEntry,
		Status:    transactions.StatusPosted,
		Date:      year.EndDate,
		Memo:      fmt.Sprintf("Year-end closing %s", year.Name),
		Entries:   entries,
		CreatedBy: actorID,
	}
	run := ClosingRun{
		FiscalYearID: fiscalYearID,
		NetIncome:    netIncome,
		ExecutedBy:   actorID,
		ExecutedAt:   s.now(),
	}
	// Closing document, run record and year status commit or roll back as one.
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.writer.SaveWithoutPeriodCheckTx(ctx, tx.Documents(), txn); err != nil {
			return err
		}
		run.TransactionID = txn.ID
		if err := tx.InsertRun(ctx, &run); err != nil {
			return err
		}
		return tx.SetYearStatus(ctx, fiscalYearID, fiscal.YearStatusOpen, fiscal.YearStatusClosed, actorID)
	})
	if err != nil {
		if errors.Is(err, ErrYearStateChanged) {
			return ClosingRun{}, &ClosingError{Code: CodeAlreadyClosed, Message: "fiscal year is no longer open"}
		}
		return ClosingRun{}, err
	}
	s.recordAudit(ctx, actorID, "yearend.execute", fiscalYearID)
	s.logger.Info("fiscal year closed",
		slog.Int64("fiscal_year_id", fiscalYearID),
		slog.Float64("net_income", netIncome),
		slog.String("transaction_id", txn.ID.String()))
	return run, nil
}

// Reverse regenerates the closing entries with debit and credit swapped,
// restoring the original balances, and reopens the fiscal year.
func (s *Service) Reverse(ctx context.Context, fiscalYearID, actorID int64) (ClosingRun, error) {
	run, err := s.repo.LatestRun(ctx, fiscalYearID)
	if err != nil {
		return ClosingRun{}, err
	}
	if run.Reversed {
		return ClosingRun{}, &ClosingError{Code: CodeAlreadyReversed, Message: "closing run already reversed"}
	}
	year, err := s.fiscalGW.GetYear(ctx, fiscalYearID)
	if err != nil {
		return ClosingRun{}, err
	}
	if year.Status == fiscal.YearStatusOpen {
		return ClosingRun{}, &ClosingError{Code: CodeNotClosed, Message: "fiscal year is not closed"}
	}

	original, err := s.writer.Get(ctx, run.TransactionID)
	if err != nil {
		return ClosingRun{}, err
	}
	reversal := &transactions.Transaction{
		Type:      transactions.TypeJournalEntry,
		Status:    transactions.StatusPosted,
		Date:      year.EndDate,
		Memo:      fmt.Sprintf("Reversal of year-end closing %s", year.Name),
		Entries:   SwapSides(original.Entries),
		CreatedBy: actorID,
	}
	// Reversal document, run update and year reopen commit or roll back as one.
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.writer.SaveWithoutPeriodCheckTx(ctx, tx.Documents(), reversal); err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, run.ID); err != nil {
			return err
		}
		return tx.SetYearStatus(ctx, fiscalYearID, fiscal.YearStatusClosed, fiscal.YearStatusOpen, actorID)
	})
	if err != nil {
		if errors.Is(err, ErrYearStateChanged) {
			return ClosingRun{}, &ClosingError{Code: CodeNotClosed, Message: "fiscal year is not closed"}
		}
		return ClosingRun{}, err
	}
	run.Reversed = true
	s.recordAudit(ctx, actorID, "yearend.reverse", fiscalYearID)
	return run, nil
}

// LatestRun exposes the most recent closing record for a year.
func (s *Service) LatestRun(ctx context.Context, fiscalYearID int64) (ClosingRun, error) {
	return s.repo.LatestRun(ctx, fiscalYearID)
}

// BuildClosingEntries produces one zeroing entry per non-zero INCOME/EXPENSE
// balance plus the Retained Earnings counter-entry. Credit balances are
// closed with a debit, debit balances with a credit. The returned net income
// is positive when income exceeded expenses.
func BuildClosingEntries(balances []accounts.Balance, retained accounts.Account) ([]ledger.Entry, float64) {
	var entries []ledger.Entry
	netIncome := 0.0
	for _, b := range balances {
		if b.Type != accounts.AccountTypeIncome && b.Type != accounts.AccountTypeExpense {
			continue
		}
		amount := round2(math.Abs(b.Net))
		if amount < ledger.BalanceTolerance {
			continue
		}
		entry := ledger.Entry{
			AccountID:   b.AccountID,
			AccountCode: b.AccountCode,
			AccountName: b.AccountName,
			Description: fmt.Sprintf("Close %s %s", b.AccountCode, b.AccountName),
		}
		if b.Net < 0 {
			entry.Debit = amount
			netIncome += amount
		} else {
			entry.Credit = amount
			netIncome -= amount
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, 0
	}
	netIncome = round2(netIncome)
	counter := ledger.Entry{
		AccountID:   retained.ID,
		AccountCode: retained.Code,
		AccountName: retained.Name,
		Description: "Net income to retained earnings",
	}
	if netIncome >= 0 {
		counter.Credit = netIncome
	} else {
		counter.Debit = -netIncome
	}
	if counter.Debit > 0 || counter.Credit > 0 {
		entries = append(entries, counter)
	}
	return entries, netIncome
}

// SwapSides returns a copy of the entries with debit and credit exchanged.
func SwapSides(entries []ledger.Entry) []ledger.Entry {
	out := make([]ledger.Entry, len(entries))
	for i, e := range entries {
		e.Debit, e.Credit = e.Credit, e.Debit
		out[i] = e
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, yearID int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fiscal_year",
		EntityID: strconv.FormatInt(yearID, 10),
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}

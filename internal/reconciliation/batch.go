package reconciliation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ErrSweepInProgress indicates another sweep holds the account lock.
var ErrSweepInProgress = errors.New("reconciliation: sweep already running for account")

const sweepLockTTL = 10 * time.Minute

// Service drives suggestion lookups and the batch sweep.
type Service struct {
	repo   Repository
	engine *Engine
	locks  *shared.RunLock
	audit  shared.AuditPort
	logger *slog.Logger
	cfg    Config
}

// NewService constructs the reconciliation service.
func NewService(repo Repository, locks *shared.RunLock, audit shared.AuditPort, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		engine: NewEngine(cfg),
		locks:  locks,
		audit:  audit,
		logger: logger,
		cfg:    cfg,
	}
}

// Suggest returns ranked match suggestions for one bank transaction,
// pairwise first, then combinations.
func (s *Service) Suggest(ctx context.Context, bankTransactionID int64) ([]Suggestion, error) {
	bank, err := s.repo.GetBankTransaction(ctx, bankTransactionID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.repo.ListUnmatchedAccounting(ctx)
	if err != nil {
		return nil, err
	}
	suggestions := s.engine.FindMatches(bank, candidates)
	suggestions = append(suggestions, s.engine.FindCombinationMatches(bank, candidates)...)
	rank(suggestions)
	return suggestions, nil
}

// AcceptMatch confirms a match chosen by a reviewer.
func (s *Service) AcceptMatch(ctx context.Context, bankTransactionID int64, accountingIDs []uuid.UUID, actorID int64) error {
	if len(accountingIDs) == 0 {
		return errors.New("reconciliation: at least one accounting transaction required")
	}
	err := s.repo.SaveMatch(ctx, Suggestion{
		BankTransactionID:        bankTransactionID,
		AccountingTransactionIDs: accountingIDs,
		Score:                    s.cfg.MaxScore(),
		Reasons:                  []string{"manually confirmed"},
	}, MatchStatusMatched)
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "reconciliation.match", bankTransactionID)
	return nil
}

// ImportStatement bulk-loads bank statement lines for one account.
func (s *Service) ImportStatement(ctx context.Context, bankAccountID int64, lines []BankTransaction, actorID int64) (int64, error) {
	for i := range lines {
		lines[i].BankAccountID = bankAccountID
	}
	n, err := s.repo.ImportBankTransactions(ctx, lines)
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, actorID, "reconciliation.import", bankAccountID)
	return n, nil
}

type scoredBank struct {
	bank BankTransaction
	best *Suggestion
}

// RunBatch sweeps all unmatched bank transactions for the account. Scoring
// runs concurrently per bank transaction; acceptance is sequential in score
// order so two bank lines never consume the same accounting transaction.
func (s *Service) RunBatch(ctx context.Context, bankAccountID int64) (BatchStats, error) {
	key := shared.ReconSweepLockKey(bankAccountID)
	ok, err := s.locks.Acquire(ctx, key, sweepLockTTL)
	if err != nil {
		return BatchStats{}, err
	}
	if !ok {
		return BatchStats{}, ErrSweepInProgress
	}
	defer func() {
		if err := s.locks.Release(ctx, key); err != nil {
			s.logger.Warn("release sweep lock", slog.Any("error", err))
		}
	}()

	bankTxns, err := s.repo.ListUnmatchedBank(ctx, bankAccountID)
	if err != nil {
		return BatchStats{}, err
	}
	candidates, err := s.repo.ListUnmatchedAccounting(ctx)
	if err != nil {
		return BatchStats{}, err
	}

	scored := make([]scoredBank, len(bankTxns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	var mu sync.Mutex
	for i, bank := range bankTxns {
		i, bank := i, bank
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			suggestions := s.engine.FindMatches(bank, candidates)
			suggestions = append(suggestions, s.engine.FindCombinationMatches(bank, candidates)...)
			rank(suggestions)
			entry := scoredBank{bank: bank}
			if len(suggestions) > 0 {
				entry.best = &suggestions[0]
			}
			mu.Lock()
			scored[i] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchStats{}, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		si, sj := 0.0, 0.0
		if scored[i].best != nil {
			si = scored[i].best.Score
		}
		if scored[j].best != nil {
			sj = scored[j].best.Score
		}
		return si > sj
	})

	stats := BatchStats{Processed: len(scored)}
	used := make(map[uuid.UUID]bool)
	for _, entry := range scored {
		status := s.classify(entry.best, used)
		switch status {
		case MatchStatusMatched:
			if err := s.repo.SaveMatch(ctx, *entry.best, MatchStatusMatched); err != nil {
				return stats, err
			}
			markUsed(used, entry.best)
			stats.Matched++
		case MatchStatusReview:
			if err := s.repo.SaveMatch(ctx, *entry.best, MatchStatusReview); err != nil {
				return stats, err
			}
			stats.Review++
		default:
			stats.Unmatched++
		}
	}
	s.logger.Info("reconciliation sweep complete",
		slog.Int64("bank_account_id", bankAccountID),
		slog.Int("processed", stats.Processed),
		slog.Int("matched", stats.Matched),
		slog.Int("review", stats.Review),
		slog.Int("unmatched", stats.Unmatched))
	return stats, nil
}

func (s *Service) classify(best *Suggestion, used map[uuid.UUID]bool) MatchStatus {
	if best == nil {
		return MatchStatusUnmatched
	}
	for _, id := range best.AccountingTransactionIDs {
		if used[id] {
			return MatchStatusUnmatched
		}
	}
	switch {
	case best.Score >= s.cfg.HighConfidenceThreshold:
		return MatchStatusMatched
	case best.Score >= s.cfg.MediumConfidenceThreshold:
		return MatchStatusReview
	default:
		return MatchStatusUnmatched
	}
}

func markUsed(used map[uuid.UUID]bool, s *Suggestion) {
	for _, id := range s.AccountingTransactionIDs {
		used[id] = true
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, refID int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "bank_transaction",
		EntityID: strconv.FormatInt(refID, 10),
		At:       time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}

package reconciliation

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
)

// Engine runs pairwise and combinatorial matching over candidate sets.
type Engine struct {
	cfg Config
}

// NewEngine constructs an Engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// FindMatches scores the bank transaction against every candidate and
// returns suggestions at or above MinimumMatchScore, ranked descending.
func (e *Engine) FindMatches(bank BankTransaction, candidates []AccountingTransaction) []Suggestion {
	suggestions := make([]Suggestion, 0, len(candidates))
	for _, candidate := range candidates {
		s := Score(bank, candidate, e.cfg)
		if s.Score >= e.cfg.MinimumMatchScore {
			suggestions = append(suggestions, s)
		}
	}
	rank(suggestions)
	return suggestions
}

// FindCombinationMatches looks for groups of 2..MaxCombinationSize candidates
// whose summed amount matches the bank amount within tolerance. Each group is
// scored like a single transaction using the summed amount; the date and
// reference factors take the best value across members.
func (e *Engine) FindCombinationMatches(bank BankTransaction, candidates []AccountingTransaction) []Suggestion {
	maxSize := e.cfg.MaxCombinationSize
	if maxSize < 2 {
		return nil
	}
	if maxSize > len(candidates) {
		maxSize = len(candidates)
	}
	var suggestions []Suggestion
	for size := 2; size <= maxSize; size++ {
		combine(candidates, size, func(group []AccountingTransaction) {
			if !e.sumWithinTolerance(bank.Amount, group) {
				return
			}
			s := e.scoreCombination(bank, group)
			if s.Score >= e.cfg.MinimumMatchScore {
				suggestions = append(suggestions, s)
			}
		})
	}
	rank(suggestions)
	return suggestions
}

func (e *Engine) sumWithinTolerance(bankAmount float64, group []AccountingTransaction) bool {
	sum := 0.0
	for _, candidate := range group {
		sum += candidate.Amount
	}
	diff := math.Abs(bankAmount - sum)
	if diff <= e.cfg.AmountToleranceFixed {
		return true
	}
	closeBand := math.Abs(bankAmount) * e.cfg.AmountTolerancePercent
	return closeBand > 0 && diff <= closeBand
}

func (e *Engine) scoreCombination(bank BankTransaction, group []AccountingTransaction) Suggestion {
	merged := AccountingTransaction{ID: group[0].ID}
	for _, candidate := range group {
		merged.Amount += candidate.Amount
	}
	// Best member wins the date, reference and description factors.
	best := group[0]
	bestVariance := dateVarianceDays(bank.Date, best.Date)
	for _, candidate := range group[1:] {
		if v := dateVarianceDays(bank.Date, candidate.Date); v < bestVariance {
			best, bestVariance = candidate, v
		}
	}
	merged.Date = best.Date
	merged.Reference = bestReference(bank, group, e.cfg)
	merged.Description = best.Description

	s := Score(bank, merged, e.cfg)
	ids := make([]uuid.UUID, 0, len(group))
	for _, candidate := range group {
		ids = append(ids, candidate.ID)
	}
	s.AccountingTransactionIDs = ids
	s.Reasons = append(s.Reasons, fmt.Sprintf("combination of %d transactions", len(group)))
	return s
}

func bestReference(bank BankTransaction, group []AccountingTransaction, cfg Config) string {
	best := ""
	bestScore := -1.0
	for _, candidate := range group {
		score, _ := scoreReference(bank, candidate.Reference, cfg, nil)
		if score > bestScore {
			best, bestScore = candidate.Reference, score
		}
	}
	return best
}

// combine invokes fn for every k-combination of items, in index order.
func combine(items []AccountingTransaction, k int, fn func([]AccountingTransaction)) {
	if k <= 0 || k > len(items) {
		return
	}
	indices := make([]int, k)
	for i := range indices {
		indices[i] = i
	}
	group := make([]AccountingTransaction, k)
	for {
		for i, idx := range indices {
			group[i] = items[idx]
		}
		fn(group)

		i := k - 1
		for i >= 0 && indices[i] == len(items)-k+i {
			i--
		}
		if i < 0 {
			return
		}
		indices[i]++
		for j := i + 1; j < k; j++ {
			indices[j] = indices[j-1] + 1
		}
	}
}

func rank(suggestions []Suggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
}

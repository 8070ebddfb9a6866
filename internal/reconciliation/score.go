package reconciliation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/cases"
)

var fold = cases.Fold()

// Score evaluates one (bank, accounting) pair against the config. The result
// is a weighted sum of four independent factors, each capped at its weight.
func Score(bank BankTransaction, acc AccountingTransaction, cfg Config) Suggestion {
	s := Suggestion{
		BankTransactionID:        bank.ID,
		AccountingTransactionIDs: []uuid.UUID{acc.ID},
	}
	s.Details.AmountScore, s.Reasons = scoreAmount(bank.Amount, acc.Amount, cfg, s.Reasons)
	s.Details.DateScore, s.Details.DateVarianceDays, s.Reasons = scoreDate(bank.Date, acc.Date, cfg, s.Reasons)
	s.Details.ReferenceScore, s.Reasons = scoreReference(bank, acc.Reference, cfg, s.Reasons)
	if cfg.EnableDescriptionScoring {
		s.Details.DescriptionSimilarity = DescriptionSimilarity(bank.Description, acc.Description)
		s.Details.DescriptionScore = cfg.DescriptionWeight * s.Details.DescriptionSimilarity
		if s.Details.DescriptionSimilarity >= 0.5 {
			s.Reasons = append(s.Reasons, "descriptions similar")
		}
	}
	s.Score = s.Details.AmountScore + s.Details.DateScore + s.Details.ReferenceScore + s.Details.DescriptionScore
	return s
}

func scoreAmount(bankAmount, accAmount float64, cfg Config, reasons []string) (float64, []string) {
	diff := math.Abs(bankAmount - accAmount)
	if diff <= cfg.AmountToleranceFixed {
		return cfg.AmountWeight, append(reasons, "amount matches exactly")
	}
	closeBand := math.Abs(bankAmount) * cfg.AmountTolerancePercent
	if closeBand > 0 && diff <= closeBand {
		score := cfg.AmountWeight * (1 - diff/closeBand)
		return score, append(reasons, fmt.Sprintf("amount within %.2f", diff))
	}
	return 0, reasons
}

func scoreDate(bankDate, accDate time.Time, cfg Config, reasons []string) (float64, int, []string) {
	variance := dateVarianceDays(bankDate, accDate)
	if variance == 0 {
		return cfg.DateWeight, 0, append(reasons, "same date")
	}
	if cfg.DateToleranceDays > 0 && variance < cfg.DateToleranceDays {
		score := cfg.DateWeight * (1 - float64(variance)/float64(cfg.DateToleranceDays))
		return score, variance, append(reasons, fmt.Sprintf("date within %d days", variance))
	}
	return 0, variance, reasons
}

// dateVarianceDays counts whole calendar days between the two dates.
func dateVarianceDays(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(math.Abs(ad.Sub(bd).Hours()) / 24)
	return days
}

func scoreReference(bank BankTransaction, accRef string, cfg Config, reasons []string) (float64, []string) {
	acc := normalize(accRef)
	if acc == "" {
		return 0, reasons
	}
	best := 0.0
	for _, candidate := range []string{bank.Reference, bank.ChequeNumber} {
		c := normalize(candidate)
		if c == "" {
			continue
		}
		switch {
		case c == acc:
			return cfg.ReferenceWeight, append(reasons, "reference matches")
		case strings.HasPrefix(c, acc), strings.HasPrefix(acc, c),
			strings.Contains(c, acc), strings.Contains(acc, c):
			best = math.Max(best, cfg.ReferenceWeight*0.8)
		}
	}
	if best > 0 {
		reasons = append(reasons, "reference partially matches")
	}
	return best, reasons
}

// DescriptionSimilarity blends normalized edit-distance similarity with
// keyword-set overlap, both case-insensitive, 50/50. Result is in [0, 1].
func DescriptionSimilarity(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return 0.5*editSimilarity(na, nb) + 0.5*keywordOverlap(na, nb)
}

func editSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return 1 - float64(dist)/float64(longest)
}

// keywordOverlap is the Jaccard index over whitespace-delimited tokens.
func keywordOverlap(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	common := 0
	for token := range ta {
		if _, ok := tb[token]; ok {
			common++
		}
	}
	union := len(ta) + len(tb) - common
	return float64(common) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(s) {
		token = strings.Trim(token, ".,;:()[]\"'")
		if len(token) < 2 {
			continue
		}
		set[token] = struct{}{}
	}
	return set
}

func normalize(s string) string {
	return fold.String(strings.TrimSpace(s))
}

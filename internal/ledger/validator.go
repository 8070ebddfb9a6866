package ledger

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// BalanceTolerance is the absolute tolerance within which total debits and
// credits are considered equal.
const BalanceTolerance = 0.01

// maxRecommendedEntries triggers a warning, not an error.
const maxRecommendedEntries = 20

// Validate checks a list of entries against double-entry bookkeeping rules.
func Validate(entries []Entry) Result {
	res := Result{Errors: []string{}, Warnings: []string{}}

	if len(entries) == 0 {
		res.Errors = append(res.Errors, "transaction has no entries")
		return res
	}
	if len(entries) < 2 {
		res.Errors = append(res.Errors, "double-entry requires at least two entries")
	}
	if len(entries) > maxRecommendedEntries {
		res.Warnings = append(res.Warnings, fmt.Sprintf("transaction has %d entries; consider splitting", len(entries)))
	}

	seen := make(map[int64]bool, len(entries))
	for idx, entry := range entries {
		for _, msg := range entryErrors(entry) {
			res.Errors = append(res.Errors, fmt.Sprintf("entry %d: %s", idx+1, msg))
		}
		if entry.AccountID != 0 {
			if seen[entry.AccountID] {
				res.Warnings = append(res.Warnings, fmt.Sprintf("entry %d: account %d referenced more than once", idx+1, entry.AccountID))
			}
			seen[entry.AccountID] = true
		}
	}

	balance := CalculateBalance(entries)
	if !balance.IsBalanced {
		res.Errors = append(res.Errors, fmt.Sprintf("total debits (%.2f) must equal total credits (%.2f)", balance.TotalDebits, balance.TotalCredits))
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// ValidateSingleEntry applies per-entry rules without the aggregate balance
// check, for inline validation while a transaction is being drafted.
func ValidateSingleEntry(entry Entry) Result {
	res := Result{Errors: entryErrors(entry), Warnings: []string{}}
	res.IsValid = len(res.Errors) == 0
	return res
}

func entryErrors(entry Entry) []string {
	errs := []string{}
	if !entry.HasReference() {
		errs = append(errs, "missing account or entity reference")
	}
	if entry.Debit < 0 || entry.Credit < 0 {
		errs = append(errs, "amounts cannot be negative")
	}
	if entry.Debit > 0 && entry.Credit > 0 {
		errs = append(errs, "entry cannot have both debit and credit")
	}
	if entry.Debit == 0 && entry.Credit == 0 {
		errs = append(errs, "entry must have a debit or credit amount")
	}
	return errs
}

// CalculateBalance sums entries and rounds totals to two decimals. The
// returned totals are stable: calling it again on the same entries yields
// identical values.
func CalculateBalance(entries []Entry) Balance {
	debits := decimal.Zero
	credits := decimal.Zero
	for _, entry := range entries {
		debits = debits.Add(decimal.NewFromFloat(entry.Debit))
		credits = credits.Add(decimal.NewFromFloat(entry.Credit))
	}
	totalDebits, _ := debits.Round(2).Float64()
	totalCredits, _ := credits.Round(2).Float64()
	diff, _ := debits.Round(2).Sub(credits.Round(2)).Abs().Float64()
	return Balance{
		TotalDebits:  totalDebits,
		TotalCredits: totalCredits,
		Difference:   diff,
		IsBalanced:   diff <= BalanceTolerance+1e-9,
	}
}

// WithinTolerance reports whether two amounts agree under the canonical policy.
func WithinTolerance(a, b float64) bool {
	return math.Abs(a-b) <= BalanceTolerance+1e-9
}

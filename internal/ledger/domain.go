// Package ledger implements double-entry validation for transaction entries.
// It is pure: no persistence, no clock, no I/O.
package ledger

import "github.com/meridian-erp/meridian-erp/internal/accounts"

// Entry is one side of a journal line. Exactly one of Debit or Credit must be
// positive, and at least one of AccountID or EntityID must reference a target.
// Entity references are resolved to control accounts before persistence.
type Entry struct {
	AccountID  int64
	EntityID   int64
	EntityType accounts.EntityType

	Debit  float64
	Credit float64

	// Display-only fields carried through to the UI layer.
	Description string
	AccountCode string
	AccountName string
}

// HasReference reports whether the entry targets an account or entity.
func (e Entry) HasReference() bool {
	return e.AccountID != 0 || e.EntityID != 0
}

// Result aggregates validation findings. Errors block persistence; warnings
// do not. Findings are collected rather than returned fail-fast so a caller
// can surface every problem at once.
type Result struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Balance reports rounded totals for a set of entries. This is the canonical
// rounding and tolerance policy: every balance check in the system goes
// through it.
type Balance struct {
	TotalDebits  float64 `json:"totalDebits"`
	TotalCredits float64 `json:"totalCredits"`
	Difference   float64 `json:"difference"`
	IsBalanced   bool    `json:"isBalanced"`
}

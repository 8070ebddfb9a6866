// Package yearend executes and reverses the fiscal year closing run.
package yearend

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Error codes for ClosingError.
const (
	CodePeriodsOpen         = "PERIODS_OPEN"
	CodeNoRetainedEarnings  = "NO_RETAINED_EARNINGS"
	CodeAlreadyClosed       = "ALREADY_CLOSED"
	CodeUnbalanced          = "UNBALANCED"
	CodeNotClosed           = "NOT_CLOSED"
	CodeAlreadyReversed     = "ALREADY_REVERSED"
	CodeNothingToClose      = "NOTHING_TO_CLOSE"
)

// ClosingError describes why a closing run cannot proceed.
type ClosingError struct {
	Code    string
	Message string
}

func (e *ClosingError) Error() string {
	return fmt.Sprintf("yearend: %s: %s", e.Code, e.Message)
}

// Readiness reports whether a fiscal year can be closed.
type Readiness struct {
	Ready              bool     `json:"ready"`
	OpenPeriods        []string `json:"openPeriods,omitempty"`
	RetainedEarningsID int64    `json:"retainedEarningsId,omitempty"`
	Issues             []string `json:"issues,omitempty"`
}

// ClosingRun is the persisted record of one executed closing.
type ClosingRun struct {
	ID            int64     `json:"id"`
	FiscalYearID  int64     `json:"fiscalYearId"`
	TransactionID uuid.UUID `json:"transactionId"`
	NetIncome     float64   `json:"netIncome"`
	Reversed      bool      `json:"reversed"`
	ExecutedBy    int64     `json:"executedBy"`
	ExecutedAt    time.Time `json:"executedAt"`
}

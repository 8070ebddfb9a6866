// Package reconciliation matches imported bank statement lines against
// accounting transactions and suggests reconciliation candidates.
package reconciliation

import (
	"time"

	"github.com/google/uuid"
)

// BankTransaction is one imported bank statement line.
type BankTransaction struct {
	ID            int64     `json:"id"`
	BankAccountID int64     `json:"bankAccountId"`
	Amount        float64   `json:"amount"`
	Date          time.Time `json:"date"`
	Description   string    `json:"description"`
	Reference     string    `json:"reference,omitempty"`
	ChequeNumber  string    `json:"chequeNumber,omitempty"`
	Matched       bool      `json:"matched"`
}

// AccountingTransaction is a posted ledger-side candidate for matching.
type AccountingTransaction struct {
	ID          uuid.UUID `json:"id"`
	Amount      float64   `json:"amount"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Reference   string    `json:"reference,omitempty"`
}

// ScoreDetails breaks a suggestion score into its factors.
type ScoreDetails struct {
	AmountScore           float64 `json:"amountScore"`
	DateScore             float64 `json:"dateScore"`
	ReferenceScore        float64 `json:"referenceScore"`
	DescriptionScore      float64 `json:"descriptionScore"`
	DateVarianceDays      int     `json:"dateVarianceDays"`
	DescriptionSimilarity float64 `json:"descriptionSimilarity"`
}

// Suggestion is a derived, non-persistent match candidate. Combination
// matches carry more than one accounting transaction ID.
type Suggestion struct {
	BankTransactionID         int64        `json:"bankTransactionId"`
	AccountingTransactionIDs  []uuid.UUID  `json:"accountingTransactionIds"`
	Score                     float64      `json:"score"`
	Reasons                   []string     `json:"reasons"`
	Details                   ScoreDetails `json:"details"`
}

// MatchStatus enumerates outcomes of a batch sweep per bank transaction.
type MatchStatus string

const (
	MatchStatusMatched   MatchStatus = "MATCHED"
	MatchStatusReview    MatchStatus = "REVIEW"
	MatchStatusUnmatched MatchStatus = "UNMATCHED"
)

// BatchStats summarises one sweep run.
type BatchStats struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	Review    int `json:"review"`
	Unmatched int `json:"unmatched"`
}

// Package payments groups approved payable documents into payment batches.
package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchStatus enumerates the payment batch lifecycle.
type BatchStatus string

const (
	BatchDraft      BatchStatus = "DRAFT"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
)

// ValidateBatchTransition enforces DRAFT -> PROCESSING -> COMPLETED.
func ValidateBatchTransition(current, target BatchStatus) error {
	allowed := map[BatchStatus]BatchStatus{
		BatchDraft:      BatchProcessing,
		BatchProcessing: BatchCompleted,
	}
	if next, ok := allowed[current]; ok && next == target {
		return nil
	}
	return &InvalidTransitionError{From: current, To: target}
}

// InvalidTransitionError reports a forbidden batch status change.
type InvalidTransitionError struct {
	From BatchStatus
	To   BatchStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("payments: cannot move batch from %s to %s", e.From, e.To)
}

// Batch is one payment batch.
type Batch struct {
	ID          int64       `json:"id"`
	Code        string      `json:"code"`
	Status      BatchStatus `json:"status"`
	Total       float64     `json:"total"`
	Currency    string      `json:"currency"`
	Items       []Item      `json:"items,omitempty"`
	CreatedBy   int64       `json:"createdBy"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	ProcessedAt *time.Time  `json:"processedAt,omitempty"`
}

// Item is one payable document inside a batch.
type Item struct {
	ID             int64      `json:"id"`
	BatchID        int64      `json:"batchId"`
	BillID         uuid.UUID  `json:"billId"`
	VendorID       int64      `json:"vendorId"`
	Amount         float64    `json:"amount"`
	PaymentTxnID   *uuid.UUID `json:"paymentTxnId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

var (
	// ErrBatchNotFound indicates a missing batch.
	ErrBatchNotFound = errors.New("payments: batch not found")
	// ErrBatchNotEditable blocks item changes outside DRAFT.
	ErrBatchNotEditable = errors.New("payments: batch is not editable")
	// ErrEmptyBatch blocks processing a batch with no items.
	ErrEmptyBatch = errors.New("payments: batch has no items")
	// ErrBillNotPayable indicates the referenced document is not an approved vendor bill.
	ErrBillNotPayable = errors.New("payments: document is not an approved vendor bill")
)

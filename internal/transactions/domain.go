package transactions

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Type tags a transaction kind. Behavior per type lives in the TypeConfig
// registry, not in subtypes.
type Type string

const (
	TypeCustomerInvoice Type = "CUSTOMER_INVOICE"
	TypeVendorBill      Type = "VENDOR_BILL"
	TypeJournalEntry    Type = "JOURNAL_ENTRY"
	TypePayment         Type = "PAYMENT"
)

// Status enumerates the transaction lifecycle.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusPosted          Status = "POSTED"
	StatusVoid            Status = "VOID"
)

// ApprovalAction enumerates approval history actions.
type ApprovalAction string

const (
	ApprovalSubmitted ApprovalAction = "SUBMITTED"
	ApprovalApproved  ApprovalAction = "APPROVED"
	ApprovalRejected  ApprovalAction = "REJECTED"
)

// ApprovalRecord is one immutable entry in a transaction's approval trail.
type ApprovalRecord struct {
	Action  ApprovalAction `json:"action"`
	ActorID int64          `json:"actorId"`
	Comment string         `json:"comment,omitempty"`
	At      time.Time      `json:"at"`
}

// ApprovalHistory is an append-only ordered log. Append returns a new slice;
// existing history is never mutated in place.
type ApprovalHistory []ApprovalRecord

// Append returns a new history with the record added.
func (h ApprovalHistory) Append(record ApprovalRecord) ApprovalHistory {
	out := make(ApprovalHistory, 0, len(h)+1)
	out = append(out, h...)
	return append(out, record)
}

// Transaction is a persisted accounting event.
type Transaction struct {
	ID              uuid.UUID
	Number          int64
	Type            Type
	Status          Status
	Date            time.Time
	Memo            string
	Entries         []ledger.Entry
	ApproverID      int64
	ApprovalHistory ApprovalHistory
	RejectionReason string
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DisplayNumber renders the user-facing document number for the type.
func (t Transaction) DisplayNumber() string {
	return fmt.Sprintf("%s-%06d", ConfigFor(t.Type).NumberPrefix, t.Number)
}

// Editing terminal states: once a transaction reaches one of these, no edit
// or delete is permitted regardless of role.
func isTerminal(status Status) bool {
	switch status {
	case StatusApproved, StatusPosted, StatusVoid:
		return true
	default:
		return false
	}
}

// CanEdit reports whether the transaction may be edited.
func CanEdit(status Status, isAssignedApprover, canManage bool) bool {
	if isTerminal(status) {
		return false
	}
	return status == StatusDraft && canManage
}

// CanDelete reports whether the transaction may be deleted.
func CanDelete(status Status, isAssignedApprover, canManage bool) bool {
	return CanEdit(status, isAssignedApprover, canManage)
}

// CanSubmit reports whether the transaction may be submitted for approval.
func CanSubmit(status Status, isAssignedApprover, canManage bool) bool {
	return status == StatusDraft && canManage
}

// CanApprove reports whether the acting user may approve.
func CanApprove(status Status, isAssignedApprover, canManage bool) bool {
	return status == StatusPendingApproval && isAssignedApprover
}

// CanReject reports whether the acting user may reject.
func CanReject(status Status, isAssignedApprover, canManage bool) bool {
	return status == StatusPendingApproval && isAssignedApprover
}

// UnbalancedEntriesError blocks persistence of entries that fail validation.
// It carries both totals and the full error list; callers display everything.
type UnbalancedEntriesError struct {
	TotalDebits  float64
	TotalCredits float64
	Errors       []string
}

func (e *UnbalancedEntriesError) Error() string {
	return fmt.Sprintf("transactions: entries invalid (debits %.2f, credits %.2f): %s",
		e.TotalDebits, e.TotalCredits, strings.Join(e.Errors, "; "))
}

// ClosedPeriodError indicates the transaction date falls in a closed or
// locked accounting period.
type ClosedPeriodError struct {
	PeriodCode string
	Status     string
}

func (e *ClosedPeriodError) Error() string {
	return fmt.Sprintf("transactions: period %s is %s", e.PeriodCode, e.Status)
}

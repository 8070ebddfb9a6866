package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/notify"
)

var (
	// ErrCommentRequired blocks rejection without an explanation.
	ErrCommentRequired = errors.New("transactions: comment is required to reject")
	// ErrNotAllowed indicates the actor may not perform the transition.
	ErrNotAllowed = errors.New("transactions: action not allowed in current status")
	// ErrApproverRequired blocks submission without an assigned approver.
	ErrApproverRequired = errors.New("transactions: approver required to submit")
)

// Submit moves a DRAFT transaction to PENDING_APPROVAL and notifies the
// assigned approver. The notification is best-effort: its failure never
// rolls back the transition.
func (s *Service) Submit(ctx context.Context, id uuid.UUID, actorID int64, canManage bool) (Transaction, error) {
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanSubmit(current.Status, current.ApproverID == actorID, canManage) {
			return ErrNotAllowed
		}
		if current.ApproverID == 0 {
			return ErrApproverRequired
		}
		current.Status = StatusPendingApproval
		current.ApprovalHistory = current.ApprovalHistory.Append(ApprovalRecord{
			Action:  ApprovalSubmitted,
			ActorID: actorID,
			At:      s.now(),
		})
		if err := tx.UpdateApproval(ctx, current); err != nil {
			return err
		}
		txn = current
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, actorID, "transaction.submit", &txn)
	cfg := ConfigFor(txn.Type)
	s.notify.Notify(ctx, notify.TaskNotification{
		RecipientID: txn.ApproverID,
		Category:    cfg.NotificationCategory,
		Title:       fmt.Sprintf("%s pending approval", cfg.Label),
		Message:     fmt.Sprintf(cfg.SubmitMessage, txn.DisplayNumber()),
		RefEntity:   "transaction",
		RefID:       txn.ID.String(),
	})
	return txn, nil
}

// Approve moves a PENDING_APPROVAL transaction to APPROVED.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actorID int64, comment string) (Transaction, error) {
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanApprove(current.Status, current.ApproverID == actorID, false) {
			return ErrNotAllowed
		}
		current.Status = StatusApproved
		current.ApprovalHistory = current.ApprovalHistory.Append(ApprovalRecord{
			Action:  ApprovalApproved,
			ActorID: actorID,
			Comment: comment,
			At:      s.now(),
		})
		if err := tx.UpdateApproval(ctx, current); err != nil {
			return err
		}
		txn = current
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, actorID, "transaction.approve", &txn)
	s.notifyResolution(ctx, txn, "approved")
	return txn, nil
}

// Reject returns a PENDING_APPROVAL transaction to DRAFT. A comment is
// mandatory so the submitter knows what to fix.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actorID int64, comment string) (Transaction, error) {
	if strings.TrimSpace(comment) == "" {
		return Transaction{}, ErrCommentRequired
	}
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanReject(current.Status, current.ApproverID == actorID, false) {
			return ErrNotAllowed
		}
		current.Status = StatusDraft
		current.RejectionReason = comment
		current.ApprovalHistory = current.ApprovalHistory.Append(ApprovalRecord{
			Action:  ApprovalRejected,
			ActorID: actorID,
			Comment: comment,
			At:      s.now(),
		})
		if err := tx.UpdateApproval(ctx, current); err != nil {
			return err
		}
		txn = current
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, actorID, "transaction.reject", &txn)
	s.notifyResolution(ctx, txn, "rejected")
	return txn, nil
}

// notifyResolution tells the submitter how their document was resolved.
func (s *Service) notifyResolution(ctx context.Context, txn Transaction, outcome string) {
	if txn.CreatedBy == 0 {
		return
	}
	cfg := ConfigFor(txn.Type)
	s.notify.Notify(ctx, notify.TaskNotification{
		RecipientID: txn.CreatedBy,
		Category:    cfg.NotificationCategory,
		Title:       fmt.Sprintf("%s %s", cfg.Label, outcome),
		Message:     fmt.Sprintf(cfg.ResolveMessage, txn.DisplayNumber(), outcome),
		RefEntity:   "transaction",
		RefID:       txn.ID.String(),
	})
}

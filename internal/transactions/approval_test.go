package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/notify"
)

type captureNotifier struct {
	sent []notify.TaskNotification
}

func (c *captureNotifier) CreateTaskNotification(ctx context.Context, n notify.TaskNotification) (string, error) {
	c.sent = append(c.sent, n)
	return "task-1", nil
}

func seedDraft(t *testing.T, repo *memoryRepo, approverID int64) Transaction {
	t.Helper()
	txn := &Transaction{
		ID:         uuid.New(),
		Type:       TypeVendorBill,
		Status:     StatusDraft,
		Date:       time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		ApproverID: approverID,
		CreatedBy:  7,
		Entries:    []ledger.Entry{{AccountID: 1, Debit: 80}, {AccountID: 2, Credit: 80}},
	}
	require.NoError(t, repo.Insert(context.Background(), txn))
	return *txn
}

func approvalService(repo Repository, notifier notify.Notifier) *Service {
	return NewService(repo, stubPeriods{resolved: openPeriod()}, nil, nil, notify.BestEffort{Notifier: notifier}, nil, DefaultConfig())
}

func TestSubmitTransitionsAndNotifiesApprover(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &captureNotifier{}
	svc := approvalService(repo, notifier)
	draft := seedDraft(t, repo, 99)

	txn, err := svc.Submit(context.Background(), draft.ID, 7, true)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, txn.Status)
	require.Len(t, txn.ApprovalHistory, 1)
	require.Equal(t, ApprovalSubmitted, txn.ApprovalHistory[0].Action)
	require.EqualValues(t, 7, txn.ApprovalHistory[0].ActorID)

	require.Len(t, notifier.sent, 1)
	require.EqualValues(t, 99, notifier.sent[0].RecipientID)
	require.Contains(t, notifier.sent[0].Message, txn.DisplayNumber())
}

func TestSubmitRequiresApprover(t *testing.T) {
	repo := newMemoryRepo()
	svc := approvalService(repo, nil)
	draft := seedDraft(t, repo, 0)

	_, err := svc.Submit(context.Background(), draft.ID, 7, true)
	require.ErrorIs(t, err, ErrApproverRequired)
}

func TestSubmitOnlyFromDraft(t *testing.T) {
	repo := newMemoryRepo()
	svc := approvalService(repo, nil)
	draft := seedDraft(t, repo, 99)

	_, err := svc.Submit(context.Background(), draft.ID, 7, true)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), draft.ID, 7, true)
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestApproveByAssignedApprover(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &captureNotifier{}
	svc := approvalService(repo, notifier)
	draft := seedDraft(t, repo, 99)

	_, err := svc.Submit(context.Background(), draft.ID, 7, true)
	require.NoError(t, err)

	txn, err := svc.Approve(context.Background(), draft.ID, 99, "looks right")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, txn.Status)
	require.Len(t, txn.ApprovalHistory, 2)
	require.Equal(t, ApprovalApproved, txn.ApprovalHistory[1].Action)

	// Submitter is told about the resolution.
	require.EqualValues(t, 7, notifier.sent[len(notifier.sent)-1].RecipientID)
}

func TestApproveByOtherUserFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := approvalService(repo, nil)
	draft := seedDraft(t, repo, 99)

	_, err := svc.Submit(context.Background(), draft.ID, 7, true)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), draft.ID, 55, "")
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestRejectRequiresComment(t *testing.T) {
	repo := newMemoryRepo()
	svc := approvalService(repo, nil)
	draft := seedDraft(t, repo, 99)

	_, err := svc.Submit(context.Background(), draft.ID, 7, true)
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), draft.ID, 99, "   ")
	require.ErrorIs(t, err, ErrCommentRequired)
}

func TestRejectReturnsToDraftWithReason(t *testing.T) {
	repo := newMemoryRepo()
	svc := approvalService(repo, nil)
	draft := seedDraft(t, repo, 99)

	_, err := svc.Submit(context.Background(), draft.ID, 7, true)
	require.NoError(t, err)

	txn, err := svc.Reject(context.Background(), draft.ID, 99, "wrong cost centre")
	require.NoError(t, err)
	require.Equal(t, StatusDraft, txn.Status)
	require.Equal(t, "wrong cost centre", txn.RejectionReason)
	require.Len(t, txn.ApprovalHistory, 2)
	require.Equal(t, ApprovalRejected, txn.ApprovalHistory[1].Action)

	// Cycle can run again after the fix.
	_, err = svc.Submit(context.Background(), draft.ID, 7, true)
	require.NoError(t, err)
}

func TestApprovalHistoryAppendIsImmutable(t *testing.T) {
	base := ApprovalHistory{{Action: ApprovalSubmitted, ActorID: 1}}
	grown := base.Append(ApprovalRecord{Action: ApprovalApproved, ActorID: 2})
	require.Len(t, base, 1)
	require.Len(t, grown, 2)
	grown[0].ActorID = 42
	require.EqualValues(t, 1, base[0].ActorID)
}

package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotify delivers an actionable task notification to a user.
	TaskTypeNotify = "notify:task"
	// TaskTypeReconSweep runs the nightly reconciliation auto-match batch.
	TaskTypeReconSweep = "recon:sweep"
)

// NotifyPayload describes a task notification awaiting delivery.
type NotifyPayload struct {
	RecipientID int64  `json:"recipient_id"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	RefEntity   string `json:"ref_entity"`
	RefID       string `json:"ref_id"`
}

// NewNotifyTask constructs an Asynq task carrying a notification payload.
func NewNotifyTask(payload NotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotify, data), nil
}

// NotificationWriter persists delivered notifications.
type NotificationWriter interface {
	Write(ctx context.Context, payload NotifyPayload) error
}

// NewNotifyHandler processes TaskTypeNotify tasks through the writer.
func NewNotifyHandler(writer NotificationWriter, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NotifyPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.RecipientID == 0 {
			return asynq.SkipRetry
		}
		if err := writer.Write(ctx, payload); err != nil {
			logger.Error("write notification", slog.Any("error", err))
			return err
		}
		return nil
	}
}

// ReconSweepPayload scopes a reconciliation sweep to one bank account.
type ReconSweepPayload struct {
	BankAccountID int64 `json:"bank_account_id"`
}

// NewReconSweepTask constructs the nightly sweep task.
func NewReconSweepTask(payload ReconSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReconSweep, data), nil
}

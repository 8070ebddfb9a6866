// Package notify delivers actionable task notifications. Delivery is a
// best-effort side channel: a notification outage never blocks or unwinds a
// committed financial write.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/jobs"
)

// TaskNotification describes a notification to a specific user.
type TaskNotification struct {
	RecipientID int64
	Category    string
	Title       string
	Message     string
	RefEntity   string
	RefID       string
}

// Notifier creates task notifications.
type Notifier interface {
	CreateTaskNotification(ctx context.Context, n TaskNotification) (string, error)
}

// AsynqNotifier enqueues notifications for the worker to deliver.
type AsynqNotifier struct {
	client *asynq.Client
}

// NewAsynqNotifier constructs an AsynqNotifier.
func NewAsynqNotifier(client *asynq.Client) *AsynqNotifier {
	return &AsynqNotifier{client: client}
}

// CreateTaskNotification enqueues the notification and returns the task ID.
func (n *AsynqNotifier) CreateTaskNotification(ctx context.Context, t TaskNotification) (string, error) {
	if n == nil || n.client == nil {
		return "", errors.New("notify: client not initialised")
	}
	if t.RecipientID == 0 {
		return "", errors.New("notify: recipient required")
	}
	task, err := jobs.NewNotifyTask(jobs.NotifyPayload{
		RecipientID: t.RecipientID,
		Category:    t.Category,
		Title:       t.Title,
		Message:     t.Message,
		RefEntity:   t.RefEntity,
		RefID:       t.RefID,
	})
	if err != nil {
		return "", err
	}
	info, err := n.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// BestEffort wraps a Notifier so failures are logged, never propagated.
type BestEffort struct {
	Notifier Notifier
	Logger   *slog.Logger
}

// Notify sends the notification, swallowing any error.
func (b BestEffort) Notify(ctx context.Context, t TaskNotification) {
	if b.Notifier == nil {
		return
	}
	if _, err := b.Notifier.CreateTaskNotification(ctx, t); err != nil && b.Logger != nil {
		b.Logger.Warn("notification delivery failed",
			slog.String("category", t.Category),
			slog.Int64("recipient", t.RecipientID),
			slog.Any("error", err))
	}
}

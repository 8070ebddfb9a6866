package notify

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/jobs"
)

// PGWriter persists delivered notifications into the notifications table.
type PGWriter struct {
	pool *pgxpool.Pool
}

// NewPGWriter constructs a PGWriter.
func NewPGWriter(pool *pgxpool.Pool) *PGWriter {
	return &PGWriter{pool: pool}
}

// Write stores one notification row for the recipient's inbox.
func (w *PGWriter) Write(ctx context.Context, payload jobs.NotifyPayload) error {
	if w == nil || w.pool == nil {
		return errors.New("notify: writer not initialised")
	}
	_, err := w.pool.Exec(ctx, `INSERT INTO notifications (recipient_id, category, title, message, ref_entity, ref_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		payload.RecipientID, payload.Category, payload.Title, payload.Message, payload.RefEntity, payload.RefID, time.Now())
	return err
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/easel-entry/internal/model"
)

// WebhookEventRepo stores verified provider deliveries in
//
//	webhook_events(event_id PRIMARY KEY, type, delivery_id, webhook_timestamp, signature,
//	               body, received_at, processed_at NULL)
type WebhookEventRepo struct {
	db *sql.DB
}

// NewWebhookEventRepo returns a WebhookEventRepo bound to the provided database.
func NewWebhookEventRepo(db *sql.DB) *WebhookEventRepo { return &WebhookEventRepo{db: db} }

// Record stores the event unless a row with the same event id exists.  It
// reports whether the event had already been processed.
func (r *WebhookEventRepo) Record(ctx context.Context, ev model.WebhookEvent) (bool, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO webhook_events (event_id, type, delivery_id, webhook_timestamp, signature, body, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.Type, ev.DeliveryID, ev.Timestamp, ev.Signature, ev.Body, ev.ReceivedAt.UTC()); err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	var processedAt sql.NullTime
	if err := r.db.QueryRowContext(ctx,
		`SELECT processed_at FROM webhook_events WHERE event_id = ?`, ev.EventID).Scan(&processedAt); err != nil {
		return false, fmt.Errorf("load webhook event: %w", err)
	}
	return processedAt.Valid, nil
}

// MarkProcessed stamps processed_at on the event.  Already processed events
// keep their original timestamp.
func (r *WebhookEventRepo) MarkProcessed(ctx context.Context, eventID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events SET processed_at = ? WHERE event_id = ? AND processed_at IS NULL`,
		time.Now().UTC(), eventID); err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}

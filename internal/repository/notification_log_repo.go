package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"mockupreview/internal/model"
)

type NotificationLogRepository struct {
	db *pgxpool.Pool
}

func NewNotificationLogRepository(db *pgxpool.Pool) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

// Upsert 以 (event_id, recipient_id) 为键；失败后重投成功会覆盖为 sent
func (r *NotificationLogRepository) Upsert(ctx context.Context, log *model.NotificationLog) error {
	query := `
		INSERT INTO notification_log (event_id, event_kind, recipient_id, channel, status, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, recipient_id)
		DO UPDATE SET status = EXCLUDED.status, error = EXCLUDED.error, channel = EXCLUDED.channel
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		log.EventID, log.EventKind, log.RecipientID, log.Channel, log.Status, log.Error,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert notification log: %w", err)
	}
	return nil
}

// Delivered 该接收人是否已成功投递过此事件
func (r *NotificationLogRepository) Delivered(ctx context.Context, eventID, recipientID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notification_log
			WHERE event_id = $1 AND recipient_id = $2 AND status = 'sent'
		)
	`, eventID, recipientID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check notification log: %w", err)
	}
	return ok, nil
}

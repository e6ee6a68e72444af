package repository

import (
	"context"
	"fmt"
	"time"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// NotificationRepository persists inbox notifications.
type NotificationRepository struct {
	db DBTX
}

// Create inserts n. The caller supplies the id.
func (r *NotificationRepository) Create(ctx context.Context, n domain.Notification) error {
	_, err := r.db.Exec(ctx, `INSERT INTO notifications
		(id, type, title, message, recipient_id, resource_type, resource_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.Type, n.Title, n.Message, n.RecipientID, n.ResourceType, n.ResourceID,
	)
	if err != nil {
		return fmt.Errorf("insert notification for user %d: %w", n.RecipientID, err)
	}
	return nil
}

// ListForRecipient returns a user's newest notifications.
func (r *NotificationRepository) ListForRecipient(ctx context.Context, userID int64, limit int) ([]domain.Notification, error) {
	rows, err := r.db.Query(ctx, `SELECT id, type, title, message, recipient_id, resource_type, resource_id, read, created_at
		FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.RecipientID, &n.ResourceType, &n.ResourceID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountUnread counts a user's unread notifications.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE recipient_id = $1 AND NOT read`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return int(n), nil
}

// MarkRead marks one of the user's notifications read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, userID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeNotificationNotFound, "notification not found")
	}
	return nil
}

// DeleteBefore removes notifications created before cutoff.
func (r *NotificationRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete notifications before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

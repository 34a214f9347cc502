package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"reminder-service/internal/models"
)

const notificationColumns = `
        id, user_id, channel, type, subject, content, metadata,
        scheduled_at, sent_at, status, last_error, created_at, updated_at`

func (d *DB) CreateNotification(ctx context.Context, n models.Notification) error {
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal notification metadata: %w", err)
	}
	query := `
        INSERT INTO notifications (
            id, user_id, channel, type, subject, content, metadata,
            scheduled_at, sent_at, status, last_error, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = d.Pool.Exec(ctx, query,
		n.ID, n.UserID, n.Channel, n.Type, n.Subject, n.Content, meta,
		n.ScheduledAt, n.SentAt, n.Status, n.LastError, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (d *DB) GetNotification(ctx context.Context, id uuid.UUID) (models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(d.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Notification{}, fmt.Errorf("notification %s: %w", id, ErrNotFound)
		}
		return models.Notification{}, fmt.Errorf("failed to get notification %s: %w", id, err)
	}
	return n, nil
}

// UpdateNotificationStatus transitions a notification, recording the sent
// timestamp when the new status is SENT.
func (d *DB) UpdateNotificationStatus(ctx context.Context, id uuid.UUID, status models.NotificationStatus, lastError string) error {
	query := `
        UPDATE notifications
        SET status = $1, last_error = $2, updated_at = $3,
            sent_at = CASE WHEN $1 = 'SENT' THEN $3 ELSE sent_at END
        WHERE id = $4`
	result, err := d.Pool.Exec(ctx, query, status, lastError, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no notification updated for id %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetDueNotifications returns SCHEDULED notifications whose scheduled time
// has passed, oldest first.
func (d *DB) GetDueNotifications(ctx context.Context, before time.Time, limit int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
        FROM notifications
        WHERE status = 'SCHEDULED' AND scheduled_at <= $1
        ORDER BY scheduled_at ASC
        LIMIT $2`
	rows, err := d.Pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// CountRecentNotifications counts non-cancelled notifications for a user
// created since the given time.
func (d *DB) CountRecentNotifications(ctx context.Context, userID int, since time.Time) (int, error) {
	var count int
	query := `
        SELECT COUNT(*)
        FROM notifications
        WHERE user_id = $1 AND created_at >= $2 AND status <> 'CANCELLED'`
	if err := d.Pool.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent notifications for user %d: %w", userID, err)
	}
	return count, nil
}

// GetSentNotificationsSince returns a user's notifications sent after the
// given time, oldest first.
func (d *DB) GetSentNotificationsSince(ctx context.Context, userID int, since time.Time) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
        FROM notifications
        WHERE user_id = $1 AND sent_at IS NOT NULL AND sent_at >= $2
        ORDER BY sent_at ASC`
	rows, err := d.Pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get sent notifications for user %d: %w", userID, err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (d *DB) GetNotificationsByUserID(ctx context.Context, userID, limit, offset int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
        FROM notifications
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := d.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications by user_id %d: %w", userID, err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func scanNotifications(rows pgx.Rows) ([]models.Notification, error) {
	var notifications []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func scanNotification(row pgx.Row) (models.Notification, error) {
	var n models.Notification
	var id pgtype.UUID
	var meta []byte
	err := row.Scan(
		&id, &n.UserID, &n.Channel, &n.Type, &n.Subject, &n.Content, &meta,
		&n.ScheduledAt, &n.SentAt, &n.Status, &n.LastError, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return models.Notification{}, err
	}
	n.ID = id.Bytes
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return models.Notification{}, fmt.Errorf("failed to unmarshal notification metadata: %w", err)
		}
	}
	return n, nil
}

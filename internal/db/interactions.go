package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"reminder-service/internal/models"
)

func (d *DB) CreateInteraction(ctx context.Context, in models.Interaction) error {
	query := `
        INSERT INTO interactions (id, notification_id, user_id, action_type, created_at)
        VALUES ($1, $2, $3, $4, $5)`
	_, err := d.Pool.Exec(ctx, query, in.ID, in.NotificationID, in.UserID, in.ActionType, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create interaction: %w", err)
	}
	return nil
}

// GetInteractionsSince returns a user's interactions created after the given
// time, oldest first.
func (d *DB) GetInteractionsSince(ctx context.Context, userID int, since time.Time) ([]models.Interaction, error) {
	query := `
        SELECT id, notification_id, user_id, action_type, created_at
        FROM interactions
        WHERE user_id = $1 AND created_at >= $2
        ORDER BY created_at ASC`
	rows, err := d.Pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get interactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	var interactions []models.Interaction
	for rows.Next() {
		var in models.Interaction
		var id, notifID pgtype.UUID
		if err := rows.Scan(&id, &notifID, &in.UserID, &in.ActionType, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		in.ID = id.Bytes
		in.NotificationID = notifID.Bytes
		interactions = append(interactions, in)
	}
	return interactions, rows.Err()
}

// CountEngagementInteractionsSince counts only engagement-class actions.
// Every successful send also records a SENT bookkeeping row, so counting
// all rows would make the engagement rate meaningless.
func (d *DB) CountEngagementInteractionsSince(ctx context.Context, userID int, since time.Time) (int, error) {
	var count int
	query := `
        SELECT COUNT(*) FROM interactions
        WHERE user_id = $1 AND created_at >= $2
          AND action_type IN ('OPENED', 'CLICKED', 'CONVERTED')`
	if err := d.Pool.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count engagement interactions for user %d: %w", userID, err)
	}
	return count, nil
}

// HasOptOutSince reports whether the user opted out after the given time.
func (d *DB) HasOptOutSince(ctx context.Context, userID int, since time.Time) (bool, error) {
	var exists bool
	query := `
        SELECT EXISTS (
            SELECT 1 FROM interactions
            WHERE user_id = $1 AND action_type = 'OPTED_OUT' AND created_at >= $2
        )`
	if err := d.Pool.QueryRow(ctx, query, userID, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check opt-out for user %d: %w", userID, err)
	}
	return exists, nil
}

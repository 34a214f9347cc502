package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"reminder-service/internal/models"
)

const subscriptionColumns = `
        id, user_id, name, amount_cents, currency, billing_cycle,
        next_renewal_at, status, paused_at, created_at, updated_at`

func (d *DB) CreateSubscription(ctx context.Context, s models.Subscription) error {
	query := `
        INSERT INTO subscriptions (
            id, user_id, name, amount_cents, currency, billing_cycle,
            next_renewal_at, status, paused_at, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := d.Pool.Exec(ctx, query,
		s.ID, s.UserID, s.Name, s.AmountCents, s.Currency, s.BillingCycle,
		s.NextRenewalAt, s.Status, s.PausedAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (d *DB) GetSubscription(ctx context.Context, id uuid.UUID) (models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	s, err := scanSubscription(d.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Subscription{}, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
		}
		return models.Subscription{}, fmt.Errorf("failed to get subscription %s: %w", id, err)
	}
	return s, nil
}

func (d *DB) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus, pausedAt *time.Time) error {
	query := `
        UPDATE subscriptions
        SET status = $1, paused_at = $2, updated_at = $3
        WHERE id = $4`
	result, err := d.Pool.Exec(ctx, query, status, pausedAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no subscription updated for id %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetUpcomingRenewals returns ACTIVE subscriptions renewing before the given
// time.
func (d *DB) GetUpcomingRenewals(ctx context.Context, before time.Time) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE status = 'ACTIVE' AND next_renewal_at <= $1
        ORDER BY next_renewal_at ASC`
	rows, err := d.Pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming renewals: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func scanSubscription(row pgx.Row) (models.Subscription, error) {
	var s models.Subscription
	var id pgtype.UUID
	err := row.Scan(
		&id, &s.UserID, &s.Name, &s.AmountCents, &s.Currency, &s.BillingCycle,
		&s.NextRenewalAt, &s.Status, &s.PausedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return models.Subscription{}, err
	}
	s.ID = id.Bytes
	return s, nil
}

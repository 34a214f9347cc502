package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reminder-service/internal/models"
)

// UpsertUserBehavior writes the recomputed aggregate. The fatigue score is
// deliberately left out of the conflict update: it is owned by the
// incremental nudge path and must survive recomputes.
func (d *DB) UpsertUserBehavior(ctx context.Context, b models.UserBehavior) error {
	openRates, err := json.Marshal(b.OpenRates)
	if err != nil {
		return fmt.Errorf("failed to marshal open rates: %w", err)
	}
	clickRates, err := json.Marshal(b.ClickRates)
	if err != nil {
		return fmt.Errorf("failed to marshal click rates: %w", err)
	}
	query := `
        INSERT INTO user_behaviors (
            user_id, open_rates, click_rates, best_engagement_hour,
            avg_response_minutes, preferred_frequency, fatigue_score,
            conversion_rate, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (user_id) DO UPDATE SET
            open_rates = EXCLUDED.open_rates,
            click_rates = EXCLUDED.click_rates,
            best_engagement_hour = EXCLUDED.best_engagement_hour,
            avg_response_minutes = EXCLUDED.avg_response_minutes,
            preferred_frequency = EXCLUDED.preferred_frequency,
            conversion_rate = EXCLUDED.conversion_rate,
            updated_at = EXCLUDED.updated_at`
	_, err = d.Pool.Exec(ctx, query,
		b.UserID, openRates, clickRates, b.BestEngagementHour,
		b.AvgResponseMinutes, b.PreferredFrequency, b.FatigueScore,
		b.ConversionRate, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert user behavior for user %d: %w", b.UserID, err)
	}
	return nil
}

func (d *DB) GetUserBehavior(ctx context.Context, userID int) (models.UserBehavior, error) {
	var b models.UserBehavior
	var openRates, clickRates []byte
	query := `
        SELECT user_id, open_rates, click_rates, best_engagement_hour,
               avg_response_minutes, preferred_frequency, fatigue_score,
               conversion_rate, updated_at
        FROM user_behaviors
        WHERE user_id = $1`
	err := d.Pool.QueryRow(ctx, query, userID).Scan(
		&b.UserID, &openRates, &clickRates, &b.BestEngagementHour,
		&b.AvgResponseMinutes, &b.PreferredFrequency, &b.FatigueScore,
		&b.ConversionRate, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.UserBehavior{}, fmt.Errorf("behavior for user %d: %w", userID, ErrNotFound)
		}
		return models.UserBehavior{}, fmt.Errorf("failed to get behavior for user %d: %w", userID, err)
	}
	if err := json.Unmarshal(openRates, &b.OpenRates); err != nil {
		return models.UserBehavior{}, fmt.Errorf("failed to unmarshal open rates: %w", err)
	}
	if err := json.Unmarshal(clickRates, &b.ClickRates); err != nil {
		return models.UserBehavior{}, fmt.Errorf("failed to unmarshal click rates: %w", err)
	}
	return b, nil
}

// AdjustFatigueScore applies a clamped delta to the fatigue score. The clamp
// happens in SQL so concurrent nudges stay within [0,100]. Inserts the
// default row first if the user has no aggregate yet.
func (d *DB) AdjustFatigueScore(ctx context.Context, userID int, delta float64) error {
	query := `
        INSERT INTO user_behaviors (user_id, open_rates, click_rates, best_engagement_hour,
            avg_response_minutes, preferred_frequency, fatigue_score, conversion_rate, updated_at)
        VALUES ($1, '{}', '{}', 10, 0, 3, LEAST(100, GREATEST(0, $2)), 0, $3)
        ON CONFLICT (user_id) DO UPDATE SET
            fatigue_score = LEAST(100, GREATEST(0, user_behaviors.fatigue_score + $2)),
            updated_at = $3`
	_, err := d.Pool.Exec(ctx, query, userID, delta, time.Now())
	if err != nil {
		return fmt.Errorf("failed to adjust fatigue score for user %d: %w", userID, err)
	}
	return nil
}

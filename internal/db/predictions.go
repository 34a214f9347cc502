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

func (d *DB) CreatePrediction(ctx context.Context, p models.MLPrediction) error {
	query := `
        INSERT INTO ml_predictions (
            id, user_id, predicted_channel, predicted_time, confidence,
            model_version, features, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := d.Pool.Exec(ctx, query,
		p.ID, p.UserID, p.PredictedChannel, p.PredictedTime, p.Confidence,
		p.ModelVersion, []byte(p.Features), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create prediction: %w", err)
	}
	return nil
}

// GetLatestOpenPrediction returns the user's most recent prediction that has
// not yet been matched to an actual send.
func (d *DB) GetLatestOpenPrediction(ctx context.Context, userID int) (models.MLPrediction, error) {
	var p models.MLPrediction
	var id pgtype.UUID
	var features []byte
	query := `
        SELECT id, user_id, predicted_channel, predicted_time, confidence,
               model_version, features, created_at
        FROM ml_predictions
        WHERE user_id = $1 AND actual_time IS NULL
        ORDER BY created_at DESC
        LIMIT 1`
	err := d.Pool.QueryRow(ctx, query, userID).Scan(
		&id, &p.UserID, &p.PredictedChannel, &p.PredictedTime, &p.Confidence,
		&p.ModelVersion, &features, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MLPrediction{}, fmt.Errorf("open prediction for user %d: %w", userID, ErrNotFound)
		}
		return models.MLPrediction{}, fmt.Errorf("failed to get open prediction for user %d: %w", userID, err)
	}
	p.ID = id.Bytes
	p.Features = features
	return p, nil
}

func (d *DB) UpdatePredictionActuals(ctx context.Context, id uuid.UUID, actualChannel models.Channel, actualTime time.Time, wasAccurate bool) error {
	query := `
        UPDATE ml_predictions
        SET actual_channel = $1, actual_time = $2, was_accurate = $3
        WHERE id = $4`
	result, err := d.Pool.Exec(ctx, query, actualChannel, actualTime, wasAccurate, id)
	if err != nil {
		return fmt.Errorf("failed to update prediction actuals: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no prediction updated for id %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountPredictionAccuracy returns (accurate, evaluated) over predictions
// whose actuals have been filled since the given time.
func (d *DB) CountPredictionAccuracy(ctx context.Context, since time.Time) (int, int, error) {
	var accurate, evaluated int
	query := `
        SELECT COUNT(*) FILTER (WHERE was_accurate), COUNT(*)
        FROM ml_predictions
        WHERE actual_time IS NOT NULL AND created_at >= $1`
	if err := d.Pool.QueryRow(ctx, query, since).Scan(&accurate, &evaluated); err != nil {
		return 0, 0, fmt.Errorf("failed to count prediction accuracy: %w", err)
	}
	return accurate, evaluated, nil
}

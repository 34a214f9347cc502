package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reminder-service/internal/models"
)

func (d *DB) GetUser(ctx context.Context, id int) (models.User, error) {
	var u models.User
	query := `
        SELECT id, COALESCE(email, ''), COALESCE(phone, ''),
               COALESCE(telegram_chat_id, 0), COALESCE(timezone, ''), created_at
        FROM users
        WHERE id = $1`
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.Phone, &u.TelegramChatID, &u.Timezone, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return models.User{}, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return u, nil
}

// GetPreferences returns the user's stored preferences, or the defaults if
// no row exists.
func (d *DB) GetPreferences(ctx context.Context, userID int) (models.Preferences, error) {
	var p models.Preferences
	query := `
        SELECT user_id, email_enabled, whatsapp_enabled, sms_enabled, push_enabled,
               quiet_hours_start, quiet_hours_end, max_per_day, updated_at
        FROM user_preferences
        WHERE user_id = $1`
	err := d.Pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.EmailEnabled, &p.WhatsAppEnabled, &p.SMSEnabled, &p.PushEnabled,
		&p.QuietHoursStart, &p.QuietHoursEnd, &p.MaxPerDay, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DefaultPreferences(userID), nil
		}
		return models.Preferences{}, fmt.Errorf("failed to get preferences for user %d: %w", userID, err)
	}
	return p, nil
}

func (d *DB) UpsertPreferences(ctx context.Context, p models.Preferences) error {
	query := `
        INSERT INTO user_preferences (
            user_id, email_enabled, whatsapp_enabled, sms_enabled, push_enabled,
            quiet_hours_start, quiet_hours_end, max_per_day, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (user_id) DO UPDATE SET
            email_enabled = EXCLUDED.email_enabled,
            whatsapp_enabled = EXCLUDED.whatsapp_enabled,
            sms_enabled = EXCLUDED.sms_enabled,
            push_enabled = EXCLUDED.push_enabled,
            quiet_hours_start = EXCLUDED.quiet_hours_start,
            quiet_hours_end = EXCLUDED.quiet_hours_end,
            max_per_day = EXCLUDED.max_per_day,
            updated_at = EXCLUDED.updated_at`
	_, err := d.Pool.Exec(ctx, query,
		p.UserID, p.EmailEnabled, p.WhatsAppEnabled, p.SMSEnabled, p.PushEnabled,
		p.QuietHoursStart, p.QuietHoursEnd, p.MaxPerDay, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert preferences for user %d: %w", p.UserID, err)
	}
	return nil
}

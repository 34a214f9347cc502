package db

import (
	"context"
	"fmt"
	"time"

	"reminder-service/internal/models"
)

func (d *DB) UpsertAnalyticsSnapshot(ctx context.Context, s models.AnalyticsSnapshot) error {
	query := `
        INSERT INTO analytics_snapshots (
            snapshot_date, channel_metrics, total_sent, total_delivered,
            total_opened, total_clicked, total_failed, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (snapshot_date) DO UPDATE SET
            channel_metrics = EXCLUDED.channel_metrics,
            total_sent = EXCLUDED.total_sent,
            total_delivered = EXCLUDED.total_delivered,
            total_opened = EXCLUDED.total_opened,
            total_clicked = EXCLUDED.total_clicked,
            total_failed = EXCLUDED.total_failed`
	_, err := d.Pool.Exec(ctx, query,
		s.SnapshotDate, []byte(s.ChannelMetrics), s.TotalSent, s.TotalDelivered,
		s.TotalOpened, s.TotalClicked, s.TotalFailed, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert analytics snapshot: %w", err)
	}
	return nil
}

// AggregateDailyStats computes per-channel counters over notifications
// created within [dayStart, dayStart+24h).
func (d *DB) AggregateDailyStats(ctx context.Context, dayStart time.Time) ([]models.ChannelDayStat, error) {
	query := `
        SELECT channel,
               COUNT(*) FILTER (WHERE status IN ('SENT', 'DELIVERED', 'OPENED', 'CLICKED')),
               COUNT(*) FILTER (WHERE status IN ('DELIVERED', 'OPENED', 'CLICKED')),
               COUNT(*) FILTER (WHERE status IN ('OPENED', 'CLICKED')),
               COUNT(*) FILTER (WHERE status = 'CLICKED'),
               COUNT(*) FILTER (WHERE status = 'FAILED')
        FROM notifications
        WHERE created_at >= $1 AND created_at < $2
        GROUP BY channel`
	rows, err := d.Pool.Query(ctx, query, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily stats: %w", err)
	}
	defer rows.Close()

	var stats []models.ChannelDayStat
	for rows.Next() {
		var s models.ChannelDayStat
		if err := rows.Scan(&s.Channel, &s.Sent, &s.Delivered, &s.Opened, &s.Clicked, &s.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

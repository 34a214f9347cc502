package models

import (
	"encoding/json"
	"time"
)

// ChannelDayStat is the per-channel slice of one day's delivery counters.
type ChannelDayStat struct {
	Channel   Channel `json:"channel"`
	Sent      int     `json:"sent"`
	Delivered int     `json:"delivered"`
	Opened    int     `json:"opened"`
	Clicked   int     `json:"clicked"`
	Failed    int     `json:"failed"`
}

// AnalyticsSnapshot is one row per calendar day, idempotently upserted.
type AnalyticsSnapshot struct {
	SnapshotDate   time.Time       `json:"snapshot_date"`
	ChannelMetrics json.RawMessage `json:"channel_metrics"`
	TotalSent      int             `json:"total_sent"`
	TotalDelivered int             `json:"total_delivered"`
	TotalOpened    int             `json:"total_opened"`
	TotalClicked   int             `json:"total_clicked"`
	TotalFailed    int             `json:"total_failed"`
	CreatedAt      time.Time       `json:"created_at"`
}

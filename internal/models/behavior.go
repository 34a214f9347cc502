package models

import "time"

// UserBehavior is the per-user aggregate recomputed from the 90-day
// interaction window. FatigueScore is also nudged incrementally between
// recomputes, so the recompute path leaves it untouched.
type UserBehavior struct {
	UserID             int                 `json:"user_id"`
	OpenRates          map[Channel]float64 `json:"open_rates"`
	ClickRates         map[Channel]float64 `json:"click_rates"`
	BestEngagementHour int                 `json:"best_engagement_hour"`
	AvgResponseMinutes float64             `json:"avg_response_minutes"`
	PreferredFrequency int                 `json:"preferred_frequency"` // 1, 3 or 5 per day
	FatigueScore       float64             `json:"fatigue_score"`       // 0..100
	ConversionRate     float64             `json:"conversion_rate"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// DefaultBehavior returns the aggregate used before any history exists.
func DefaultBehavior(userID int) UserBehavior {
	return UserBehavior{
		UserID:             userID,
		OpenRates:          map[Channel]float64{},
		ClickRates:         map[Channel]float64{},
		BestEngagementHour: 10,
		PreferredFrequency: 3,
	}
}

package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

const (
	behaviorWindow = 90 * 24 * time.Hour
	// hours with fewer sends than this are excluded from best-hour
	// selection so a single lucky sample cannot win
	bestHourSampleFloor = 3
	// responses slower than this are treated as non-engagement
	maxResponseWindow = 24 * time.Hour

	fatigueIncrement = 5
	fatigueDecrement = 10
)

// BehaviorStore is the persistence surface BehaviorService needs.
type BehaviorStore interface {
	GetSentNotificationsSince(ctx context.Context, userID int, since time.Time) ([]models.Notification, error)
	GetInteractionsSince(ctx context.Context, userID int, since time.Time) ([]models.Interaction, error)
	UpsertUserBehavior(ctx context.Context, b models.UserBehavior) error
	GetUserBehavior(ctx context.Context, userID int) (models.UserBehavior, error)
	AdjustFatigueScore(ctx context.Context, userID int, delta float64) error
}

// BehaviorService aggregates delivery and engagement history into the
// per-user behavior row.
type BehaviorService struct {
	store  BehaviorStore
	logger *logging.Logger
	now    func() time.Time
}

func NewBehaviorService(store BehaviorStore, logger *logging.Logger) *BehaviorService {
	return &BehaviorService{store: store, logger: logger, now: time.Now}
}

// UpdateUserBehavior recomputes every aggregate field from the 90-day
// window in one pass. The fatigue score is owned by the incremental nudge
// path and is not recomputed here.
func (s *BehaviorService) UpdateUserBehavior(ctx context.Context, userID int) error {
	since := s.now().Add(-behaviorWindow)
	notifs, err := s.store.GetSentNotificationsSince(ctx, userID, since)
	if err != nil {
		return err
	}
	interactions, err := s.store.GetInteractionsSince(ctx, userID, since)
	if err != nil {
		return err
	}

	b := models.DefaultBehavior(userID)

	// index interactions by notification
	opens := map[uuid.UUID]bool{}
	clicks := map[uuid.UUID]bool{}
	firstEngagement := map[uuid.UUID]time.Time{}
	conversions := 0
	for _, in := range interactions {
		switch in.ActionType {
		case models.ActionOpened:
			opens[in.NotificationID] = true
		case models.ActionClicked:
			clicks[in.NotificationID] = true
		case models.ActionConverted:
			conversions++
		}
		if in.ActionType.Engaging() {
			if t, ok := firstEngagement[in.NotificationID]; !ok || in.CreatedAt.Before(t) {
				firstEngagement[in.NotificationID] = in.CreatedAt
			}
		}
	}

	totalByChannel := map[models.Channel]int{}
	opensByChannel := map[models.Channel]int{}
	clicksByChannel := map[models.Channel]int{}
	sentByHour := map[int]int{}
	engagedByHour := map[int]int{}
	byDay := map[string]*dayCount{}
	var responseSum float64
	var responseCount int

	for _, n := range notifs {
		totalByChannel[n.Channel]++
		engaged := opens[n.ID] || clicks[n.ID]
		if opens[n.ID] {
			opensByChannel[n.Channel]++
		}
		if clicks[n.ID] {
			clicksByChannel[n.Channel]++
		}

		if n.SentAt != nil {
			hour := n.SentAt.Hour()
			sentByHour[hour]++
			if engaged {
				engagedByHour[hour]++
			}

			day := n.SentAt.Format("2006-01-02")
			dc, ok := byDay[day]
			if !ok {
				dc = &dayCount{}
				byDay[day] = dc
			}
			dc.sent++
			if engaged {
				dc.engaged++
			}

			if t, ok := firstEngagement[n.ID]; ok {
				delta := t.Sub(*n.SentAt)
				if delta >= 0 && delta <= maxResponseWindow {
					responseSum += delta.Minutes()
					responseCount++
				}
			}
		}
	}

	for ch, total := range totalByChannel {
		b.OpenRates[ch] = float64(opensByChannel[ch]) / float64(total)
		b.ClickRates[ch] = float64(clicksByChannel[ch]) / float64(total)
	}

	b.BestEngagementHour = bestHour(sentByHour, engagedByHour)
	b.PreferredFrequency = preferredFrequency(byDay)
	if responseCount > 0 {
		b.AvgResponseMinutes = responseSum / float64(responseCount)
	}
	if len(notifs) > 0 {
		b.ConversionRate = float64(conversions) / float64(len(notifs))
	}

	if err := s.store.UpsertUserBehavior(ctx, b); err != nil {
		return err
	}
	s.logger.Debugf("Recomputed behavior for user %d over %d notifications", userID, len(notifs))
	return nil
}

// bestHour picks the hour-of-day with the highest engagement rate among
// hours with at least bestHourSampleFloor sends.
func bestHour(sentByHour, engagedByHour map[int]int) int {
	best := 10
	bestRate := -1.0
	for hour := 0; hour < 24; hour++ {
		sent := sentByHour[hour]
		if sent < bestHourSampleFloor {
			continue
		}
		rate := float64(engagedByHour[hour]) / float64(sent)
		if rate > bestRate {
			bestRate = rate
			best = hour
		}
	}
	return best
}

type dayCount struct{ sent, engaged int }

// preferredFrequency picks the daily-frequency bucket (1, 3 or 5) with the
// highest average per-day engagement rate. Ties and empty history default
// to 3.
func preferredFrequency(byDay map[string]*dayCount) int {
	type bucket struct {
		rateSum float64
		days    int
	}
	buckets := map[int]*bucket{1: {}, 3: {}, 5: {}}
	for _, dc := range byDay {
		var key int
		switch {
		case dc.sent <= 1:
			key = 1
		case dc.sent <= 3:
			key = 3
		default:
			key = 5
		}
		buckets[key].rateSum += float64(dc.engaged) / float64(dc.sent)
		buckets[key].days++
	}

	const epsilon = 1e-9
	best := 3
	bestAvg := -1.0
	tied := false
	for _, key := range []int{1, 3, 5} {
		bk := buckets[key]
		if bk.days == 0 {
			continue
		}
		avg := bk.rateSum / float64(bk.days)
		switch {
		case avg > bestAvg+epsilon:
			bestAvg = avg
			best = key
			tied = false
		case avg > bestAvg-epsilon:
			tied = true
		}
	}
	if tied || bestAvg <= 0 {
		return 3
	}
	return best
}

// IncrementFatigueScore nudges fatigue up after non-engagement signals.
// Clamped to 100 in storage.
func (s *BehaviorService) IncrementFatigueScore(ctx context.Context, userID int) error {
	return s.store.AdjustFatigueScore(ctx, userID, fatigueIncrement)
}

// DecreaseFatigueScore nudges fatigue down after engagement. Clamped to 0.
func (s *BehaviorService) DecreaseFatigueScore(ctx context.Context, userID int) error {
	return s.store.AdjustFatigueScore(ctx, userID, -fatigueDecrement)
}

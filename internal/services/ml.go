package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"reminder-service/internal/cache"
	"reminder-service/internal/db"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

const (
	// ModelVersion tags every prediction audit row.
	ModelVersion = "v1.2"

	fatigueThreshold      = 70
	featureCacheTTL       = 5 * time.Minute
	recentEngagementSpan  = 7 * 24 * time.Hour
	defaultQuietStart     = 8
	defaultQuietEnd       = 21
	defaultDailyFrequency = 3
)

// channelPriors are fixed base weights reflecting observed general
// engagement across channels. Slice order is the tie-break order: the first
// maximum wins.
var channelPriors = []struct {
	Channel models.Channel
	Weight  float64
}{
	{models.ChannelWhatsApp, 0.4},
	{models.ChannelEmail, 0.3},
	{models.ChannelPush, 0.25},
	{models.ChannelSMS, 0.2},
}

// fallbackOrder is the deterministic secondary-channel order. Never
// re-scored.
var fallbackOrder = []models.Channel{
	models.ChannelEmail,
	models.ChannelWhatsApp,
	models.ChannelSMS,
	models.ChannelPush,
}

// Features is the per-user snapshot channel scoring works from.
type Features struct {
	BestHour             int                    `json:"best_hour"`
	DayOfWeek            int                    `json:"day_of_week"`
	EngagedByChannel     map[models.Channel]int `json:"engaged_by_channel"`
	RecentEngagementRate float64                `json:"recent_engagement_rate"`
	FatigueScore         float64                `json:"fatigue_score"`
	AvgResponseMinutes   float64                `json:"avg_response_minutes"`
	PreferredFrequency   int                    `json:"preferred_frequency"`
}

// Prediction is the outcome of one channel/time decision.
type Prediction struct {
	Channel    models.Channel
	Time       time.Time
	Confidence float64
	Features   Features
}

// MLStore is the persistence surface MLService needs.
type MLStore interface {
	GetUserBehavior(ctx context.Context, userID int) (models.UserBehavior, error)
	GetSentNotificationsSince(ctx context.Context, userID int, since time.Time) ([]models.Notification, error)
	GetInteractionsSince(ctx context.Context, userID int, since time.Time) ([]models.Interaction, error)
	CountRecentNotifications(ctx context.Context, userID int, since time.Time) (int, error)
	CountEngagementInteractionsSince(ctx context.Context, userID int, since time.Time) (int, error)
	HasOptOutSince(ctx context.Context, userID int, since time.Time) (bool, error)
	GetPreferences(ctx context.Context, userID int) (models.Preferences, error)
	CreatePrediction(ctx context.Context, p models.MLPrediction) error
}

// MLService combines behavior metrics and recent activity into channel
// scores, optimal-time predictions, and the send/no-send gate.
type MLService struct {
	store  MLStore
	logger *logging.Logger

	features *cache.TTLCache[Features]
	fatigue  *cache.TTLCache[float64]
	prefs    *cache.TTLCache[models.Preferences]

	now func() time.Time
}

func NewMLService(store MLStore, logger *logging.Logger) *MLService {
	return &MLService{
		store:    store,
		logger:   logger,
		features: cache.NewTTLCache[Features](featureCacheTTL),
		fatigue:  cache.NewTTLCache[float64](featureCacheTTL),
		prefs:    cache.NewTTLCache[models.Preferences](featureCacheTTL),
		now:      time.Now,
	}
}

// PredictOptimalChannel scores every channel for the user and picks the
// best send time. The prediction audit row is written fire-and-forget; its
// failure never blocks the decision path.
func (s *MLService) PredictOptimalChannel(ctx context.Context, userID int) (Prediction, error) {
	f, err := s.extractFeatures(ctx, userID)
	if err != nil {
		return Prediction{}, err
	}

	bestChannel := channelPriors[0].Channel
	bestScore := -1.0
	for _, prior := range channelPriors {
		score := channelScore(prior.Weight, f.EngagedByChannel[prior.Channel], f.FatigueScore)
		if score > bestScore {
			bestScore = score
			bestChannel = prior.Channel
		}
	}

	prefs, err := s.preferences(ctx, userID)
	if err != nil {
		return Prediction{}, err
	}

	p := Prediction{
		Channel:    bestChannel,
		Time:       s.optimalTime(f.BestHour, prefs),
		Confidence: clamp01(bestScore),
		Features:   f,
	}
	s.auditPrediction(userID, p)
	return p, nil
}

// channelScore blends the fixed prior with observed engagement and damps
// the result by fatigue.
func channelScore(baseWeight float64, engagedCount int, fatigue float64) float64 {
	engagement := float64(engagedCount) / 10
	if engagement > 1 {
		engagement = 1
	}
	damp := fatigue
	if damp > 200 {
		damp = 200
	}
	return (baseWeight*0.3 + engagement*0.7) * (1 - damp/200)
}

// optimalTime clamps the predicted best hour into the user's quiet-hours
// window and rolls to the next day when the hour has already passed.
func (s *MLService) optimalTime(bestHour int, prefs models.Preferences) time.Time {
	start, end := prefs.QuietHoursStart, prefs.QuietHoursEnd
	if start == 0 && end == 0 {
		start, end = defaultQuietStart, defaultQuietEnd
	}

	hour := clampHour(bestHour, start, end)

	now := s.now()
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// clampHour forces hour into the allowed window, handling windows that
// wrap midnight (start > end means hours >= start or <= end are allowed).
func clampHour(hour, start, end int) int {
	if start <= end {
		if hour < start {
			return start
		}
		if hour > end {
			return end
		}
		return hour
	}
	// wrapping window, e.g. 22..6
	if hour >= start || hour <= end {
		return hour
	}
	return start
}

// SendGate is the consolidated send/no-send decision: the fatigue threshold
// and the daily-count limit are enforced here and nowhere else. Returns nil
// when sending is allowed.
func (s *MLService) SendGate(ctx context.Context, userID int) error {
	fatigue, err := s.FatigueScore(ctx, userID)
	if err != nil {
		return err
	}
	if fatigue > fatigueThreshold {
		return fmt.Errorf("user %d fatigue %.0f: %w", userID, fatigue, ErrFatigueSuppressed)
	}

	limit := defaultDailyFrequency
	prefs, err := s.preferences(ctx, userID)
	if err != nil {
		return err
	}
	if prefs.MaxPerDay > 0 {
		limit = prefs.MaxPerDay
	} else if b, err := s.store.GetUserBehavior(ctx, userID); err == nil && b.PreferredFrequency > 0 {
		limit = b.PreferredFrequency
	}

	count, err := s.store.CountRecentNotifications(ctx, userID, s.now().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	if count >= limit {
		return fmt.Errorf("user %d sent %d of %d in 24h: %w", userID, count, limit, ErrDailyLimitReached)
	}
	return nil
}

// ShouldSendNotification reports whether the gate permits a send.
func (s *MLService) ShouldSendNotification(ctx context.Context, userID int) (bool, error) {
	err := s.SendGate(ctx, userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrFatigueSuppressed) || errors.Is(err, ErrDailyLimitReached) {
		return false, nil
	}
	return false, err
}

// SelectChannelWithFallback returns the preferred channel if the user has
// it enabled, else the first enabled channel in the fixed fallback order.
func (s *MLService) SelectChannelWithFallback(ctx context.Context, userID int, preferred models.Channel) (models.Channel, error) {
	prefs, err := s.preferences(ctx, userID)
	if err != nil {
		return "", err
	}
	if prefs.ChannelEnabled(preferred) {
		return preferred, nil
	}
	for _, ch := range fallbackOrder {
		if ch == preferred {
			continue
		}
		if prefs.ChannelEnabled(ch) {
			return ch, nil
		}
	}
	return "", fmt.Errorf("user %d: %w", userID, ErrChannelUnavailable)
}

// FallbackChannels returns the enabled channels in fallback order with the
// excluded channel removed.
func (s *MLService) FallbackChannels(ctx context.Context, userID int, exclude models.Channel) ([]models.Channel, error) {
	prefs, err := s.preferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []models.Channel
	for _, ch := range fallbackOrder {
		if ch == exclude || !prefs.ChannelEnabled(ch) {
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

// FatigueScore computes the user's current fatigue, cached for 5 minutes.
// Tiered penalties for 24h send volume and low interaction rate, plus a
// flat penalty for a trailing-week opt-out, clamped to 100.
func (s *MLService) FatigueScore(ctx context.Context, userID int) (float64, error) {
	key := strconv.Itoa(userID)
	if v, ok := s.fatigue.Get(key); ok {
		return v, nil
	}

	now := s.now()
	count, err := s.store.CountRecentNotifications(ctx, userID, now.Add(-24*time.Hour))
	if err != nil {
		return 0, err
	}

	score := 0.0
	switch {
	case count > 5:
		score += 30
	case count > 3:
		score += 20
	case count > 1:
		score += 10
	}

	if count > 0 {
		engaged, err := s.store.CountEngagementInteractionsSince(ctx, userID, now.Add(-24*time.Hour))
		if err != nil {
			return 0, err
		}
		rate := float64(engaged) / float64(count)
		switch {
		case rate < 0.2:
			score += 30
		case rate < 0.4:
			score += 20
		case rate < 0.6:
			score += 10
		}
	}

	optedOut, err := s.store.HasOptOutSince(ctx, userID, now.Add(-recentEngagementSpan))
	if err != nil {
		return 0, err
	}
	if optedOut {
		score += 40
	}

	if score > 100 {
		score = 100
	}
	s.fatigue.Set(key, score)
	return score, nil
}

// extractFeatures builds the per-user snapshot, cached for 5 minutes.
func (s *MLService) extractFeatures(ctx context.Context, userID int) (Features, error) {
	key := strconv.Itoa(userID)
	if f, ok := s.features.Get(key); ok {
		return f, nil
	}

	now := s.now()
	behavior, err := s.store.GetUserBehavior(ctx, userID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return Features{}, err
		}
		behavior = models.DefaultBehavior(userID)
	}

	fatigue, err := s.FatigueScore(ctx, userID)
	if err != nil {
		return Features{}, err
	}

	f := Features{
		BestHour:           behavior.BestEngagementHour,
		DayOfWeek:          int(now.Weekday()),
		EngagedByChannel:   map[models.Channel]int{},
		FatigueScore:       fatigue,
		AvgResponseMinutes: behavior.AvgResponseMinutes,
		PreferredFrequency: behavior.PreferredFrequency,
	}

	// engaged notification counts over the 90-day window
	notifs, err := s.store.GetSentNotificationsSince(ctx, userID, now.Add(-behaviorWindow))
	if err != nil {
		return Features{}, err
	}
	interactions, err := s.store.GetInteractionsSince(ctx, userID, now.Add(-behaviorWindow))
	if err != nil {
		return Features{}, err
	}
	engaged := map[uuid.UUID]bool{}
	recentCutoff := now.Add(-recentEngagementSpan)
	recentEngaged := 0
	for _, in := range interactions {
		if in.ActionType.Engaging() {
			engaged[in.NotificationID] = true
			if in.CreatedAt.After(recentCutoff) {
				recentEngaged++
			}
		}
	}
	recentSent := 0
	for _, n := range notifs {
		if engaged[n.ID] {
			f.EngagedByChannel[n.Channel]++
		}
		if n.SentAt != nil && n.SentAt.After(recentCutoff) {
			recentSent++
		}
	}
	if recentSent > 0 {
		f.RecentEngagementRate = float64(recentEngaged) / float64(recentSent)
	}

	s.features.Set(key, f)
	return f, nil
}

func (s *MLService) preferences(ctx context.Context, userID int) (models.Preferences, error) {
	key := strconv.Itoa(userID)
	if p, ok := s.prefs.Get(key); ok {
		return p, nil
	}
	p, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return models.Preferences{}, err
	}
	s.prefs.Set(key, p)
	return p, nil
}

// InvalidatePreferences drops the cached preferences after an update.
func (s *MLService) InvalidatePreferences(userID int) {
	s.prefs.Delete(strconv.Itoa(userID))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// auditPrediction persists the prediction record asynchronously. Audit rows
// only feed accuracy measurement, so a write failure is logged and dropped.
func (s *MLService) auditPrediction(userID int, p Prediction) {
	snapshot, err := json.Marshal(p.Features)
	if err != nil {
		s.logger.Errorf("Failed to marshal prediction features: %v", err)
		return
	}
	record := models.MLPrediction{
		ID:               uuid.New(),
		UserID:           userID,
		PredictedChannel: p.Channel,
		PredictedTime:    p.Time,
		Confidence:       p.Confidence,
		ModelVersion:     ModelVersion,
		Features:         snapshot,
		CreatedAt:        s.now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.CreatePrediction(ctx, record); err != nil {
			s.logger.Errorf("Failed to persist prediction for user %d: %v", userID, err)
		}
	}()
}

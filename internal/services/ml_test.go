package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminder-service/internal/db"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

type mockMLStore struct {
	getBehaviorFunc     func(ctx context.Context, userID int) (models.UserBehavior, error)
	getSentFunc         func(ctx context.Context, userID int, since time.Time) ([]models.Notification, error)
	getInteractionsFunc func(ctx context.Context, userID int, since time.Time) ([]models.Interaction, error)
	countRecentFunc     func(ctx context.Context, userID int, since time.Time) (int, error)
	countEngagementFunc func(ctx context.Context, userID int, since time.Time) (int, error)
	hasOptOutFunc       func(ctx context.Context, userID int, since time.Time) (bool, error)
	getPreferencesFunc  func(ctx context.Context, userID int) (models.Preferences, error)

	predictions []models.MLPrediction
}

func (m *mockMLStore) GetUserBehavior(ctx context.Context, userID int) (models.UserBehavior, error) {
	if m.getBehaviorFunc != nil {
		return m.getBehaviorFunc(ctx, userID)
	}
	return models.UserBehavior{}, db.ErrNotFound
}

func (m *mockMLStore) GetSentNotificationsSince(ctx context.Context, userID int, since time.Time) ([]models.Notification, error) {
	if m.getSentFunc != nil {
		return m.getSentFunc(ctx, userID, since)
	}
	return nil, nil
}

func (m *mockMLStore) GetInteractionsSince(ctx context.Context, userID int, since time.Time) ([]models.Interaction, error) {
	if m.getInteractionsFunc != nil {
		return m.getInteractionsFunc(ctx, userID, since)
	}
	return nil, nil
}

func (m *mockMLStore) CountRecentNotifications(ctx context.Context, userID int, since time.Time) (int, error) {
	if m.countRecentFunc != nil {
		return m.countRecentFunc(ctx, userID, since)
	}
	return 0, nil
}

func (m *mockMLStore) CountEngagementInteractionsSince(ctx context.Context, userID int, since time.Time) (int, error) {
	if m.countEngagementFunc != nil {
		return m.countEngagementFunc(ctx, userID, since)
	}
	return 0, nil
}

func (m *mockMLStore) HasOptOutSince(ctx context.Context, userID int, since time.Time) (bool, error) {
	if m.hasOptOutFunc != nil {
		return m.hasOptOutFunc(ctx, userID, since)
	}
	return false, nil
}

func (m *mockMLStore) GetPreferences(ctx context.Context, userID int) (models.Preferences, error) {
	if m.getPreferencesFunc != nil {
		return m.getPreferencesFunc(ctx, userID)
	}
	return models.DefaultPreferences(userID), nil
}

func (m *mockMLStore) CreatePrediction(ctx context.Context, p models.MLPrediction) error {
	m.predictions = append(m.predictions, p)
	return nil
}

func newUUIDs(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func newTestMLService(store *mockMLStore) *MLService {
	svc := NewMLService(store, logging.NewNop())
	// Tuesday 12:00, inside the default quiet-hours window
	svc.now = func() time.Time { return time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestFatigueScoreCleanUser(t *testing.T) {
	svc := newTestMLService(&mockMLStore{})
	score, err := svc.FatigueScore(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestFatigueScoreHighVolumeLowEngagement(t *testing.T) {
	// Six deliveries, each logging a SENT bookkeeping row, and a single open.
	// Both counts are derived from the same event stream so the SENT rows
	// cannot inflate the engagement rate.
	var events []models.Interaction
	for _, id := range newUUIDs(6) {
		events = append(events, models.Interaction{
			ID: uuid.New(), NotificationID: id, UserID: 1, ActionType: models.ActionSent,
		})
	}
	events = append(events, models.Interaction{
		ID: uuid.New(), NotificationID: events[0].NotificationID, UserID: 1, ActionType: models.ActionOpened,
	})

	store := &mockMLStore{
		countRecentFunc: func(context.Context, int, time.Time) (int, error) {
			sent := 0
			for _, e := range events {
				if e.ActionType == models.ActionSent {
					sent++
				}
			}
			return sent, nil
		},
		countEngagementFunc: func(context.Context, int, time.Time) (int, error) {
			engaged := 0
			for _, e := range events {
				switch e.ActionType {
				case models.ActionOpened, models.ActionClicked, models.ActionConverted:
					engaged++
				}
			}
			return engaged, nil
		},
	}
	svc := newTestMLService(store)

	// 6 sends in 24h (+30) with a 1/6 engagement rate (+30)
	score, err := svc.FatigueScore(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 60.0, score)
}

func TestFatigueScoreTiers(t *testing.T) {
	tests := []struct {
		name         string
		sent         int
		interactions int
		want         float64
	}{
		{"single send no tier", 1, 1, 0},
		{"two sends full engagement", 2, 2, 10},
		{"four sends half engagement", 4, 2, 30},
		{"six sends no engagement", 6, 0, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockMLStore{
				countRecentFunc: func(context.Context, int, time.Time) (int, error) {
					return tt.sent, nil
				},
				countEngagementFunc: func(context.Context, int, time.Time) (int, error) {
					return tt.interactions, nil
				},
			}
			svc := newTestMLService(store)
			score, err := svc.FatigueScore(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, score)
		})
	}
}

func TestFatigueScoreOptOutPenaltyAndClamp(t *testing.T) {
	store := &mockMLStore{
		countRecentFunc: func(context.Context, int, time.Time) (int, error) {
			return 6, nil
		},
		countEngagementFunc: func(context.Context, int, time.Time) (int, error) {
			return 0, nil
		},
		hasOptOutFunc: func(context.Context, int, time.Time) (bool, error) {
			return true, nil
		},
	}
	svc := newTestMLService(store)

	// 30 + 30 + 40 clamps to 100
	score, err := svc.FatigueScore(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)
}

func TestFatigueScoreIsCached(t *testing.T) {
	calls := 0
	store := &mockMLStore{
		countRecentFunc: func(context.Context, int, time.Time) (int, error) {
			calls++
			return 0, nil
		},
	}
	svc := newTestMLService(store)

	_, err := svc.FatigueScore(context.Background(), 1)
	require.NoError(t, err)
	_, err = svc.FatigueScore(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestSendGateBlocksFatiguedUser(t *testing.T) {
	store := &mockMLStore{
		countRecentFunc: func(context.Context, int, time.Time) (int, error) {
			return 6, nil
		},
		countEngagementFunc: func(context.Context, int, time.Time) (int, error) {
			return 0, nil
		},
		hasOptOutFunc: func(context.Context, int, time.Time) (bool, error) {
			return true, nil
		},
	}
	svc := newTestMLService(store)

	err := svc.SendGate(context.Background(), 1)
	assert.ErrorIs(t, err, ErrFatigueSuppressed)

	ok, err := svc.ShouldSendNotification(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendGateDailyLimit(t *testing.T) {
	store := &mockMLStore{
		countRecentFunc: func(context.Context, int, time.Time) (int, error) {
			return 3, nil
		},
		countEngagementFunc: func(context.Context, int, time.Time) (int, error) {
			return 3, nil
		},
	}
	svc := newTestMLService(store)

	// default limit of 3 already reached
	err := svc.SendGate(context.Background(), 1)
	assert.ErrorIs(t, err, ErrDailyLimitReached)
}

func TestSendGateHonorsPreferenceOverride(t *testing.T) {
	store := &mockMLStore{
		countRecentFunc: func(context.Context, int, time.Time) (int, error) {
			return 3, nil
		},
		countEngagementFunc: func(context.Context, int, time.Time) (int, error) {
			return 3, nil
		},
		getPreferencesFunc: func(_ context.Context, userID int) (models.Preferences, error) {
			p := models.DefaultPreferences(userID)
			p.MaxPerDay = 5
			return p, nil
		},
	}
	svc := newTestMLService(store)

	assert.NoError(t, svc.SendGate(context.Background(), 1))
}

func TestSendGateAllowsCleanUser(t *testing.T) {
	svc := newTestMLService(&mockMLStore{})
	assert.NoError(t, svc.SendGate(context.Background(), 1))

	ok, err := svc.ShouldSendNotification(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPredictOptimalChannelDefaultsToWhatsApp(t *testing.T) {
	svc := newTestMLService(&mockMLStore{})

	p, err := svc.PredictOptimalChannel(context.Background(), 1)
	require.NoError(t, err)
	// with no engagement history the highest prior wins
	assert.Equal(t, models.ChannelWhatsApp, p.Channel)
	assert.Greater(t, p.Confidence, 0.0)
	assert.LessOrEqual(t, p.Confidence, 1.0)
}

func TestPredictOptimalChannelFollowsEngagement(t *testing.T) {
	userID := 1
	notifID := newUUIDs(12)
	store := &mockMLStore{
		getSentFunc: func(_ context.Context, _ int, _ time.Time) ([]models.Notification, error) {
			var out []models.Notification
			for _, id := range notifID {
				out = append(out, models.Notification{ID: id, Channel: models.ChannelEmail})
			}
			return out, nil
		},
		getInteractionsFunc: func(_ context.Context, _ int, _ time.Time) ([]models.Interaction, error) {
			var out []models.Interaction
			for _, id := range notifID {
				out = append(out, models.Interaction{NotificationID: id, ActionType: models.ActionOpened})
			}
			return out, nil
		},
	}
	svc := newTestMLService(store)

	p, err := svc.PredictOptimalChannel(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelEmail, p.Channel,
		"heavy email engagement outweighs the WhatsApp prior")
}

func TestOptimalTimeClampsIntoQuietHours(t *testing.T) {
	svc := newTestMLService(&mockMLStore{})
	prefs := models.DefaultPreferences(1) // window 8..21

	// best hour 23 clamps to 21; 21:00 today is still ahead of 12:00
	got := svc.optimalTime(23, prefs)
	assert.Equal(t, 21, got.Hour())
	assert.Equal(t, 3, got.Day())

	// best hour 6 clamps to 8; 08:00 already passed, rolls to tomorrow
	got = svc.optimalTime(6, prefs)
	assert.Equal(t, 8, got.Hour())
	assert.Equal(t, 4, got.Day())
}

func TestOptimalTimeWrappingWindow(t *testing.T) {
	svc := newTestMLService(&mockMLStore{})
	prefs := models.DefaultPreferences(1)
	prefs.QuietHoursStart = 22
	prefs.QuietHoursEnd = 6

	// 23 is inside a 22..6 window
	got := svc.optimalTime(23, prefs)
	assert.Equal(t, 23, got.Hour())

	// 12 is outside, forced to the window start
	got = svc.optimalTime(12, prefs)
	assert.Equal(t, 22, got.Hour())
}

func TestSelectChannelWithFallback(t *testing.T) {
	store := &mockMLStore{
		getPreferencesFunc: func(_ context.Context, userID int) (models.Preferences, error) {
			p := models.DefaultPreferences(userID)
			p.WhatsAppEnabled = false
			return p, nil
		},
	}
	svc := newTestMLService(store)

	ch, err := svc.SelectChannelWithFallback(context.Background(), 1, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelEmail, ch, "disabled preferred channel falls back in fixed order")

	ch, err = svc.SelectChannelWithFallback(context.Background(), 1, models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelSMS, ch, "enabled preferred channel is kept")
}

func TestSelectChannelAllDisabled(t *testing.T) {
	store := &mockMLStore{
		getPreferencesFunc: func(_ context.Context, userID int) (models.Preferences, error) {
			return models.Preferences{UserID: userID}, nil
		},
	}
	svc := newTestMLService(store)

	_, err := svc.SelectChannelWithFallback(context.Background(), 1, models.ChannelEmail)
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}

func TestFallbackChannelsExcludeFailedChannel(t *testing.T) {
	store := &mockMLStore{
		getPreferencesFunc: func(_ context.Context, userID int) (models.Preferences, error) {
			p := models.DefaultPreferences(userID)
			p.PushEnabled = false
			return p, nil
		},
	}
	svc := newTestMLService(store)

	out, err := svc.FallbackChannels(context.Background(), 1, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelSMS}, out)
}

func TestInvalidatePreferencesForcesRefetch(t *testing.T) {
	calls := 0
	store := &mockMLStore{
		getPreferencesFunc: func(_ context.Context, userID int) (models.Preferences, error) {
			calls++
			return models.DefaultPreferences(userID), nil
		},
	}
	svc := newTestMLService(store)

	_, err := svc.preferences(context.Background(), 1)
	require.NoError(t, err)
	_, err = svc.preferences(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	svc.InvalidatePreferences(1)
	_, err = svc.preferences(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestChannelScoreDampedByFatigue(t *testing.T) {
	fresh := channelScore(0.4, 5, 0)
	tired := channelScore(0.4, 5, 100)
	assert.Greater(t, fresh, tired)
	assert.InDelta(t, fresh/2, tired, 0.0001, "fatigue 100 halves the score")

	exhausted := channelScore(0.4, 5, 500)
	assert.Zero(t, exhausted, "damping is capped, never negative")
}

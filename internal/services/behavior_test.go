package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

type mockBehaviorStore struct {
	getSentFunc         func(ctx context.Context, userID int, since time.Time) ([]models.Notification, error)
	getInteractionsFunc func(ctx context.Context, userID int, since time.Time) ([]models.Interaction, error)

	upserted       []models.UserBehavior
	fatigueAdjusts []float64
}

func (m *mockBehaviorStore) GetSentNotificationsSince(ctx context.Context, userID int, since time.Time) ([]models.Notification, error) {
	if m.getSentFunc != nil {
		return m.getSentFunc(ctx, userID, since)
	}
	return nil, nil
}

func (m *mockBehaviorStore) GetInteractionsSince(ctx context.Context, userID int, since time.Time) ([]models.Interaction, error) {
	if m.getInteractionsFunc != nil {
		return m.getInteractionsFunc(ctx, userID, since)
	}
	return nil, nil
}

func (m *mockBehaviorStore) UpsertUserBehavior(ctx context.Context, b models.UserBehavior) error {
	m.upserted = append(m.upserted, b)
	return nil
}

func (m *mockBehaviorStore) GetUserBehavior(ctx context.Context, userID int) (models.UserBehavior, error) {
	return models.UserBehavior{}, nil
}

func (m *mockBehaviorStore) AdjustFatigueScore(ctx context.Context, userID int, delta float64) error {
	m.fatigueAdjusts = append(m.fatigueAdjusts, delta)
	return nil
}

func sentNotification(id uuid.UUID, ch models.Channel, sentAt time.Time) models.Notification {
	return models.Notification{ID: id, UserID: 1, Channel: ch, Status: models.StatusSent, SentAt: &sentAt}
}

func TestUpdateUserBehaviorEmptyHistoryUsesDefaults(t *testing.T) {
	store := &mockBehaviorStore{}
	svc := NewBehaviorService(store, logging.NewNop())

	require.NoError(t, svc.UpdateUserBehavior(context.Background(), 1))
	require.Len(t, store.upserted, 1)
	b := store.upserted[0]
	assert.Equal(t, 10, b.BestEngagementHour)
	assert.Equal(t, 3, b.PreferredFrequency)
	assert.Empty(t, b.OpenRates)
}

func TestUpdateUserBehaviorComputesChannelRates(t *testing.T) {
	base := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	ids := newUUIDs(4)
	store := &mockBehaviorStore{
		getSentFunc: func(context.Context, int, time.Time) ([]models.Notification, error) {
			return []models.Notification{
				sentNotification(ids[0], models.ChannelEmail, base),
				sentNotification(ids[1], models.ChannelEmail, base.Add(time.Hour)),
				sentNotification(ids[2], models.ChannelEmail, base.Add(2*time.Hour)),
				sentNotification(ids[3], models.ChannelSMS, base.Add(3*time.Hour)),
			}, nil
		},
		getInteractionsFunc: func(context.Context, int, time.Time) ([]models.Interaction, error) {
			return []models.Interaction{
				{NotificationID: ids[0], ActionType: models.ActionOpened, CreatedAt: base.Add(10 * time.Minute)},
				{NotificationID: ids[1], ActionType: models.ActionOpened, CreatedAt: base.Add(70 * time.Minute)},
				{NotificationID: ids[1], ActionType: models.ActionClicked, CreatedAt: base.Add(75 * time.Minute)},
			}, nil
		},
	}
	svc := NewBehaviorService(store, logging.NewNop())

	require.NoError(t, svc.UpdateUserBehavior(context.Background(), 1))
	require.Len(t, store.upserted, 1)
	b := store.upserted[0]

	assert.InDelta(t, 2.0/3, b.OpenRates[models.ChannelEmail], 0.0001)
	assert.InDelta(t, 1.0/3, b.ClickRates[models.ChannelEmail], 0.0001)
	assert.Zero(t, b.OpenRates[models.ChannelSMS])
}

func TestUpdateUserBehaviorBestHourRequiresSamples(t *testing.T) {
	base := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	var notifs []models.Notification
	var interactions []models.Interaction

	// two sends at 09:00 both engaged, below the sample floor
	for i := 0; i < 2; i++ {
		id := uuid.New()
		notifs = append(notifs, sentNotification(id, models.ChannelEmail, base.AddDate(0, 0, i).Add(9*time.Hour)))
		interactions = append(interactions, models.Interaction{
			NotificationID: id, ActionType: models.ActionOpened,
			CreatedAt: base.AddDate(0, 0, i).Add(9*time.Hour + 5*time.Minute),
		})
	}
	// three sends at 14:00, one engaged, meets the floor
	for i := 0; i < 3; i++ {
		id := uuid.New()
		notifs = append(notifs, sentNotification(id, models.ChannelEmail, base.AddDate(0, 0, i).Add(14*time.Hour)))
		if i == 0 {
			interactions = append(interactions, models.Interaction{
				NotificationID: id, ActionType: models.ActionClicked,
				CreatedAt: base.Add(14*time.Hour + 5*time.Minute),
			})
		}
	}

	store := &mockBehaviorStore{
		getSentFunc: func(context.Context, int, time.Time) ([]models.Notification, error) {
			return notifs, nil
		},
		getInteractionsFunc: func(context.Context, int, time.Time) ([]models.Interaction, error) {
			return interactions, nil
		},
	}
	svc := NewBehaviorService(store, logging.NewNop())

	require.NoError(t, svc.UpdateUserBehavior(context.Background(), 1))
	require.Len(t, store.upserted, 1)
	assert.Equal(t, 14, store.upserted[0].BestEngagementHour,
		"the perfect 09:00 rate is ignored below the sample floor")
}

func TestUpdateUserBehaviorAvgResponseIgnoresSlowReplies(t *testing.T) {
	base := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	ids := newUUIDs(2)
	store := &mockBehaviorStore{
		getSentFunc: func(context.Context, int, time.Time) ([]models.Notification, error) {
			return []models.Notification{
				sentNotification(ids[0], models.ChannelEmail, base),
				sentNotification(ids[1], models.ChannelEmail, base),
			}, nil
		},
		getInteractionsFunc: func(context.Context, int, time.Time) ([]models.Interaction, error) {
			return []models.Interaction{
				// 30 minutes, counted
				{NotificationID: ids[0], ActionType: models.ActionOpened, CreatedAt: base.Add(30 * time.Minute)},
				// 3 days later, outside the response window
				{NotificationID: ids[1], ActionType: models.ActionOpened, CreatedAt: base.Add(72 * time.Hour)},
			}, nil
		},
	}
	svc := NewBehaviorService(store, logging.NewNop())

	require.NoError(t, svc.UpdateUserBehavior(context.Background(), 1))
	require.Len(t, store.upserted, 1)
	assert.InDelta(t, 30, store.upserted[0].AvgResponseMinutes, 0.0001)
}

func TestUpdateUserBehaviorDoesNotTouchFatigue(t *testing.T) {
	store := &mockBehaviorStore{}
	svc := NewBehaviorService(store, logging.NewNop())

	require.NoError(t, svc.UpdateUserBehavior(context.Background(), 1))
	assert.Empty(t, store.fatigueAdjusts)
	assert.Zero(t, store.upserted[0].FatigueScore)
}

func TestPreferredFrequencyBuckets(t *testing.T) {
	// one-send days fully engaged, busy days ignored
	byDay := map[string]*dayCount{
		"2025-05-01": {sent: 1, engaged: 1},
		"2025-05-02": {sent: 1, engaged: 1},
		"2025-05-03": {sent: 5, engaged: 1},
	}
	assert.Equal(t, 1, preferredFrequency(byDay))

	assert.Equal(t, 3, preferredFrequency(map[string]*dayCount{}), "empty history defaults to 3")

	noEngagement := map[string]*dayCount{
		"2025-05-01": {sent: 2, engaged: 0},
	}
	assert.Equal(t, 3, preferredFrequency(noEngagement), "zero engagement everywhere defaults to 3")
}

func TestPreferredFrequencyTieDefaultsToThree(t *testing.T) {
	// fully engaged on both a one-send day and a three-send day: equal
	// averages must not collapse to the tightest bucket
	byDay := map[string]*dayCount{
		"2025-05-01": {sent: 1, engaged: 1},
		"2025-05-02": {sent: 3, engaged: 3},
	}
	assert.Equal(t, 3, preferredFrequency(byDay))

	// a three-way tie resolves the same way
	threeWay := map[string]*dayCount{
		"2025-05-01": {sent: 1, engaged: 1},
		"2025-05-02": {sent: 3, engaged: 3},
		"2025-05-03": {sent: 5, engaged: 5},
	}
	assert.Equal(t, 3, preferredFrequency(threeWay))
}

func TestFatigueNudges(t *testing.T) {
	store := &mockBehaviorStore{}
	svc := NewBehaviorService(store, logging.NewNop())

	require.NoError(t, svc.IncrementFatigueScore(context.Background(), 1))
	require.NoError(t, svc.DecreaseFatigueScore(context.Background(), 1))
	assert.Equal(t, []float64{5, -10}, store.fatigueAdjusts)
}

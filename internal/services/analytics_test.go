package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminder-service/internal/db"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

type mockAnalyticsStore struct {
	aggregateFunc     func(ctx context.Context, dayStart time.Time) ([]models.ChannelDayStat, error)
	countAccuracyFunc func(ctx context.Context, since time.Time) (int, int, error)
	latestOpenFunc    func(ctx context.Context, userID int) (models.MLPrediction, error)

	snapshots []models.AnalyticsSnapshot
	actuals   []struct {
		id       uuid.UUID
		channel  models.Channel
		at       time.Time
		accurate bool
	}
}

func (m *mockAnalyticsStore) AggregateDailyStats(ctx context.Context, dayStart time.Time) ([]models.ChannelDayStat, error) {
	if m.aggregateFunc != nil {
		return m.aggregateFunc(ctx, dayStart)
	}
	return nil, nil
}

func (m *mockAnalyticsStore) UpsertAnalyticsSnapshot(ctx context.Context, s models.AnalyticsSnapshot) error {
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *mockAnalyticsStore) CountPredictionAccuracy(ctx context.Context, since time.Time) (int, int, error) {
	if m.countAccuracyFunc != nil {
		return m.countAccuracyFunc(ctx, since)
	}
	return 0, 0, nil
}

func (m *mockAnalyticsStore) GetLatestOpenPrediction(ctx context.Context, userID int) (models.MLPrediction, error) {
	if m.latestOpenFunc != nil {
		return m.latestOpenFunc(ctx, userID)
	}
	return models.MLPrediction{}, db.ErrNotFound
}

func (m *mockAnalyticsStore) UpdatePredictionActuals(ctx context.Context, id uuid.UUID, actualChannel models.Channel, actualTime time.Time, wasAccurate bool) error {
	m.actuals = append(m.actuals, struct {
		id       uuid.UUID
		channel  models.Channel
		at       time.Time
		accurate bool
	}{id, actualChannel, actualTime, wasAccurate})
	return nil
}

func TestCreateDailySnapshotAggregatesChannels(t *testing.T) {
	store := &mockAnalyticsStore{
		aggregateFunc: func(context.Context, time.Time) ([]models.ChannelDayStat, error) {
			return []models.ChannelDayStat{
				{Channel: models.ChannelEmail, Sent: 10, Delivered: 9, Opened: 4, Clicked: 1, Failed: 1},
				{Channel: models.ChannelWhatsApp, Sent: 5, Delivered: 5, Opened: 3, Clicked: 2},
			}, nil
		},
	}
	svc := NewAnalyticsService(store, logging.NewNop())

	day := time.Date(2025, 6, 2, 17, 30, 0, 0, time.UTC)
	require.NoError(t, svc.CreateDailySnapshot(context.Background(), day))

	require.Len(t, store.snapshots, 1)
	snap := store.snapshots[0]
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), snap.SnapshotDate,
		"snapshot keys on the day start regardless of call time")
	assert.Equal(t, 15, snap.TotalSent)
	assert.Equal(t, 14, snap.TotalDelivered)
	assert.Equal(t, 7, snap.TotalOpened)
	assert.Equal(t, 3, snap.TotalClicked)
	assert.Equal(t, 1, snap.TotalFailed)

	var perChannel map[models.Channel]models.ChannelDayStat
	require.NoError(t, json.Unmarshal(snap.ChannelMetrics, &perChannel))
	assert.Equal(t, 10, perChannel[models.ChannelEmail].Sent)
	assert.Equal(t, 5, perChannel[models.ChannelWhatsApp].Sent)
}

func TestModelAccuracy(t *testing.T) {
	store := &mockAnalyticsStore{
		countAccuracyFunc: func(context.Context, time.Time) (int, int, error) {
			return 3, 4, nil
		},
	}
	svc := NewAnalyticsService(store, logging.NewNop())

	acc, err := svc.ModelAccuracy(context.Background(), time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 0.75, acc)
}

func TestModelAccuracyNoEvaluatedPredictions(t *testing.T) {
	svc := NewAnalyticsService(&mockAnalyticsStore{}, logging.NewNop())
	acc, err := svc.ModelAccuracy(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, acc)
}

func TestRecordActualSendMatchesWithinWindow(t *testing.T) {
	predID := uuid.New()
	predicted := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	store := &mockAnalyticsStore{
		latestOpenFunc: func(context.Context, int) (models.MLPrediction, error) {
			return models.MLPrediction{
				ID:               predID,
				UserID:           1,
				PredictedChannel: models.ChannelEmail,
				PredictedTime:    predicted,
			}, nil
		},
	}
	svc := NewAnalyticsService(store, logging.NewNop())

	// same channel, 20 minutes late: accurate
	require.NoError(t, svc.RecordActualSend(context.Background(), 1, models.ChannelEmail, predicted.Add(20*time.Minute)))
	require.Len(t, store.actuals, 1)
	assert.Equal(t, predID, store.actuals[0].id)
	assert.True(t, store.actuals[0].accurate)

	// same channel, 31 minutes early: not accurate
	require.NoError(t, svc.RecordActualSend(context.Background(), 1, models.ChannelEmail, predicted.Add(-31*time.Minute)))
	assert.False(t, store.actuals[1].accurate)

	// different channel inside the window: not accurate
	require.NoError(t, svc.RecordActualSend(context.Background(), 1, models.ChannelSMS, predicted))
	assert.False(t, store.actuals[2].accurate)
}

func TestRecordActualSendNoOpenPrediction(t *testing.T) {
	store := &mockAnalyticsStore{}
	svc := NewAnalyticsService(store, logging.NewNop())

	err := svc.RecordActualSend(context.Background(), 1, models.ChannelEmail, time.Now())
	assert.NoError(t, err, "sends without a pending prediction are not an error")
	assert.Empty(t, store.actuals)
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"reminder-service/internal/db"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

// predictionMatchWindow is the slack allowed between predicted and actual
// send time for a prediction to count as accurate.
const predictionMatchWindow = 30 * time.Minute

// AnalyticsStore is the persistence surface AnalyticsService needs.
type AnalyticsStore interface {
	AggregateDailyStats(ctx context.Context, dayStart time.Time) ([]models.ChannelDayStat, error)
	UpsertAnalyticsSnapshot(ctx context.Context, s models.AnalyticsSnapshot) error
	CountPredictionAccuracy(ctx context.Context, since time.Time) (int, int, error)
	GetLatestOpenPrediction(ctx context.Context, userID int) (models.MLPrediction, error)
	UpdatePredictionActuals(ctx context.Context, id uuid.UUID, actualChannel models.Channel, actualTime time.Time, wasAccurate bool) error
}

// AnalyticsService builds the daily snapshots and measures prediction
// accuracy.
type AnalyticsService struct {
	store  AnalyticsStore
	logger *logging.Logger
	now    func() time.Time
}

func NewAnalyticsService(store AnalyticsStore, logger *logging.Logger) *AnalyticsService {
	return &AnalyticsService{store: store, logger: logger, now: time.Now}
}

// CreateDailySnapshot aggregates one calendar day into the snapshot row.
// Idempotent: rerunning for the same day overwrites.
func (s *AnalyticsService) CreateDailySnapshot(ctx context.Context, day time.Time) error {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	stats, err := s.store.AggregateDailyStats(ctx, dayStart)
	if err != nil {
		return err
	}

	snapshot := models.AnalyticsSnapshot{SnapshotDate: dayStart}
	perChannel := map[models.Channel]models.ChannelDayStat{}
	for _, st := range stats {
		perChannel[st.Channel] = st
		snapshot.TotalSent += st.Sent
		snapshot.TotalDelivered += st.Delivered
		snapshot.TotalOpened += st.Opened
		snapshot.TotalClicked += st.Clicked
		snapshot.TotalFailed += st.Failed
	}
	metrics, err := json.Marshal(perChannel)
	if err != nil {
		return err
	}
	snapshot.ChannelMetrics = metrics

	if err := s.store.UpsertAnalyticsSnapshot(ctx, snapshot); err != nil {
		return err
	}
	s.logger.Infof("Snapshot for %s: %d sent, %d failed", dayStart.Format("2006-01-02"), snapshot.TotalSent, snapshot.TotalFailed)
	return nil
}

// ModelAccuracy returns the fraction of evaluated predictions marked
// accurate since the given time, or 0 when none have been evaluated.
func (s *AnalyticsService) ModelAccuracy(ctx context.Context, since time.Time) (float64, error) {
	accurate, evaluated, err := s.store.CountPredictionAccuracy(ctx, since)
	if err != nil {
		return 0, err
	}
	if evaluated == 0 {
		return 0, nil
	}
	return float64(accurate) / float64(evaluated), nil
}

// RecordActualSend fills the actuals on the user's latest open prediction.
// A prediction matched when the channel is the same and the send landed
// within the 30-minute window of the predicted time.
func (s *AnalyticsService) RecordActualSend(ctx context.Context, userID int, channel models.Channel, at time.Time) error {
	p, err := s.store.GetLatestOpenPrediction(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		return err
	}

	drift := at.Sub(p.PredictedTime)
	if drift < 0 {
		drift = -drift
	}
	accurate := p.PredictedChannel == channel && drift <= predictionMatchWindow
	return s.store.UpdatePredictionActuals(ctx, p.ID, channel, at, accurate)
}

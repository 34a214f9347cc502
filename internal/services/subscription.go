package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

// SubscriptionStore is the persistence surface SubscriptionService needs.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, s models.Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (models.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus, pausedAt *time.Time) error
}

// SubscriptionService manages the reminder-eligible subscriptions. State
// conflicts are rejected before any write is issued.
type SubscriptionService struct {
	store  SubscriptionStore
	logger *logging.Logger
	now    func() time.Time
}

func NewSubscriptionService(store SubscriptionStore, logger *logging.Logger) *SubscriptionService {
	return &SubscriptionService{store: store, logger: logger, now: time.Now}
}

func (s *SubscriptionService) Create(ctx context.Context, sub models.Subscription) (models.Subscription, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := s.now()
	sub.Status = models.SubscriptionActive
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return models.Subscription{}, err
	}
	s.logger.Infof("Created subscription %s for user %d", sub.ID, sub.UserID)
	return sub, nil
}

// Pause suspends renewal reminders for a subscription. An already-paused
// subscription is rejected with ErrAlreadyPaused and issues no writes.
func (s *SubscriptionService) Pause(ctx context.Context, id uuid.UUID) error {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	switch sub.Status {
	case models.SubscriptionPaused:
		return fmt.Errorf("subscription %s: %w", id, ErrAlreadyPaused)
	case models.SubscriptionCancelled:
		return fmt.Errorf("subscription %s: %w", id, ErrSubscriptionClosed)
	}

	pausedAt := s.now()
	if err := s.store.UpdateSubscriptionStatus(ctx, id, models.SubscriptionPaused, &pausedAt); err != nil {
		return err
	}
	s.logger.Infof("Paused subscription %s", id)
	return nil
}

// Resume reactivates a paused subscription. An already-active subscription
// is rejected with ErrAlreadyActive and issues no writes.
func (s *SubscriptionService) Resume(ctx context.Context, id uuid.UUID) error {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	switch sub.Status {
	case models.SubscriptionActive:
		return fmt.Errorf("subscription %s: %w", id, ErrAlreadyActive)
	case models.SubscriptionCancelled:
		return fmt.Errorf("subscription %s: %w", id, ErrSubscriptionClosed)
	}

	if err := s.store.UpdateSubscriptionStatus(ctx, id, models.SubscriptionActive, nil); err != nil {
		return err
	}
	s.logger.Infof("Resumed subscription %s", id)
	return nil
}

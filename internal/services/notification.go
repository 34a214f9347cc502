package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reminder-service/internal/logging"
	"reminder-service/internal/models"
	"reminder-service/internal/providers"
)

// NotificationStore is the persistence surface NotificationService needs.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n models.Notification) error
	GetNotification(ctx context.Context, id uuid.UUID) (models.Notification, error)
	UpdateNotificationStatus(ctx context.Context, id uuid.UUID, status models.NotificationStatus, lastError string) error
	CreateInteraction(ctx context.Context, in models.Interaction) error
	GetUser(ctx context.Context, id int) (models.User, error)
}

// StatusBroadcaster pushes status changes to connected clients. Failures
// are the broadcaster's problem; the send path never waits on it.
type StatusBroadcaster interface {
	BroadcastStatus(userID int, notifID uuid.UUID, channel models.Channel, status models.NotificationStatus)
}

// NotificationService persists notification records and performs the actual
// per-channel send.
type NotificationService struct {
	store       NotificationStore
	senders     map[models.Channel]providers.Sender
	broadcaster StatusBroadcaster
	logger      *logging.Logger
	now         func() time.Time
}

func NewNotificationService(store NotificationStore, senders map[models.Channel]providers.Sender, broadcaster StatusBroadcaster, logger *logging.Logger) *NotificationService {
	return &NotificationService{
		store:       store,
		senders:     senders,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// Create persists a SCHEDULED notification, filling identity and timestamps.
func (s *NotificationService) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	now := s.now()
	n.Status = models.StatusScheduled
	n.CreatedAt = now
	n.UpdatedAt = now
	if n.ScheduledAt.IsZero() {
		n.ScheduledAt = now
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return models.Notification{}, err
	}
	s.logger.Infof("Created notification %s for user %d via %s at %s",
		n.ID, n.UserID, n.Channel, n.ScheduledAt.Format(time.RFC3339))
	return n, nil
}

// Send transitions the notification to SENDING, dispatches it through the
// channel sender, and finalizes the status. A SENT interaction is recorded
// only on success.
func (s *NotificationService) Send(ctx context.Context, id uuid.UUID) error {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	switch n.Status {
	case models.StatusCancelled:
		return fmt.Errorf("notification %s: %w", id, ErrAlreadyCancelled)
	case models.StatusScheduled, models.StatusFailed:
		// sendable
	default:
		return fmt.Errorf("notification %s has status %s: %w", id, n.Status, ErrAlreadySent)
	}

	if err := s.store.UpdateNotificationStatus(ctx, id, models.StatusSending, ""); err != nil {
		return err
	}

	sendErr := s.dispatch(ctx, n)
	if sendErr != nil {
		s.logger.Errorf("Dispatch failed via %s for notification %s: %v", n.Channel, id, sendErr)
		if err := s.store.UpdateNotificationStatus(ctx, id, models.StatusFailed, sendErr.Error()); err != nil {
			s.logger.Errorf("Failed to record FAILED status for %s: %v", id, err)
		}
		s.broadcast(n, models.StatusFailed)
		return sendErr
	}

	if err := s.store.UpdateNotificationStatus(ctx, id, models.StatusSent, ""); err != nil {
		return err
	}
	if err := s.store.CreateInteraction(ctx, models.Interaction{
		ID:             uuid.New(),
		NotificationID: id,
		UserID:         n.UserID,
		ActionType:     models.ActionSent,
		CreatedAt:      s.now(),
	}); err != nil {
		// analytics failure only, the send itself succeeded
		s.logger.Errorf("Failed to record SENT interaction for %s: %v", id, err)
	}
	s.broadcast(n, models.StatusSent)
	s.logger.Infof("Notification %s sent via %s", id, n.Channel)
	return nil
}

func (s *NotificationService) dispatch(ctx context.Context, n models.Notification) error {
	sender, ok := s.senders[n.Channel]
	if !ok {
		return fmt.Errorf("no sender registered for channel %s", n.Channel)
	}
	user, err := s.store.GetUser(ctx, n.UserID)
	if err != nil {
		return err
	}
	return sender.Send(ctx, user, n)
}

// RecordInteraction appends an interaction and advances the notification
// status for delivery-progress actions. Status only moves forward: a late
// DELIVERED event never regresses a CLICKED notification.
func (s *NotificationService) RecordInteraction(ctx context.Context, in models.Interaction) error {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = s.now()
	}
	if err := s.store.CreateInteraction(ctx, in); err != nil {
		return err
	}

	next := in.ActionType.StatusFor()
	if next == "" {
		return nil
	}
	n, err := s.store.GetNotification(ctx, in.NotificationID)
	if err != nil {
		return err
	}
	// Progress actions only advance notifications that actually went out.
	// FAILED shares a rank with SENT, so without this guard a late
	// delivery webhook would promote a failed notification.
	switch n.Status {
	case models.StatusSent, models.StatusDelivered, models.StatusOpened, models.StatusClicked:
	default:
		return nil
	}
	if next.Rank() <= n.Status.Rank() {
		return nil
	}
	if err := s.store.UpdateNotificationStatus(ctx, in.NotificationID, next, ""); err != nil {
		return err
	}
	s.broadcast(n, next)
	return nil
}

// Cancel marks a notification CANCELLED. Only reachable before SENT.
func (s *NotificationService) Cancel(ctx context.Context, id uuid.UUID) error {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.Status != models.StatusScheduled && n.Status != models.StatusFailed {
		return fmt.Errorf("notification %s has status %s: %w", id, n.Status, ErrAlreadySent)
	}
	return s.store.UpdateNotificationStatus(ctx, id, models.StatusCancelled, "")
}

func (s *NotificationService) broadcast(n models.Notification, status models.NotificationStatus) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastStatus(n.UserID, n.ID, n.Channel, status)
}

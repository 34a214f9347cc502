package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

// renewalReminderLead is how far ahead of a renewal the daily pass creates
// a reminder.
const renewalReminderLead = 3 * 24 * time.Hour

// OrchestratorStore is the persistence surface the orchestrator needs
// beyond what the per-concern services already cover.
type OrchestratorStore interface {
	GetDueNotifications(ctx context.Context, before time.Time, limit int) ([]models.Notification, error)
	GetNotification(ctx context.Context, id uuid.UUID) (models.Notification, error)
	GetUpcomingRenewals(ctx context.Context, before time.Time) ([]models.Subscription, error)
}

// ReminderRequest is the caller-facing shape for creating a reminder. A nil
// Channel or ScheduledAt delegates that decision to the ML layer.
type ReminderRequest struct {
	UserID      int
	Type        string
	Subject     string
	Content     string
	Channel     *models.Channel
	ScheduledAt *time.Time
	Metadata    models.ReminderMeta
}

// Orchestrator is the top-level coordinator: reminder creation through the
// ML gate, sends with one-hop channel fallback, scheduled batches, and
// interaction feedback into the behavior model.
type Orchestrator struct {
	store         OrchestratorStore
	notifications *NotificationService
	ml            *MLService
	behavior      *BehaviorService
	analytics     *AnalyticsService
	logger        *logging.Logger
	now           func() time.Time
}

func NewOrchestrator(store OrchestratorStore, notifications *NotificationService, ml *MLService, behavior *BehaviorService, analytics *AnalyticsService, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		store:         store,
		notifications: notifications,
		ml:            ml,
		behavior:      behavior,
		analytics:     analytics,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateIntelligentReminder creates a reminder for the user, refusing when
// the send gate disallows it. Explicit channel/time from the caller are
// honored; otherwise the ML layer decides both.
func (o *Orchestrator) CreateIntelligentReminder(ctx context.Context, req ReminderRequest) (models.Notification, error) {
	if err := o.ml.SendGate(ctx, req.UserID); err != nil {
		return models.Notification{}, err
	}

	n := models.Notification{
		UserID:   req.UserID,
		Type:     req.Type,
		Subject:  req.Subject,
		Content:  req.Content,
		Metadata: req.Metadata,
	}

	if req.Channel != nil {
		n.Channel = *req.Channel
	}
	if req.ScheduledAt != nil {
		n.ScheduledAt = *req.ScheduledAt
	}
	if req.Channel == nil || req.ScheduledAt == nil {
		p, err := o.ml.PredictOptimalChannel(ctx, req.UserID)
		if err != nil {
			return models.Notification{}, err
		}
		if req.Channel == nil {
			ch, err := o.ml.SelectChannelWithFallback(ctx, req.UserID, p.Channel)
			if err != nil {
				return models.Notification{}, err
			}
			n.Channel = ch
		}
		if req.ScheduledAt == nil {
			n.ScheduledAt = p.Time
		}
	}

	return o.notifications.Create(ctx, n)
}

// SendWithFallback attempts the primary send; on failure it creates one new
// notification on the next fallback channel, back-referencing the original,
// and attempts exactly that one. No further cascading.
func (o *Orchestrator) SendWithFallback(ctx context.Context, id uuid.UUID) error {
	n, err := o.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}

	sendErr := o.notifications.Send(ctx, id)
	if sendErr == nil {
		o.recordActual(n.UserID, n.Channel)
		return nil
	}

	fallbacks, err := o.ml.FallbackChannels(ctx, n.UserID, n.Channel)
	if err != nil || len(fallbacks) == 0 {
		return sendErr
	}
	fb := fallbacks[0]

	o.logger.Warnf("Primary send via %s failed for %s, falling back to %s: %v", n.Channel, id, fb, sendErr)

	meta := n.Metadata
	meta.OriginalNotificationID = n.ID.String()
	meta.IsFallback = true
	fallback, err := o.notifications.Create(ctx, models.Notification{
		UserID:      n.UserID,
		Channel:     fb,
		Type:        n.Type,
		Subject:     n.Subject,
		Content:     n.Content,
		Metadata:    meta,
		ScheduledAt: o.now(),
	})
	if err != nil {
		return fmt.Errorf("primary send failed (%v); fallback create failed: %w", sendErr, err)
	}

	if err := o.notifications.Send(ctx, fallback.ID); err != nil {
		return fmt.Errorf("primary send failed (%v); fallback via %s failed: %w", sendErr, fb, err)
	}
	o.recordActual(n.UserID, fb)
	return nil
}

// ProcessScheduledNotifications pulls due SCHEDULED notifications oldest
// first and attempts each independently. One notification's failure never
// aborts the batch; the success count is returned and failures are counted
// separately.
func (o *Orchestrator) ProcessScheduledNotifications(ctx context.Context, limit int) (int, error) {
	due, err := o.store.GetDueNotifications(ctx, o.now(), limit)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	sent, failed := 0, 0
	for _, n := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := o.SendWithFallback(ctx, n.ID); err != nil {
			failed++
			o.logger.Errorf("Failed to process notification %s: %v", n.ID, err)
			continue
		}
		sent++
	}
	o.logger.Infof("Processed %d due notifications: %d sent, %d failed", len(due), sent, failed)
	return sent, nil
}

// HandleInteraction records the event, recomputes the user's behavior
// aggregate, and nudges the fatigue score. Recompute failures are logged,
// never surfaced: the interaction row is already durable.
func (o *Orchestrator) HandleInteraction(ctx context.Context, in models.Interaction) error {
	if err := o.notifications.RecordInteraction(ctx, in); err != nil {
		return err
	}

	if err := o.behavior.UpdateUserBehavior(ctx, in.UserID); err != nil {
		o.logger.Errorf("Behavior recompute failed for user %d: %v", in.UserID, err)
	}

	switch in.ActionType {
	case models.ActionOpened, models.ActionClicked:
		if err := o.behavior.DecreaseFatigueScore(ctx, in.UserID); err != nil {
			o.logger.Errorf("Fatigue decrease failed for user %d: %v", in.UserID, err)
		}
	case models.ActionDismissed, models.ActionOptedOut:
		if err := o.behavior.IncrementFatigueScore(ctx, in.UserID); err != nil {
			o.logger.Errorf("Fatigue increase failed for user %d: %v", in.UserID, err)
		}
	}
	return nil
}

// CreateRenewalReminders creates a reminder for every subscription renewing
// within the lead window. Gate refusals are expected and skipped.
func (o *Orchestrator) CreateRenewalReminders(ctx context.Context) (int, error) {
	subs, err := o.store.GetUpcomingRenewals(ctx, o.now().Add(renewalReminderLead))
	if err != nil {
		return 0, err
	}

	created := 0
	for _, sub := range subs {
		_, err := o.CreateIntelligentReminder(ctx, ReminderRequest{
			UserID:  sub.UserID,
			Type:    "subscription_renewal",
			Subject: fmt.Sprintf("%s renews soon", sub.Name),
			Content: fmt.Sprintf("Your %s subscription renews on %s.", sub.Name, sub.NextRenewalAt.Format("Jan 2")),
			Metadata: models.ReminderMeta{
				SubscriptionID: sub.ID.String(),
			},
		})
		if err != nil {
			if errors.Is(err, ErrFatigueSuppressed) || errors.Is(err, ErrDailyLimitReached) {
				o.logger.Debugf("Skipping renewal reminder for user %d: %v", sub.UserID, err)
				continue
			}
			o.logger.Errorf("Failed to create renewal reminder for subscription %s: %v", sub.ID, err)
			continue
		}
		created++
	}
	return created, nil
}

// recordActual matches the send against the latest open prediction for
// accuracy measurement. Fire-and-forget relative to the send path.
func (o *Orchestrator) recordActual(userID int, channel models.Channel) {
	if o.analytics == nil {
		return
	}
	at := o.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.analytics.RecordActualSend(ctx, userID, channel, at); err != nil {
			o.logger.Debugf("Prediction actuals not recorded for user %d: %v", userID, err)
		}
	}()
}

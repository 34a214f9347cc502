package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionType classifies an interaction event.
type ActionType string

const (
	ActionSent      ActionType = "SENT"
	ActionDelivered ActionType = "DELIVERED"
	ActionOpened    ActionType = "OPENED"
	ActionClicked   ActionType = "CLICKED"
	ActionDismissed ActionType = "DISMISSED"
	ActionConverted ActionType = "CONVERTED"
	ActionOptedOut  ActionType = "OPTED_OUT"
)

// Engaging reports whether the action counts as user engagement.
func (a ActionType) Engaging() bool {
	return a == ActionOpened || a == ActionClicked
}

// StatusFor maps delivery-progress actions to the notification status they
// advance. Other actions return an empty status.
func (a ActionType) StatusFor() NotificationStatus {
	switch a {
	case ActionDelivered:
		return StatusDelivered
	case ActionOpened:
		return StatusOpened
	case ActionClicked:
		return StatusClicked
	}
	return ""
}

// Interaction is an immutable event tied to a notification. Append-only.
type Interaction struct {
	ID             uuid.UUID  `json:"id"`
	NotificationID uuid.UUID  `json:"notification_id"`
	UserID         int        `json:"user_id"`
	ActionType     ActionType `json:"action_type"`
	CreatedAt      time.Time  `json:"created_at"`
}

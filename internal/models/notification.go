package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a delivery medium for a notification.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelSMS      Channel = "SMS"
	ChannelPush     Channel = "PUSH"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelEmail, ChannelWhatsApp, ChannelSMS, ChannelPush}

// NotificationStatus is the lifecycle state of a notification.
type NotificationStatus string

const (
	StatusScheduled NotificationStatus = "SCHEDULED"
	StatusSending   NotificationStatus = "SENDING"
	StatusSent      NotificationStatus = "SENT"
	StatusFailed    NotificationStatus = "FAILED"
	StatusDelivered NotificationStatus = "DELIVERED"
	StatusOpened    NotificationStatus = "OPENED"
	StatusClicked   NotificationStatus = "CLICKED"
	StatusCancelled NotificationStatus = "CANCELLED"
)

// statusRank orders the forward-only part of the lifecycle. CANCELLED is
// handled separately since it is only reachable before SENT.
var statusRank = map[NotificationStatus]int{
	StatusScheduled: 0,
	StatusSending:   1,
	StatusFailed:    2,
	StatusSent:      2,
	StatusDelivered: 3,
	StatusOpened:    4,
	StatusClicked:   5,
}

// Rank returns the position of s in the status ladder.
func (s NotificationStatus) Rank() int {
	return statusRank[s]
}

// ReminderMeta carries the structured metadata attached to a notification.
type ReminderMeta struct {
	SubscriptionID         string            `json:"subscription_id,omitempty"`
	OriginalNotificationID string            `json:"original_notification_id,omitempty"`
	IsFallback             bool              `json:"is_fallback,omitempty"`
	TemplateName           string            `json:"template_name,omitempty"`
	Phone                  string            `json:"phone,omitempty"`
	Email                  string            `json:"email,omitempty"`
	Extra                  map[string]string `json:"extra,omitempty"`
}

// Notification is one scheduled or delivered message to a user. Rows are
// never deleted, only status-transitioned.
type Notification struct {
	ID          uuid.UUID          `json:"id"`
	UserID      int                `json:"user_id"`
	Channel     Channel            `json:"channel"`
	Type        string             `json:"type"`
	Subject     string             `json:"subject,omitempty"`
	Content     string             `json:"content,omitempty"`
	Metadata    ReminderMeta       `json:"metadata,omitempty"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	SentAt      *time.Time         `json:"sent_at,omitempty"`
	Status      NotificationStatus `json:"status"`
	LastError   string             `json:"last_error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

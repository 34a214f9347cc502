package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the lifecycle state of a tracked subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionPaused    SubscriptionStatus = "PAUSED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// Subscription is a recurring charge the service sends renewal reminders
// for. Only ACTIVE subscriptions are reminder-eligible.
type Subscription struct {
	ID            uuid.UUID          `json:"id"`
	UserID        int                `json:"user_id"`
	Name          string             `json:"name"`
	AmountCents   int64              `json:"amount_cents"`
	Currency      string             `json:"currency"`
	BillingCycle  string             `json:"billing_cycle"`
	NextRenewalAt time.Time          `json:"next_renewal_at"`
	Status        SubscriptionStatus `json:"status"`
	PausedAt      *time.Time         `json:"paused_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

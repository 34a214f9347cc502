package models

import "encoding/json"

// WebhookEvent is the inbound provider event shape. The provider pushes
// message-status and inbound-message events with at least these fields.
type WebhookEvent struct {
	Event     string          `json:"event" binding:"required"`
	BotID     string          `json:"bot_id"`
	ContactID string          `json:"contact_id"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

package models

import "time"

// User holds the delivery addresses a channel sender can resolve.
type User struct {
	ID             int       `json:"id"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	Timezone       string    `json:"timezone,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Preferences is the per-user notification configuration. MaxPerDay of 0
// means "use the preferred frequency from the behavior aggregate".
type Preferences struct {
	UserID          int       `json:"user_id"`
	EmailEnabled    bool      `json:"email_enabled"`
	WhatsAppEnabled bool      `json:"whatsapp_enabled"`
	SMSEnabled      bool      `json:"sms_enabled"`
	PushEnabled     bool      `json:"push_enabled"`
	QuietHoursStart int       `json:"quiet_hours_start"`
	QuietHoursEnd   int       `json:"quiet_hours_end"`
	MaxPerDay       int       `json:"max_per_day"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultPreferences is used when a user has no stored preferences row:
// every channel enabled, quiet hours 08:00-21:00, daily cap from behavior.
func DefaultPreferences(userID int) Preferences {
	return Preferences{
		UserID:          userID,
		EmailEnabled:    true,
		WhatsAppEnabled: true,
		SMSEnabled:      true,
		PushEnabled:     true,
		QuietHoursStart: 8,
		QuietHoursEnd:   21,
	}
}

// ChannelEnabled reports whether the user has the channel switched on.
func (p Preferences) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelWhatsApp:
		return p.WhatsAppEnabled
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelPush:
		return p.PushEnabled
	}
	return false
}

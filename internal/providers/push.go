package providers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

// PushSender delivers push notifications to the user's Telegram chat.
type PushSender struct {
	bot    *bot.Bot
	logger *logging.Logger
}

func NewPushSender(token string, logger *logging.Logger) (*PushSender, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize push bot: %w", err)
	}
	return &PushSender{bot: b, logger: logger}, nil
}

func (s *PushSender) Send(ctx context.Context, user models.User, notif models.Notification) error {
	if user.TelegramChatID == 0 {
		return fmt.Errorf("user %d has no push chat id: %w", user.ID, ErrNoAddress)
	}

	text := notif.Content
	if notif.Subject != "" {
		text = fmt.Sprintf("*%s*\n%s", notif.Subject, notif.Content)
	}
	params := &bot.SendMessageParams{
		ChatID:    user.TelegramChatID,
		Text:      text,
		ParseMode: "Markdown",
	}
	if _, err := s.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send push to chat_id %d: %w", user.TelegramChatID, err)
	}
	s.logger.Debugf("Push sent to chat %d for notification %s", user.TelegramChatID, notif.ID)
	return nil
}

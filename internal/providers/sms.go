package providers

import (
	"context"
	"fmt"

	"reminder-service/internal/config"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
	"reminder-service/pkg/sms"
)

// SMSSender delivers notifications through Twilio.
type SMSSender struct {
	cfg    config.Config
	logger *logging.Logger
}

func NewSMSSender(cfg config.Config, logger *logging.Logger) *SMSSender {
	return &SMSSender{cfg: cfg, logger: logger}
}

func (s *SMSSender) Send(ctx context.Context, user models.User, notif models.Notification) error {
	to := user.Phone
	if notif.Metadata.Phone != "" {
		to = notif.Metadata.Phone
	}
	if to == "" {
		return fmt.Errorf("user %d has no phone: %w", user.ID, ErrNoAddress)
	}

	smsCfg := s.cfg.SMS
	if smsCfg.AccountSID == "" || smsCfg.AuthToken == "" || smsCfg.FromNumber == "" {
		return fmt.Errorf("missing SMS configuration: AccountSID, AuthToken, or FromNumber is empty")
	}

	body := notif.Content
	if notif.Subject != "" {
		body = fmt.Sprintf("%s\n%s", notif.Subject, notif.Content)
	}
	if err := sms.Send(smsCfg.AccountSID, smsCfg.AuthToken, smsCfg.FromNumber, to, body); err != nil {
		return fmt.Errorf("failed to send SMS for notification %s: %w", notif.ID, err)
	}
	s.logger.Debugf("SMS sent to %s for notification %s", to, notif.ID)
	return nil
}

package providers

import (
	"context"
	"fmt"

	"reminder-service/internal/config"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
	"reminder-service/pkg/email"
)

// EmailSender delivers notifications over SMTP.
type EmailSender struct {
	cfg    config.Config
	logger *logging.Logger
}

func NewEmailSender(cfg config.Config, logger *logging.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, logger: logger}
}

func (s *EmailSender) Send(ctx context.Context, user models.User, notif models.Notification) error {
	to := user.Email
	if notif.Metadata.Email != "" {
		to = notif.Metadata.Email
	}
	if to == "" {
		return fmt.Errorf("user %d has no email: %w", user.ID, ErrNoAddress)
	}

	smtpCfg := s.cfg.Email
	if smtpCfg.SMTPServer == "" || smtpCfg.Username == "" || smtpCfg.Password == "" {
		return fmt.Errorf("missing email configuration: SMTPServer, Username, or Password is empty")
	}

	from := smtpCfg.Username
	if smtpCfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", smtpCfg.FromName, smtpCfg.Username)
	}

	if err := email.Send(smtpCfg.SMTPServer, smtpCfg.SMTPPort, smtpCfg.Username, smtpCfg.Password,
		from, to, notif.Subject, notif.Content); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	s.logger.Debugf("Email sent to %s for notification %s", to, notif.ID)
	return nil
}

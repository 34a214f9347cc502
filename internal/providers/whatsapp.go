package providers

import (
	"context"
	"fmt"

	"reminder-service/internal/logging"
	"reminder-service/internal/models"
	"reminder-service/internal/whatsapp"
)

// defaultTemplate is used when the notification metadata names none.
const defaultTemplate = "reminder"

// WhatsAppSender delivers notifications through the messaging provider,
// choosing between a free-form message and an approved template depending
// on the 24-hour conversation window.
type WhatsAppSender struct {
	client    *whatsapp.Client
	resolver  *whatsapp.ContactResolver
	templates *whatsapp.TemplateManager
	logger    *logging.Logger
}

func NewWhatsAppSender(client *whatsapp.Client, resolver *whatsapp.ContactResolver, templates *whatsapp.TemplateManager, logger *logging.Logger) *WhatsAppSender {
	return &WhatsAppSender{
		client:    client,
		resolver:  resolver,
		templates: templates,
		logger:    logger,
	}
}

func (s *WhatsAppSender) Send(ctx context.Context, user models.User, notif models.Notification) error {
	phone := user.Phone
	if notif.Metadata.Phone != "" {
		phone = notif.Metadata.Phone
	}
	if phone == "" {
		return fmt.Errorf("user %d has no phone: %w", user.ID, ErrNoAddress)
	}

	contact, err := s.resolver.Resolve(ctx, phone)
	if err != nil {
		return err
	}

	open, err := s.resolver.ConversationOpen(ctx, phone)
	if err != nil {
		return err
	}

	if open {
		if err := s.client.SendMessage(ctx, contact.BotID, contact.ContactID, notif.Content); err != nil {
			return fmt.Errorf("whatsapp send for notification %s: %w", notif.ID, err)
		}
		s.logger.Debugf("WhatsApp message sent to %s for notification %s", phone, notif.ID)
		return nil
	}

	// Window closed: only an approved template may go out.
	name := notif.Metadata.TemplateName
	if name == "" {
		name = defaultTemplate
	}
	tmpl, err := s.templates.GetApprovedTemplate(ctx, contact.BotID, name)
	if err != nil {
		return fmt.Errorf("whatsapp template send for notification %s: %w", notif.ID, err)
	}
	if err := s.client.SendTemplate(ctx, contact.BotID, contact.ContactID, tmpl.Name, []string{notif.Content}); err != nil {
		return fmt.Errorf("whatsapp template send for notification %s: %w", notif.ID, err)
	}
	s.logger.Debugf("WhatsApp template %q sent to %s for notification %s", tmpl.Name, phone, notif.ID)
	return nil
}

package whatsapp

import (
	"context"
	"fmt"

	"reminder-service/internal/cache"
	"reminder-service/internal/logging"
)

type contactClient interface {
	GetContactByPhone(ctx context.Context, botID, phone string) (Contact, error)
	GetConversationStatus(ctx context.Context, botID, contactID string) (bool, error)
}

// ContactResolver maps phone numbers to provider contacts through the
// dual-TTL cache, refetching identity or conversation status only when the
// corresponding clock has expired.
type ContactResolver struct {
	client contactClient
	bots   *BotManager
	cache  *cache.ContactCache
	logger *logging.Logger
}

func NewContactResolver(client contactClient, bots *BotManager, contactCache *cache.ContactCache, logger *logging.Logger) *ContactResolver {
	return &ContactResolver{
		client: client,
		bots:   bots,
		cache:  contactCache,
		logger: logger,
	}
}

// Resolve returns the cached contact for a phone, fetching from the
// provider on an identity miss.
func (r *ContactResolver) Resolve(ctx context.Context, phone string) (cache.CachedContact, error) {
	if c, ok := r.cache.Get(phone); ok {
		return c, nil
	}

	bot, err := r.bots.GetDefaultBot(ctx)
	if err != nil {
		return cache.CachedContact{}, fmt.Errorf("failed to resolve bot for contact lookup: %w", err)
	}
	contact, err := r.client.GetContactByPhone(ctx, bot.ID, phone)
	if err != nil {
		return cache.CachedContact{}, fmt.Errorf("failed to resolve contact for %s: %w", phone, err)
	}

	r.cache.Put(phone, contact.ID, bot.ID, contact.ConversationOpen)
	c, _ := r.cache.Get(phone)
	return c, nil
}

// ConversationOpen reports whether the contact's 24-hour window is open,
// using the cached status while fresh and refetching otherwise.
func (r *ContactResolver) ConversationOpen(ctx context.Context, phone string) (bool, error) {
	contact, err := r.Resolve(ctx, phone)
	if err != nil {
		return false, err
	}
	if r.cache.ConversationFresh(phone) {
		return contact.ConversationOpen, nil
	}

	open, err := r.client.GetConversationStatus(ctx, contact.BotID, contact.ContactID)
	if err != nil {
		return false, fmt.Errorf("failed to check conversation status for %s: %w", phone, err)
	}
	r.cache.SetConversationStatus(phone, open)
	return open, nil
}

// MarkInbound records an inbound message from the contact, which reopens
// the 24-hour conversation window.
func (r *ContactResolver) MarkInbound(phone string) {
	if !r.cache.SetConversationStatus(phone, true) {
		r.logger.Debugf("Inbound message for uncached phone %s ignored", phone)
	}
}

// RefreshStaleConversations refetches conversation status for entries whose
// freshness window has lapsed. Failures are logged and skipped.
func (r *ContactResolver) RefreshStaleConversations(ctx context.Context) {
	for _, c := range r.cache.GetStaleConversationContacts() {
		open, err := r.client.GetConversationStatus(ctx, c.BotID, c.ContactID)
		if err != nil {
			r.logger.Warnf("Conversation refresh failed for %s: %v", c.Phone, err)
			continue
		}
		r.cache.SetConversationStatus(c.Phone, open)
	}
}

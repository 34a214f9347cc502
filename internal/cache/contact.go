// Package cache holds the in-memory caches: the phone-to-contact mapping
// with its dual freshness clocks, and the small TTL caches the ML layer
// uses for computed features.
package cache

import (
	"sync"
	"time"
)

// CachedContact is the remote contact identity plus conversation-window
// state. Identity and conversation status expire on independent clocks:
// identity is stable for hours while the 24-hour conversation window can
// close within minutes.
type CachedContact struct {
	ContactID        string
	Phone            string
	BotID            string
	ConversationOpen bool

	expiresAt             time.Time
	conversationCheckedAt time.Time
}

// ContactCache maps phone numbers to cached provider contacts.
type ContactCache struct {
	mu      sync.RWMutex
	entries map[string]*CachedContact

	identityTTL     time.Duration
	conversationTTL time.Duration
	now             func() time.Time
}

// NewContactCache creates a cache with the given identity and conversation
// freshness windows.
func NewContactCache(identityTTL, conversationTTL time.Duration) *ContactCache {
	return &ContactCache{
		entries:         make(map[string]*CachedContact),
		identityTTL:     identityTTL,
		conversationTTL: conversationTTL,
		now:             time.Now,
	}
}

// Get returns the cached contact for a phone if its identity is still fresh.
func (c *ContactCache) Get(phone string) (CachedContact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[phone]
	if !ok || c.now().After(e.expiresAt) {
		return CachedContact{}, false
	}
	return *e, true
}

// Put stores a freshly resolved contact, starting both freshness clocks.
func (c *ContactCache) Put(phone, contactID, botID string, conversationOpen bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[phone] = &CachedContact{
		ContactID:             contactID,
		Phone:                 phone,
		BotID:                 botID,
		ConversationOpen:      conversationOpen,
		expiresAt:             now.Add(c.identityTTL),
		conversationCheckedAt: now,
	}
}

// SetConversationStatus updates the conversation-open flag and restarts its
// freshness clock without touching the identity expiry. The flag and its
// check timestamp are written under the same lock as the freshness read, so
// a concurrent ConversationFresh cannot observe a half-updated entry.
func (c *ContactCache) SetConversationStatus(phone string, open bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[phone]
	if !ok || c.now().After(e.expiresAt) {
		return false
	}
	e.ConversationOpen = open
	e.conversationCheckedAt = c.now()
	return true
}

// ConversationFresh reports whether the cached conversation status is still
// within its freshness window.
func (c *ContactCache) ConversationFresh(phone string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[phone]
	if !ok || c.now().After(e.expiresAt) {
		return false
	}
	return c.now().Sub(e.conversationCheckedAt) < c.conversationTTL
}

// GetStaleConversationContacts returns contacts whose identity is still
// valid but whose conversation status needs a refresh.
func (c *ContactCache) GetStaleConversationContacts() []CachedContact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	var stale []CachedContact
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			continue
		}
		if now.Sub(e.conversationCheckedAt) >= c.conversationTTL {
			stale = append(stale, *e)
		}
	}
	return stale
}

// Remove drops a phone from the cache.
func (c *ContactCache) Remove(phone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, phone)
}

// Len returns the number of entries, expired ones included.
func (c *ContactCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reminder-service/internal/logging"
)

// botClient is the slice of Client the BotManager needs.
type botClient interface {
	ListBots(ctx context.Context) ([]Bot, error)
}

// BotManager discovers and caches the provider-side bot identities.
type BotManager struct {
	client botClient
	logger *logging.Logger

	mu        sync.RWMutex
	bots      map[string]Bot
	defaultID string
	fetchedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

func NewBotManager(client botClient, ttl time.Duration, logger *logging.Logger) *BotManager {
	return &BotManager{
		client: client,
		logger: logger,
		bots:   make(map[string]Bot),
		ttl:    ttl,
		now:    time.Now,
	}
}

// GetDefaultBot returns the bot flagged as default, or the first discovered
// bot when none is flagged.
func (m *BotManager) GetDefaultBot(ctx context.Context) (Bot, error) {
	if err := m.refreshIfStale(ctx); err != nil {
		return Bot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.defaultID == "" {
		return Bot{}, fmt.Errorf("no bots discovered")
	}
	return m.bots[m.defaultID], nil
}

// GetBot returns a bot by id.
func (m *BotManager) GetBot(ctx context.Context, id string) (Bot, error) {
	if err := m.refreshIfStale(ctx); err != nil {
		return Bot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bots[id]
	if !ok {
		return Bot{}, fmt.Errorf("bot %s not found", id)
	}
	return b, nil
}

func (m *BotManager) refreshIfStale(ctx context.Context) error {
	m.mu.RLock()
	fresh := len(m.bots) > 0 && m.now().Sub(m.fetchedAt) < m.ttl
	m.mu.RUnlock()
	if fresh {
		return nil
	}

	bots, err := m.client.ListBots(ctx)
	if err != nil {
		// keep serving a stale cache over failing hard
		m.mu.RLock()
		stale := len(m.bots) > 0
		m.mu.RUnlock()
		if stale {
			m.logger.Warnf("Bot list refresh failed, serving cached bots: %v", err)
			return nil
		}
		return fmt.Errorf("failed to list bots: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bots = make(map[string]Bot, len(bots))
	m.defaultID = ""
	for _, b := range bots {
		m.bots[b.ID] = b
		if b.Default || m.defaultID == "" {
			m.defaultID = b.ID
		}
	}
	m.fetchedAt = m.now()
	m.logger.Infof("Discovered %d provider bots", len(bots))
	return nil
}

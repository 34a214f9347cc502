package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reminder-service/internal/logging"
)

type templateClient interface {
	ListTemplates(ctx context.Context, botID string) ([]Template, error)
}

// TemplateManager caches the provider's message templates and gates sends
// on approval status.
type TemplateManager struct {
	client templateClient
	logger *logging.Logger

	mu        sync.RWMutex
	templates map[string]Template // keyed by name
	fetchedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

func NewTemplateManager(client templateClient, ttl time.Duration, logger *logging.Logger) *TemplateManager {
	return &TemplateManager{
		client:    client,
		logger:    logger,
		templates: make(map[string]Template),
		ttl:       ttl,
		now:       time.Now,
	}
}

// GetApprovedTemplate returns the named template if the provider has
// approved it. ErrTemplateNotFound / ErrTemplateNotApproved otherwise.
func (m *TemplateManager) GetApprovedTemplate(ctx context.Context, botID, name string) (Template, error) {
	if err := m.refreshIfStale(ctx, botID); err != nil {
		return Template{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("template %q: %w", name, ErrTemplateNotFound)
	}
	if t.Status != "APPROVED" {
		return Template{}, fmt.Errorf("template %q has status %s: %w", name, t.Status, ErrTemplateNotApproved)
	}
	return t, nil
}

func (m *TemplateManager) refreshIfStale(ctx context.Context, botID string) error {
	m.mu.RLock()
	fresh := len(m.templates) > 0 && m.now().Sub(m.fetchedAt) < m.ttl
	m.mu.RUnlock()
	if fresh {
		return nil
	}

	templates, err := m.client.ListTemplates(ctx, botID)
	if err != nil {
		m.mu.RLock()
		stale := len(m.templates) > 0
		m.mu.RUnlock()
		if stale {
			m.logger.Warnf("Template refresh failed, serving cached templates: %v", err)
			return nil
		}
		return fmt.Errorf("failed to list templates: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = make(map[string]Template, len(templates))
	for _, t := range templates {
		m.templates[t.Name] = t
	}
	m.fetchedAt = m.now()
	m.logger.Infof("Loaded %d provider templates", len(templates))
	return nil
}

// Package webhook validates, deduplicates and dispatches inbound provider
// events to registered handlers.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

// ErrInvalidToken is returned when the shared-secret check fails.
var ErrInvalidToken = errors.New("invalid webhook token")

// Wildcard registers a handler for every event type.
const Wildcard = "*"

// HandlerFunc processes one webhook event.
type HandlerFunc func(ctx context.Context, ev models.WebhookEvent) error

// Handler is the event-type-keyed registry plus the bounded dedup set.
type Handler struct {
	token   string
	logger  *logging.Logger
	maxSeen int

	mu       sync.Mutex
	handlers map[string][]HandlerFunc
	seen     map[string]struct{}
	order    []string // dedup keys in arrival order, for eviction
}

// New creates a Handler. token may be empty to disable validation; maxSeen
// bounds the dedup set.
func New(token string, maxSeen int, logger *logging.Logger) *Handler {
	if maxSeen <= 0 {
		maxSeen = 1000
	}
	return &Handler{
		token:    token,
		logger:   logger,
		maxSeen:  maxSeen,
		handlers: make(map[string][]HandlerFunc),
		seen:     make(map[string]struct{}),
	}
}

// Register adds a handler for the given event type (or Wildcard).
func (h *Handler) Register(event string, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = append(h.handlers[event], fn)
}

// Handle validates, deduplicates, and dispatches one event. Handlers for
// the event type and wildcard handlers run concurrently; individual handler
// failures are logged, never propagated, so one bad handler cannot block
// the rest. Duplicate events are dropped silently.
func (h *Handler) Handle(ctx context.Context, token string, ev models.WebhookEvent) error {
	if h.token != "" && token != h.token {
		return ErrInvalidToken
	}

	key := fmt.Sprintf("%s:%s:%d", ev.Event, ev.ContactID, ev.Timestamp)
	if !h.markSeen(key) {
		h.logger.Debugf("Dropping duplicate webhook event %s", key)
		return nil
	}

	h.mu.Lock()
	fns := make([]HandlerFunc, 0, len(h.handlers[ev.Event])+len(h.handlers[Wildcard]))
	fns = append(fns, h.handlers[ev.Event]...)
	fns = append(fns, h.handlers[Wildcard]...)
	h.mu.Unlock()

	if len(fns) == 0 {
		h.logger.Debugf("No handlers registered for webhook event %s", ev.Event)
		return nil
	}

	var wg sync.WaitGroup
	for _, fn := range fns {
		wg.Add(1)
		go func(fn HandlerFunc) {
			defer wg.Done()
			if err := fn(ctx, ev); err != nil {
				h.logger.Errorf("Webhook handler for %s failed: %v", ev.Event, err)
			}
		}(fn)
	}
	wg.Wait()
	return nil
}

// markSeen records the dedup key, evicting the oldest 20% of the set when
// it overflows. Returns false if the key was already present.
func (h *Handler) markSeen(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := h.seen[key]; dup {
		return false
	}
	if len(h.seen) >= h.maxSeen {
		evict := h.maxSeen / 5
		if evict < 1 {
			evict = 1
		}
		for _, old := range h.order[:evict] {
			delete(h.seen, old)
		}
		h.order = h.order[evict:]
	}
	h.seen[key] = struct{}{}
	h.order = append(h.order, key)
	return true
}

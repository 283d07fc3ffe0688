// Package feed streams stored events to live observers of a session.
package feed

import (
	"log/slog"
	"sync"

	"github.com/ashureev/studylog/internal/domain"
)

const defaultBufferSize = 64

// Subscription receives events published for one session.
// C is closed when the subscription ends.
type Subscription struct {
	C         <-chan *domain.Event
	ch        chan *domain.Event
	sessionID string
}

// Hub fans events out to subscribers keyed by session id.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	bufSize int
	logger  *slog.Logger
}

// NewHub creates a hub. bufSize <= 0 selects the default buffer size.
func NewHub(bufSize int, logger *slog.Logger) *Hub {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[string]map[*Subscription]struct{}),
		bufSize: bufSize,
		logger:  logger,
	}
}

// Subscribe registers a new observer for sessionID.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	ch := make(chan *domain.Event, h.bufSize)
	sub := &Subscription{C: ch, ch: ch, sessionID: sessionID}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subs[sessionID]; !exists {
		h.subs[sessionID] = make(map[*Subscription]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.logger.Debug("Feed subscriber registered", "session_id", sessionID)
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[sub.sessionID]
	if !ok {
		return
	}
	if _, exists := subs[sub]; !exists {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.subs, sub.sessionID)
	}
	h.logger.Debug("Feed subscriber unregistered", "session_id", sub.sessionID)
}

// Publish delivers event to every subscriber of its session without blocking.
// Subscribers with a full buffer miss the event.
func (h *Hub) Publish(event *domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.SessionID] {
		select {
		case sub.ch <- event:
		default:
			h.logger.Warn("Feed subscriber lagging, dropping event",
				"session_id", event.SessionID,
				"event_index", event.EventIndex)
		}
	}
}

// Count returns the number of subscribers for sessionID.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// CloseSession ends every subscription for sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[sessionID]
	if !ok {
		return
	}
	for sub := range subs {
		close(sub.ch)
	}
	delete(h.subs, sessionID)
	h.logger.Info("Feed closed for session", "session_id", sessionID, "subscribers", len(subs))
}

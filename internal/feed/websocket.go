package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/studylog/internal/store"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

const writeTimeout = 10 * time.Second

// WebSocketHandler streams a session's events over a websocket.
// Stored events are replayed first, then live events follow.
type WebSocketHandler struct {
	repo           store.Repository
	hub            *Hub
	originPatterns []string
	logger         *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(repo store.Repository, hub *Hub, originPatterns []string, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		repo:           repo,
		hub:            hub,
		originPatterns: originPatterns,
		logger:         logger,
	}
}

// RegisterRoutes registers the feed route.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/sessions/{sessionID}/events", h.ServeHTTP)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session for feed", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	// Subscribe before replaying so nothing stored in between is lost.
	sub := h.hub.Subscribe(sessionID)
	defer h.hub.Unsubscribe(sub)

	// Observers never send; CloseRead cancels ctx when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	backlog, err := h.repo.ListEvents(ctx, sessionID)
	if err != nil {
		h.logger.Error("Failed to replay events", "error", err, "session_id", sessionID)
		return
	}

	seen := make(map[int]struct{}, len(backlog))
	for _, event := range backlog {
		if err := h.write(ctx, ws, event); err != nil {
			return
		}
		seen[event.EventIndex] = struct{}{}
	}

	h.logger.Info("Feed attached", "session_id", sessionID, "replayed", len(backlog))

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if _, dup := seen[event.EventIndex]; dup {
				continue
			}
			if err := h.write(ctx, ws, event); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) write(ctx context.Context, ws *websocket.Conn, v any) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, ws, v); err != nil {
		if ctx.Err() == nil {
			h.logger.Debug("WebSocket write error", "error", err)
		}
		return err
	}
	return nil
}

// writeError answers a request that never reached the upgrade.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		slog.Debug("Failed to encode error response", "error", err)
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/studylog/internal/domain"
	"github.com/ashureev/studylog/internal/store"
)

type logEventRequest struct {
	SessionID   string          `json:"session_id"`
	EventIndex  *int            `json:"event_index"`
	TSUTC       string          `json:"ts_utc"`
	TZ          string          `json:"tz"`
	EventType   string          `json:"event_type"`
	ItemID      string          `json:"item_id"`
	PayloadJSON json.RawMessage `json:"payload_json"`
}

// LogEvent stores one event record. Events for finished sessions are
// accepted; clients keep referencing a session after finishing it.
func (h *Handler) LogEvent(w http.ResponseWriter, r *http.Request) {
	var req logEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.EventIndex == nil {
		Error(w, http.StatusBadRequest, "event_index is required")
		return
	}

	ctx := r.Context()
	session, err := h.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		h.logger.Error("Failed to load session for event", "error", err, "session_id", req.SessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	switch {
	case session.Status == domain.SessionAbandoned:
		h.logger.Info("Event resumes abandoned session",
			"session_id", session.SessionID,
			"idle", session.IdleFor(h.now()))
	case session.IsFinished():
		h.logger.Debug("Event after session finished",
			"session_id", session.SessionID,
			"ts_end_utc", session.TSEndUTC)
	}

	if !h.items.IsValidItem(session.AppID, req.ItemID) {
		h.logger.Warn("Unregistered item id",
			"app_id", session.AppID,
			"item_id", req.ItemID,
			"session_id", req.SessionID,
			"strict", h.strictItems)
		if h.strictItems {
			Error(w, http.StatusUnprocessableEntity, "item_id not registered for app")
			return
		}
	}

	if req.TSUTC == "" {
		req.TSUTC = domain.FormatTimestamp(h.now())
	}

	event := &domain.Event{
		SessionID:   req.SessionID,
		EventIndex:  *req.EventIndex,
		TSUTC:       req.TSUTC,
		TZ:          req.TZ,
		ServerTS:    h.now(),
		EventType:   req.EventType,
		ItemID:      req.ItemID,
		PayloadJSON: req.PayloadJSON,
	}

	err = h.repo.InsertEvent(ctx, event)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, store.ErrDuplicateEvent):
		Error(w, http.StatusConflict, "event_index already recorded for session")
		return
	case err != nil:
		h.logger.Error("Failed to store event", "error", err, "session_id", req.SessionID, "event_index", event.EventIndex)
		Error(w, http.StatusInternalServerError, "failed to store event")
		return
	}

	if h.hub != nil {
		h.hub.Publish(event)
	}

	h.logger.Debug("Event stored",
		"session_id", event.SessionID,
		"event_index", event.EventIndex,
		"event_type", event.EventType,
		"item_id", event.ItemID)
	JSON(w, http.StatusCreated, map[string]string{"status": "success"})
}

package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/studylog/internal/domain"
	"github.com/ashureev/studylog/internal/store"
	"github.com/go-chi/chi/v5"
)

type startSessionRequest struct {
	SubjectID string `json:"subject_id"`
	AppID     string `json:"app_id"`
	AppType   string `json:"app_type"`
	TZ        string `json:"tz"`
}

type startSessionResponse struct {
	SessionID  string `json:"session_id"`
	TSStartUTC string `json:"ts_start_utc"`
}

type finishSessionRequest struct {
	SessionID string `json:"session_id"`
	TSEndUTC  string `json:"ts_end_utc"`
}

// StartSession opens a session for a subject and app.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SubjectID == "" {
		Error(w, http.StatusBadRequest, "subject_id is required")
		return
	}
	if req.AppID == "" {
		Error(w, http.StatusBadRequest, "app_id is required")
		return
	}

	ctx := r.Context()
	now := h.now()

	if err := h.repo.UpsertSubject(ctx, &domain.Subject{SubjectID: req.SubjectID, CreatedAt: now}); err != nil {
		h.logger.Error("Failed to record subject", "error", err, "subject_id", req.SubjectID)
		Error(w, http.StatusInternalServerError, "failed to record subject")
		return
	}
	if err := h.repo.UpsertApp(ctx, &domain.App{AppID: req.AppID, AppType: req.AppType}); err != nil {
		h.logger.Error("Failed to record app", "error", err, "app_id", req.AppID)
		Error(w, http.StatusInternalServerError, "failed to record app")
		return
	}

	session := &domain.Session{
		SessionID:  h.newID(),
		SubjectID:  req.SubjectID,
		AppID:      req.AppID,
		AppType:    req.AppType,
		TSStartUTC: domain.FormatTimestamp(now),
		TZ:         req.TZ,
		Status:     domain.SessionActive,
		UpdatedAt:  now,
	}
	if err := h.repo.CreateSession(ctx, session); err != nil {
		h.logger.Error("Failed to create session", "error", err, "subject_id", req.SubjectID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.logger.Info("Session started",
		"session_id", session.SessionID,
		"subject_id", session.SubjectID,
		"app_id", session.AppID,
		"tz", session.TZ)

	JSON(w, http.StatusOK, startSessionResponse{
		SessionID:  session.SessionID,
		TSStartUTC: session.TSStartUTC,
	})
}

// FinishSession stamps the end of a session.
func (h *Handler) FinishSession(w http.ResponseWriter, r *http.Request) {
	var req finishSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.TSEndUTC == "" {
		req.TSEndUTC = domain.FormatTimestamp(h.now())
	}

	err := h.repo.FinishSession(r.Context(), req.SessionID, req.TSEndUTC)
	if errors.Is(err, store.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to finish session", "error", err, "session_id", req.SessionID)
		Error(w, http.StatusInternalServerError, "failed to finish session")
		return
	}

	h.logger.Info("Session finished", "session_id", req.SessionID, "ts_end_utc", req.TSEndUTC)
	JSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// GetSession returns a stored session with its event count.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	JSON(w, http.StatusOK, session)
}

// Package api provides HTTP handlers for the collector API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/studylog/internal/feed"
	"github.com/ashureev/studylog/internal/registry"
	"github.com/ashureev/studylog/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

// Handler serves session and event endpoints.
type Handler struct {
	repo        store.Repository
	items       *registry.Registry
	hub         *feed.Hub
	strictItems bool
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
	uploadDir   string
	maxUpload   int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithRegistry enables item id checks against r. When strict is true,
// unknown items are rejected instead of only logged.
func WithRegistry(r *registry.Registry, strict bool) Option {
	return func(h *Handler) {
		h.items = r
		h.strictItems = strict
	}
}

// WithFeed publishes stored events to hub.
func WithFeed(hub *feed.Hub) Option {
	return func(h *Handler) { h.hub = hub }
}

// WithClock overrides the server clock.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(newID func() string) Option {
	return func(h *Handler) { h.newID = newID }
}

// WithUploads enables POST /upload-speech, storing files under dir.
// maxBytes <= 0 selects the default limit.
func WithUploads(dir string, maxBytes int64) Option {
	return func(h *Handler) {
		h.uploadDir = dir
		if maxBytes > 0 {
			h.maxUpload = maxBytes
		}
	}
}

// NewHandler creates a new Handler.
func NewHandler(repo store.Repository, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,

		maxUpload: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers session and event routes. eventMiddleware wraps
// only the event ingestion route.
func (h *Handler) RegisterRoutes(r chi.Router, eventMiddleware ...func(http.Handler) http.Handler) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/start", h.StartSession)
		r.Post("/finish", h.FinishSession)
		r.Get("/{sessionID}", h.GetSession)
		r.Get("/{sessionID}/assets", h.ListSessionAssets)
	})
	r.With(eventMiddleware...).Post("/events", h.LogEvent)
	if h.uploadDir != "" {
		r.Post("/upload-speech", h.UploadSpeech)
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

var errEmptyBody = errors.New("request body is empty")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

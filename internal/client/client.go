// Package client opens logging sessions against the collector and forwards
// interaction events to it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/studylog/internal/domain"
	"github.com/ashureev/studylog/internal/localstore"
	"github.com/ashureev/studylog/internal/prompt"
)

// SubjectPrompt is the question shown when no subject id is persisted.
const SubjectPrompt = "Enter Subject ID:"

const maxErrorBody = 64 << 10

// Client talks to the collector's session and event endpoints.
type Client struct {
	baseURL  string
	http     *http.Client
	subjects localstore.Store
	prompter prompt.Prompter
	now      func() time.Time
	zone     func() string
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. The default has no timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSubjectStore sets where the subject id is persisted.
func WithSubjectStore(s localstore.Store) Option {
	return func(c *Client) { c.subjects = s }
}

// WithPrompter sets how the operator is asked for a subject id.
func WithPrompter(p prompt.Prompter) Option {
	return func(c *Client) { c.prompter = p }
}

// WithClock overrides the clock used for event and finish timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithZone overrides local time zone detection.
func WithZone(zone func() string) Option {
	return func(c *Client) { c.zone = zone }
}

// WithLogger sets the logger used for suppressed delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the collector at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		subjects: localstore.NewMemory(),
		prompter: prompt.Func(func(context.Context, string) (string, error) {
			return "", fmt.Errorf("no subject id persisted and no prompter configured: %w", prompt.ErrCancelled)
		}),
		now:    time.Now,
		zone:   LocalZone,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureSessionStarted opens a session unless sess is already active.
// A non-success status from the collector yields a *SessionStartError.
func (c *Client) EnsureSessionStarted(ctx context.Context, sess *Session, appID, appType string) error {
	if sess == nil {
		return ErrNilSession
	}
	if sess.Active() {
		return nil
	}

	subjectID, err := c.resolveSubject(ctx)
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, "/sessions/start", startRequest{
		SubjectID: subjectID,
		AppID:     appID,
		AppType:   appType,
		TZ:        c.zone(),
	})
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &SessionStartError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out startResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode session start response: %w", err)
	}

	sess.SubjectID = subjectID
	sess.ID = out.SessionID
	sess.StartTSUTC = out.TSStartUTC

	c.logger.Debug("Session started", "session_id", sess.ID, "subject_id", subjectID, "app_id", appID)
	return nil
}

// LogEvent sends one event record for the active session. Delivery is
// best effort: transport failures and non-success statuses are logged,
// not returned.
func (c *Client) LogEvent(ctx context.Context, sess *Session, ev Event) error {
	if !sess.Active() {
		return ErrNoActiveSession
	}

	payload := json.RawMessage("{}")
	if ev.Payload != nil {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("encode event payload: %w", err)
		}
		payload = raw
	}

	c.send(ctx, "/events", eventRecord{
		SessionID:   sess.ID,
		EventIndex:  ev.EventIndex,
		TSUTC:       domain.FormatTimestamp(c.now()),
		TZ:          c.zone(),
		EventType:   ev.EventType,
		ItemID:      ev.ItemID,
		PayloadJSON: payload,
	}, "session_id", sess.ID, "event_index", ev.EventIndex)
	return nil
}

// EndSession sends the finish record for the active session. It does
// nothing without one and leaves sess untouched afterwards.
func (c *Client) EndSession(ctx context.Context, sess *Session) {
	if !sess.Active() {
		return
	}
	c.send(ctx, "/sessions/finish", finishRequest{
		SessionID: sess.ID,
		TSEndUTC:  domain.FormatTimestamp(c.now()),
	}, "session_id", sess.ID)
}

// resolveSubject reads the persisted subject id, prompting and persisting
// it when absent. An empty stored value counts as absent.
func (c *Client) resolveSubject(ctx context.Context) (string, error) {
	existing, ok, err := c.subjects.Get(ctx, localstore.SubjectKey)
	if err != nil {
		return "", fmt.Errorf("read subject id: %w", err)
	}
	if ok && existing != "" {
		return existing, nil
	}

	id, err := c.prompter.Prompt(ctx, SubjectPrompt)
	if err != nil {
		return "", fmt.Errorf("prompt for subject id: %w", err)
	}
	if err := c.subjects.Set(ctx, localstore.SubjectKey, id); err != nil {
		return "", fmt.Errorf("persist subject id: %w", err)
	}
	return id, nil
}

// send posts body and only logs what goes wrong.
func (c *Client) send(ctx context.Context, path string, body any, logAttrs ...any) {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		c.logger.Warn("Delivery failed", append([]any{"path", path, "error", err}, logAttrs...)...)
		return
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("Delivery rejected",
			append([]any{"path", path, "status", resp.StatusCode, "body", strings.TrimSpace(string(msg))}, logAttrs...)...)
	}
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

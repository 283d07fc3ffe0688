// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/studylog/internal/domain"
)

var (
	// ErrSessionNotFound is returned when a session id has no stored row.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateEvent is returned when (session_id, event_index) already exists.
	ErrDuplicateEvent = errors.New("duplicate event index for session")
)

// Repository defines the interface for persisting subjects, sessions and events.
type Repository interface {
	// UpsertSubject records a subject the first time it is seen.
	UpsertSubject(ctx context.Context, subject *domain.Subject) error

	// UpsertApp records an app, refreshing its type on conflict.
	UpsertApp(ctx context.Context, app *domain.App) error

	// CreateSession inserts a new active session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session with its event count. Returns nil, nil when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// FinishSession stamps the end timestamp and marks the session finished.
	FinishSession(ctx context.Context, sessionID string, tsEndUTC string) error

	// InsertEvent stores one event and bumps the session's activity time.
	// An abandoned session becomes active again.
	InsertEvent(ctx context.Context, event *domain.Event) error

	// ListEvents returns a session's events ordered by event_index.
	ListEvents(ctx context.Context, sessionID string) ([]*domain.Event, error)

	// MarkAbandoned flips active sessions idle for longer than ttl to abandoned
	// and returns the affected session ids.
	MarkAbandoned(ctx context.Context, ttl time.Duration) ([]string, error)

	// InsertAsset records an uploaded file such as a speech recording.
	InsertAsset(ctx context.Context, asset *domain.Asset) error

	// ListAssets returns the assets recorded for a session.
	ListAssets(ctx context.Context, sessionID string) ([]*domain.Asset, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

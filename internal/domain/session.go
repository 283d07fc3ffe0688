package domain

import (
	"time"
)

// TimestampLayout is the ISO-8601 UTC layout used for every wire timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout after converting to UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// SessionStatus is the server-side lifecycle state of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionFinished  SessionStatus = "finished"
	SessionAbandoned SessionStatus = "abandoned"
)

// Session is a bounded period of instrumented activity for one subject and app.
type Session struct {
	SessionID   string        `json:"session_id"`
	SubjectID   string        `json:"subject_id"`
	AppID       string        `json:"app_id"`
	AppType     string        `json:"app_type"`
	TSStartUTC  string        `json:"ts_start_utc"`
	TSEndUTC    string        `json:"ts_end_utc,omitempty"`
	TZ          string        `json:"tz"`
	Status      SessionStatus `json:"status"`
	EventsCount int           `json:"events_count"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsFinished reports whether the client closed the session.
func (s *Session) IsFinished() bool {
	return s.TSEndUTC != ""
}

// IdleFor returns how long the session has gone without activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	if s.UpdatedAt.IsZero() {
		return 0
	}
	d := now.Sub(s.UpdatedAt)
	if d < 0 {
		return 0
	}
	return d
}

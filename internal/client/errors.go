package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveSession is returned by LogEvent before a session is started.
	ErrNoActiveSession = errors.New("session not started")

	// ErrNilSession is returned when EnsureSessionStarted has nowhere to
	// record the new session.
	ErrNilSession = errors.New("client: nil session")

	// ErrSessionStartFailed matches every *SessionStartError.
	ErrSessionStartFailed = errors.New("failed to start session")
)

// SessionStartError reports a non-success response from /sessions/start.
type SessionStartError struct {
	StatusCode int
	Body       string
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("%s (%d): %s", ErrSessionStartFailed.Error(), e.StatusCode, e.Body)
}

// Is makes errors.Is(err, ErrSessionStartFailed) true.
func (e *SessionStartError) Is(target error) bool {
	return target == ErrSessionStartFailed
}

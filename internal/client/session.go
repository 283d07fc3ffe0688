package client

import "encoding/json"

// Session is the caller-owned session context passed to every operation.
// The zero value has no active session. EndSession does not reset it.
type Session struct {
	SubjectID  string
	ID         string
	StartTSUTC string
}

// Active reports whether a session id has been assigned.
func (s *Session) Active() bool {
	return s != nil && s.ID != ""
}

// Event describes one interaction to record.
type Event struct {
	EventType  string
	ItemID     string
	EventIndex int
	Payload    map[string]any
}

type startRequest struct {
	SubjectID string `json:"subject_id"`
	AppID     string `json:"app_id"`
	AppType   string `json:"app_type"`
	TZ        string `json:"tz"`
}

type startResponse struct {
	SessionID  string `json:"session_id"`
	TSStartUTC string `json:"ts_start_utc"`
}

type eventRecord struct {
	SessionID   string          `json:"session_id"`
	EventIndex  int             `json:"event_index"`
	TSUTC       string          `json:"ts_utc"`
	TZ          string          `json:"tz"`
	EventType   string          `json:"event_type"`
	ItemID      string          `json:"item_id"`
	PayloadJSON json.RawMessage `json:"payload_json"`
}

type finishRequest struct {
	SessionID string `json:"session_id"`
	TSEndUTC  string `json:"ts_end_utc"`
}

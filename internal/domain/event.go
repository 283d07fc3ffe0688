package domain

import (
	"encoding/json"
	"time"
)

// Event is one timestamped interaction datum submitted during a session.
type Event struct {
	EventID     int64           `json:"event_id,omitempty"`
	SessionID   string          `json:"session_id"`
	EventIndex  int             `json:"event_index"`
	TSUTC       string          `json:"ts_utc"`
	TZ          string          `json:"tz"`
	ServerTS    time.Time       `json:"server_ts"`
	EventType   string          `json:"event_type"`
	ItemID      string          `json:"item_id"`
	PayloadJSON json.RawMessage `json:"payload_json"`
}

// Payload returns the stored payload, or an empty JSON object when unset.
func (e *Event) Payload() json.RawMessage {
	if len(e.PayloadJSON) == 0 || string(e.PayloadJSON) == "null" {
		return json.RawMessage("{}")
	}
	return e.PayloadJSON
}

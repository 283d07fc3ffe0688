package domain

import (
	"encoding/json"
	"time"
)

// ModalitySpeech marks recorded speech uploads.
const ModalitySpeech = "speech"

// Asset is a file uploaded during a session, such as a speech recording.
type Asset struct {
	AssetID   int64           `json:"asset_id"`
	SubjectID string          `json:"subject_id"`
	SessionID string          `json:"session_id"`
	Modality  string          `json:"modality"`
	Subtype   string          `json:"subtype,omitempty"`
	TSUTC     string          `json:"ts_utc"`
	TZ        string          `json:"tz"`
	Path      string          `json:"path"`
	MetaJSON  json.RawMessage `json:"meta_json,omitempty"`
	ServerTS  time.Time       `json:"server_ts"`
}

// Package domain contains core domain types for the studylog collector.
package domain

import (
	"time"
)

// Subject is the human or entity observed across sessions.
type Subject struct {
	SubjectID string    `json:"subject_id"`
	CreatedAt time.Time `json:"created_at_utc"`
	MetaJSON  string    `json:"meta_json,omitempty"`
}

// App is an instrumented survey or task that opens sessions.
type App struct {
	AppID      string `json:"app_id"`
	AppType    string `json:"app_type"`
	AppVersion int    `json:"app_version"`
}

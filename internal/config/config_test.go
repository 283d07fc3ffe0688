package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DB_PATH", "ALLOWED_ORIGINS", "SESSION_TTL", "SWEEP_INTERVAL",
		"ITEM_REGISTRY_PATH", "STRICT_ITEMS", "TASKS_DIR", "EVENTS_RATE_LIMIT", "EVENTS_RATE_WINDOW",
		"UPLOADS_DIR", "MAX_UPLOAD_BYTES",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("PORT", "8000")
	t.Setenv("DB_PATH", "./data/database.db")
	t.Setenv("SESSION_TTL", "6h")
	t.Setenv("SWEEP_INTERVAL", "5m")
	t.Setenv("EVENTS_RATE_LIMIT", "600")
	t.Setenv("EVENTS_RATE_WINDOW", "1m")
	t.Setenv("UPLOADS_DIR", "./data/raw")
	t.Setenv("MAX_UPLOAD_BYTES", "33554432")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if cfg.SessionTTL != 6*time.Hour {
		t.Errorf("SessionTTL = %v, want 6h", cfg.SessionTTL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v, want [*]", cfg.AllowedOrigins)
	}
	if cfg.StrictItems {
		t.Error("StrictItems should default to false")
	}
	if cfg.UploadsDir != "./data/raw" || cfg.MaxUploadBytes != 32<<20 {
		t.Errorf("uploads = %q %d", cfg.UploadsDir, cfg.MaxUploadBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("SWEEP_INTERVAL", "10s")
	t.Setenv("STRICT_ITEMS", "yes")
	t.Setenv("EVENTS_RATE_LIMIT", "5")
	t.Setenv("EVENTS_RATE_WINDOW", "2s")
	t.Setenv("UPLOADS_DIR", "")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9999" || cfg.DBPath != "/tmp/x.db" {
		t.Errorf("unexpected port/db: %q %q", cfg.Port, cfg.DBPath)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.SessionTTL != 30*time.Minute || cfg.SweepInterval != 10*time.Second {
		t.Errorf("durations = %v %v", cfg.SessionTTL, cfg.SweepInterval)
	}
	if !cfg.StrictItems {
		t.Error("StrictItems should be true")
	}
	if cfg.EventsRateLimit.Limit != 5 || cfg.EventsRateLimit.Window != 2*time.Second {
		t.Errorf("EventsRateLimit = %+v", cfg.EventsRateLimit)
	}
	if cfg.UploadsDir != "" || cfg.MaxUploadBytes != 1024 {
		t.Errorf("uploads = %q %d, want disabled with 1024", cfg.UploadsDir, cfg.MaxUploadBytes)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:            "8000",
		DBPath:          "db",
		SessionTTL:      time.Hour,
		SweepInterval:   time.Minute,
		MaxUploadBytes:  1 << 20,
		EventsRateLimit: RateLimitConfig{Limit: 1, Window: time.Second},
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"empty db", func(c *Config) { c.DBPath = "" }, "DB_PATH"},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, "SESSION_TTL"},
		{"zero sweep", func(c *Config) { c.SweepInterval = 0 }, "SWEEP_INTERVAL"},
		{"zero upload limit", func(c *Config) { c.MaxUploadBytes = 0 }, "MAX_UPLOAD_BYTES"},
		{"zero limit", func(c *Config) { c.EventsRateLimit.Limit = 0 }, "EVENTS_RATE_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("STUDYLOG_SERVER_URL", "http://collector.test:8000/")
	t.Setenv("STUDYLOG_STATE_PATH", "/tmp/state.db")
	t.Setenv("STUDYLOG_TIMEOUT", "15s")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}
	if cfg.ServerURL != "http://collector.test:8000" {
		t.Errorf("ServerURL = %q, trailing slash should be trimmed", cfg.ServerURL)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
}

func TestLoadClientRejectsNonHTTP(t *testing.T) {
	t.Setenv("STUDYLOG_SERVER_URL", "collector.test")
	t.Setenv("STUDYLOG_STATE_PATH", "/tmp/state.db")

	if _, err := LoadClient(); err == nil {
		t.Fatal("expected error for non-http server URL")
	}
}

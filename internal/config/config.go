// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the collector server configuration.
type Config struct {
	Port             string
	DBPath           string
	AllowedOrigins   []string
	SessionTTL       time.Duration
	SweepInterval    time.Duration
	ItemRegistryPath string
	StrictItems      bool
	TasksDir         string
	UploadsDir       string // empty disables /upload-speech
	MaxUploadBytes   int64
	EventsRateLimit  RateLimitConfig
}

// RateLimitConfig bounds how many event submissions one client may send per window.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// ClientConfig holds configuration for the studylog CLI.
type ClientConfig struct {
	ServerURL string
	StatePath string
	Timeout   time.Duration // 0 = no timeout
}

// Load reads server configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8000"),
		DBPath:           getEnv("DB_PATH", "./data/database.db"),
		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		SessionTTL:       getEnvDuration("SESSION_TTL", 6*time.Hour),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		ItemRegistryPath: getEnv("ITEM_REGISTRY_PATH", ""),
		StrictItems:      getEnvBool("STRICT_ITEMS", false),
		TasksDir:         getEnv("TASKS_DIR", ""),
		UploadsDir:       getEnv("UPLOADS_DIR", "./data/raw"),
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_BYTES", 32<<20)),
		EventsRateLimit: RateLimitConfig{
			Limit:  getEnvInt("EVENTS_RATE_LIMIT", 600),
			Window: getEnvDuration("EVENTS_RATE_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.EventsRateLimit.Limit <= 0 {
		return fmt.Errorf("EVENTS_RATE_LIMIT must be > 0")
	}
	if c.EventsRateLimit.Window <= 0 {
		return fmt.Errorf("EVENTS_RATE_WINDOW must be > 0")
	}
	return nil
}

// LoadClient reads CLI configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		ServerURL: strings.TrimRight(getEnv("STUDYLOG_SERVER_URL", "http://127.0.0.1:8000"), "/"),
		StatePath: getEnv("STUDYLOG_STATE_PATH", defaultStatePath()),
		Timeout:   getEnvDuration("STUDYLOG_TIMEOUT", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required client configuration fields are set.
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("STUDYLOG_SERVER_URL cannot be empty")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("STUDYLOG_SERVER_URL must be an http(s) URL: %q", c.ServerURL)
	}
	if c.StatePath == "" {
		return fmt.Errorf("STUDYLOG_STATE_PATH cannot be empty")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("STUDYLOG_TIMEOUT must be >= 0")
	}
	return nil
}

func defaultStatePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "studylog", "state.db")
	}
	return filepath.Join(".", "data", "state.db")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

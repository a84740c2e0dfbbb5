package pulse

import (
	"os"
	"time"

	"github.com/tidewell/pulse/internal/store"
)

// Config configures the Pulse client.
type Config struct {
	// LocalPath is the path to the local queue database.
	LocalPath string

	// HarborURL is the URL of the Harbor backend.
	// If empty, the client operates in offline-only mode.
	HarborURL string

	// APIKey authenticates with Harbor.
	APIKey string

	// SourceID identifies this client installation.
	// Defaults to hostname if not set.
	SourceID string

	// SubmitTimeout bounds each assessment submission attempt.
	// Defaults to 10 seconds.
	SubmitTimeout time.Duration

	// ProbeTimeout bounds each reachability probe.
	// Defaults to 4 seconds.
	ProbeTimeout time.Duration

	// ProbeInterval is how often the monitor probes Harbor.
	// Defaults to 30 seconds.
	ProbeInterval time.Duration

	// MaxAttempts bounds retry attempts per network call.
	// Defaults to 3.
	MaxAttempts int

	// BaseDelay is the linear backoff unit between retries.
	// Defaults to 500ms.
	BaseDelay time.Duration

	// AttemptCeiling is the per-record failure count after which a queued
	// record is flagged for attention instead of retried automatically.
	// Defaults to 10.
	AttemptCeiling int

	// DegradedAfter is the number of consecutive failed probes before the
	// monitor surfaces a degraded state. Defaults to 3.
	DegradedAfter int

	// AutoSync enables draining on start and on reachability transitions.
	// Defaults to true.
	AutoSync bool

	// Debug enables verbose logging of all Harbor API communications.
	Debug bool

	// DebugLogPath is the path to write debug logs.
	// Defaults to stderr if empty.
	DebugLogPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	hostname, _ := os.Hostname()
	return Config{
		LocalPath:      store.DefaultDBPath(),
		SourceID:       hostname,
		SubmitTimeout:  10 * time.Second,
		ProbeTimeout:   4 * time.Second,
		ProbeInterval:  30 * time.Second,
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		AttemptCeiling: 10,
		DegradedAfter:  3,
		AutoSync:       true,
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	PULSE_DB_PATH    → LocalPath
//	HARBOR_URL       → HarborURL
//	HARBOR_API_KEY   → APIKey
//	PULSE_SOURCE_ID  → SourceID
//	PULSE_DEBUG      → Debug (any non-empty value enables)
//	PULSE_DEBUG_LOG  → DebugLogPath
func ConfigFromEnv() Config {
	return Config{
		LocalPath:    os.Getenv("PULSE_DB_PATH"),
		HarborURL:    os.Getenv("HARBOR_URL"),
		APIKey:       os.Getenv("HARBOR_API_KEY"),
		SourceID:     os.Getenv("PULSE_SOURCE_ID"),
		Debug:        os.Getenv("PULSE_DEBUG") != "",
		DebugLogPath: os.Getenv("PULSE_DEBUG_LOG"),
		AutoSync:     true,
	}
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.LocalPath == "" {
		return &ValidationError{Field: "LocalPath", Message: "required: path to queue database"}
	}
	if c.HarborURL != "" && c.APIKey == "" {
		return &ValidationError{Field: "APIKey", Message: "required when HarborURL is set"}
	}
	if c.SubmitTimeout < 0 {
		return &ValidationError{Field: "SubmitTimeout", Message: "must be non-negative"}
	}
	if c.ProbeInterval < 0 {
		return &ValidationError{Field: "ProbeInterval", Message: "must be non-negative"}
	}
	if c.MaxAttempts < 0 {
		return &ValidationError{Field: "MaxAttempts", Message: "must be non-negative"}
	}
	if c.AttemptCeiling < 0 {
		return &ValidationError{Field: "AttemptCeiling", Message: "must be non-negative"}
	}
	return nil
}

// IsOffline returns true if the client operates in offline-only mode.
// Offline mode is determined by HarborURL being empty.
func (c *Config) IsOffline() bool {
	return c.HarborURL == ""
}

// WithDefaults fills in default values for unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.LocalPath == "" {
		c.LocalPath = defaults.LocalPath
	}
	if c.SourceID == "" {
		c.SourceID = defaults.SourceID
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = defaults.SubmitTimeout
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = defaults.ProbeTimeout
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = defaults.ProbeInterval
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = defaults.BaseDelay
	}
	if c.AttemptCeiling == 0 {
		c.AttemptCeiling = defaults.AttemptCeiling
	}
	if c.DegradedAfter == 0 {
		c.DegradedAfter = defaults.DegradedAfter
	}

	return c
}

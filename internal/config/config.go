package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// State backends.
const (
	StateBackendFile      = "file"
	StateBackendFirestore = "firestore"
)

var (
	ErrDiscordTokenRequired   = errors.New("DISCORD_TOKEN environment variable is required")
	ErrFirestoreProjectNeeded = errors.New("FIRESTORE_PROJECT_ID is required when STATE_BACKEND=firestore")
	ErrInvalidStateBackend    = errors.New("invalid STATE_BACKEND (must be file or firestore)")
	ErrInvalidGinMode         = errors.New("invalid GIN_MODE (must be debug, release, or test)")
	ErrInvalidLogLevel        = errors.New("invalid LOG_LEVEL (must be debug, info, warn, or error)")
	ErrNonPositiveDuration    = errors.New("duration must be positive")
	ErrInvalidArchiveDuration = errors.New("THREAD_ARCHIVE_MINUTES must be one of 60, 1440, 4320, 10080")
)

// Config holds all runtime configuration. Bot state (root user, repository,
// registered servers) lives in the persisted state document, not here.
type Config struct {
	// Discord settings
	DiscordToken         string
	ThreadArchiveMinutes int

	// GitHub App settings
	GitHubPrivateKeyPath       string
	GitHubAPIURL               string
	GitHubRetryInitialInterval time.Duration
	GitHubRetryMaxElapsed      time.Duration
	GitHubRequestTimeout       time.Duration

	// State document settings
	StateBackend        string
	StatePath           string
	FirestoreProjectID  string
	FirestoreDatabaseID string
	FirestoreCollection string
	FirestoreDocument   string

	// Server settings
	Port                  string
	GinMode               string
	LogLevel              string
	ServerReadTimeout     time.Duration
	ServerWriteTimeout    time.Duration
	ServerShutdownTimeout time.Duration

	// Processing settings
	EventTimeout time.Duration
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		DiscordToken: os.Getenv("DISCORD_TOKEN"),

		GitHubPrivateKeyPath: getEnvDefault("GITHUB_PRIVATE_KEY_PATH", "private-key.pem"),
		GitHubAPIURL:         os.Getenv("GITHUB_API_URL"),

		StateBackend:        getEnvDefault("STATE_BACKEND", StateBackendFile),
		StatePath:           getEnvDefault("STATE_PATH", "config.json"),
		FirestoreProjectID:  os.Getenv("FIRESTORE_PROJECT_ID"),
		FirestoreDatabaseID: getEnvDefault("FIRESTORE_DATABASE_ID", "(default)"),
		FirestoreCollection: getEnvDefault("FIRESTORE_COLLECTION", "bot_state"),
		FirestoreDocument:   getEnvDefault("FIRESTORE_DOCUMENT", "config"),

		Port:     getEnvDefault("PORT", "8080"),
		GinMode:  getEnvDefault("GIN_MODE", "release"),
		LogLevel: getEnvDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.ThreadArchiveMinutes, err = getEnvInt("THREAD_ARCHIVE_MINUTES", 1440); err != nil {
		return nil, err
	}

	durations := []struct {
		key      string
		target   *time.Duration
		fallback time.Duration
	}{
		{"GITHUB_RETRY_INITIAL_INTERVAL", &cfg.GitHubRetryInitialInterval, 500 * time.Millisecond},
		{"GITHUB_RETRY_MAX_ELAPSED", &cfg.GitHubRetryMaxElapsed, 30 * time.Second},
		{"GITHUB_REQUEST_TIMEOUT", &cfg.GitHubRequestTimeout, 30 * time.Second},
		{"SERVER_READ_TIMEOUT", &cfg.ServerReadTimeout, 10 * time.Second},
		{"SERVER_WRITE_TIMEOUT", &cfg.ServerWriteTimeout, 10 * time.Second},
		{"SERVER_SHUTDOWN_TIMEOUT", &cfg.ServerShutdownTimeout, 10 * time.Second},
		{"EVENT_TIMEOUT", &cfg.EventTimeout, 60 * time.Second},
	}
	for _, d := range durations {
		if *d.target, err = getEnvDuration(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequireDiscord checks the settings only the bot binary needs.
func (c *Config) RequireDiscord() error {
	if c.DiscordToken == "" {
		return ErrDiscordTokenRequired
	}
	return nil
}

// validate checks that configuration values are consistent.
func (c *Config) validate() error {
	switch c.StateBackend {
	case StateBackendFile:
	case StateBackendFirestore:
		if c.FirestoreProjectID == "" {
			return ErrFirestoreProjectNeeded
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStateBackend, c.StateBackend)
	}

	if c.GinMode != "debug" && c.GinMode != "release" && c.GinMode != "test" {
		return fmt.Errorf("%w: %s", ErrInvalidGinMode, c.GinMode)
	}

	if c.LogLevel != "debug" && c.LogLevel != "info" && c.LogLevel != "warn" && c.LogLevel != "error" {
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, c.LogLevel)
	}

	// Discord only accepts these auto-archive durations.
	switch c.ThreadArchiveMinutes {
	case 60, 1440, 4320, 10080:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidArchiveDuration, c.ThreadArchiveMinutes)
	}

	positive := map[string]time.Duration{
		"GITHUB_RETRY_INITIAL_INTERVAL": c.GitHubRetryInitialInterval,
		"GITHUB_RETRY_MAX_ELAPSED":      c.GitHubRetryMaxElapsed,
		"GITHUB_REQUEST_TIMEOUT":        c.GitHubRequestTimeout,
		"SERVER_READ_TIMEOUT":           c.ServerReadTimeout,
		"SERVER_WRITE_TIMEOUT":          c.ServerWriteTimeout,
		"SERVER_SHUTDOWN_TIMEOUT":       c.ServerShutdownTimeout,
		"EVENT_TIMEOUT":                 c.EventTimeout,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%w: %s", ErrNonPositiveDuration, name)
		}
	}

	return nil
}

// getEnvDefault gets an environment variable with a default value.
func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return i, nil
}

// getEnvDuration gets a duration environment variable with a default value.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}
	return d, nil
}

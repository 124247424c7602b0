// Package config holds typed configuration for the Caspian backend.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// BackendConfig holds tunable settings for the backend services.
type BackendConfig struct {
	// DatabasePath overrides the SQLite database location.
	// Empty means the per-user default path.
	DatabasePath string

	// AgentCommand is the executable used to run coding agents.
	// Default: "claude"
	AgentCommand string

	// AgentModel pins the model passed to the agent CLI.
	// Empty lets the agent use its own default.
	AgentModel string

	// WatchDebounceMS is the file-watcher debounce window in milliseconds.
	// Changes within the window are coalesced into one event.
	// Default: 500, Range: 50-10000
	WatchDebounceMS int

	// HealthSweepsPerSecond caps how often repository changes may trigger
	// a full health sweep. Bursts beyond the cap coalesce into one sweep.
	// Default: 2, Range: 1-100
	HealthSweepsPerSecond int

	// MessageHistoryLimit is the default number of chat messages returned
	// per node. Set to 0 for unlimited.
	// Default: 200, Range: 0 or 10-10000
	MessageHistoryLimit int
}

// DefaultBackendConfig returns the default backend configuration.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		AgentCommand:          "claude",
		WatchDebounceMS:       500,
		HealthSweepsPerSecond: 2,
		MessageHistoryLimit:   200,
	}
}

// Validate checks if the configuration has valid values
func (c BackendConfig) Validate() error {
	if c.AgentCommand == "" {
		return fmt.Errorf("agent_command cannot be empty")
	}

	if c.WatchDebounceMS < 50 || c.WatchDebounceMS > 10000 {
		return fmt.Errorf("watch_debounce_ms must be between 50 and 10000 (got %d)",
			c.WatchDebounceMS)
	}

	if c.HealthSweepsPerSecond < 1 || c.HealthSweepsPerSecond > 100 {
		return fmt.Errorf("health_sweeps_per_second must be between 1 and 100 (got %d)",
			c.HealthSweepsPerSecond)
	}

	if c.MessageHistoryLimit < 0 {
		return fmt.Errorf("message_history_limit cannot be negative (got %d)",
			c.MessageHistoryLimit)
	}
	if c.MessageHistoryLimit > 0 && c.MessageHistoryLimit < 10 {
		return fmt.Errorf("message_history_limit must be 0 (unlimited) or >= 10 (got %d)",
			c.MessageHistoryLimit)
	}
	if c.MessageHistoryLimit > 10000 {
		return fmt.Errorf("message_history_limit too large (got %d, max 10000)",
			c.MessageHistoryLimit)
	}

	return nil
}

// String returns a human-readable representation of the config
func (c BackendConfig) String() string {
	return fmt.Sprintf(
		"BackendConfig{DatabasePath: %q, AgentCommand: %q, AgentModel: %q, "+
			"WatchDebounce: %dms, HealthSweeps: %d/s, MessageLimit: %d}",
		c.DatabasePath, c.AgentCommand, c.AgentModel,
		c.WatchDebounceMS, c.HealthSweepsPerSecond, c.MessageHistoryLimit,
	)
}

// BackendConfigFromEnv creates a BackendConfig from environment variables,
// falling back to defaults.
//
// Environment variables:
//   - CASPIAN_DB: SQLite database path
//   - CASPIAN_AGENT_COMMAND: agent executable (default: claude)
//   - CASPIAN_AGENT_MODEL: model passed to the agent CLI
//   - CASPIAN_WATCH_DEBOUNCE_MS: watcher debounce window in ms (default: 500)
//   - CASPIAN_HEALTH_SWEEPS_PER_SECOND: health sweep rate cap (default: 2)
//   - CASPIAN_MESSAGE_HISTORY_LIMIT: chat history page size, 0 for unlimited (default: 200)
//
// Returns an error if any environment variable has an invalid value.
func BackendConfigFromEnv() (BackendConfig, error) {
	cfg := DefaultBackendConfig()

	if err := parseEnvString("CASPIAN_DB", &cfg.DatabasePath); err != nil {
		return cfg, err
	}
	if err := parseEnvString("CASPIAN_AGENT_COMMAND", &cfg.AgentCommand); err != nil {
		return cfg, err
	}
	if err := parseEnvString("CASPIAN_AGENT_MODEL", &cfg.AgentModel); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CASPIAN_WATCH_DEBOUNCE_MS", &cfg.WatchDebounceMS); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CASPIAN_HEALTH_SWEEPS_PER_SECOND", &cfg.HealthSweepsPerSecond); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CASPIAN_MESSAGE_HISTORY_LIMIT", &cfg.MessageHistoryLimit); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid backend configuration from environment: %w", err)
	}

	return cfg, nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

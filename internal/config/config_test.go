package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBackendConfigIsValid(t *testing.T) {
	cfg := DefaultBackendConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "claude", cfg.AgentCommand)
	assert.Equal(t, 500, cfg.WatchDebounceMS)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BackendConfig)
	}{
		{"empty agent command", func(c *BackendConfig) { c.AgentCommand = "" }},
		{"debounce too small", func(c *BackendConfig) { c.WatchDebounceMS = 10 }},
		{"debounce too large", func(c *BackendConfig) { c.WatchDebounceMS = 60000 }},
		{"sweep rate zero", func(c *BackendConfig) { c.HealthSweepsPerSecond = 0 }},
		{"negative message limit", func(c *BackendConfig) { c.MessageHistoryLimit = -1 }},
		{"message limit below floor", func(c *BackendConfig) { c.MessageHistoryLimit = 5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultBackendConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBackendConfigFromEnv(t *testing.T) {
	t.Setenv("CASPIAN_AGENT_COMMAND", "claude-dev")
	t.Setenv("CASPIAN_WATCH_DEBOUNCE_MS", "250")
	t.Setenv("CASPIAN_MESSAGE_HISTORY_LIMIT", "0")

	cfg, err := BackendConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "claude-dev", cfg.AgentCommand)
	assert.Equal(t, 250, cfg.WatchDebounceMS)
	assert.Zero(t, cfg.MessageHistoryLimit)
	// Untouched fields keep defaults.
	assert.Equal(t, 2, cfg.HealthSweepsPerSecond)
}

func TestBackendConfigFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("CASPIAN_WATCH_DEBOUNCE_MS", "not-a-number")
	_, err := BackendConfigFromEnv()
	assert.Error(t, err)

	t.Setenv("CASPIAN_WATCH_DEBOUNCE_MS", "1")
	_, err = BackendConfigFromEnv()
	assert.Error(t, err)
}

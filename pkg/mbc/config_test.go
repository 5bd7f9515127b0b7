package mbc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30, cfg.MaxTurns)
	assert.Equal(t, 4096, cfg.MaxTokensPerTurn)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Model)
	assert.Equal(t, 1.0, cfg.Temperature)
	assert.Equal(t, 120, cfg.TimeoutSeconds)
	assert.Equal(t, 3, cfg.RetryTimes)
	assert.Equal(t, 1000, cfg.RetrySleepMs)
	assert.Equal(t, 180000, cfg.ContextWindowLimit)
	assert.Equal(t, 20000, cfg.ContextReserveTokens)
}

func TestConfig_MapRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTurns = 7
	cfg.Model = "gpt-4o"
	cfg.Temperature = 0.3

	assert.Equal(t, cfg, ConfigFromMap(cfg.ToMap()))
}

func TestConfigFromMap_JSONRoundTrip(t *testing.T) {
	// Numbers come back as float64 after a JSON round-trip; the decoder
	// must accept both representations.
	encoded, err := json.Marshal(DefaultConfig().ToMap())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	assert.Equal(t, DefaultConfig(), ConfigFromMap(decoded))
}

func TestConfigFromMap_MissingKeysFallBack(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{"max_turns": 5})

	assert.Equal(t, 5, cfg.MaxTurns)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultMaxTokensPerTurn, cfg.MaxTokensPerTurn)
}

func TestConfigFromMap_Nil(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFromMap(nil))
}

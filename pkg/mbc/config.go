package mbc

// Default configuration values. They match the engine's documented
// defaults and are applied for any key missing from a flat representation.
const (
	DefaultMaxTurns             = 30
	DefaultMaxTokensPerTurn     = 4096
	DefaultModel                = "claude-sonnet-4-5-20250929"
	DefaultTemperature          = 1.0
	DefaultTimeoutSeconds       = 120
	DefaultRetryTimes           = 3
	DefaultRetrySleepMs         = 1000
	DefaultContextWindowLimit   = 180000
	DefaultContextReserveTokens = 20000
)

// Config holds the per-session tuning knobs. It is immutable for the
// duration of a run and round-trips losslessly through ToMap/ConfigFromMap
// so it can cross a job-queue boundary.
type Config struct {
	MaxTurns             int
	MaxTokensPerTurn     int
	Model                string
	Temperature          float64
	TimeoutSeconds       int
	RetryTimes           int
	RetrySleepMs         int
	ContextWindowLimit   int
	ContextReserveTokens int
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() Config {
	return Config{
		MaxTurns:             DefaultMaxTurns,
		MaxTokensPerTurn:     DefaultMaxTokensPerTurn,
		Model:                DefaultModel,
		Temperature:          DefaultTemperature,
		TimeoutSeconds:       DefaultTimeoutSeconds,
		RetryTimes:           DefaultRetryTimes,
		RetrySleepMs:         DefaultRetrySleepMs,
		ContextWindowLimit:   DefaultContextWindowLimit,
		ContextReserveTokens: DefaultContextReserveTokens,
	}
}

// ToMap flattens the config to a key-value representation suitable for
// JSON serialization across a job boundary.
func (c Config) ToMap() map[string]any {
	return map[string]any{
		"max_turns":              c.MaxTurns,
		"max_tokens_per_turn":    c.MaxTokensPerTurn,
		"model":                  c.Model,
		"temperature":            c.Temperature,
		"timeout_seconds":        c.TimeoutSeconds,
		"retry_times":            c.RetryTimes,
		"retry_sleep_ms":         c.RetrySleepMs,
		"context_window_limit":   c.ContextWindowLimit,
		"context_reserve_tokens": c.ContextReserveTokens,
	}
}

// ConfigFromMap rebuilds a Config from a flat representation. Missing keys
// fall back to defaults. Numeric values may arrive as float64 after a JSON
// round-trip; both int and float64 are accepted.
func ConfigFromMap(data map[string]any) Config {
	c := DefaultConfig()
	if data == nil {
		return c
	}

	c.MaxTurns = mapInt(data, "max_turns", c.MaxTurns)
	c.MaxTokensPerTurn = mapInt(data, "max_tokens_per_turn", c.MaxTokensPerTurn)
	c.Model = mapString(data, "model", c.Model)
	c.Temperature = mapFloat(data, "temperature", c.Temperature)
	c.TimeoutSeconds = mapInt(data, "timeout_seconds", c.TimeoutSeconds)
	c.RetryTimes = mapInt(data, "retry_times", c.RetryTimes)
	c.RetrySleepMs = mapInt(data, "retry_sleep_ms", c.RetrySleepMs)
	c.ContextWindowLimit = mapInt(data, "context_window_limit", c.ContextWindowLimit)
	c.ContextReserveTokens = mapInt(data, "context_reserve_tokens", c.ContextReserveTokens)

	return c
}

func mapInt(data map[string]any, key string, fallback int) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func mapFloat(data map[string]any, key string, fallback float64) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func mapString(data map[string]any, key string, fallback string) string {
	if v, ok := data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Package config defines the engine configuration and its loader.
package config

import (
	"fmt"

	"github.com/undergrace/mbc/pkg/mbc"
)

// Config is the top-level engine configuration.
type Config struct {
	// DefaultProvider selects the backend used when a session does not
	// name one: anthropic, openai, or openrouter.
	DefaultProvider string `json:"default_provider" mapstructure:"default_provider"`

	Providers map[string]ProviderConfig `json:"providers" mapstructure:"providers"`

	Limits         LimitsConfig         `json:"limits" mapstructure:"limits"`
	VisualFeedback VisualFeedbackConfig `json:"visual_feedback" mapstructure:"visual_feedback"`
	Storage        StorageConfig        `json:"storage" mapstructure:"storage"`
	Broadcasting   BroadcastingConfig   `json:"broadcasting" mapstructure:"broadcasting"`
	Logging        LoggingConfig        `json:"logging" mapstructure:"logging"`

	// DataDir holds the database and log files.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ProviderConfig holds one backend's credentials and defaults.
type ProviderConfig struct {
	APIKey       string `json:"api_key" mapstructure:"api_key"`
	BaseURL      string `json:"base_url" mapstructure:"base_url"`
	DefaultModel string `json:"default_model" mapstructure:"default_model"`
	Timeout      int    `json:"timeout" mapstructure:"timeout"`
	RetryTimes   int    `json:"retry_times" mapstructure:"retry_times"`
	RetrySleepMs int    `json:"retry_sleep_ms" mapstructure:"retry_sleep_ms"`

	// OpenRouter attribution headers, optional.
	SiteURL  string `json:"site_url,omitempty" mapstructure:"site_url"`
	SiteName string `json:"site_name,omitempty" mapstructure:"site_name"`
}

// LimitsConfig holds the global execution limits.
type LimitsConfig struct {
	MaxTurnsPerSession    int `json:"max_turns_per_session" mapstructure:"max_turns_per_session"`
	MaxTokensPerTurn      int `json:"max_tokens_per_turn" mapstructure:"max_tokens_per_turn"`
	MaxConcurrentSessions int `json:"max_concurrent_sessions" mapstructure:"max_concurrent_sessions"`
}

// VisualFeedbackConfig controls screenshot feedback injection.
type VisualFeedbackConfig struct {
	Enabled   bool             `json:"enabled" mapstructure:"enabled"`
	Viewports []ViewportConfig `json:"viewports" mapstructure:"viewports"`
}

// ViewportConfig names one capture size.
type ViewportConfig struct {
	Name   string `json:"name" mapstructure:"name"`
	Width  int    `json:"width" mapstructure:"width"`
	Height int    `json:"height" mapstructure:"height"`
	Mobile bool   `json:"mobile" mapstructure:"mobile"`
}

// StorageConfig controls persistence and retention.
type StorageConfig struct {
	DatabasePath   string `json:"database_path" mapstructure:"database_path"`
	PruneAfterDays int    `json:"prune_after_days" mapstructure:"prune_after_days"`
}

// BroadcastingConfig controls the WebSocket event stream.
type BroadcastingConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Port      int    `json:"port" mapstructure:"port"`
	AuthToken string `json:"auth_token" mapstructure:"auth_token"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level        string `json:"level" mapstructure:"level"`
	File         string `json:"file" mapstructure:"file"`
	Console      bool   `json:"console" mapstructure:"console"`
	Pretty       bool   `json:"pretty" mapstructure:"pretty"`
	LogResponses bool   `json:"log_responses" mapstructure:"log_responses"`
}

// Default returns a config with every field at its default.
func Default() *Config {
	return &Config{
		DefaultProvider: "anthropic",
		Providers: map[string]ProviderConfig{
			"anthropic": {
				DefaultModel: mbc.DefaultModel,
				Timeout:      mbc.DefaultTimeoutSeconds,
				RetryTimes:   mbc.DefaultRetryTimes,
				RetrySleepMs: mbc.DefaultRetrySleepMs,
			},
			"openai": {
				DefaultModel: "gpt-4o",
				Timeout:      mbc.DefaultTimeoutSeconds,
				RetryTimes:   mbc.DefaultRetryTimes,
				RetrySleepMs: mbc.DefaultRetrySleepMs,
			},
			"openrouter": {
				DefaultModel: "anthropic/claude-sonnet-4",
				Timeout:      mbc.DefaultTimeoutSeconds,
				RetryTimes:   mbc.DefaultRetryTimes,
				RetrySleepMs: mbc.DefaultRetrySleepMs,
			},
		},
		Limits: LimitsConfig{
			MaxTurnsPerSession:    50,
			MaxTokensPerTurn:      8192,
			MaxConcurrentSessions: 10,
		},
		VisualFeedback: VisualFeedbackConfig{
			Viewports: []ViewportConfig{
				{Name: "desktop", Width: 1440, Height: 900},
				{Name: "mobile", Width: 375, Height: 812, Mobile: true},
			},
		},
		Storage: StorageConfig{
			PruneAfterDays: 30,
		},
		Broadcasting: BroadcastingConfig{
			Port: 8787,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Validate checks the config for inconsistencies that would only surface
// at runtime.
func (c *Config) Validate() error {
	if _, ok := c.Providers[c.DefaultProvider]; !ok {
		return fmt.Errorf("default_provider %q has no providers entry", c.DefaultProvider)
	}
	if c.Limits.MaxTurnsPerSession <= 0 {
		return fmt.Errorf("limits.max_turns_per_session must be positive")
	}
	if c.Limits.MaxTokensPerTurn <= 0 {
		return fmt.Errorf("limits.max_tokens_per_turn must be positive")
	}
	if c.Broadcasting.Enabled && c.Broadcasting.Port <= 0 {
		return fmt.Errorf("broadcasting.port must be positive when broadcasting is enabled")
	}
	for _, vp := range c.VisualFeedback.Viewports {
		if vp.Width <= 0 || vp.Height <= 0 {
			return fmt.Errorf("viewport %q has non-positive dimensions", vp.Name)
		}
	}
	return nil
}

// SessionConfig builds a per-session mbc.Config from the global limits and
// the named provider's defaults.
func (c *Config) SessionConfig(provider string) mbc.Config {
	cfg := mbc.DefaultConfig()
	cfg.MaxTurns = c.Limits.MaxTurnsPerSession
	cfg.MaxTokensPerTurn = c.Limits.MaxTokensPerTurn

	if pc, ok := c.Providers[provider]; ok {
		if pc.DefaultModel != "" {
			cfg.Model = pc.DefaultModel
		}
		if pc.Timeout > 0 {
			cfg.TimeoutSeconds = pc.Timeout
		}
		if pc.RetryTimes > 0 {
			cfg.RetryTimes = pc.RetryTimes
		}
		if pc.RetrySleepMs > 0 {
			cfg.RetrySleepMs = pc.RetrySleepMs
		}
	}
	return cfg
}

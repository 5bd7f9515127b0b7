package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader reads the engine config from disk and the environment.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty path falls back to
// ~/.mbc/mbc.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the configuration. A missing file yields the defaults;
// environment variables with the MBC_ prefix override file values.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("MBC")
	v.AutomaticEnv()

	cfg := Default()

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	l.applyEnvKeys(cfg)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".mbc")
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(cfg.DataDir, "mbc.db")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "mbc.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvKeys injects provider credentials from their conventional
// environment variables when the file left them empty.
func (l *Loader) applyEnvKeys(cfg *Config) {
	envKeys := map[string]string{
		"anthropic":  "ANTHROPIC_API_KEY",
		"openai":     "OPENAI_API_KEY",
		"openrouter": "OPENROUTER_API_KEY",
	}

	for name, envKey := range envKeys {
		pc, ok := cfg.Providers[name]
		if !ok || pc.APIKey != "" {
			continue
		}
		if key := os.Getenv(envKey); key != "" {
			pc.APIKey = key
			cfg.Providers[name] = pc
		}
	}
}

// Save writes the configuration to the config path.
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("default_provider", cfg.DefaultProvider)
	v.Set("providers", cfg.Providers)
	v.Set("limits", cfg.Limits)
	v.Set("visual_feedback", cfg.VisualFeedback)
	v.Set("storage", cfg.Storage)
	v.Set("broadcasting", cfg.Broadcasting)
	v.Set("logging", cfg.Logging)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			return v.SafeWriteConfig()
		}
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Path returns the resolved config file path.
func (l *Loader) Path() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".mbc", "mbc.json"), nil
}

// Load is a convenience wrapper for one-shot loading.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

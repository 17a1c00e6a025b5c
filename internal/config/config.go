// Package config loads and manages nexus configuration.
// Configuration source priority (highest to lowest):
//  1. Environment variables (NEXUS_PROVIDER, NEXUS_MODEL; API keys via the
//     per-provider api_key_env indirection)
//  2. Config file path specified via --config flag
//  3. ~/.nexus/config.yaml (created with defaults on first run)
//
// A .env file in the working directory is loaded before env lookups.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/nexus-ai/nexus/internal/nexuserr"
)

// Defaults holds the global completion defaults.
type Defaults struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Stream      bool    `yaml:"stream"`
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	Enabled bool `yaml:"enabled"`
	// APIKeyEnv names the environment variable holding the credential.
	// The key itself never lives in the config file.
	APIKeyEnv    string `yaml:"api_key_env,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`
	DefaultModel string `yaml:"default_model"`
	// TimeoutSeconds bounds non-streaming calls; only the local provider
	// sets it by default.
	TimeoutSeconds float64 `yaml:"timeout,omitempty"`
}

// Timeout returns the configured bound as a duration (zero when unset).
func (pc *ProviderConfig) Timeout() time.Duration {
	return time.Duration(pc.TimeoutSeconds * float64(time.Second))
}

// APIKey resolves the credential from the configured environment variable.
func (pc *ProviderConfig) APIKey() string {
	if pc.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(pc.APIKeyEnv)
}

// SessionsConfig holds session storage settings.
type SessionsConfig struct {
	Enabled            bool   `yaml:"enabled"`
	StoragePath        string `yaml:"storage_path"`
	TempRetentionHours int    `yaml:"temp_retention_hours"`
}

// PromptsConfig holds prompt library settings.
type PromptsConfig struct {
	StoragePath string `yaml:"storage_path"`
}

// Config is the complete configuration structure for nexus.
type Config struct {
	Version   string                     `yaml:"version"`
	Defaults  Defaults                   `yaml:"defaults"`
	Providers map[string]*ProviderConfig `yaml:"providers"`
	Sessions  SessionsConfig             `yaml:"sessions"`
	Prompts   PromptsConfig              `yaml:"prompts"`

	dir  string // config root, usually ~/.nexus
	path string // config file path
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig(dir string) *Config {
	return &Config{
		Version: "1.0",
		Defaults: Defaults{
			Provider:    "openai",
			Model:       "gpt-4",
			Temperature: 0.7,
			MaxTokens:   2000,
			Stream:      true,
		},
		Providers: map[string]*ProviderConfig{
			"openai": {
				Enabled:      true,
				APIKeyEnv:    "OPENAI_API_KEY",
				DefaultModel: "gpt-4",
			},
			"anthropic": {
				Enabled:      true,
				APIKeyEnv:    "ANTHROPIC_API_KEY",
				DefaultModel: "claude-sonnet-4-20250514",
			},
			"ollama": {
				Enabled:        true,
				BaseURL:        "http://localhost:11434/v1",
				DefaultModel:   "llama3",
				TimeoutSeconds: 30,
			},
			"openrouter": {
				Enabled:      false,
				APIKeyEnv:    "OPENROUTER_API_KEY",
				BaseURL:      "https://openrouter.ai/api/v1",
				DefaultModel: "anthropic/claude-3.5-sonnet",
			},
		},
		Sessions: SessionsConfig{
			Enabled:            true,
			StoragePath:        filepath.Join(dir, "sessions"),
			TempRetentionHours: 24,
		},
		Prompts: PromptsConfig{
			StoragePath: filepath.Join(dir, "prompts"),
		},
		dir: dir,
	}
}

// Load reads the config file, creating it with defaults when absent, and
// applies environment overrides. An empty configPath means ~/.nexus/config.yaml.
func Load(configPath string) (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CategoryConfig, "cannot determine home directory", err)
	}
	dir := filepath.Join(home, ".nexus")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nexuserr.Wrap(nexuserr.CategoryConfig, "cannot create config directory", err)
	}

	if configPath == "" {
		configPath = filepath.Join(dir, "config.yaml")
	}

	cfg := DefaultConfig(dir)
	cfg.path = configPath

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		log.Info().Str("path", configPath).Msg("created default config")
	case err != nil:
		return nil, nexuserr.Wrap(nexuserr.CategoryConfig,
			fmt.Sprintf("cannot read config file %s", configPath), err)
	default:
		if err := applyFileConfig(cfg, data); err != nil {
			return nil, nexuserr.Wrap(nexuserr.CategoryConfig,
				fmt.Sprintf("invalid config file %s", configPath), err).
				WithHint("fix the YAML or delete the file to regenerate defaults")
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyFileConfig overlays the YAML document onto cfg. Provider blocks need
// special handling: unmarshalling a map replaces its entries wholesale, so a
// partial block like `openai: {enabled: false}` would wipe the default
// api_key_env. Each file block is instead decoded onto a copy of the
// default block, touching only the fields the file actually sets.
func applyFileConfig(cfg *Config, data []byte) error {
	var overlay struct {
		Providers map[string]yaml.Node `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return err
	}

	defaults := cfg.Providers
	cfg.Providers = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg.Providers = defaults
		return err
	}
	cfg.Providers = defaults
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	for name, node := range overlay.Providers {
		pc, ok := cfg.Providers[name]
		if !ok {
			pc = &ProviderConfig{}
			cfg.Providers[name] = pc
		}
		if err := node.Decode(pc); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEXUS_PROVIDER"); v != "" {
		cfg.Defaults.Provider = v
	}
	if v := os.Getenv("NEXUS_MODEL"); v != "" {
		cfg.Defaults.Model = v
	}
}

// Save persists the configuration back to its file.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nexuserr.Wrap(nexuserr.CategoryConfig, "failed to marshal config", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return nexuserr.Wrap(nexuserr.CategoryConfig, "failed to write config", err)
	}
	return nil
}

// Dir returns the config root directory (usually ~/.nexus).
func (c *Config) Dir() string { return c.dir }

// CacheDir returns the model-list cache directory.
func (c *Config) CacheDir() string { return filepath.Join(c.dir, "cache") }

// SessionsDir returns the session storage directory.
func (c *Config) SessionsDir() string {
	if c.Sessions.StoragePath != "" {
		return c.Sessions.StoragePath
	}
	return filepath.Join(c.dir, "sessions")
}

// PromptsDir returns the prompt library directory.
func (c *Config) PromptsDir() string {
	if c.Prompts.StoragePath != "" {
		return c.Prompts.StoragePath
	}
	return filepath.Join(c.dir, "prompts")
}

// Provider returns the config block for the named provider, or an empty
// disabled block when the name is unknown.
func (c *Config) Provider(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return &ProviderConfig{}
}

// DefaultProvider returns the global default provider name.
func (c *Config) DefaultProvider() string { return c.Defaults.Provider }

// DefaultModel returns the default model for the named provider, falling back
// to the global default model when the provider has none configured.
func (c *Config) DefaultModel(provider string) string {
	if pc, ok := c.Providers[provider]; ok && pc.DefaultModel != "" {
		return pc.DefaultModel
	}
	return c.Defaults.Model
}

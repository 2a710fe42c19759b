// Package config holds all BrowserNERD configuration, loaded from
// <state-dir>/config.yaml with defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvActivationCode overrides the configured activation credential.
const EnvActivationCode = "BNERD_ACTIVATION_CODE"

// Config holds all BrowserNERD configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// State directory for the database, logs and activity log.
	StateDir string `yaml:"state_dir"`

	// Chrome engine configuration
	Browser BrowserConfig `yaml:"browser"`

	// Download handling
	Downloads DownloadConfig `yaml:"downloads"`

	// Address routing
	Search SearchConfig `yaml:"search"`

	// Activation gate
	Access AccessConfig `yaml:"access"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BrowserConfig configures the embedded Chrome engine.
type BrowserConfig struct {
	// Bin plus extra flags passed to the launcher. Empty bin uses the
	// launcher's own Chrome discovery.
	Launch              []string `yaml:"launch"`
	DebuggerURL         string   `yaml:"debugger_url"`
	Headless            bool     `yaml:"headless"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
	LandingPage         string   `yaml:"landing_page"`
}

// NavigationTimeout returns the navigation timeout.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// DownloadConfig configures the transfer manager.
type DownloadConfig struct {
	// Dir is where completed transfers land.
	Dir string `yaml:"dir"`
	// ProgressTickMs is the synthetic progress estimation interval.
	ProgressTickMs int `yaml:"progress_tick_ms"`
	// RetryMax bounds transfer retries.
	RetryMax int `yaml:"retry_max"`
}

// ProgressTick returns the progress estimation interval.
func (c DownloadConfig) ProgressTick() time.Duration {
	if c.ProgressTickMs == 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.ProgressTickMs) * time.Millisecond
}

// SearchProvider describes one query-URL template.
type SearchProvider struct {
	Key      string `yaml:"key"`
	Label    string `yaml:"label"`
	Template string `yaml:"template"` // %s is replaced by the escaped query
	HomeURL  string `yaml:"home_url"`
}

// SearchConfig configures address-bar search routing.
type SearchConfig struct {
	Default   string           `yaml:"default"`
	Providers []SearchProvider `yaml:"providers"`
}

// Provider returns the provider for key, falling back to the default and
// then to the first configured provider.
func (c SearchConfig) Provider(key string) SearchProvider {
	for _, p := range c.Providers {
		if p.Key == key {
			return p
		}
	}
	for _, p := range c.Providers {
		if p.Key == c.Default {
			return p
		}
	}
	if len(c.Providers) > 0 {
		return c.Providers[0]
	}
	return SearchProvider{}
}

// AccessConfig configures the activation gate.
type AccessConfig struct {
	// Credential is the expected activation code. Comparing a fixed
	// plaintext secret client-side is a weakness inherited from the source
	// design; it stays behind access.CredentialValidator.
	Credential    string        `yaml:"credential"`
	GrantDuration time.Duration `yaml:"grant_duration"`
}

// LoggingConfig configures category file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Name:     "BrowserNERD",
		Version:  "1.0.0",
		StateDir: filepath.Join(home, ".bnerd"),
		Browser: BrowserConfig{
			Headless:            false,
			ViewportWidth:       1280,
			ViewportHeight:      800,
			NavigationTimeoutMs: 30000,
			LandingPage:         "https://www.google.com",
		},
		Downloads: DownloadConfig{
			Dir:            filepath.Join(home, "Downloads"),
			ProgressTickMs: 500,
			RetryMax:       3,
		},
		Search: SearchConfig{
			Default: "google",
			Providers: []SearchProvider{
				{
					Key:      "google",
					Label:    "Google",
					Template: "https://www.google.com/search?q=%s",
					HomeURL:  "https://www.google.com",
				},
				{
					Key:      "duckduckgo",
					Label:    "DuckDuckGo",
					Template: "https://duckduckgo.com/?q=%s",
					HomeURL:  "https://duckduckgo.com",
				},
				{
					// Template inherited as-is from the source configuration;
					// it does not match the label.
					Key:      "brave",
					Label:    "Brave Search",
					Template: "https://www.startpage.com/sp/search?query=%s",
					HomeURL:  "https://search.brave.com",
				},
				{
					// Empty template inherited as-is; queries through this
					// provider produce a malformed URL.
					Key:      "mojeek",
					Label:    "Mojeek",
					Template: "",
					HomeURL:  "https://www.mojeek.com",
				},
			},
		},
		Access: AccessConfig{
			Credential:    "BNERD-TRIAL",
			GrantDuration: 48 * time.Hour,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Path returns the config file location for a state dir.
func Path(stateDir string) string {
	return filepath.Join(stateDir, "config.yaml")
}

// Load reads the config file at path, layered over defaults. A missing file
// yields the defaults. The activation credential honors EnvActivationCode.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if code := os.Getenv(EnvActivationCode); code != "" {
		cfg.Access.Credential = code
	}
	if cfg.Access.GrantDuration <= 0 {
		cfg.Access.GrantDuration = 48 * time.Hour
	}
	return cfg, nil
}

// Save writes the config as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

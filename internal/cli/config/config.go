// Package config provides configuration management for the slawatch CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SLAWATCH_CLI_"

// Config represents the CLI configuration
type Config struct {
	Server ServerConfig `koanf:"server"`
	Auth   AuthConfig   `koanf:"auth"`
	Output OutputConfig `koanf:"output"`
}

// ServerConfig holds server connection settings
type ServerConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Token string `koanf:"token"`
}

// OutputConfig holds output formatting settings
type OutputConfig struct {
	Format string `koanf:"format"` // table, json
	Color  string `koanf:"color"`  // auto, always, never
	Limit  int    `koanf:"limit"`
}

// LoadOptions configures how configuration is loaded
type LoadOptions struct {
	ConfigPath string
	Profile    string
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "http://localhost:8125",
			// Manual cycles run synchronously and can take a while.
			Timeout: 2 * time.Minute,
		},
		Output: OutputConfig{
			Format: "table",
			Color:  "auto",
			Limit:  50,
		},
	}
}

// Load loads configuration from file, then environment, then the named profile.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(ConfigDir(), "cli.toml")
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// SLAWATCH_CLI_SERVER_URL -> server.url
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.Profile != "" {
		profileKey := "profiles." + opts.Profile
		if !k.Exists(profileKey) {
			return nil, fmt.Errorf("profile %q not found in %s", opts.Profile, configPath)
		}
		if err := k.Unmarshal(profileKey, cfg); err != nil {
			return nil, fmt.Errorf("failed to load profile %s: %w", opts.Profile, err)
		}
	}

	return cfg, nil
}

// ConfigDir returns the configuration directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "slawatch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".slawatch"
	}
	return filepath.Join(home, ".config", "slawatch")
}

// Save writes the configuration to path, or to the default location when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(ConfigDir(), "cli.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(confmap{c}, nil); err != nil {
		return err
	}
	data, err := k.Marshal(toml.Parser())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold a token.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// confmap implements koanf.Provider for Config
type confmap struct {
	cfg *Config
}

func (c confmap) ReadBytes() ([]byte, error) { return nil, nil }
func (c confmap) Read() (map[string]any, error) {
	return map[string]any{
		"server": map[string]any{
			"url":     c.cfg.Server.URL,
			"timeout": c.cfg.Server.Timeout.String(),
		},
		"auth": map[string]any{
			"token": c.cfg.Auth.Token,
		},
		"output": map[string]any{
			"format": c.cfg.Output.Format,
			"color":  c.cfg.Output.Color,
			"limit":  c.cfg.Output.Limit,
		},
	}, nil
}

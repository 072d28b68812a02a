package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.URL != "http://localhost:8125" {
		t.Errorf("Default() Server.URL = %q, want %q", cfg.Server.URL, "http://localhost:8125")
	}
	if cfg.Server.Timeout != 2*time.Minute {
		t.Errorf("Default() Server.Timeout = %v, want %v", cfg.Server.Timeout, 2*time.Minute)
	}
	if cfg.Output.Format != "table" {
		t.Errorf("Default() Output.Format = %q, want %q", cfg.Output.Format, "table")
	}
	if cfg.Output.Limit != 50 {
		t.Errorf("Default() Output.Limit = %d, want %d", cfg.Output.Limit, 50)
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/test-config")
	if dir := ConfigDir(); dir != "/tmp/test-config/slawatch" {
		t.Errorf("ConfigDir() with XDG = %q, want %q", dir, "/tmp/test-config/slawatch")
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load(LoadOptions{ConfigPath: "/nonexistent/path/cli.toml"})
	if err != nil {
		t.Fatalf("Load() with nonexistent file should not error, got %v", err)
	}
	if cfg.Server.URL != "http://localhost:8125" {
		t.Errorf("Load() fallback Server.URL = %q, want default", cfg.Server.URL)
	}
}

func TestLoad_WithEnvVars(t *testing.T) {
	t.Setenv("SLAWATCH_CLI_SERVER_URL", "https://sla.example.com")
	t.Setenv("SLAWATCH_CLI_AUTH_TOKEN", "env-token")

	cfg, err := Load(LoadOptions{ConfigPath: "/nonexistent/cli.toml"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "https://sla.example.com" {
		t.Errorf("Load() Server.URL = %q, want env value", cfg.Server.URL)
	}
	if cfg.Auth.Token != "env-token" {
		t.Errorf("Load() Auth.Token = %q, want env value", cfg.Auth.Token)
	}
}

func TestLoad_FileAndProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.toml")
	content := `
[server]
url = "http://monitor.internal:8125"
timeout = "30s"

[output]
format = "json"

[profiles.staging.server]
url = "http://staging.internal:8125"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "http://monitor.internal:8125" {
		t.Errorf("Load() Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("Load() Server.Timeout = %v, want 30s", cfg.Server.Timeout)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Load() Output.Format = %q, want json", cfg.Output.Format)
	}

	cfg, err = Load(LoadOptions{ConfigPath: path, Profile: "staging"})
	if err != nil {
		t.Fatalf("Load(profile) error = %v", err)
	}
	if cfg.Server.URL != "http://staging.internal:8125" {
		t.Errorf("Load(profile) Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Load(profile) kept Output.Format = %q, want json", cfg.Output.Format)
	}

	if _, err := Load(LoadOptions{ConfigPath: path, Profile: "missing"}); err == nil {
		t.Error("Load() with unknown profile should error")
	}
}

func TestSave_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli.toml")

	cfg := Default()
	cfg.Server.URL = "https://sla.example.com"
	cfg.Server.Timeout = 45 * time.Second
	cfg.Auth.Token = "secret"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved config: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("saved config mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(LoadOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server.URL != "https://sla.example.com" || loaded.Server.Timeout != 45*time.Second {
		t.Errorf("Load() Server = %+v", loaded.Server)
	}
	if loaded.Auth.Token != "secret" {
		t.Errorf("Load() Auth.Token = %q", loaded.Auth.Token)
	}
}

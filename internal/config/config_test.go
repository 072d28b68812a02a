package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "risk thresholds out of order",
			mutate:  func(c *Config) { c.Alerts.RiskThresholds.High = 0.95 },
			wantSub: "medium <= high <= critical",
		},
		{
			name:    "risk threshold above one",
			mutate:  func(c *Config) { c.Alerts.RiskThresholds.Critical = 1.2 },
			wantSub: "within (0, 1]",
		},
		{
			name:    "escalation thresholds out of order",
			mutate:  func(c *Config) { c.Alerts.EscalationThresholds.Level1 = 0.9 },
			wantSub: "level1 <= level2 <= level3",
		},
		{
			name:    "empty retry schedule",
			mutate:  func(c *Config) { c.Delivery.RetryDelaySchedule = nil },
			wantSub: "retry_delay_schedule must not be empty",
		},
		{
			name:    "zero max retries",
			mutate:  func(c *Config) { c.Delivery.MaxRetries = 0 },
			wantSub: "max_retries",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.Alerts.MaxAlertsPerHour = 0 },
			wantSub: "max_alerts_per_hour",
		},
		{
			name:    "unknown routing channel",
			mutate:  func(c *Config) { c.Delivery.Routing["critical"] = []string{"pager"} },
			wantSub: "unknown channel type",
		},
		{
			name:    "primary chat is not a chat channel",
			mutate:  func(c *Config) { c.Delivery.PrimaryChat = "telegram" },
			wantSub: "primary_chat",
		},
		{
			name:    "service mode without url",
			mutate:  func(c *Config) { c.Prediction.Mode = "service"; c.Prediction.URL = "" },
			wantSub: "prediction.url",
		},
		{
			name:    "zero main period",
			mutate:  func(c *Config) { c.Scheduler.MainCyclePeriod = 0 },
			wantSub: "main_cycle_period",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() = %q, want substring %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[alerts]
max_alerts_per_hour = 10
suppression_window_minutes = 45

[delivery]
retry_delay_schedule = ["2s", "4s"]
max_retries = 2

[scheduler]
main_cycle_period = "10m"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SLAWATCH_ALERTS__MAX_ALERTS_PER_HOUR", "25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Alerts.MaxAlertsPerHour != 25 {
		t.Errorf("MaxAlertsPerHour = %d, want 25 (env overrides file)", cfg.Alerts.MaxAlertsPerHour)
	}
	if cfg.Alerts.SuppressionWindowMinutes != 45 {
		t.Errorf("SuppressionWindowMinutes = %d, want 45", cfg.Alerts.SuppressionWindowMinutes)
	}
	if cfg.Scheduler.MainCyclePeriod != 10*time.Minute {
		t.Errorf("MainCyclePeriod = %v, want 10m", cfg.Scheduler.MainCyclePeriod)
	}
	if got := cfg.Delivery.RetryDelaySchedule; len(got) != 2 || got[0] != 2*time.Second || got[1] != 4*time.Second {
		t.Errorf("RetryDelaySchedule = %v, want [2s 4s]", got)
	}
	if cfg.Scheduler.CriticalCyclePeriod != 5*time.Minute {
		t.Errorf("CriticalCyclePeriod = %v, want default 5m", cfg.Scheduler.CriticalCyclePeriod)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Alerts.MaxAlertsPerHour != 60 {
		t.Errorf("MaxAlertsPerHour = %d, want 60", cfg.Alerts.MaxAlertsPerHour)
	}
}

func TestRuntimeUpdateApply(t *testing.T) {
	base := Default()
	limit := 5
	period := "20m"
	cfg, err := RuntimeUpdate{
		MaxAlertsPerHour:   &limit,
		MainCyclePeriod:    &period,
		RetryDelaySchedule: []string{"1s", "2s"},
	}.Apply(base)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if cfg.Alerts.MaxAlertsPerHour != 5 {
		t.Errorf("MaxAlertsPerHour = %d, want 5", cfg.Alerts.MaxAlertsPerHour)
	}
	if cfg.Scheduler.MainCyclePeriod != 20*time.Minute {
		t.Errorf("MainCyclePeriod = %v, want 20m", cfg.Scheduler.MainCyclePeriod)
	}
	if base.Alerts.MaxAlertsPerHour != 60 {
		t.Errorf("base config mutated: MaxAlertsPerHour = %d", base.Alerts.MaxAlertsPerHour)
	}

	bad := 0
	if _, err := (RuntimeUpdate{MaxAlertsPerHour: &bad}).Apply(base); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Apply(max=0) error = %v, want ErrInvalidConfig", err)
	}
}

type mapStore map[string]string

func (m mapStore) GetSettingWithDefault(_ context.Context, key, def string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

func (m mapStore) GetBoolSetting(_ context.Context, key string, def bool) bool {
	if v, ok := m[key]; ok {
		return v == "true"
	}
	return def
}

func (m mapStore) GetIntSetting(_ context.Context, key string, def int) int {
	if v, ok := m[key]; ok {
		var n int
		for _, c := range v {
			n = n*10 + int(c-'0')
		}
		return n
	}
	return def
}

func (m mapStore) GetFloat64Setting(_ context.Context, _ string, def float64) float64 {
	return def
}

func (m mapStore) GetDurationSetting(_ context.Context, key string, def time.Duration) time.Duration {
	if v, ok := m[key]; ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func TestApplyRuntimeOverrides(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := mapStore{
		"alerts.max_alerts_per_hour":      "12",
		"delivery.channels_enabled.bot":   "true",
		"delivery.retry_delay_schedule":   "3s,6s",
		"scheduler.critical_cycle_period": "2m",
	}

	cfg := ApplyRuntimeOverrides(context.Background(), Default(), store, log)

	if cfg.Alerts.MaxAlertsPerHour != 12 {
		t.Errorf("MaxAlertsPerHour = %d, want 12", cfg.Alerts.MaxAlertsPerHour)
	}
	if !cfg.Delivery.ChannelsEnabled.Bot {
		t.Error("ChannelsEnabled.Bot = false, want true")
	}
	if got := FormatSchedule(cfg.Delivery.RetryDelaySchedule); got != "3s,6s" {
		t.Errorf("RetryDelaySchedule = %s, want 3s,6s", got)
	}
	if cfg.Scheduler.CriticalCyclePeriod != 2*time.Minute {
		t.Errorf("CriticalCyclePeriod = %v, want 2m", cfg.Scheduler.CriticalCyclePeriod)
	}

	if got := RuntimeSettings(cfg)["alerts.max_alerts_per_hour"]; got != "12" {
		t.Errorf("RuntimeSettings max_alerts_per_hour = %q, want 12", got)
	}
}

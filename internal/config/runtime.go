package config

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// SettingsStore defines the interface for retrieving settings from the database.
type SettingsStore interface {
	GetSettingWithDefault(ctx context.Context, key, defaultValue string) string
	GetBoolSetting(ctx context.Context, key string, defaultValue bool) bool
	GetIntSetting(ctx context.Context, key string, defaultValue int) int
	GetFloat64Setting(ctx context.Context, key string, defaultValue float64) float64
	GetDurationSetting(ctx context.Context, key string, defaultValue time.Duration) time.Duration
}

// ApplyRuntimeOverrides returns a copy of staticConfig with the runtime-tunable
// options replaced by any values stored in the settings table.
func ApplyRuntimeOverrides(ctx context.Context, staticConfig *Config, store SettingsStore, log *slog.Logger) *Config {
	cfg := staticConfig.Clone()

	if store == nil {
		log.Info("no settings store provided, using static configuration only")
		return cfg
	}

	cfg.Alerts.RiskThresholds.Medium = store.GetFloat64Setting(ctx, "alerts.risk_thresholds.medium", cfg.Alerts.RiskThresholds.Medium)
	cfg.Alerts.RiskThresholds.High = store.GetFloat64Setting(ctx, "alerts.risk_thresholds.high", cfg.Alerts.RiskThresholds.High)
	cfg.Alerts.RiskThresholds.Critical = store.GetFloat64Setting(ctx, "alerts.risk_thresholds.critical", cfg.Alerts.RiskThresholds.Critical)
	cfg.Alerts.EscalationThresholds.Level1 = store.GetFloat64Setting(ctx, "alerts.escalation_thresholds.level1", cfg.Alerts.EscalationThresholds.Level1)
	cfg.Alerts.EscalationThresholds.Level2 = store.GetFloat64Setting(ctx, "alerts.escalation_thresholds.level2", cfg.Alerts.EscalationThresholds.Level2)
	cfg.Alerts.EscalationThresholds.Level3 = store.GetFloat64Setting(ctx, "alerts.escalation_thresholds.level3", cfg.Alerts.EscalationThresholds.Level3)
	cfg.Alerts.SuppressionWindowMinutes = store.GetIntSetting(ctx, "alerts.suppression_window_minutes", cfg.Alerts.SuppressionWindowMinutes)
	cfg.Alerts.MaxAlertsPerHour = store.GetIntSetting(ctx, "alerts.max_alerts_per_hour", cfg.Alerts.MaxAlertsPerHour)

	cfg.Delivery.ChannelsEnabled.Chat = store.GetBoolSetting(ctx, "delivery.channels_enabled.chat", cfg.Delivery.ChannelsEnabled.Chat)
	cfg.Delivery.ChannelsEnabled.Bot = store.GetBoolSetting(ctx, "delivery.channels_enabled.bot", cfg.Delivery.ChannelsEnabled.Bot)
	cfg.Delivery.ChannelsEnabled.Email = store.GetBoolSetting(ctx, "delivery.channels_enabled.email", cfg.Delivery.ChannelsEnabled.Email)
	cfg.Delivery.MaxRetries = store.GetIntSetting(ctx, "delivery.max_retries", cfg.Delivery.MaxRetries)
	if raw := store.GetSettingWithDefault(ctx, "delivery.retry_delay_schedule", ""); raw != "" {
		if schedule, err := ParseSchedule(raw); err == nil {
			cfg.Delivery.RetryDelaySchedule = schedule
		} else {
			log.Warn("ignoring stored retry schedule", "value", raw, "error", err)
		}
	}

	cfg.Scheduler.MainCyclePeriod = store.GetDurationSetting(ctx, "scheduler.main_cycle_period", cfg.Scheduler.MainCyclePeriod)
	cfg.Scheduler.CriticalCyclePeriod = store.GetDurationSetting(ctx, "scheduler.critical_cycle_period", cfg.Scheduler.CriticalCyclePeriod)

	log.Info("runtime configuration loaded (static config + database settings)")
	return cfg
}

// RuntimeUpdate is a partial update of the runtime-tunable options. Nil fields
// are left unchanged.
type RuntimeUpdate struct {
	RiskThresholds           *RiskThresholds       `json:"risk_thresholds,omitempty"`
	EscalationThresholds     *EscalationThresholds `json:"escalation_thresholds,omitempty"`
	SuppressionWindowMinutes *int                  `json:"suppression_window_minutes,omitempty"`
	MaxAlertsPerHour         *int                  `json:"max_alerts_per_hour,omitempty"`
	ChannelsEnabled          *ChannelsEnabled      `json:"channels_enabled,omitempty"`
	MainCyclePeriod          *string               `json:"main_cycle_period,omitempty"`
	CriticalCyclePeriod      *string               `json:"critical_cycle_period,omitempty"`
	RetryDelaySchedule       []string              `json:"retry_delay_schedule,omitempty"`
	MaxRetries               *int                  `json:"max_retries,omitempty"`
}

// Apply returns a validated copy of base with the update applied.
func (u RuntimeUpdate) Apply(base *Config) (*Config, error) {
	cfg := base.Clone()

	if u.RiskThresholds != nil {
		cfg.Alerts.RiskThresholds = *u.RiskThresholds
	}
	if u.EscalationThresholds != nil {
		cfg.Alerts.EscalationThresholds = *u.EscalationThresholds
	}
	if u.SuppressionWindowMinutes != nil {
		cfg.Alerts.SuppressionWindowMinutes = *u.SuppressionWindowMinutes
	}
	if u.MaxAlertsPerHour != nil {
		cfg.Alerts.MaxAlertsPerHour = *u.MaxAlertsPerHour
	}
	if u.ChannelsEnabled != nil {
		cfg.Delivery.ChannelsEnabled = *u.ChannelsEnabled
	}
	if u.MaxRetries != nil {
		cfg.Delivery.MaxRetries = *u.MaxRetries
	}
	if u.MainCyclePeriod != nil {
		d, err := time.ParseDuration(*u.MainCyclePeriod)
		if err != nil {
			return nil, fmt.Errorf("%w: main_cycle_period: %v", ErrInvalidConfig, err)
		}
		cfg.Scheduler.MainCyclePeriod = d
	}
	if u.CriticalCyclePeriod != nil {
		d, err := time.ParseDuration(*u.CriticalCyclePeriod)
		if err != nil {
			return nil, fmt.Errorf("%w: critical_cycle_period: %v", ErrInvalidConfig, err)
		}
		cfg.Scheduler.CriticalCyclePeriod = d
	}
	if u.RetryDelaySchedule != nil {
		schedule, err := ParseSchedule(strings.Join(u.RetryDelaySchedule, ","))
		if err != nil {
			return nil, err
		}
		cfg.Delivery.RetryDelaySchedule = schedule
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RuntimeSettings flattens the runtime-tunable options of cfg into settings rows.
func RuntimeSettings(cfg *Config) map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return map[string]string{
		"alerts.risk_thresholds.medium":       f(cfg.Alerts.RiskThresholds.Medium),
		"alerts.risk_thresholds.high":         f(cfg.Alerts.RiskThresholds.High),
		"alerts.risk_thresholds.critical":     f(cfg.Alerts.RiskThresholds.Critical),
		"alerts.escalation_thresholds.level1": f(cfg.Alerts.EscalationThresholds.Level1),
		"alerts.escalation_thresholds.level2": f(cfg.Alerts.EscalationThresholds.Level2),
		"alerts.escalation_thresholds.level3": f(cfg.Alerts.EscalationThresholds.Level3),
		"alerts.suppression_window_minutes":   strconv.Itoa(cfg.Alerts.SuppressionWindowMinutes),
		"alerts.max_alerts_per_hour":          strconv.Itoa(cfg.Alerts.MaxAlertsPerHour),
		"delivery.channels_enabled.chat":      strconv.FormatBool(cfg.Delivery.ChannelsEnabled.Chat),
		"delivery.channels_enabled.bot":       strconv.FormatBool(cfg.Delivery.ChannelsEnabled.Bot),
		"delivery.channels_enabled.email":     strconv.FormatBool(cfg.Delivery.ChannelsEnabled.Email),
		"delivery.max_retries":                strconv.Itoa(cfg.Delivery.MaxRetries),
		"delivery.retry_delay_schedule":       FormatSchedule(cfg.Delivery.RetryDelaySchedule),
		"scheduler.main_cycle_period":         cfg.Scheduler.MainCyclePeriod.String(),
		"scheduler.critical_cycle_period":     cfg.Scheduler.CriticalCyclePeriod.String(),
	}
}

// ParseSchedule parses a comma separated list of durations such as "1s,5s,15s".
func ParseSchedule(raw string) ([]time.Duration, error) {
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, fmt.Errorf("%w: retry_delay_schedule: %v", ErrInvalidConfig, err)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: retry_delay_schedule must not be empty", ErrInvalidConfig)
	}
	return out, nil
}

// FormatSchedule is the inverse of ParseSchedule.
func FormatSchedule(schedule []time.Duration) string {
	parts := make([]string, len(schedule))
	for i, d := range schedule {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

// Package config loads and validates the slawatch server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ErrInvalidConfig is returned (wrapped) by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

const envPrefix = "SLAWATCH_"

// Config is the complete server configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server" json:"server"`
	Logging    LoggingConfig    `koanf:"logging" json:"logging"`
	SQLite     SQLiteConfig     `koanf:"sqlite" json:"sqlite"`
	Tickets    TicketsConfig    `koanf:"tickets" json:"tickets"`
	Prediction PredictionConfig `koanf:"prediction" json:"prediction"`
	Alerts     AlertsConfig     `koanf:"alerts" json:"alerts"`
	Scheduler  SchedulerConfig  `koanf:"scheduler" json:"scheduler"`
	Delivery   DeliveryConfig   `koanf:"delivery" json:"delivery"`
	Channels   ChannelsConfig   `koanf:"channels" json:"channels"`
	Redis      RedisConfig      `koanf:"redis" json:"redis"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address      string        `koanf:"address" json:"address"`
	ReadTimeout  time.Duration `koanf:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" json:"write_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level"`   // debug, info
	Format string `koanf:"format" json:"format"` // text, json
}

// SQLiteConfig holds the history/settings database location.
// An empty path keeps history in memory.
type SQLiteConfig struct {
	Path string `koanf:"path" json:"path"`
}

// TicketsConfig selects and configures the ticket source adapter.
type TicketsConfig struct {
	Source   string        `koanf:"source" json:"source"` // http, postgres
	BaseURL  string        `koanf:"base_url" json:"base_url"`
	Token    string        `koanf:"token" json:"-"`
	DSN      string        `koanf:"dsn" json:"-"`
	Timeout  time.Duration `koanf:"timeout" json:"timeout"`
	Statuses []string      `koanf:"statuses" json:"statuses"`
}

// PredictionConfig configures the breach-probability predictor.
type PredictionConfig struct {
	Mode            string        `koanf:"mode" json:"mode"` // service, rules
	URL             string        `koanf:"url" json:"url"`
	Timeout         time.Duration `koanf:"timeout" json:"timeout"`
	MaxConcurrency  int           `koanf:"max_concurrency" json:"max_concurrency"`
	FallbackToRules bool          `koanf:"fallback_to_rules" json:"fallback_to_rules"`
}

// RiskThresholds are the breach probability cut-offs for risk alerts.
type RiskThresholds struct {
	Medium   float64 `koanf:"medium" json:"medium"`
	High     float64 `koanf:"high" json:"high"`
	Critical float64 `koanf:"critical" json:"critical"`
}

// EscalationThresholds are the breach probability cut-offs for escalation levels 1 to 3.
type EscalationThresholds struct {
	Level1 float64 `koanf:"level1" json:"level1"`
	Level2 float64 `koanf:"level2" json:"level2"`
	Level3 float64 `koanf:"level3" json:"level3"`
}

// AlertsConfig holds alert generation, suppression and budget settings.
type AlertsConfig struct {
	RiskThresholds           RiskThresholds       `koanf:"risk_thresholds" json:"risk_thresholds"`
	EscalationThresholds     EscalationThresholds `koanf:"escalation_thresholds" json:"escalation_thresholds"`
	ImminentWindowMinutes    int                  `koanf:"imminent_window_minutes" json:"imminent_window_minutes"`
	SuppressionWindowMinutes int                  `koanf:"suppression_window_minutes" json:"suppression_window_minutes"`
	SuppressionStore         string               `koanf:"suppression_store" json:"suppression_store"` // memory, redis
	MaxAlertsPerHour         int                  `koanf:"max_alerts_per_hour" json:"max_alerts_per_hour"`
	HistoryRetention         time.Duration        `koanf:"history_retention" json:"history_retention"`
}

// SchedulerConfig holds trigger periods.
type SchedulerConfig struct {
	MainCyclePeriod     time.Duration `koanf:"main_cycle_period" json:"main_cycle_period"`
	CriticalCyclePeriod time.Duration `koanf:"critical_cycle_period" json:"critical_cycle_period"`
	RetryPeriod         time.Duration `koanf:"retry_period" json:"retry_period"`
	CleanupPeriod       time.Duration `koanf:"cleanup_period" json:"cleanup_period"`
	JitterPercent       int           `koanf:"jitter_percent" json:"jitter_percent"`
}

// ChannelsEnabled toggles each channel type.
type ChannelsEnabled struct {
	Chat  bool `koanf:"chat" json:"chat"`
	Bot   bool `koanf:"bot" json:"bot"`
	Email bool `koanf:"email" json:"email"`
}

// DeliveryConfig holds routing and retry settings.
type DeliveryConfig struct {
	ChannelsEnabled    ChannelsEnabled     `koanf:"channels_enabled" json:"channels_enabled"`
	// Routing maps a severity to route targets: a channel type (chat, bot, email),
	// a channel ID (slack, webhook, telegram, email) or primary_chat.
	Routing            map[string][]string `koanf:"routing" json:"routing"`
	PrimaryChat        string              `koanf:"primary_chat" json:"primary_chat"`
	RetryDelaySchedule []time.Duration     `koanf:"retry_delay_schedule" json:"retry_delay_schedule"`
	MaxRetries         int                 `koanf:"max_retries" json:"max_retries"`
	SendTimeout        time.Duration       `koanf:"send_timeout" json:"send_timeout"`
}

// ChannelsConfig holds per-transport credentials.
type ChannelsConfig struct {
	Slack    SlackConfig    `koanf:"slack" json:"slack"`
	Webhook  WebhookConfig  `koanf:"webhook" json:"webhook"`
	Telegram TelegramConfig `koanf:"telegram" json:"telegram"`
	Email    EmailConfig    `koanf:"email" json:"email"`
}

// SlackConfig configures the chat webhook channel.
type SlackConfig struct {
	WebhookURL string `koanf:"webhook_url" json:"-"`
	Channel    string `koanf:"channel" json:"channel"`
}

// WebhookConfig configures a generic JSON webhook registered as a chat channel.
type WebhookConfig struct {
	URL     string            `koanf:"url" json:"url"`
	Headers map[string]string `koanf:"headers" json:"-"`
}

// TelegramConfig configures the bot channel.
type TelegramConfig struct {
	BotToken string `koanf:"bot_token" json:"-"`
	ChatID   string `koanf:"chat_id" json:"chat_id"`
	APIURL   string `koanf:"api_url" json:"api_url"`
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Host                  string   `koanf:"host" json:"host"`
	Port                  int      `koanf:"port" json:"port"`
	Username              string   `koanf:"username" json:"-"`
	Password              string   `koanf:"password" json:"-"`
	From                  string   `koanf:"from" json:"from"`
	To                    []string `koanf:"to" json:"to"`
	Security              string   `koanf:"security" json:"security"` // none, starttls, tls
	TLSInsecureSkipVerify bool     `koanf:"tls_insecure_skip_verify" json:"tls_insecure_skip_verify"`
}

// RedisConfig configures the shared suppression store.
type RedisConfig struct {
	Address  string `koanf:"address" json:"address"`
	Password string `koanf:"password" json:"-"`
	DB       int    `koanf:"db" json:"db"`
	Prefix   string `koanf:"prefix" json:"prefix"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8125",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tickets: TicketsConfig{
			Source:   "http",
			BaseURL:  "http://localhost:8000/api",
			Timeout:  15 * time.Second,
			Statuses: []string{"open", "in_progress", "pending_customer"},
		},
		Prediction: PredictionConfig{
			Mode:            "rules",
			URL:             "http://localhost:8001/ai/predict-sla",
			Timeout:         10 * time.Second,
			MaxConcurrency:  8,
			FallbackToRules: true,
		},
		Alerts: AlertsConfig{
			RiskThresholds:           RiskThresholds{Medium: 0.6, High: 0.8, Critical: 0.9},
			EscalationThresholds:     EscalationThresholds{Level1: 0.7, Level2: 0.85, Level3: 0.95},
			ImminentWindowMinutes:    30,
			SuppressionWindowMinutes: 30,
			SuppressionStore:         "memory",
			MaxAlertsPerHour:         60,
			HistoryRetention:         30 * 24 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			MainCyclePeriod:     15 * time.Minute,
			CriticalCyclePeriod: 5 * time.Minute,
			RetryPeriod:         10 * time.Second,
			CleanupPeriod:       24 * time.Hour,
			JitterPercent:       5,
		},
		Delivery: DeliveryConfig{
			ChannelsEnabled: ChannelsEnabled{Chat: true},
			Routing: map[string][]string{
				"critical": {"chat", "bot", "email"},
				"error":    {"chat"},
				"warning":  {"primary_chat"},
				"info":     {"primary_chat"},
			},
			PrimaryChat: "slack",
			RetryDelaySchedule: []time.Duration{
				time.Second, 5 * time.Second, 15 * time.Second, time.Minute, 5 * time.Minute,
			},
			MaxRetries:  5,
			SendTimeout: 10 * time.Second,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
			Email:    EmailConfig{Port: 587, Security: "starttls"},
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			Prefix:  "slawatch",
		},
	}
}

// Load reads defaults, then the TOML file at path (if it exists), then SLAWATCH_
// environment variables. Nested keys use a double underscore, e.g.
// SLAWATCH_ALERTS__MAX_ALERTS_PER_HOUR.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// envToKey maps SLAWATCH_ALERTS__MAX_ALERTS_PER_HOUR to alerts.max_alerts_per_hour.
func envToKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Tickets.Statuses = append([]string(nil), c.Tickets.Statuses...)
	out.Delivery.RetryDelaySchedule = append([]time.Duration(nil), c.Delivery.RetryDelaySchedule...)
	out.Delivery.Routing = make(map[string][]string, len(c.Delivery.Routing))
	for k, v := range c.Delivery.Routing {
		out.Delivery.Routing[k] = append([]string(nil), v...)
	}
	out.Channels.Email.To = append([]string(nil), c.Channels.Email.To...)
	if c.Channels.Webhook.Headers != nil {
		out.Channels.Webhook.Headers = make(map[string]string, len(c.Channels.Webhook.Headers))
		for k, v := range c.Channels.Webhook.Headers {
			out.Channels.Webhook.Headers[k] = v
		}
	}
	return &out
}

var (
	validSeverities   = map[string]bool{"info": true, "warning": true, "error": true, "critical": true}
	validRouteTargets = map[string]bool{
		"chat": true, "bot": true, "email": true,
		"slack": true, "webhook": true, "telegram": true,
		"primary_chat": true,
	}
	validChatChannels = map[string]bool{"slack": true, "webhook": true}
	validStatuses     = map[string]bool{"open": true, "in_progress": true, "pending_customer": true, "resolved": true, "closed": true}
)

// Validate checks the configuration and returns every problem found, wrapped in
// ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	rt := c.Alerts.RiskThresholds
	if !inUnit(rt.Medium) || !inUnit(rt.High) || !inUnit(rt.Critical) {
		add("alerts.risk_thresholds must be within (0, 1]")
	} else if rt.Medium > rt.High || rt.High > rt.Critical {
		add("alerts.risk_thresholds must satisfy medium <= high <= critical")
	}

	et := c.Alerts.EscalationThresholds
	if !inUnit(et.Level1) || !inUnit(et.Level2) || !inUnit(et.Level3) {
		add("alerts.escalation_thresholds must be within (0, 1]")
	} else if et.Level1 > et.Level2 || et.Level2 > et.Level3 {
		add("alerts.escalation_thresholds must satisfy level1 <= level2 <= level3")
	}

	if c.Alerts.ImminentWindowMinutes < 0 {
		add("alerts.imminent_window_minutes must not be negative")
	}
	if c.Alerts.SuppressionWindowMinutes < 0 {
		add("alerts.suppression_window_minutes must not be negative")
	}
	if c.Alerts.MaxAlertsPerHour <= 0 {
		add("alerts.max_alerts_per_hour must be positive")
	}
	switch c.Alerts.SuppressionStore {
	case "memory":
	case "redis":
		if c.Redis.Address == "" {
			add("redis.address is required when alerts.suppression_store is redis")
		}
	default:
		add("alerts.suppression_store must be memory or redis, got %q", c.Alerts.SuppressionStore)
	}
	if c.Alerts.HistoryRetention < 0 {
		add("alerts.history_retention must not be negative")
	}

	if c.Scheduler.MainCyclePeriod <= 0 {
		add("scheduler.main_cycle_period must be positive")
	}
	if c.Scheduler.CriticalCyclePeriod <= 0 {
		add("scheduler.critical_cycle_period must be positive")
	}
	if c.Scheduler.RetryPeriod <= 0 {
		add("scheduler.retry_period must be positive")
	}
	if c.Scheduler.CleanupPeriod <= 0 {
		add("scheduler.cleanup_period must be positive")
	}
	if c.Scheduler.JitterPercent < 0 || c.Scheduler.JitterPercent > 50 {
		add("scheduler.jitter_percent must be between 0 and 50")
	}

	if len(c.Delivery.RetryDelaySchedule) == 0 {
		add("delivery.retry_delay_schedule must not be empty")
	}
	for i, d := range c.Delivery.RetryDelaySchedule {
		if d <= 0 {
			add("delivery.retry_delay_schedule[%d] must be positive", i)
		}
	}
	if c.Delivery.MaxRetries < 1 {
		add("delivery.max_retries must be at least 1")
	}
	if c.Delivery.SendTimeout <= 0 {
		add("delivery.send_timeout must be positive")
	}
	for sev, types := range c.Delivery.Routing {
		if !validSeverities[sev] {
			add("delivery.routing has unknown severity %q", sev)
		}
		for _, t := range types {
			if !validRouteTargets[t] {
				add("delivery.routing.%s has unknown channel type or id %q", sev, t)
			}
		}
	}
	if c.Delivery.PrimaryChat != "" && !validChatChannels[c.Delivery.PrimaryChat] {
		add("delivery.primary_chat must be slack or webhook, got %q", c.Delivery.PrimaryChat)
	}

	switch c.Prediction.Mode {
	case "rules":
	case "service":
		if c.Prediction.URL == "" {
			add("prediction.url is required when prediction.mode is service")
		}
	default:
		add("prediction.mode must be service or rules, got %q", c.Prediction.Mode)
	}
	if c.Prediction.Timeout <= 0 {
		add("prediction.timeout must be positive")
	}
	if c.Prediction.MaxConcurrency < 1 {
		add("prediction.max_concurrency must be at least 1")
	}

	switch c.Tickets.Source {
	case "http":
		if c.Tickets.BaseURL == "" {
			add("tickets.base_url is required when tickets.source is http")
		}
	case "postgres":
		if c.Tickets.DSN == "" {
			add("tickets.dsn is required when tickets.source is postgres")
		}
	default:
		add("tickets.source must be http or postgres, got %q", c.Tickets.Source)
	}
	for _, s := range c.Tickets.Statuses {
		if !validStatuses[s] {
			add("tickets.statuses has unknown status %q", s)
		}
	}

	if c.Delivery.ChannelsEnabled.Email && c.Channels.Email.Host == "" {
		add("channels.email.host is required when email delivery is enabled")
	}
	if c.Delivery.ChannelsEnabled.Bot && (c.Channels.Telegram.BotToken == "" || c.Channels.Telegram.ChatID == "") {
		add("channels.telegram.bot_token and chat_id are required when bot delivery is enabled")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}

func inUnit(v float64) bool {
	return v > 0 && v <= 1
}

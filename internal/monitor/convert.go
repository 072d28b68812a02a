package monitor

import (
	"time"

	"github.com/mr-karan/slawatch/internal/alerts"
	"github.com/mr-karan/slawatch/internal/config"
	"github.com/mr-karan/slawatch/internal/delivery"
	"github.com/mr-karan/slawatch/pkg/models"
)

// GeneratorThresholds maps the alert rule settings of cfg.
func GeneratorThresholds(cfg *config.Config) alerts.Thresholds {
	return alerts.Thresholds{
		Medium:                cfg.Alerts.RiskThresholds.Medium,
		High:                  cfg.Alerts.RiskThresholds.High,
		Critical:              cfg.Alerts.RiskThresholds.Critical,
		ImminentWindowMinutes: cfg.Alerts.ImminentWindowMinutes,
	}
}

// EscalationThresholds maps the escalation settings of cfg.
func EscalationThresholds(cfg *config.Config) alerts.EscalationThresholds {
	return alerts.EscalationThresholds{
		Level1: cfg.Alerts.EscalationThresholds.Level1,
		Level2: cfg.Alerts.EscalationThresholds.Level2,
		Level3: cfg.Alerts.EscalationThresholds.Level3,
	}
}

// SuppressionWindow returns the configured suppression window.
func SuppressionWindow(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Alerts.SuppressionWindowMinutes) * time.Minute
}

// EnabledChannels maps the channel toggles of cfg.
func EnabledChannels(cfg *config.Config) map[models.ChannelType]bool {
	return map[models.ChannelType]bool{
		models.ChannelChat:  cfg.Delivery.ChannelsEnabled.Chat,
		models.ChannelBot:   cfg.Delivery.ChannelsEnabled.Bot,
		models.ChannelEmail: cfg.Delivery.ChannelsEnabled.Email,
	}
}

// Routing maps the severity routing of cfg, falling back to the default table.
func Routing(cfg *config.Config) map[models.AlertSeverity][]string {
	if len(cfg.Delivery.Routing) == 0 {
		return delivery.DefaultRouting()
	}
	out := make(map[models.AlertSeverity][]string, len(cfg.Delivery.Routing))
	for sev, targets := range cfg.Delivery.Routing {
		out[models.AlertSeverity(sev)] = append([]string(nil), targets...)
	}
	return out
}

// RetryPolicy maps the retry settings of cfg.
func RetryPolicy(cfg *config.Config) delivery.Policy {
	return delivery.Policy{
		Schedule:   append([]time.Duration(nil), cfg.Delivery.RetryDelaySchedule...),
		MaxRetries: cfg.Delivery.MaxRetries,
	}
}

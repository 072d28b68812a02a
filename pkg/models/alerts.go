package models

import "time"

// AlertKind identifies why an alert was raised for a ticket.
type AlertKind string

const (
	AlertKindRiskDetected       AlertKind = "risk_detected"
	AlertKindEscalationRequired AlertKind = "escalation_required"
	AlertKindBreachImminent     AlertKind = "breach_imminent"
	AlertKindBreachOccurred     AlertKind = "breach_occurred"
)

// IsValid reports whether k is a known alert kind.
func (k AlertKind) IsValid() bool {
	switch k {
	case AlertKindRiskDetected, AlertKindEscalationRequired, AlertKindBreachImminent, AlertKindBreachOccurred:
		return true
	default:
		return false
	}
}

// AlertSeverity is a severity indicator used for routing and display.
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityError    AlertSeverity = "error"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Rank orders severities so that callers can pick the more severe of two alerts.
func (s AlertSeverity) Rank() int {
	switch s {
	case AlertSeverityInfo:
		return 1
	case AlertSeverityWarning:
		return 2
	case AlertSeverityError:
		return 3
	case AlertSeverityCritical:
		return 4
	default:
		return 0
	}
}

// IsValid reports whether s is a known severity.
func (s AlertSeverity) IsValid() bool {
	return s.Rank() > 0
}

// Alert is a single notification raised for a ticket during a monitoring cycle.
// Once SentAt is set the alert is treated as immutable.
type Alert struct {
	ID               string        `json:"id"`
	TicketID         string        `json:"ticket_id"`
	Kind             AlertKind     `json:"kind"`
	Severity         AlertSeverity `json:"severity"`
	RiskScore        float64       `json:"risk_score"`
	MinutesRemaining int           `json:"minutes_remaining"`
	Message          string        `json:"message"`
	Recommendations  []string      `json:"recommendations,omitempty"`
	RiskFactors      []string      `json:"risk_factors,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	SentAt           *time.Time    `json:"sent_at,omitempty"`
	Channels         []ChannelType `json:"channels,omitempty"`
	EscalationLevel  int           `json:"escalation_level"`
}

// EscalationTrigger records who caused an escalation.
type EscalationTrigger string

const (
	EscalationTriggerSystem EscalationTrigger = "system"
	EscalationTriggerUser   EscalationTrigger = "user"
)

// EscalationAction is a single forward transition of a ticket's escalation level.
// ToLevel is always greater than FromLevel.
type EscalationAction struct {
	TicketID  string            `json:"ticket_id"`
	FromLevel int               `json:"from_level"`
	ToLevel   int               `json:"to_level"`
	Reason    string            `json:"reason"`
	Trigger   EscalationTrigger `json:"trigger"`
	Timestamp time.Time         `json:"timestamp"`
}

// SuppressionRecord tracks the last time an alert of a given kind was sent for a ticket.
type SuppressionRecord struct {
	TicketID string    `json:"ticket_id"`
	Kind     AlertKind `json:"kind"`
	LastSent time.Time `json:"last_sent"`
	Count    int       `json:"count"`
	// Level is the escalation level carried by the last alert sent for the pair.
	Level int `json:"level,omitempty"`
}

// AlertFilter narrows alert history queries. Zero values are ignored.
type AlertFilter struct {
	TicketID string        `json:"ticket_id,omitempty"`
	Severity AlertSeverity `json:"severity,omitempty"`
	From     time.Time     `json:"from,omitempty"`
	To       time.Time     `json:"to,omitempty"`
	Limit    int           `json:"limit,omitempty"`
}

// DefaultAlertHistoryLimit controls the number of history entries returned when unspecified.
const DefaultAlertHistoryLimit = 50

package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mr-karan/slawatch/pkg/models"
)

// Thresholds controls which risk scores raise alerts.
type Thresholds struct {
	Medium   float64
	High     float64
	Critical float64
	// ImminentWindowMinutes is how close to the deadline a critical-priority
	// ticket must be to raise breach_imminent regardless of risk.
	ImminentWindowMinutes int
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 0.6, High: 0.8, Critical: 0.9, ImminentWindowMinutes: 30}
}

// kindOrder fixes the output order of Generate.
var kindOrder = []models.AlertKind{
	models.AlertKindBreachOccurred,
	models.AlertKindBreachImminent,
	models.AlertKindRiskDetected,
}

// Generate applies the alert rules to one assessed ticket. At most one alert per
// kind is returned; when two rules produce the same kind the more severe wins.
// Generate has no side effects.
func Generate(t models.Ticket, a models.RiskAssessment, th Thresholds, now time.Time) []models.Alert {
	byKind := make(map[models.AlertKind]models.Alert, 3)
	add := func(kind models.AlertKind, sev models.AlertSeverity, msg string) {
		if prev, ok := byKind[kind]; ok && prev.Severity.Rank() >= sev.Rank() {
			return
		}
		byKind[kind] = newAlert(t, a, kind, sev, msg, now)
	}

	mins := a.MinutesRemaining
	if mins <= 0 {
		add(models.AlertKindBreachOccurred, models.AlertSeverityCritical,
			fmt.Sprintf("Ticket %s has exceeded its SLA deadline.", t.ID))
	}

	if t.Priority == models.PriorityCritical && mins > 0 && mins <= th.ImminentWindowMinutes {
		add(models.AlertKindBreachImminent, models.AlertSeverityError,
			fmt.Sprintf("Critical ticket %s will breach its SLA in %d minutes.", t.ID, mins))
	}

	risk := a.BreachProbability
	switch {
	case risk >= th.Critical:
		add(models.AlertKindBreachImminent, models.AlertSeverityCritical,
			fmt.Sprintf("Ticket %s is about to breach its SLA (%.0f%% breach probability).", t.ID, risk*100))
	case risk >= th.High:
		add(models.AlertKindRiskDetected, models.AlertSeverityError,
			fmt.Sprintf("Ticket %s is at high risk of SLA breach (%.0f%%).", t.ID, risk*100))
	case risk >= th.Medium:
		add(models.AlertKindRiskDetected, models.AlertSeverityWarning,
			fmt.Sprintf("Ticket %s is at elevated risk of SLA breach (%.0f%%).", t.ID, risk*100))
	}

	out := make([]models.Alert, 0, len(byKind))
	for _, k := range kindOrder {
		if al, ok := byKind[k]; ok {
			out = append(out, al)
		}
	}
	return out
}

// EscalationAlert converts an escalation action into its notification.
func EscalationAlert(t models.Ticket, a models.RiskAssessment, action models.EscalationAction, now time.Time) models.Alert {
	sev := models.AlertSeverityError
	if action.ToLevel >= models.MaxEscalationLevel {
		sev = models.AlertSeverityCritical
	}
	msg := fmt.Sprintf("Ticket %s escalated from level %d to level %d: %s", t.ID, action.FromLevel, action.ToLevel, action.Reason)
	al := newAlert(t, a, models.AlertKindEscalationRequired, sev, msg, now)
	al.EscalationLevel = action.ToLevel
	return al
}

func newAlert(t models.Ticket, a models.RiskAssessment, kind models.AlertKind, sev models.AlertSeverity, msg string, now time.Time) models.Alert {
	return models.Alert{
		ID:               uuid.NewString(),
		TicketID:         t.ID,
		Kind:             kind,
		Severity:         sev,
		RiskScore:        a.BreachProbability,
		MinutesRemaining: a.MinutesRemaining,
		Message:          msg,
		Recommendations:  append([]string(nil), a.RecommendedActions...),
		RiskFactors:      append([]string(nil), a.RiskFactors...),
		CreatedAt:        now,
		EscalationLevel:  t.EscalationLevel,
	}
}

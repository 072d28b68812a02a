package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

// Factor names reported in Prediction.RiskFactors.
const (
	FactorLowTimeRemaining  = "Very little time remaining"
	FactorSlowProgress      = "Slow progress relative to time elapsed"
	FactorUnassigned        = "Ticket not yet assigned to technician"
	FactorHighWorkload      = "Technician has high workload"
	FactorHighComplexity    = "High complexity ticket category"
	FactorHighPriority      = "High priority ticket"
	FactorLimitedBusinessHr = "Limited business hours remaining"
)

const defaultComplexity = 0.5

var (
	categoryComplexity = map[string]float64{
		"hardware": 0.8,
		"software": 0.6,
		"network":  0.9,
		"security": 0.95,
		"email":    0.4,
		"printer":  0.5,
		"phone":    0.3,
		"access":   0.7,
		"backup":   0.6,
		"other":    0.5,
	}

	// Expected resolution effort before category scaling.
	baseResolutionMinutes = map[models.TicketPriority]float64{
		models.PriorityCritical: 60,
		models.PriorityHigh:     240,
		models.PriorityMedium:   480,
		models.PriorityLow:      1440,
	}

	priorityScores = map[models.TicketPriority]float64{
		models.PriorityLow:      1,
		models.PriorityMedium:   2,
		models.PriorityHigh:     3,
		models.PriorityCritical: 4,
	}
)

// CategoryComplexity returns the relative difficulty of a ticket category.
func CategoryComplexity(category string) float64 {
	if c, ok := categoryComplexity[category]; ok {
		return c
	}
	return defaultComplexity
}

// RiskFactors lists the conditions that push req towards a breach, in a fixed
// order, together with a score in [0,1] for each.
func RiskFactors(req PredictionRequest) ([]string, map[string]float64) {
	var (
		factors []string
		scores  = map[string]float64{}
	)
	add := func(factor, key string, score float64) {
		factors = append(factors, factor)
		scores[key] = math.Max(0, math.Min(1, score))
	}

	timeRatio := timeRemainingRatio(req)
	progress := progressRatio(req)

	if timeRatio < 0.2 {
		add(FactorLowTimeRemaining, "time_remaining", 1-timeRatio)
	}
	if progress < 0.3 && timeRatio < 0.5 {
		add(FactorSlowProgress, "slow_progress", 0.8)
	}
	if req.AssignedTo == "" {
		add(FactorUnassigned, "unassigned", 0.9)
	}
	if req.TechnicianWorkload != nil && *req.TechnicianWorkload > 0.8 {
		add(FactorHighWorkload, "high_workload", *req.TechnicianWorkload)
	}
	if c := CategoryComplexity(req.Category); c > 0.8 {
		add(FactorHighComplexity, "complexity", c)
	}
	if s := priorityScores[req.Priority]; s >= 3 {
		add(FactorHighPriority, "priority", s/4)
	}
	if req.EscalationLevel > 0 {
		add(fmt.Sprintf("Ticket escalated (level %d)", req.EscalationLevel), "escalation", float64(req.EscalationLevel)/3)
	}
	if !isBusinessHours(req.CurrentTime) && businessHoursRemaining(req.CurrentTime, req.SLADeadline) < 8 {
		add(FactorLimitedBusinessHr, "business_hours", 0.7)
	}
	return factors, scores
}

// EscalationRecommended reports whether probability p warrants escalating.
func EscalationRecommended(p float64) bool {
	return p > 0.8
}

// ReassignmentRecommended reports whether the ticket should move to a less
// loaded technician.
func ReassignmentRecommended(req PredictionRequest, p float64) bool {
	return p > 0.85 && req.TechnicianWorkload != nil && *req.TechnicianWorkload > 0.9
}

func timeRemainingRatio(req PredictionRequest) float64 {
	total := req.SLADeadline.Sub(req.CreatedAt).Seconds()
	if total <= 0 {
		return 0
	}
	return math.Max(0, req.SLADeadline.Sub(req.CurrentTime).Seconds()/total)
}

func progressRatio(req PredictionRequest) float64 {
	base, ok := baseResolutionMinutes[req.Priority]
	if !ok {
		base = baseResolutionMinutes[models.PriorityMedium]
	}
	estimated := base * (0.5 + CategoryComplexity(req.Category))
	if estimated <= 0 {
		return 0
	}
	return math.Min(1, float64(req.TimeSpentMinutes)/estimated)
}

// Monday to Friday, 09:00 to 17:00 UTC.
func isBusinessHours(t time.Time) bool {
	t = t.UTC()
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday && t.Hour() >= 9 && t.Hour() < 17
}

// businessHoursRemaining approximates working hours until deadline at 40 per week.
func businessHoursRemaining(now, deadline time.Time) float64 {
	hours := deadline.Sub(now).Hours()
	if hours <= 0 {
		return 0
	}
	return hours * 40 / (7 * 24)
}

package risk

import (
	"context"
	"math"
	"slices"

	"github.com/mr-karan/slawatch/pkg/models"
)

const ruleConfidence = 0.6

var (
	priorityMultipliers = map[models.TicketPriority]float64{
		models.PriorityLow:      0.8,
		models.PriorityMedium:   1.0,
		models.PriorityHigh:     1.2,
		models.PriorityCritical: 1.4,
	}
	statusMultipliers = map[models.TicketStatus]float64{
		models.StatusOpen:            1.3,
		models.StatusInProgress:      1.0,
		models.StatusPendingCustomer: 0.7,
		models.StatusResolved:        0,
		models.StatusClosed:          0,
	}
)

// RulePredictor estimates breach probability from elapsed SLA time, priority,
// status, escalation and technician workload. It needs no external service.
type RulePredictor struct{}

// Predict implements Predictor.
func (RulePredictor) Predict(_ context.Context, req PredictionRequest) (*Prediction, error) {
	total := req.SLADeadline.Sub(req.CreatedAt).Seconds()
	elapsed := req.CurrentTime.Sub(req.CreatedAt).Seconds()
	progress := 1.0
	if total > 0 {
		progress = elapsed / total
	}
	if progress < 0 {
		progress = 0
	}

	p := math.Min(1, math.Pow(progress, 1.5))

	if m, ok := priorityMultipliers[req.Priority]; ok {
		p *= m
	}
	if m, ok := statusMultipliers[req.Status]; ok {
		p *= m
	}
	if req.EscalationLevel > 0 {
		p *= 1 + float64(req.EscalationLevel)*0.2
	}
	if req.TechnicianWorkload != nil && *req.TechnicianWorkload > 0.8 {
		p *= 1.3
	}
	p = math.Max(0, math.Min(1, p))

	remaining := minutesUntil(req.SLADeadline, req.CurrentTime)
	factors, scores := RiskFactors(req)
	return &Prediction{
		BreachProbability:       p,
		MinutesRemaining:        &remaining,
		RecommendedActions:      Recommendations(req, p, factors),
		Confidence:              ruleConfidence,
		RiskFactors:             factors,
		RiskFactorScores:        scores,
		EscalationRecommended:   EscalationRecommended(p),
		ReassignmentRecommended: ReassignmentRecommended(req, p),
	}, nil
}

// Recommendations returns operator actions for a ticket at breach probability p
// given the risk factors found for it.
func Recommendations(req PredictionRequest, p float64, factors []string) []string {
	var out []string
	if p > 0.8 {
		out = append(out, "Immediate escalation recommended")
	}
	if p > 0.7 && req.AssignedTo == "" {
		out = append(out, "Assign to available technician immediately")
	}
	if p > 0.6 && req.TechnicianWorkload != nil && *req.TechnicianWorkload > 0.9 {
		out = append(out, "Consider reassigning to technician with lower workload")
	}
	if p > 0.5 && (req.Priority == models.PriorityHigh || req.Priority == models.PriorityCritical) {
		out = append(out, "Notify customer of potential delay and provide status update")
	}
	if slices.Contains(factors, FactorHighComplexity) {
		out = append(out, "Assign to senior technician with relevant expertise")
	}
	if slices.Contains(factors, FactorLowTimeRemaining) {
		out = append(out, "Focus all available resources on this ticket")
	}
	if len(out) == 0 {
		out = append(out, "Continue monitoring - no immediate action required")
	}
	return out
}

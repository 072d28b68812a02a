// Package risk turns tickets into breach-risk assessments.
package risk

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

var (
	// ErrNoAssessment is returned when a ticket could not be assessed this cycle.
	// Callers must skip the ticket rather than treat it as low risk.
	ErrNoAssessment = errors.New("no risk assessment")

	// ErrInvalidPrediction is returned when a predictor reports values outside [0,1].
	ErrInvalidPrediction = errors.New("invalid prediction")
)

// Predictor produces a breach prediction for a single ticket.
type Predictor interface {
	Predict(ctx context.Context, req PredictionRequest) (*Prediction, error)
}

// PredictionRequest is the input sent to the prediction service.
type PredictionRequest struct {
	TicketID           string                `json:"ticket_id"`
	CustomerTier       models.CustomerTier   `json:"customer_tier,omitempty"`
	Priority           models.TicketPriority `json:"priority"`
	Status             models.TicketStatus   `json:"status"`
	Category           string                `json:"category,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	SLADeadline        time.Time             `json:"sla_deadline"`
	CurrentTime        time.Time             `json:"current_time"`
	AssignedTo         string                `json:"assigned_to,omitempty"`
	TimeSpentMinutes   int                   `json:"time_spent_minutes"`
	EscalationLevel    int                   `json:"escalation_level"`
	TechnicianWorkload *float64              `json:"technician_current_workload,omitempty"`
}

// NewPredictionRequest builds a request for ticket evaluated at now.
func NewPredictionRequest(t models.Ticket, now time.Time) PredictionRequest {
	return PredictionRequest{
		TicketID:           t.ID,
		CustomerTier:       t.CustomerTier,
		Priority:           t.Priority,
		Status:             t.Status,
		Category:           t.Category,
		CreatedAt:          t.CreatedAt,
		SLADeadline:        t.SLADeadline,
		CurrentTime:        now,
		AssignedTo:         t.AssignedTo,
		TimeSpentMinutes:   t.TimeSpentMinutes,
		EscalationLevel:    t.EscalationLevel,
		TechnicianWorkload: t.TechnicianWorkload,
	}
}

// Prediction is the predictor output. MinutesRemaining is optional; when nil the
// evaluator derives it from the SLA deadline.
type Prediction struct {
	BreachProbability       float64            `json:"breach_probability"`
	MinutesRemaining        *int               `json:"time_remaining_minutes,omitempty"`
	RecommendedActions      []string           `json:"recommended_actions,omitempty"`
	Confidence              float64            `json:"confidence_score"`
	RiskFactors             []string           `json:"primary_risk_factors,omitempty"`
	RiskFactorScores        map[string]float64 `json:"risk_factor_scores,omitempty"`
	EscalationRecommended   bool               `json:"escalation_recommended"`
	ReassignmentRecommended bool               `json:"reassignment_recommended"`
}

func (p *Prediction) validate() error {
	if math.IsNaN(p.BreachProbability) || p.BreachProbability < 0 || p.BreachProbability > 1 {
		return ErrInvalidPrediction
	}
	return nil
}

// minutesUntil returns the signed whole minutes from now until deadline.
// Overdue tickets yield a negative value.
func minutesUntil(deadline, now time.Time) int {
	return int(math.Floor(deadline.Sub(now).Minutes()))
}

package models

// RiskLevel buckets a breach probability.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFor classifies a breach probability using the prediction service's bands.
func RiskLevelFor(p float64) RiskLevel {
	switch {
	case p >= 0.9:
		return RiskCritical
	case p >= 0.8:
		return RiskHigh
	case p >= 0.6:
		return RiskMedium
	default:
		return RiskLow
	}
}

// AssessmentSource records which predictor produced an assessment.
type AssessmentSource string

const (
	AssessmentFromService AssessmentSource = "service"
	AssessmentFromRules   AssessmentSource = "rules"
)

// RiskAssessment is the per-cycle breach prediction for one ticket. It is never persisted.
type RiskAssessment struct {
	TicketID                string             `json:"ticket_id"`
	BreachProbability       float64            `json:"breach_probability"`
	MinutesRemaining        int                `json:"minutes_remaining"`
	RecommendedActions      []string           `json:"recommended_actions,omitempty"`
	Confidence              float64            `json:"confidence"`
	RiskLevel               RiskLevel          `json:"risk_level"`
	Source                  AssessmentSource   `json:"source"`
	RiskFactors             []string           `json:"risk_factors,omitempty"`
	RiskFactorScores        map[string]float64 `json:"risk_factor_scores,omitempty"`
	EscalationRecommended   bool               `json:"escalation_recommended"`
	ReassignmentRecommended bool               `json:"reassignment_recommended"`
}

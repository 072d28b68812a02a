package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr-karan/slawatch/internal/metrics"
	"github.com/mr-karan/slawatch/pkg/models"
)

// EvaluatorOptions configures an Evaluator.
type EvaluatorOptions struct {
	Predictor Predictor
	// Fallback, if set, is consulted when Predictor fails.
	Fallback Predictor
	Timeout  time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Evaluator produces one RiskAssessment per ticket, bounded by a timeout.
type Evaluator struct {
	predictor Predictor
	fallback  Predictor
	timeout   time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(opts EvaluatorOptions) *Evaluator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Evaluator{
		predictor: opts.Predictor,
		fallback:  opts.Fallback,
		timeout:   timeout,
		log:       logger.With("component", "risk_evaluator"),
		now:       now,
	}
}

// Evaluate returns the ticket's assessment, or nil and an error wrapping
// ErrNoAssessment when neither predictor answered in time.
func (e *Evaluator) Evaluate(ctx context.Context, t models.Ticket) (*models.RiskAssessment, error) {
	now := e.now()
	req := NewPredictionRequest(t, now)

	source := models.AssessmentFromService
	if _, ok := e.predictor.(RulePredictor); ok {
		source = models.AssessmentFromRules
	}

	pred, err := e.predict(ctx, e.predictor, req)
	if err != nil && e.fallback != nil {
		e.log.Warn("prediction failed, using rule-based fallback", "ticket_id", t.ID, "error", err)
		pred, err = e.predict(ctx, e.fallback, req)
		source = models.AssessmentFromRules
	}
	if err != nil {
		return nil, fmt.Errorf("%w: ticket %s: %v", ErrNoAssessment, t.ID, err)
	}

	minutes := minutesUntil(t.SLADeadline, now)
	if pred.MinutesRemaining != nil {
		minutes = *pred.MinutesRemaining
	}

	return &models.RiskAssessment{
		TicketID:                t.ID,
		BreachProbability:       pred.BreachProbability,
		MinutesRemaining:        minutes,
		RecommendedActions:      pred.RecommendedActions,
		Confidence:              pred.Confidence,
		RiskLevel:               models.RiskLevelFor(pred.BreachProbability),
		Source:                  source,
		RiskFactors:             pred.RiskFactors,
		RiskFactorScores:        pred.RiskFactorScores,
		EscalationRecommended:   pred.EscalationRecommended,
		ReassignmentRecommended: pred.ReassignmentRecommended,
	}, nil
}

func (e *Evaluator) predict(ctx context.Context, p Predictor, req PredictionRequest) (pred *Prediction, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	source := string(models.AssessmentFromService)
	if _, ok := p.(RulePredictor); ok {
		source = string(models.AssessmentFromRules)
	}
	start := time.Now()
	defer func() { metrics.RecordPrediction(source, time.Since(start), err == nil) }()

	type result struct {
		pred *Prediction
		err  error
	}
	done := make(chan result, 1)
	go func() {
		pred, err := p.Predict(ctx, req)
		done <- result{pred, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.pred == nil {
			return nil, ErrInvalidPrediction
		}
		if err := r.pred.validate(); err != nil {
			return nil, err
		}
		return r.pred, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("prediction timed out: %w", ctx.Err())
	}
}

package risk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubPredictor struct {
	pred  *Prediction
	err   error
	block bool
	calls int
}

func (s *stubPredictor) Predict(ctx context.Context, _ PredictionRequest) (*Prediction, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.pred, s.err
}

func ticket(priority models.TicketPriority, status models.TicketStatus, createdAgo, deadlineIn time.Duration) models.Ticket {
	return models.Ticket{
		ID:          "T-1",
		CustomerID:  "C-1",
		Priority:    priority,
		Status:      status,
		CreatedAt:   testNow.Add(-createdAgo),
		SLADeadline: testNow.Add(deadlineIn),
	}
}

func TestRulePredictor(t *testing.T) {
	tests := []struct {
		name   string
		ticket models.Ticket
		want   float64
	}{
		{
			name:   "halfway medium in progress",
			ticket: ticket(models.PriorityMedium, models.StatusInProgress, 2*time.Hour, 2*time.Hour),
			want:   math.Pow(0.5, 1.5),
		},
		{
			name:   "halfway critical open",
			ticket: ticket(models.PriorityCritical, models.StatusOpen, 2*time.Hour, 2*time.Hour),
			want:   math.Pow(0.5, 1.5) * 1.4 * 1.3,
		},
		{
			name:   "overdue clipped to one",
			ticket: ticket(models.PriorityHigh, models.StatusOpen, 5*time.Hour, -time.Hour),
			want:   1,
		},
		{
			name:   "resolved is zero",
			ticket: ticket(models.PriorityCritical, models.StatusResolved, 5*time.Hour, -time.Hour),
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := RulePredictor{}.Predict(context.Background(), NewPredictionRequest(tt.ticket, testNow))
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if math.Abs(pred.BreachProbability-tt.want) > 1e-9 {
				t.Errorf("BreachProbability = %v, want %v", pred.BreachProbability, tt.want)
			}
			if pred.Confidence != 0.6 {
				t.Errorf("Confidence = %v, want 0.6", pred.Confidence)
			}
		})
	}
}

func TestRulePredictorEscalationAndWorkload(t *testing.T) {
	tk := ticket(models.PriorityMedium, models.StatusInProgress, 2*time.Hour, 2*time.Hour)
	tk.EscalationLevel = 2
	load := 0.85
	tk.TechnicianWorkload = &load

	pred, _ := RulePredictor{}.Predict(context.Background(), NewPredictionRequest(tk, testNow))
	want := math.Pow(0.5, 1.5) * 1.4 * 1.3
	if math.Abs(pred.BreachProbability-want) > 1e-9 {
		t.Errorf("BreachProbability = %v, want %v", pred.BreachProbability, want)
	}
}

func TestRecommendations(t *testing.T) {
	req := PredictionRequest{Priority: models.PriorityCritical}
	got := Recommendations(req, 0.85, nil)
	want := []string{
		"Immediate escalation recommended",
		"Assign to available technician immediately",
		"Notify customer of potential delay and provide status update",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Recommendations() = %v, want %v", got, want)
	}

	got = Recommendations(PredictionRequest{AssignedTo: "tech-1", Priority: models.PriorityLow}, 0.2, nil)
	if len(got) != 1 || got[0] != "Continue monitoring - no immediate action required" {
		t.Errorf("Recommendations(low) = %v", got)
	}
}

func TestRiskFactors(t *testing.T) {
	tk := ticket(models.PriorityCritical, models.StatusOpen, 5*time.Hour, 30*time.Minute)
	tk.Category = "security"
	tk.EscalationLevel = 2
	load := 0.95
	tk.TechnicianWorkload = &load
	req := NewPredictionRequest(tk, testNow)

	factors, scores := RiskFactors(req)
	want := []string{
		FactorLowTimeRemaining,
		FactorSlowProgress,
		FactorUnassigned,
		FactorHighWorkload,
		FactorHighComplexity,
		FactorHighPriority,
		"Ticket escalated (level 2)",
	}
	if strings.Join(factors, "|") != strings.Join(want, "|") {
		t.Errorf("RiskFactors() = %v, want %v", factors, want)
	}
	wantScores := map[string]float64{
		"time_remaining": 1 - 30.0/330,
		"slow_progress":  0.8,
		"unassigned":     0.9,
		"high_workload":  0.95,
		"complexity":     0.95,
		"priority":       1,
		"escalation":     2.0 / 3,
	}
	if len(scores) != len(wantScores) {
		t.Fatalf("scores = %v, want %v", scores, wantScores)
	}
	for k, v := range wantScores {
		if math.Abs(scores[k]-v) > 1e-9 {
			t.Errorf("scores[%s] = %v, want %v", k, scores[k], v)
		}
	}

	pred, err := RulePredictor{}.Predict(context.Background(), req)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if !pred.EscalationRecommended || !pred.ReassignmentRecommended {
		t.Errorf("escalation/reassignment = %v/%v, want true/true", pred.EscalationRecommended, pred.ReassignmentRecommended)
	}
	wantActions := []string{
		"Immediate escalation recommended",
		"Assign to available technician immediately",
		"Consider reassigning to technician with lower workload",
		"Notify customer of potential delay and provide status update",
		"Assign to senior technician with relevant expertise",
		"Focus all available resources on this ticket",
	}
	if strings.Join(pred.RecommendedActions, "|") != strings.Join(wantActions, "|") {
		t.Errorf("RecommendedActions = %v, want %v", pred.RecommendedActions, wantActions)
	}
}

func TestRiskFactorsQuietTicket(t *testing.T) {
	tk := ticket(models.PriorityMedium, models.StatusInProgress, time.Hour, 3*time.Hour)
	tk.AssignedTo = "tech-1"
	tk.Category = "email"
	tk.TimeSpentMinutes = 120
	req := NewPredictionRequest(tk, testNow)

	factors, scores := RiskFactors(req)
	if len(factors) != 0 || len(scores) != 0 {
		t.Errorf("RiskFactors() = %v %v, want none", factors, scores)
	}

	pred, _ := RulePredictor{}.Predict(context.Background(), req)
	if pred.EscalationRecommended || pred.ReassignmentRecommended {
		t.Errorf("escalation/reassignment = %v/%v, want false/false", pred.EscalationRecommended, pred.ReassignmentRecommended)
	}
}

func TestRiskFactorsOutsideBusinessHours(t *testing.T) {
	saturday := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	req := PredictionRequest{
		Priority:    models.PriorityLow,
		AssignedTo:  "tech-1",
		CreatedAt:   saturday.Add(-time.Hour),
		SLADeadline: saturday.Add(10 * time.Hour),
		CurrentTime: saturday,
	}
	factors, scores := RiskFactors(req)
	if len(factors) != 1 || factors[0] != FactorLimitedBusinessHr {
		t.Fatalf("RiskFactors() = %v, want only %q", factors, FactorLimitedBusinessHr)
	}
	if scores["business_hours"] != 0.7 {
		t.Errorf("scores[business_hours] = %v, want 0.7", scores["business_hours"])
	}

	req.CurrentTime = testNow
	req.CreatedAt = testNow.Add(-time.Hour)
	req.SLADeadline = testNow.Add(10 * time.Hour)
	if factors, _ := RiskFactors(req); len(factors) != 0 {
		t.Errorf("RiskFactors(weekday) = %v, want none", factors)
	}
}

func TestEvaluatorSignedMinutesRemaining(t *testing.T) {
	e := NewEvaluator(EvaluatorOptions{
		Predictor: &stubPredictor{pred: &Prediction{BreachProbability: 0.5, Confidence: 0.9}},
		Logger:    discardLogger(),
		Now:       func() time.Time { return testNow },
	})

	a, err := e.Evaluate(context.Background(), ticket(models.PriorityHigh, models.StatusOpen, 3*time.Hour, -45*time.Minute))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if a.MinutesRemaining != -45 {
		t.Errorf("MinutesRemaining = %d, want -45", a.MinutesRemaining)
	}
	if a.Source != models.AssessmentFromService {
		t.Errorf("Source = %s, want service", a.Source)
	}
	if a.RiskLevel != models.RiskLow {
		t.Errorf("RiskLevel = %s, want low", a.RiskLevel)
	}
}

func TestEvaluatorFailureIsNoAssessment(t *testing.T) {
	e := NewEvaluator(EvaluatorOptions{
		Predictor: &stubPredictor{err: errors.New("boom")},
		Logger:    discardLogger(),
	})

	a, err := e.Evaluate(context.Background(), ticket(models.PriorityHigh, models.StatusOpen, time.Hour, time.Hour))
	if a != nil {
		t.Errorf("Evaluate() assessment = %+v, want nil", a)
	}
	if !errors.Is(err, ErrNoAssessment) {
		t.Errorf("Evaluate() error = %v, want ErrNoAssessment", err)
	}
}

func TestEvaluatorTimeout(t *testing.T) {
	e := NewEvaluator(EvaluatorOptions{
		Predictor: &stubPredictor{block: true},
		Timeout:   20 * time.Millisecond,
		Logger:    discardLogger(),
	})

	start := time.Now()
	_, err := e.Evaluate(context.Background(), ticket(models.PriorityHigh, models.StatusOpen, time.Hour, time.Hour))
	if !errors.Is(err, ErrNoAssessment) {
		t.Fatalf("Evaluate() error = %v, want ErrNoAssessment", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Evaluate() took %v, want bounded by timeout", elapsed)
	}
}

func TestEvaluatorInvalidProbability(t *testing.T) {
	e := NewEvaluator(EvaluatorOptions{
		Predictor: &stubPredictor{pred: &Prediction{BreachProbability: 1.5}},
		Logger:    discardLogger(),
	})
	if _, err := e.Evaluate(context.Background(), ticket(models.PriorityHigh, models.StatusOpen, time.Hour, time.Hour)); !errors.Is(err, ErrNoAssessment) {
		t.Errorf("Evaluate() error = %v, want ErrNoAssessment", err)
	}
}

func TestEvaluatorFallback(t *testing.T) {
	e := NewEvaluator(EvaluatorOptions{
		Predictor: &stubPredictor{err: errors.New("service down")},
		Fallback:  RulePredictor{},
		Logger:    discardLogger(),
		Now:       func() time.Time { return testNow },
	})

	a, err := e.Evaluate(context.Background(), ticket(models.PriorityCritical, models.StatusOpen, 2*time.Hour, 2*time.Hour))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if a.Source != models.AssessmentFromRules {
		t.Errorf("Source = %s, want rules", a.Source)
	}
	if a.MinutesRemaining != 120 {
		t.Errorf("MinutesRemaining = %d, want 120", a.MinutesRemaining)
	}
}

func TestHTTPPredictor(t *testing.T) {
	var got PredictionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"result":{"breach_probability":0.92,"confidence_score":0.8,"recommended_actions":["page on-call"],"primary_risk_factors":["Very little time remaining"],"risk_factor_scores":{"time_remaining":0.95},"escalation_recommended":true}}`))
	}))
	defer srv.Close()

	p, err := NewHTTPPredictor(HTTPPredictorOptions{URL: srv.URL, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewHTTPPredictor() error = %v", err)
	}

	tk := ticket(models.PriorityHigh, models.StatusOpen, time.Hour, time.Hour)
	pred, err := p.Predict(context.Background(), NewPredictionRequest(tk, testNow))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if pred.BreachProbability != 0.92 {
		t.Errorf("BreachProbability = %v, want 0.92", pred.BreachProbability)
	}
	if pred.MinutesRemaining != nil {
		t.Errorf("MinutesRemaining = %v, want nil", *pred.MinutesRemaining)
	}
	if len(pred.RiskFactors) != 1 || pred.RiskFactorScores["time_remaining"] != 0.95 || !pred.EscalationRecommended {
		t.Errorf("risk factors = %v %v escalate=%v", pred.RiskFactors, pred.RiskFactorScores, pred.EscalationRecommended)
	}
	if got.TicketID != "T-1" || got.Priority != models.PriorityHigh {
		t.Errorf("request = %+v, want ticket T-1 high", got)
	}
}

func TestHTTPPredictorErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantSub string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "oops", wantSub: "status 500"},
		{name: "unsuccessful", status: http.StatusOK, body: `{"success":false,"error":"model not loaded"}`, wantSub: "model not loaded"},
		{name: "out of range", status: http.StatusOK, body: `{"success":true,"result":{"breach_probability":2}}`, wantSub: "invalid prediction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := NewHTTPPredictor(HTTPPredictorOptions{URL: srv.URL, Logger: discardLogger()})
			_, err := p.Predict(context.Background(), PredictionRequest{TicketID: "T-1"})
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Predict() error = %v, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestHTTPPredictorRequiresURL(t *testing.T) {
	if _, err := NewHTTPPredictor(HTTPPredictorOptions{}); err == nil {
		t.Error("NewHTTPPredictor() error = nil, want error")
	}
}

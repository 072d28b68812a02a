// Package monitor runs the SLA monitoring cycle: fetch active tickets, assess
// breach risk, escalate, then gate and deliver the resulting alerts.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mr-karan/slawatch/internal/alerts"
	"github.com/mr-karan/slawatch/internal/config"
	"github.com/mr-karan/slawatch/internal/delivery"
	"github.com/mr-karan/slawatch/internal/metrics"
	"github.com/mr-karan/slawatch/internal/tickets"
	"github.com/mr-karan/slawatch/pkg/models"
)

// Scope selects which active tickets a cycle evaluates.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeCritical Scope = "critical"
)

// Assessor produces a risk assessment for a ticket.
type Assessor interface {
	Evaluate(ctx context.Context, t models.Ticket) (*models.RiskAssessment, error)
}

// CycleSummary describes one completed cycle.
type CycleSummary struct {
	Scope             Scope          `json:"scope"`
	StartedAt         time.Time      `json:"started_at"`
	Duration          time.Duration  `json:"duration"`
	Fetched           int            `json:"fetched"`
	Evaluated         int            `json:"evaluated"`
	Skipped           int            `json:"skipped"`
	Escalations       int            `json:"escalations"`
	WriteBackFailures int            `json:"write_back_failures"`
	Generated         int            `json:"alerts_generated"`
	Sent              int            `json:"alerts_sent"`
	Suppressed        int            `json:"alerts_suppressed"`
	RateLimited       int            `json:"alerts_rate_limited"`
	BySeverity        map[string]int `json:"by_severity"`
	Deliveries        int            `json:"deliveries"`
	EpisodesEnded     int            `json:"episodes_ended"`
}

// Options configures an Engine. Escalation, Suppression, Limiter and History are
// built from Config when nil.
type Options struct {
	Config      *config.Config
	Source      tickets.Source
	Assessor    Assessor
	Dispatcher  *delivery.Dispatcher
	Escalation  *alerts.EscalationMachine
	Suppression *alerts.SuppressionTracker
	Limiter     *alerts.RateLimiter
	History     alerts.HistoryStore
	Logger      *slog.Logger
	Now         func() time.Time
}

// Engine owns the monitoring state shared by the cycle and retry timers.
type Engine struct {
	source      tickets.Source
	assessor    Assessor
	dispatcher  *delivery.Dispatcher
	escalation  *alerts.EscalationMachine
	suppression *alerts.SuppressionTracker
	limiter     *alerts.RateLimiter
	history     alerts.HistoryStore
	log         *slog.Logger
	now         func() time.Time

	mu   sync.RWMutex
	cfg  *config.Config
	last *CycleSummary
}

// NewEngine constructs an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: config is required", config.ErrInvalidConfig)
	}
	if opts.Source == nil || opts.Assessor == nil || opts.Dispatcher == nil {
		return nil, fmt.Errorf("monitor: source, assessor and dispatcher are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cfg := opts.Config

	e := &Engine{
		source:      opts.Source,
		assessor:    opts.Assessor,
		dispatcher:  opts.Dispatcher,
		escalation:  opts.Escalation,
		suppression: opts.Suppression,
		limiter:     opts.Limiter,
		history:     opts.History,
		log:         logger.With("component", "monitor"),
		now:         now,
		cfg:         cfg,
	}
	if e.escalation == nil {
		e.escalation = alerts.NewEscalationMachine(EscalationThresholds(cfg), now)
	}
	if e.suppression == nil {
		e.suppression = alerts.NewSuppressionTracker(alerts.NewMemoryStore(), SuppressionWindow(cfg), logger, now)
	}
	if e.limiter == nil {
		e.limiter = alerts.NewRateLimiter(cfg.Alerts.MaxAlertsPerHour, now)
	}
	if e.history == nil {
		e.history = alerts.NewMemoryHistory()
	}
	return e, nil
}

// Config returns the active configuration. Callers must not modify it.
func (e *Engine) Config() *config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// UpdateConfig pushes a validated configuration into every component.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()

	e.escalation.SetThresholds(EscalationThresholds(cfg))
	e.suppression.SetWindow(SuppressionWindow(cfg))
	e.limiter.SetMax(cfg.Alerts.MaxAlertsPerHour)
	e.dispatcher.SetEnabled(EnabledChannels(cfg))
	e.dispatcher.SetRouting(Routing(cfg), cfg.Delivery.PrimaryChat)
	e.dispatcher.SetPolicy(RetryPolicy(cfg))
	e.log.Info("configuration updated",
		"max_alerts_per_hour", cfg.Alerts.MaxAlertsPerHour,
		"suppression_window_minutes", cfg.Alerts.SuppressionWindowMinutes)
}

// LastSummary returns the most recent cycle summary, or nil before the first cycle.
func (e *Engine) LastSummary() *CycleSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return nil
	}
	s := *e.last
	return &s
}

// History returns the alert history store.
func (e *Engine) History() alerts.HistoryStore { return e.history }

// Dispatcher returns the delivery dispatcher.
func (e *Engine) Dispatcher() *delivery.Dispatcher { return e.dispatcher }

// Suppressions lists current suppression records.
func (e *Engine) Suppressions(ctx context.Context) ([]models.SuppressionRecord, error) {
	return e.suppression.Snapshot(ctx)
}

type evaluated struct {
	ticket     models.Ticket
	assessment models.RiskAssessment
}

// RunCycle performs one monitoring pass over scope. Per-ticket failures are
// logged and counted; only a failed fetch fails the cycle.
func (e *Engine) RunCycle(ctx context.Context, scope Scope) (CycleSummary, error) {
	cfg := e.Config()
	start := e.now()
	summary := CycleSummary{Scope: scope, StartedAt: start, BySeverity: map[string]int{}}

	items, err := e.source.ListActiveItems(ctx, tickets.ParseStatuses(cfg.Tickets.Statuses))
	if err != nil {
		metrics.RecordCycleError(string(scope))
		return summary, fmt.Errorf("fetching active tickets: %w", err)
	}
	summary.Fetched = len(items)

	active := make(map[string]struct{}, len(items))
	for _, t := range items {
		active[t.ID] = struct{}{}
		e.escalation.Observe(t)
	}
	summary.EpisodesEnded = e.escalation.EndEpisodes(active)
	e.retryWriteBacks(ctx)

	targets := filterScope(items, scope)
	results := e.evaluate(ctx, cfg, targets)
	summary.Evaluated = len(results)
	summary.Skipped = len(targets) - len(results)

	th := GeneratorThresholds(cfg)
	for _, r := range results {
		now := e.now()
		action, escalated := e.escalation.Next(r.ticket, r.assessment.BreachProbability)
		if escalated {
			summary.Escalations++
			if !e.writeBack(ctx, action) {
				summary.WriteBackFailures++
			}
		}

		// Alerts report the effective level, including one whose write-back is still pending.
		current := r.ticket
		current.EscalationLevel = e.escalation.Current(r.ticket)
		generated := alerts.Generate(current, r.assessment, th, now)
		if escalated {
			generated = append(generated, alerts.EscalationAlert(current, r.assessment, action, now))
		}

		summary.Generated += len(generated)
		for _, al := range generated {
			e.process(ctx, al, &summary)
		}
	}

	summary.Duration = e.now().Sub(start)
	metrics.RecordCycle(string(scope), summary.Evaluated, summary.Skipped, summary.Duration)

	e.mu.Lock()
	s := summary
	e.last = &s
	e.mu.Unlock()

	e.log.Info("cycle complete",
		"scope", scope,
		"fetched", summary.Fetched,
		"evaluated", summary.Evaluated,
		"skipped", summary.Skipped,
		"generated", summary.Generated,
		"sent", summary.Sent,
		"suppressed", summary.Suppressed,
		"rate_limited", summary.RateLimited,
		"escalations", summary.Escalations,
		"by_severity", summary.BySeverity,
		"duration", summary.Duration)
	return summary, nil
}

// evaluate assesses targets concurrently. Items that fail are skipped and
// logged; results keep the input order.
func (e *Engine) evaluate(ctx context.Context, cfg *config.Config, targets []models.Ticket) []evaluated {
	slots := make([]*evaluated, len(targets))
	itemTimeout := cfg.Prediction.Timeout
	if itemTimeout <= 0 {
		itemTimeout = 10 * time.Second
	}
	// Leave room for the rule-based fallback after a timed-out service call.
	itemTimeout *= 2

	var g errgroup.Group
	g.SetLimit(max(cfg.Prediction.MaxConcurrency, 1))
	for i, t := range targets {
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), itemTimeout)
			defer cancel()

			a, err := e.assessor.Evaluate(itemCtx, t)
			if err != nil {
				e.log.Warn("skipping ticket, evaluation failed", "ticket_id", t.ID, "error", err)
				return nil
			}
			slots[i] = &evaluated{ticket: t, assessment: *a}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]evaluated, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// process applies suppression, then the rate limit, then dispatches.
func (e *Engine) process(ctx context.Context, al models.Alert, summary *CycleSummary) {
	kind, sev := string(al.Kind), string(al.Severity)

	if e.suppression.ShouldSuppress(ctx, al) {
		summary.Suppressed++
		metrics.RecordAlert(kind, sev, metrics.OutcomeSuppressed)
		e.log.Info("alert suppressed", "ticket_id", al.TicketID, "kind", kind, "severity", sev)
		return
	}
	if !e.limiter.TryAdmit() {
		summary.RateLimited++
		metrics.RecordAlert(kind, sev, metrics.OutcomeRateLimited)
		e.log.Warn("alert rate-limited", "ticket_id", al.TicketID, "kind", kind, "severity", sev)
		return
	}

	deliveries := e.dispatcher.Dispatch(ctx, al)
	e.suppression.RecordSent(ctx, al)

	sentAt := e.now()
	al.SentAt = &sentAt
	for _, d := range deliveries {
		al.Channels = append(al.Channels, d.ChannelType)
	}
	if err := e.history.AppendAlert(ctx, al); err != nil {
		e.log.Error("failed to record alert history", "alert_id", al.ID, "error", err)
	}

	summary.Sent++
	summary.BySeverity[sev]++
	summary.Deliveries += len(deliveries)
	metrics.RecordAlert(kind, sev, metrics.OutcomeSent)
	e.log.Info("alert sent", "alert_id", al.ID, "ticket_id", al.TicketID, "kind", kind, "severity", sev, "channels", len(deliveries))
}

// writeBack persists an escalation. Failures are left pending for the next cycle.
func (e *Engine) writeBack(ctx context.Context, action models.EscalationAction) bool {
	err := e.source.SetEscalationLevel(ctx, action.TicketID, action.ToLevel, action.Reason)
	metrics.RecordEscalation(action.ToLevel, err == nil)
	if err != nil {
		e.log.Error("escalation write-back failed, will retry next cycle",
			"ticket_id", action.TicketID, "from_level", action.FromLevel, "to_level", action.ToLevel, "error", err)
		return false
	}
	e.escalation.MarkWritten(action.TicketID, action.ToLevel)
	e.log.Info("ticket escalated", "ticket_id", action.TicketID, "from_level", action.FromLevel, "to_level", action.ToLevel)
	return true
}

func (e *Engine) retryWriteBacks(ctx context.Context) {
	for _, wb := range e.escalation.PendingWriteBacks() {
		if err := e.source.SetEscalationLevel(ctx, wb.TicketID, wb.Level, wb.Reason); err != nil {
			e.log.Warn("pending escalation write-back failed", "ticket_id", wb.TicketID, "level", wb.Level, "error", err)
			continue
		}
		e.escalation.MarkWritten(wb.TicketID, wb.Level)
	}
}

// RetryDeliveries re-attempts due deliveries.
func (e *Engine) RetryDeliveries(ctx context.Context) error {
	if n := e.dispatcher.RetryDue(ctx); n > 0 {
		e.log.Debug("retried deliveries", "count", n, "queue_depth", e.dispatcher.Queue().Len())
	}
	return nil
}

// Cleanup sweeps idle suppression records and prunes old history.
func (e *Engine) Cleanup(ctx context.Context) error {
	swept, err := e.suppression.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweeping suppression records: %w", err)
	}
	retention := e.Config().Alerts.HistoryRetention
	pruned := 0
	if retention > 0 {
		pruned, err = e.history.Prune(ctx, e.now().Add(-retention))
		if err != nil {
			return fmt.Errorf("pruning alert history: %w", err)
		}
	}
	e.log.Info("cleanup complete", "suppressions_swept", swept, "alerts_pruned", pruned)
	return nil
}

func filterScope(items []models.Ticket, scope Scope) []models.Ticket {
	if scope != ScopeCritical {
		return items
	}
	out := make([]models.Ticket, 0, len(items))
	for _, t := range items {
		if t.Priority == models.PriorityCritical || t.Priority == models.PriorityHigh {
			out = append(out, t)
		}
	}
	return out
}

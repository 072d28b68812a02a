package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mr-karan/slawatch/internal/config"
	"github.com/mr-karan/slawatch/internal/scheduler"
)

// Trigger names.
const (
	TriggerMain     = "main_cycle"
	TriggerCritical = "critical_cycle"
	TriggerRetry    = "delivery_retry"
	TriggerCleanup  = "cleanup"
)

// SchedulerStatus is the query-surface view of the scheduler.
type SchedulerStatus struct {
	Running     bool               `json:"running"`
	Triggers    []scheduler.Status `json:"triggers"`
	LastCycle   *CycleSummary      `json:"last_cycle,omitempty"`
	QueueDepth  int                `json:"retry_queue_depth"`
	NextMainRun time.Time          `json:"next_main_run"`
}

// Scheduler drives an Engine on independent timers. The main, critical and
// manual cycles share one guard so cycles never overlap; retries and cleanup run
// on their own guards.
type Scheduler struct {
	engine   *Engine
	guard    *scheduler.Guard
	main     *scheduler.Trigger
	critical *scheduler.Trigger
	retry    *scheduler.Trigger
	cleanup  *scheduler.Trigger
	log      *slog.Logger
}

// NewScheduler wires the triggers for engine using the engine's configuration.
func NewScheduler(engine *Engine, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := engine.Config().Scheduler
	guard := &scheduler.Guard{}

	cycle := func(scope Scope) scheduler.Func {
		return func(ctx context.Context) error {
			_, err := engine.RunCycle(ctx, scope)
			return err
		}
	}

	return &Scheduler{
		engine: engine,
		guard:  guard,
		main: scheduler.New(scheduler.Options{
			Name:          TriggerMain,
			Interval:      cfg.MainCyclePeriod,
			JitterPercent: cfg.JitterPercent,
			Fn:            cycle(ScopeAll),
			Guard:         guard,
			RunOnStart:    true,
			Logger:        logger,
		}),
		critical: scheduler.New(scheduler.Options{
			Name:          TriggerCritical,
			Interval:      cfg.CriticalCyclePeriod,
			JitterPercent: cfg.JitterPercent,
			Fn:            cycle(ScopeCritical),
			Guard:         guard,
			Logger:        logger,
		}),
		retry: scheduler.New(scheduler.Options{
			Name:     TriggerRetry,
			Interval: cfg.RetryPeriod,
			Fn:       engine.RetryDeliveries,
			Logger:   logger,
		}),
		cleanup: scheduler.New(scheduler.Options{
			Name:     TriggerCleanup,
			Interval: cfg.CleanupPeriod,
			Fn:       engine.Cleanup,
			Logger:   logger,
		}),
		log: logger.With("component", "monitor_scheduler"),
	}
}

func (s *Scheduler) triggers() []*scheduler.Trigger {
	return []*scheduler.Trigger{s.main, s.critical, s.retry, s.cleanup}
}

// Start launches every trigger.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.triggers() {
		t.Start(ctx)
	}
	s.log.Info("monitoring scheduler started")
}

// Stop halts every trigger and waits for in-flight runs.
func (s *Scheduler) Stop() {
	for _, t := range s.triggers() {
		t.Stop()
	}
	s.log.Info("monitoring scheduler stopped")
}

// TriggerNow runs a full cycle synchronously. It returns
// scheduler.ErrAlreadyRunning when a cycle is in flight.
func (s *Scheduler) TriggerNow(ctx context.Context) (CycleSummary, error) {
	if !s.guard.TryAcquire() {
		return CycleSummary{}, scheduler.ErrAlreadyRunning
	}
	defer s.guard.Release()
	s.log.Info("manual cycle triggered")
	return s.engine.RunCycle(ctx, ScopeAll)
}

// UpdateConfig applies cfg to the engine and reschedules the cycle triggers.
func (s *Scheduler) UpdateConfig(cfg *config.Config) {
	s.engine.UpdateConfig(cfg)
	s.main.SetInterval(cfg.Scheduler.MainCyclePeriod)
	s.critical.SetInterval(cfg.Scheduler.CriticalCyclePeriod)
}

// Status reports trigger state and the last cycle summary.
func (s *Scheduler) Status() SchedulerStatus {
	st := SchedulerStatus{
		Running:     s.guard.Running(),
		LastCycle:   s.engine.LastSummary(),
		QueueDepth:  s.engine.Dispatcher().Queue().Len(),
		NextMainRun: s.main.NextRun(),
	}
	for _, t := range s.triggers() {
		st.Triggers = append(st.Triggers, t.Status())
	}
	return st
}

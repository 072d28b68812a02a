// Package scheduler runs functions on jittered intervals without ever overlapping them.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr-karan/slawatch/internal/metrics"
)

// ErrAlreadyRunning is returned by RunNow when the guarded function is in flight.
var ErrAlreadyRunning = errors.New("a run is already in progress")

// Guard is a non-reentrancy latch. Triggers that share a Guard never run concurrently.
type Guard struct {
	running atomic.Bool
}

// TryAcquire takes the guard if it is free.
func (g *Guard) TryAcquire() bool { return g.running.CompareAndSwap(false, true) }

// Release frees the guard.
func (g *Guard) Release() { g.running.Store(false) }

// Running reports whether the guard is held.
func (g *Guard) Running() bool { return g.running.Load() }

// Func is the unit of work a Trigger runs.
type Func func(ctx context.Context) error

// Options configures a Trigger.
type Options struct {
	Name     string
	Interval time.Duration
	// JitterPercent spreads each interval by up to ±JitterPercent.
	JitterPercent int
	Fn            Func
	// Guard is shared with other triggers that must not overlap. A private guard is used when nil.
	Guard      *Guard
	RunOnStart bool
	Logger     *slog.Logger
}

// Status is a point-in-time view of a Trigger.
type Status struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Running      bool          `json:"running"`
	Runs         int64         `json:"runs"`
	Skipped      int64         `json:"skipped"`
	Failures     int64         `json:"failures"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
}

// Trigger invokes Fn every Interval until stopped.
type Trigger struct {
	name   string
	fn     Func
	guard  *Guard
	jitter int
	onInit bool
	log    *slog.Logger

	mu       sync.Mutex
	interval time.Duration
	status   Status
	reset    chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Trigger. It does nothing until Start.
func New(opts Options) *Trigger {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	guard := opts.Guard
	if guard == nil {
		guard = &Guard{}
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Trigger{
		name:     opts.Name,
		fn:       opts.Fn,
		guard:    guard,
		jitter:   opts.JitterPercent,
		onInit:   opts.RunOnStart,
		log:      logger.With("component", "scheduler", "trigger", opts.Name),
		interval: interval,
		status:   Status{Name: opts.Name, Interval: interval},
		reset:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Name returns the trigger name.
func (t *Trigger) Name() string { return t.name }

// Start launches the timer loop.
func (t *Trigger) Start(ctx context.Context) {
	t.log.Info("starting trigger", "interval", t.Interval())

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		if t.onInit {
			t.fire(ctx)
		}

		timer := time.NewTimer(t.nextDelay())
		defer timer.Stop()

		for {
			select {
			case <-timer.C:
				t.fire(ctx)
				timer.Reset(t.nextDelay())
			case <-t.reset:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(t.nextDelay())
			case <-t.stop:
				t.log.Info("trigger stopping")
				return
			case <-ctx.Done():
				t.log.Info("trigger context cancelled")
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight run to finish.
func (t *Trigger) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	t.wg.Wait()
}

// SetInterval changes the period. The next tick is rescheduled immediately.
func (t *Trigger) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.interval = d
	t.status.Interval = d
	t.mu.Unlock()

	select {
	case t.reset <- struct{}{}:
	default:
	}
}

// Interval returns the configured period.
func (t *Trigger) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// NextRun returns the time of the next scheduled tick.
func (t *Trigger) NextRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.NextRun
}

// Status returns a snapshot of the trigger's counters.
func (t *Trigger) Status() Status {
	t.mu.Lock()
	st := t.status
	t.mu.Unlock()
	st.Running = t.guard.Running()
	return st
}

// RunNow runs Fn synchronously through the guard.
func (t *Trigger) RunNow(ctx context.Context) error {
	if !t.guard.TryAcquire() {
		return ErrAlreadyRunning
	}
	defer t.guard.Release()
	return t.run(ctx)
}

// fire starts Fn in the background unless the guard is held, in which case the tick is dropped.
func (t *Trigger) fire(ctx context.Context) bool {
	if !t.guard.TryAcquire() {
		t.mu.Lock()
		t.status.Skipped++
		t.mu.Unlock()
		metrics.RecordSkippedTick(t.name)
		t.log.Warn("skipping tick, previous run still in progress")
		return false
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.guard.Release()
		_ = t.run(ctx)
	}()
	return true
}

func (t *Trigger) run(ctx context.Context) error {
	start := time.Now()
	err := t.fn(ctx)
	elapsed := time.Since(start)

	t.mu.Lock()
	t.status.Runs++
	t.status.LastRun = start
	t.status.LastDuration = elapsed
	t.status.LastError = ""
	if err != nil {
		t.status.Failures++
		t.status.LastError = err.Error()
	}
	t.mu.Unlock()

	if err != nil {
		t.log.Error("run failed", "duration", elapsed, "error", err)
	} else {
		t.log.Debug("run finished", "duration", elapsed)
	}
	return err
}

func (t *Trigger) nextDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.interval
	if t.jitter > 0 {
		span := int64(d) * int64(t.jitter) / 100
		if span > 0 {
			d += time.Duration(rand.Int64N(2*span+1) - span)
		}
	}
	t.status.NextRun = time.Now().Add(d)
	return d
}

package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mr-karan/slawatch/internal/metrics"
	"github.com/mr-karan/slawatch/pkg/models"
)

// DeliveryRecorder persists delivery state changes.
type DeliveryRecorder interface {
	UpsertDelivery(ctx context.Context, d models.Delivery) error
}

// Policy is the retry policy applied to failed deliveries.
type Policy struct {
	// Schedule[k-1] is the delay after the k-th failed attempt.
	Schedule []time.Duration
	// MaxRetries bounds the total number of send attempts.
	MaxRetries int
}

// DefaultPolicy returns the stock backoff schedule.
func DefaultPolicy() Policy {
	return Policy{
		Schedule:   []time.Duration{time.Second, 5 * time.Second, 15 * time.Second, time.Minute, 5 * time.Minute},
		MaxRetries: 5,
	}
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Channels []Channel
	// Routing maps a severity to route targets: a channel type, a channel ID,
	// or RoutePrimaryChat.
	Routing map[models.AlertSeverity][]string
	// PrimaryChat is the ID of the chat channel RoutePrimaryChat resolves to.
	// The first enabled chat channel is used when empty or not configured.
	PrimaryChat string
	// Enabled filters channel types. A nil map enables every type.
	Enabled     map[models.ChannelType]bool
	Policy      Policy
	SendTimeout time.Duration
	Queue       *RetryQueue
	Recorder    DeliveryRecorder
	Logger      *slog.Logger
	Now         func() time.Time
}

// Dispatcher sends alerts to channels and drives the retry queue.
type Dispatcher struct {
	channels    []Channel
	sendTimeout time.Duration
	queue       *RetryQueue
	recorder    DeliveryRecorder
	log         *slog.Logger
	now         func() time.Time

	mu      sync.RWMutex
	routing map[models.AlertSeverity][]string
	primary string
	enabled map[models.ChannelType]bool
	policy  Policy

	statsMu sync.Mutex
	stats   counters
}

type counters struct {
	total     int64
	sent      int64
	retried   int64
	failed    int64
	attempts  int64
	completed int64
}

// RoutePrimaryChat routes to the single primary chat channel.
const RoutePrimaryChat = "primary_chat"

// DefaultRouting returns the stock severity routing: critical to every channel,
// error to chat channels, warning and info to the primary chat channel only.
func DefaultRouting() map[models.AlertSeverity][]string {
	return map[models.AlertSeverity][]string{
		models.AlertSeverityCritical: {string(models.ChannelChat), string(models.ChannelBot), string(models.ChannelEmail)},
		models.AlertSeverityError:    {string(models.ChannelChat)},
		models.AlertSeverityWarning:  {RoutePrimaryChat},
		models.AlertSeverityInfo:     {RoutePrimaryChat},
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	queue := opts.Queue
	if queue == nil {
		queue = NewRetryQueue()
	}
	routing := opts.Routing
	if routing == nil {
		routing = DefaultRouting()
	}
	policy := opts.Policy
	if policy.MaxRetries <= 0 {
		policy = DefaultPolicy()
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	d := &Dispatcher{
		channels:    opts.Channels,
		sendTimeout: timeout,
		queue:       queue,
		recorder:    opts.Recorder,
		log:         logger.With("component", "delivery_dispatcher"),
		now:         now,
		routing:     routing,
		primary:     opts.PrimaryChat,
		enabled:     opts.Enabled,
		policy:      policy,
	}
	metrics.SetRetryQueueDepth(func() float64 { return float64(queue.Len()) })
	return d
}

// SetRouting replaces the severity routing table and the primary chat channel.
func (d *Dispatcher) SetRouting(routing map[models.AlertSeverity][]string, primaryChat string) {
	if routing == nil {
		routing = DefaultRouting()
	}
	d.mu.Lock()
	d.routing = routing
	d.primary = primaryChat
	d.mu.Unlock()
}

// SetEnabled replaces the enabled channel types.
func (d *Dispatcher) SetEnabled(enabled map[models.ChannelType]bool) {
	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()
}

// SetPolicy replaces the retry policy. Queued entries keep their scheduled time.
func (d *Dispatcher) SetPolicy(p Policy) {
	if p.MaxRetries <= 0 {
		return
	}
	d.mu.Lock()
	d.policy = Policy{Schedule: append([]time.Duration(nil), p.Schedule...), MaxRetries: p.MaxRetries}
	d.mu.Unlock()
}

// Queue returns the retry queue.
func (d *Dispatcher) Queue() *RetryQueue { return d.queue }

// ChannelsFor returns the enabled channels an alert of severity sev is routed to,
// in configuration order.
func (d *Dispatcher) ChannelsFor(sev models.AlertSeverity) []Channel {
	d.mu.RLock()
	targets := d.routing[sev]
	primary := d.primary
	enabled := d.enabled
	d.mu.RUnlock()

	on := func(ch Channel) bool { return enabled == nil || enabled[ch.Type()] }
	selected := make(map[string]bool)
	for _, target := range targets {
		if target == RoutePrimaryChat {
			if ch := d.primaryChat(primary, on); ch != nil {
				selected[ch.ID()] = true
			}
			continue
		}
		for _, ch := range d.channels {
			if on(ch) && (string(ch.Type()) == target || ch.ID() == target) {
				selected[ch.ID()] = true
			}
		}
	}

	var out []Channel
	for _, ch := range d.channels {
		if selected[ch.ID()] {
			out = append(out, ch)
		}
	}
	return out
}

func (d *Dispatcher) primaryChat(id string, on func(Channel) bool) Channel {
	var first Channel
	for _, ch := range d.channels {
		if ch.Type() != models.ChannelChat || !on(ch) {
			continue
		}
		if ch.ID() == id {
			return ch
		}
		if first == nil {
			first = ch
		}
	}
	return first
}

// Dispatch sends alert to each routed channel concurrently and returns one Delivery per channel.
// Failed retryable sends are enqueued for retry.
func (d *Dispatcher) Dispatch(ctx context.Context, alert models.Alert) []models.Delivery {
	channels := d.ChannelsFor(alert.Severity)
	if len(channels) == 0 {
		d.log.Warn("no enabled channel for alert", "alert_id", alert.ID, "severity", alert.Severity)
		return nil
	}

	msg := MessageFromAlert(alert)
	deliveries := make([]models.Delivery, len(channels))

	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			del := models.Delivery{
				ID:          uuid.NewString(),
				AlertID:     alert.ID,
				ChannelID:   ch.ID(),
				ChannelType: ch.Type(),
				Status:      models.DeliveryPending,
			}
			deliveries[i] = d.attempt(ctx, ch, del, msg)
		}(i, ch)
	}
	wg.Wait()

	d.statsMu.Lock()
	d.stats.total += int64(len(deliveries))
	d.statsMu.Unlock()
	return deliveries
}

// RetryDue re-sends every queued delivery whose next attempt is due and returns how many were attempted.
func (d *Dispatcher) RetryDue(ctx context.Context) int {
	due := d.queue.PopDue(d.now())
	if len(due) == 0 {
		return 0
	}

	byID := make(map[string]Channel, len(d.channels))
	for _, ch := range d.channels {
		byID[ch.ID()] = ch
	}

	var wg sync.WaitGroup
	for _, item := range due {
		ch, ok := byID[item.delivery.ChannelID]
		if !ok {
			del := item.delivery
			del.Status = models.DeliveryFailed
			del.NextAttempt = nil
			del.Error = "channel no longer configured"
			d.finish(ctx, del)
			continue
		}
		d.statsMu.Lock()
		d.stats.retried++
		d.statsMu.Unlock()

		wg.Add(1)
		go func(item retryItem, ch Channel) {
			defer wg.Done()
			d.attempt(ctx, ch, item.delivery, item.message)
		}(item, ch)
	}
	wg.Wait()
	return len(due)
}

// attempt performs one send and moves del to its next state.
func (d *Dispatcher) attempt(ctx context.Context, ch Channel, del models.Delivery, msg Message) models.Delivery {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.sendTimeout)
	err := ch.Send(sendCtx, msg)
	cancel()

	del.Attempts++
	del.LastAttempt = d.now()
	del.NextAttempt = nil

	if err == nil {
		del.Status = models.DeliverySent
		del.Error = ""
		d.finish(ctx, del)
		return del
	}

	del.Error = err.Error()
	d.mu.RLock()
	policy := d.policy
	d.mu.RUnlock()

	if !IsRetryable(err) || del.Attempts >= policy.MaxRetries || del.Attempts > len(policy.Schedule) {
		del.Status = models.DeliveryFailed
		d.finish(ctx, del)
		return del
	}

	next := del.LastAttempt.Add(policy.Schedule[del.Attempts-1])
	del.NextAttempt = &next
	del.Status = models.DeliveryRetrying
	d.queue.Push(del, msg)
	d.record(ctx, del)
	d.log.Warn("delivery failed, scheduled retry",
		"delivery_id", del.ID, "alert_id", del.AlertID, "channel", del.ChannelID,
		"attempts", del.Attempts, "next_attempt", next, "error", err)
	return del
}

// finish records a terminal state.
func (d *Dispatcher) finish(ctx context.Context, del models.Delivery) {
	d.statsMu.Lock()
	d.stats.completed++
	d.stats.attempts += int64(del.Attempts)
	if del.Status == models.DeliverySent {
		d.stats.sent++
	} else {
		d.stats.failed++
	}
	d.statsMu.Unlock()

	if del.Status == models.DeliveryFailed {
		d.log.Error("delivery permanently failed",
			"delivery_id", del.ID, "alert_id", del.AlertID, "channel", del.ChannelID,
			"attempts", del.Attempts, "error", del.Error)
	}
	d.record(ctx, del)
}

func (d *Dispatcher) record(ctx context.Context, del models.Delivery) {
	metrics.RecordDelivery(string(del.ChannelType), string(del.Status))
	if d.recorder == nil {
		return
	}
	if err := d.recorder.UpsertDelivery(context.WithoutCancel(ctx), del); err != nil {
		d.log.Error("failed to record delivery", "delivery_id", del.ID, "error", err)
	}
}

// Stats summarizes outcomes since start.
func (d *Dispatcher) Stats() models.DeliveryStats {
	d.statsMu.Lock()
	c := d.stats
	d.statsMu.Unlock()

	st := models.DeliveryStats{
		Total:             c.total,
		Sent:              c.sent,
		Retried:           c.retried,
		PermanentlyFailed: c.failed,
		QueueDepth:        d.queue.Len(),
	}
	if c.completed > 0 {
		st.SuccessRate = float64(c.sent) / float64(c.completed)
		st.AverageAttempts = float64(c.attempts) / float64(c.completed)
	}
	return st
}

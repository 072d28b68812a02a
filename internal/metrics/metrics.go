// Package metrics exposes Prometheus-format counters for the monitoring engine.
package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Alert outcomes recorded by RecordAlert.
const (
	OutcomeSent        = "sent"
	OutcomeSuppressed  = "suppressed"
	OutcomeRateLimited = "rate_limited"
)

// RecordCycle records a completed monitoring cycle.
func RecordCycle(scope string, evaluated, skipped int, duration time.Duration) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`slawatch_cycles_total{scope=%q}`, scope)).Inc()
	metrics.GetOrCreateCounter(fmt.Sprintf(`slawatch_tickets_evaluated_total{scope=%q}`, scope)).Add(evaluated)
	metrics.GetOrCreateCounter(fmt.Sprintf(`slawatch_tickets_skipped_total{scope=%q}`, scope)).Add(skipped)
	metrics.GetOrCreateHistogram(fmt.Sprintf(`slawatch_cycle_duration_seconds{scope=%q}`, scope)).Update(duration.Seconds())
}

// RecordCycleError records a cycle that could not run to completion.
func RecordCycleError(scope string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`slawatch_cycle_errors_total{scope=%q}`, scope)).Inc()
}

// RecordSkippedTick records a trigger tick skipped because its job was still running.
func RecordSkippedTick(trigger string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`slawatch_trigger_skipped_total{trigger=%q}`, trigger)).Inc()
}

// RecordAlert records what happened to a generated alert.
func RecordAlert(kind, severity, outcome string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`slawatch_alerts_total{kind=%q,severity=%q,outcome=%q}`, kind, severity, outcome)).Inc()
}

// RecordEscalation records an escalation transition and whether its write-back succeeded.
func RecordEscalation(toLevel int, writeBackOK bool) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`slawatch_escalations_total{level="%d"}`, toLevel)).Inc()
	if !writeBackOK {
		metrics.GetOrCreateCounter(`slawatch_escalation_writeback_failures_total`).Inc()
	}
}

// RecordDelivery records a single channel send attempt outcome.
func RecordDelivery(channelType, status string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`slawatch_deliveries_total{channel_type=%q,status=%q}`, channelType, status)).Inc()
}

var queueDepth atomic.Pointer[func() float64]

// SetRetryQueueDepth sets the function reporting the retry queue depth.
func SetRetryQueueDepth(depthFn func() float64) {
	queueDepth.Store(&depthFn)
	metrics.GetOrCreateGauge(`slawatch_retry_queue_depth`, func() float64 {
		if fn := queueDepth.Load(); fn != nil {
			return (*fn)()
		}
		return 0
	})
}

// RecordPrediction records the duration of a prediction call.
func RecordPrediction(source string, duration time.Duration, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	metrics.GetOrCreateHistogram(fmt.Sprintf(`slawatch_prediction_duration_seconds{source=%q,status=%q}`, source, status)).Update(duration.Seconds())
}

// WritePrometheus writes all metrics, including process metrics, to w.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}

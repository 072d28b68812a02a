package alerts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

// HistoryStore is the append-only log of sent alerts and their deliveries.
type HistoryStore interface {
	AppendAlert(ctx context.Context, alert models.Alert) error
	// ListAlerts returns matching alerts, newest first.
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
	UpsertDelivery(ctx context.Context, d models.Delivery) error
	ListDeliveries(ctx context.Context, alertID string) ([]models.Delivery, error)
	// Prune removes alerts (and their deliveries) created before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryHistory is an in-process HistoryStore.
type MemoryHistory struct {
	mu         sync.RWMutex
	alerts     []models.Alert
	deliveries map[string]models.Delivery
}

// NewMemoryHistory returns an empty MemoryHistory.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{deliveries: make(map[string]models.Delivery)}
}

// AppendAlert implements HistoryStore.
func (h *MemoryHistory) AppendAlert(_ context.Context, alert models.Alert) error {
	h.mu.Lock()
	h.alerts = append(h.alerts, alert)
	h.mu.Unlock()
	return nil
}

// ListAlerts implements HistoryStore.
func (h *MemoryHistory) ListAlerts(_ context.Context, f models.AlertFilter) ([]models.Alert, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = models.DefaultAlertHistoryLimit
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]models.Alert, 0, limit)
	for i := len(h.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if MatchesFilter(h.alerts[i], f) {
			out = append(out, h.alerts[i])
		}
	}
	return out, nil
}

// MatchesFilter reports whether alert satisfies every non-zero field of f.
func MatchesFilter(alert models.Alert, f models.AlertFilter) bool {
	if f.TicketID != "" && alert.TicketID != f.TicketID {
		return false
	}
	if f.Severity != "" && alert.Severity != f.Severity {
		return false
	}
	if !f.From.IsZero() && alert.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && alert.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// UpsertDelivery implements HistoryStore.
func (h *MemoryHistory) UpsertDelivery(_ context.Context, d models.Delivery) error {
	h.mu.Lock()
	h.deliveries[d.ID] = d
	h.mu.Unlock()
	return nil
}

// ListDeliveries implements HistoryStore.
func (h *MemoryHistory) ListDeliveries(_ context.Context, alertID string) ([]models.Delivery, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []models.Delivery
	for _, d := range h.deliveries {
		if d.AlertID == alertID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out, nil
}

// Prune implements HistoryStore.
func (h *MemoryHistory) Prune(_ context.Context, cutoff time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.alerts[:0]
	removed := make(map[string]struct{})
	for _, a := range h.alerts {
		if a.CreatedAt.Before(cutoff) {
			removed[a.ID] = struct{}{}
			continue
		}
		kept = append(kept, a)
	}
	h.alerts = kept
	for id, d := range h.deliveries {
		if _, ok := removed[d.AlertID]; ok {
			delete(h.deliveries, id)
		}
	}
	return len(removed), nil
}

package alerts

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

// SuppressionIdleTTL is how long a record survives without a new send.
const SuppressionIdleTTL = 24 * time.Hour

// SuppressionStore persists suppression records keyed by (ticket, kind).
type SuppressionStore interface {
	// Get returns the record for the pair, or nil when none exists.
	Get(ctx context.Context, ticketID string, kind models.AlertKind) (*models.SuppressionRecord, error)
	// Record marks the pair as sent at ts with escalation level, and increments its count.
	Record(ctx context.Context, ticketID string, kind models.AlertKind, level int, ts time.Time) (models.SuppressionRecord, error)
	// DeleteBefore removes records last sent before cutoff and returns how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
	List(ctx context.Context) ([]models.SuppressionRecord, error)
}

// SuppressionTracker is the per-(ticket, kind) cool-down that prevents alert storms.
type SuppressionTracker struct {
	store SuppressionStore
	log   *slog.Logger
	now   func() time.Time

	mu     sync.RWMutex
	window time.Duration
}

// NewSuppressionTracker constructs a tracker over store with the given window.
func NewSuppressionTracker(store SuppressionStore, window time.Duration, logger *slog.Logger, now func() time.Time) *SuppressionTracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &SuppressionTracker{
		store:  store,
		window: window,
		log:    logger.With("component", "alert_suppression"),
		now:    now,
	}
}

// SetWindow changes the suppression window.
func (s *SuppressionTracker) SetWindow(window time.Duration) {
	s.mu.Lock()
	s.window = window
	s.mu.Unlock()
}

// Window returns the current suppression window.
func (s *SuppressionTracker) Window() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

// ShouldSuppress reports whether an alert of the same kind for the same ticket
// was sent within the window. An escalation to a level above the last notified
// one is never suppressed. Store errors do not suppress.
func (s *SuppressionTracker) ShouldSuppress(ctx context.Context, al models.Alert) bool {
	window := s.Window()
	if window <= 0 {
		return false
	}
	rec, err := s.store.Get(ctx, al.TicketID, al.Kind)
	if err != nil {
		s.log.Error("failed to read suppression record", "ticket_id", al.TicketID, "kind", al.Kind, "error", err)
		return false
	}
	if rec == nil {
		return false
	}
	if al.Kind == models.AlertKindEscalationRequired && al.EscalationLevel > rec.Level {
		return false
	}
	return s.now().Sub(rec.LastSent) < window
}

// RecordSent stamps the alert's (ticket, kind) pair as sent now.
func (s *SuppressionTracker) RecordSent(ctx context.Context, al models.Alert) {
	if _, err := s.store.Record(ctx, al.TicketID, al.Kind, al.EscalationLevel, s.now()); err != nil {
		s.log.Error("failed to record suppression", "ticket_id", al.TicketID, "kind", al.Kind, "error", err)
	}
}

// Sweep drops records idle for more than 24 hours.
func (s *SuppressionTracker) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.DeleteBefore(ctx, s.now().Add(-SuppressionIdleTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug("swept suppression records", "removed", n)
	}
	return n, nil
}

// Snapshot lists the current records.
func (s *SuppressionTracker) Snapshot(ctx context.Context) ([]models.SuppressionRecord, error) {
	return s.store.List(ctx)
}

type suppressionKey struct {
	ticketID string
	kind     models.AlertKind
}

// MemoryStore is an in-process SuppressionStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[suppressionKey]models.SuppressionRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[suppressionKey]models.SuppressionRecord)}
}

// Get implements SuppressionStore.
func (m *MemoryStore) Get(_ context.Context, ticketID string, kind models.AlertKind) (*models.SuppressionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[suppressionKey{ticketID, kind}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Record implements SuppressionStore.
func (m *MemoryStore) Record(_ context.Context, ticketID string, kind models.AlertKind, level int, ts time.Time) (models.SuppressionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := suppressionKey{ticketID, kind}
	rec := m.records[key]
	rec.TicketID = ticketID
	rec.Kind = kind
	rec.LastSent = ts
	rec.Level = level
	rec.Count++
	m.records[key] = rec
	return rec, nil
}

// DeleteBefore implements SuppressionStore.
func (m *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, rec := range m.records {
		if rec.LastSent.Before(cutoff) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

// List implements SuppressionStore.
func (m *MemoryStore) List(_ context.Context) ([]models.SuppressionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SuppressionRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func sortRecords(recs []models.SuppressionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].TicketID != recs[j].TicketID {
			return recs[i].TicketID < recs[j].TicketID
		}
		return recs[i].Kind < recs[j].Kind
	})
}

package alerts

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

// EscalationThresholds are the risk scores that unlock levels 1, 2 and 3.
type EscalationThresholds struct {
	Level1 float64
	Level2 float64
	Level3 float64
}

// DefaultEscalationThresholds returns the stock escalation thresholds.
func DefaultEscalationThresholds() EscalationThresholds {
	return EscalationThresholds{Level1: 0.7, Level2: 0.85, Level3: 0.95}
}

// LevelFor returns the highest level whose threshold risk meets, or 0.
func (th EscalationThresholds) LevelFor(risk float64) int {
	switch {
	case risk >= th.Level3:
		return 3
	case risk >= th.Level2:
		return 2
	case risk >= th.Level1:
		return 1
	default:
		return 0
	}
}

// NextLevel returns the level a ticket at current should move to for risk, and
// whether that is a forward move. It never proposes a downgrade.
func NextLevel(th EscalationThresholds, current int, risk float64) (int, bool) {
	target := th.LevelFor(risk)
	if target <= current {
		return current, false
	}
	return target, true
}

// WriteBack is an escalation level that has not yet been persisted to the ticket store.
type WriteBack struct {
	TicketID string
	Level    int
	Reason   string
}

// EscalationMachine tracks the level reached by each ticket during its active
// episode. Levels only move forward until the ticket leaves the active set.
type EscalationMachine struct {
	mu         sync.Mutex
	thresholds EscalationThresholds
	tracked    map[string]int
	pending    map[string]WriteBack
	now        func() time.Time
}

// NewEscalationMachine constructs a machine with the given thresholds.
func NewEscalationMachine(th EscalationThresholds, now func() time.Time) *EscalationMachine {
	if now == nil {
		now = time.Now
	}
	return &EscalationMachine{
		thresholds: th,
		tracked:    make(map[string]int),
		pending:    make(map[string]WriteBack),
		now:        now,
	}
}

// SetThresholds replaces the thresholds used for future transitions.
func (m *EscalationMachine) SetThresholds(th EscalationThresholds) {
	m.mu.Lock()
	m.thresholds = th
	m.mu.Unlock()
}

// Current returns the effective level of t: the higher of the stored and tracked level.
func (m *EscalationMachine) Current(t models.Ticket) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked(t)
}

func (m *EscalationMachine) currentLocked(t models.Ticket) int {
	cur := t.EscalationLevel
	if lvl, ok := m.tracked[t.ID]; ok && lvl > cur {
		cur = lvl
	}
	return cur
}

// Next decides whether t should escalate at risk. On a transition it records the
// new level and queues a write-back.
func (m *EscalationMachine) Next(t models.Ticket, risk float64) (models.EscalationAction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.currentLocked(t)
	to, ok := NextLevel(m.thresholds, from, risk)
	if !ok {
		if from > m.tracked[t.ID] {
			m.tracked[t.ID] = from
		}
		return models.EscalationAction{}, false
	}

	reason := fmt.Sprintf("breach probability %.2f crossed level %d threshold", risk, to)
	m.tracked[t.ID] = to
	m.pending[t.ID] = WriteBack{TicketID: t.ID, Level: to, Reason: reason}

	return models.EscalationAction{
		TicketID:  t.ID,
		FromLevel: from,
		ToLevel:   to,
		Reason:    reason,
		Trigger:   models.EscalationTriggerSystem,
		Timestamp: m.now(),
	}, true
}

// Observe clears a pending write-back once the ticket store reports the level.
func (m *EscalationMachine) Observe(t models.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wb, ok := m.pending[t.ID]; ok && t.EscalationLevel >= wb.Level {
		delete(m.pending, t.ID)
	}
}

// Pending returns the unpersisted write-back for ticketID, if any.
func (m *EscalationMachine) Pending(ticketID string) (WriteBack, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wb, ok := m.pending[ticketID]
	return wb, ok
}

// PendingWriteBacks returns all unpersisted write-backs ordered by ticket ID.
func (m *EscalationMachine) PendingWriteBacks() []WriteBack {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WriteBack, 0, len(m.pending))
	for _, wb := range m.pending {
		out = append(out, wb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketID < out[j].TicketID })
	return out
}

// MarkWritten clears the pending write-back for ticketID if it is at or below level.
func (m *EscalationMachine) MarkWritten(ticketID string, level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wb, ok := m.pending[ticketID]; ok && wb.Level <= level {
		delete(m.pending, ticketID)
	}
}

// EndEpisodes forgets every tracked ticket that is not in active. A ticket that
// left the active set was resolved or closed, which ends its escalation episode.
// It returns the number of episodes ended.
func (m *EscalationMachine) EndEpisodes(active map[string]struct{}) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ended := 0
	for id := range m.tracked {
		if _, ok := active[id]; !ok {
			delete(m.tracked, id)
			delete(m.pending, id)
			ended++
		}
	}
	for id := range m.pending {
		if _, ok := active[id]; !ok {
			delete(m.pending, id)
		}
	}
	return ended
}

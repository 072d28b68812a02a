// Package tickets adapts the helpdesk ticket store for the monitoring engine.
package tickets

import (
	"context"
	"errors"

	"github.com/mr-karan/slawatch/pkg/models"
)

// ErrNotFound is returned when a write-back targets an unknown ticket.
var ErrNotFound = errors.New("ticket not found")

// Source lists monitored tickets and persists escalation levels.
type Source interface {
	ListActiveItems(ctx context.Context, statuses []models.TicketStatus) ([]models.Ticket, error)
	SetEscalationLevel(ctx context.Context, ticketID string, level int, reason string) error
}

// ParseStatuses converts configured status names, falling back to the default active set.
func ParseStatuses(names []string) []models.TicketStatus {
	if len(names) == 0 {
		return append([]models.TicketStatus(nil), models.DefaultActiveStatuses...)
	}
	out := make([]models.TicketStatus, 0, len(names))
	for _, n := range names {
		out = append(out, models.TicketStatus(n))
	}
	return out
}

func statusStrings(statuses []models.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

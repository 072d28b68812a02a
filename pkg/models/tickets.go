package models

import "time"

// TicketPriority is the helpdesk priority of a ticket.
type TicketPriority string

const (
	PriorityLow      TicketPriority = "low"
	PriorityMedium   TicketPriority = "medium"
	PriorityHigh     TicketPriority = "high"
	PriorityCritical TicketPriority = "critical"
)

// TicketStatus is the helpdesk workflow state of a ticket.
type TicketStatus string

const (
	StatusOpen            TicketStatus = "open"
	StatusInProgress      TicketStatus = "in_progress"
	StatusPendingCustomer TicketStatus = "pending_customer"
	StatusResolved        TicketStatus = "resolved"
	StatusClosed          TicketStatus = "closed"
)

// IsActive reports whether the ticket is still being worked on.
func (s TicketStatus) IsActive() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusPendingCustomer:
		return true
	default:
		return false
	}
}

// DefaultActiveStatuses lists the statuses monitored when no filter is configured.
var DefaultActiveStatuses = []TicketStatus{StatusOpen, StatusInProgress, StatusPendingCustomer}

// CustomerTier is the service tier a customer is subscribed to.
type CustomerTier string

const (
	TierBasic      CustomerTier = "basic"
	TierPremium    CustomerTier = "premium"
	TierEnterprise CustomerTier = "enterprise"
)

// MaxEscalationLevel is the emergency escalation level.
const MaxEscalationLevel = 3

// Ticket is a monitored helpdesk work item. It is owned by the ticket store; the
// engine only writes back EscalationLevel.
type Ticket struct {
	ID                 string         `json:"id"`
	CustomerID         string         `json:"customer_id"`
	CustomerTier       CustomerTier   `json:"customer_tier,omitempty"`
	Title              string         `json:"title,omitempty"`
	Category           string         `json:"category,omitempty"`
	Priority           TicketPriority `json:"priority"`
	Status             TicketStatus   `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	SLADeadline        time.Time      `json:"sla_deadline"`
	EscalationLevel    int            `json:"escalation_level"`
	AssignedTo         string         `json:"assigned_to,omitempty"`
	TimeSpentMinutes   int            `json:"time_spent_minutes"`
	TechnicianWorkload *float64       `json:"technician_workload,omitempty"`
}

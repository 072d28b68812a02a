package models

import "time"

// ChannelType enumerates supported outbound notification transports.
type ChannelType string

const (
	ChannelChat  ChannelType = "chat"
	ChannelBot   ChannelType = "bot"
	ChannelEmail ChannelType = "email"
)

// IsValid reports whether c is a known channel type.
func (c ChannelType) IsValid() bool {
	switch c {
	case ChannelChat, ChannelBot, ChannelEmail:
		return true
	default:
		return false
	}
}

// DeliveryStatus captures the lifecycle state of a single channel delivery.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryRetrying  DeliveryStatus = "retrying"
)

// Delivery is one attempt chain to send an alert through one channel.
type Delivery struct {
	ID          string         `json:"id"`
	AlertID     string         `json:"alert_id"`
	ChannelID   string         `json:"channel_id"`
	ChannelType ChannelType    `json:"channel_type"`
	Status      DeliveryStatus `json:"status"`
	Attempts    int            `json:"attempts"`
	LastAttempt time.Time      `json:"last_attempt"`
	NextAttempt *time.Time     `json:"next_attempt,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// DeliveryStats summarizes delivery outcomes for operators.
type DeliveryStats struct {
	Total             int64   `json:"total"`
	Sent              int64   `json:"sent"`
	Retried           int64   `json:"retried"`
	PermanentlyFailed int64   `json:"permanently_failed"`
	SuccessRate       float64 `json:"success_rate"`
	AverageAttempts   float64 `json:"average_attempts"`
	QueueDepth        int     `json:"queue_depth"`
}

package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

const defaultHTTPTimeout = 10 * time.Second

// SlackChannel posts to a chat incoming webhook.
type SlackChannel struct {
	id         string
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackChannel creates a chat channel for webhookURL. channel optionally overrides the webhook's room.
func NewSlackChannel(id, webhookURL, channel string) *SlackChannel {
	return &SlackChannel{
		id:         id,
		webhookURL: webhookURL,
		channel:    channel,
		client:     &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (s *SlackChannel) ID() string               { return s.id }
func (s *SlackChannel) Type() models.ChannelType { return models.ChannelChat }

func (s *SlackChannel) Send(ctx context.Context, msg Message) error {
	if s.webhookURL == "" {
		return Permanent(fmt.Errorf("chat webhook URL is not configured"))
	}
	payload := map[string]any{
		"text": fmt.Sprintf("%s *%s*\n%s", severityMarker(msg.Severity), msg.Title, msg.Text()),
	}
	if s.channel != "" {
		payload["channel"] = s.channel
	}
	if err := postJSON(ctx, s.client, s.webhookURL, nil, payload); err != nil {
		return fmt.Errorf("chat send: %w", err)
	}
	return nil
}

// TelegramChannel sends through a bot API.
type TelegramChannel struct {
	id       string
	apiURL   string
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramChannel creates a bot channel. apiURL defaults to the public Telegram API.
func NewTelegramChannel(id, apiURL, botToken, chatID string) *TelegramChannel {
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &TelegramChannel{
		id:       id,
		apiURL:   strings.TrimSuffix(apiURL, "/"),
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (t *TelegramChannel) ID() string               { return t.id }
func (t *TelegramChannel) Type() models.ChannelType { return models.ChannelBot }

func (t *TelegramChannel) Send(ctx context.Context, msg Message) error {
	if t.botToken == "" || t.chatID == "" {
		return Permanent(fmt.Errorf("bot token and chat id are required"))
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)
	payload := map[string]any{
		"chat_id": t.chatID,
		"text":    fmt.Sprintf("%s %s", severityMarker(msg.Severity), msg.Text()),
	}
	if err := postJSON(ctx, t.client, url, nil, payload); err != nil {
		// The token is part of the URL; keep it out of logs.
		redacted := fmt.Errorf("bot send: %w", errors.New(strings.ReplaceAll(err.Error(), t.botToken, "***")))
		if IsRetryable(err) {
			return redacted
		}
		return Permanent(redacted)
	}
	return nil
}

// WebhookChannel posts the alert as JSON to an arbitrary endpoint. It is routed as a chat channel.
type WebhookChannel struct {
	id      string
	url     string
	headers map[string]string
	client  *http.Client
}

type webhookPayload struct {
	AlertID          string               `json:"alert_id"`
	TicketID         string               `json:"ticket_id"`
	Kind             models.AlertKind     `json:"kind"`
	Severity         models.AlertSeverity `json:"severity"`
	Title            string               `json:"title"`
	Message          string               `json:"message"`
	RiskScore        float64              `json:"risk_score"`
	MinutesRemaining int                  `json:"minutes_remaining"`
	EscalationLevel  int                  `json:"escalation_level"`
	Recommendations  []string             `json:"recommendations,omitempty"`
	RiskFactors      []string             `json:"risk_factors,omitempty"`
	Timestamp        time.Time            `json:"timestamp"`
}

// NewWebhookChannel creates a generic JSON webhook channel.
func NewWebhookChannel(id, url string, headers map[string]string) *WebhookChannel {
	return &WebhookChannel{
		id:      id,
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (w *WebhookChannel) ID() string               { return w.id }
func (w *WebhookChannel) Type() models.ChannelType { return models.ChannelChat }

func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if w.url == "" {
		return Permanent(fmt.Errorf("webhook URL is not configured"))
	}
	payload := webhookPayload{
		AlertID:          msg.AlertID,
		TicketID:         msg.TicketID,
		Kind:             msg.Kind,
		Severity:         msg.Severity,
		Title:            msg.Title,
		Message:          msg.Body,
		RiskScore:        msg.RiskScore,
		MinutesRemaining: msg.Minutes,
		EscalationLevel:  msg.EscalationLevel,
		Recommendations:  msg.Recommendations,
		RiskFactors:      msg.RiskFactors,
		Timestamp:        msg.Timestamp,
	}
	if err := postJSON(ctx, w.client, w.url, w.headers, payload); err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	return nil
}

func severityMarker(s models.AlertSeverity) string {
	switch s {
	case models.AlertSeverityCritical:
		return "[CRITICAL]"
	case models.AlertSeverityError:
		return "[ERROR]"
	case models.AlertSeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

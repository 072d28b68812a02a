// Package delivery fans alerts out to notification channels and retries failed sends.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

// Channel is a single configured notification destination.
type Channel interface {
	ID() string
	Type() models.ChannelType
	Send(ctx context.Context, msg Message) error
}

// Message is the channel-neutral rendering of an alert.
type Message struct {
	AlertID         string
	TicketID        string
	Kind            models.AlertKind
	Severity        models.AlertSeverity
	Title           string
	Body            string
	Recommendations []string
	RiskFactors     []string
	RiskScore       float64
	Minutes         int
	EscalationLevel int
	Timestamp       time.Time
}

// MessageFromAlert renders alert for delivery.
func MessageFromAlert(a models.Alert) Message {
	return Message{
		AlertID:         a.ID,
		TicketID:        a.TicketID,
		Kind:            a.Kind,
		Severity:        a.Severity,
		Title:           fmt.Sprintf("%s: ticket %s", strings.ReplaceAll(string(a.Kind), "_", " "), a.TicketID),
		Body:            a.Message,
		Recommendations: a.Recommendations,
		RiskFactors:     a.RiskFactors,
		RiskScore:       a.RiskScore,
		Minutes:         a.MinutesRemaining,
		EscalationLevel: a.EscalationLevel,
		Timestamp:       a.CreatedAt,
	}
}

// Text renders the message as plain text.
func (m Message) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n%s\n", strings.ToUpper(string(m.Severity)), m.Title, m.Body)
	fmt.Fprintf(&b, "Risk: %.0f%%  Minutes remaining: %d  Escalation level: %d\n", m.RiskScore*100, m.Minutes, m.EscalationLevel)
	if len(m.RiskFactors) > 0 {
		fmt.Fprintf(&b, "Risk factors: %s\n", strings.Join(m.RiskFactors, "; "))
	}
	if len(m.Recommendations) > 0 {
		b.WriteString("Recommended actions:\n")
		for _, r := range m.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}

// PermanentError wraps a send failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsRetryable reports whether a failed send may succeed later.
func IsRetryable(err error) bool {
	var pe *PermanentError
	return err != nil && !errors.As(err, &pe)
}

// postJSON sends payload and maps the response status to an error. Client errors
// other than 408 and 429 are permanent.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return Permanent(fmt.Errorf("failed to marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<10))
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}

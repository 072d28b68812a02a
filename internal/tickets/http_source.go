package tickets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

// HTTPSourceOptions configures an HTTPSource.
type HTTPSourceOptions struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPSource reads tickets from the helpdesk REST API.
//
//	GET   {base}/tickets?status=open,in_progress  -> {"tickets": [...]}
//	PATCH {base}/tickets/{id}/escalation          <- {"escalation_level": n, "reason": "..."}
type HTTPSource struct {
	baseURL string
	token   string
	client  *http.Client
}

type listResponse struct {
	Tickets []models.Ticket `json:"tickets"`
}

type escalationRequest struct {
	EscalationLevel int    `json:"escalation_level"`
	Reason          string `json:"reason,omitempty"`
}

// NewHTTPSource constructs an HTTPSource.
func NewHTTPSource(opts HTTPSourceOptions) (*HTTPSource, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("tickets base URL is required")
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSource{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		token:   opts.Token,
		client:  client,
	}, nil
}

// ListActiveItems implements Source.
func (s *HTTPSource) ListActiveItems(ctx context.Context, statuses []models.TicketStatus) ([]models.Ticket, error) {
	q := url.Values{}
	if len(statuses) > 0 {
		q.Set("status", strings.Join(statusStrings(statuses), ","))
	}
	endpoint := s.baseURL + "/tickets"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	body, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}

	var out listResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding ticket list: %w", err)
	}
	return out.Tickets, nil
}

// SetEscalationLevel implements Source.
func (s *HTTPSource) SetEscalationLevel(ctx context.Context, ticketID string, level int, reason string) error {
	payload, err := json.Marshal(escalationRequest{EscalationLevel: level, Reason: reason})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/tickets/%s/escalation", s.baseURL, url.PathEscape(ticketID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if _, err := s.do(req); err != nil {
		return fmt.Errorf("updating escalation for ticket %s: %w", ticketID, err)
	}
	return nil
}

func (s *HTTPSource) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

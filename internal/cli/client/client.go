// Package client provides the HTTP client for the slawatch query API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	cliconfig "github.com/mr-karan/slawatch/internal/cli/config"
	"github.com/mr-karan/slawatch/internal/config"
	"github.com/mr-karan/slawatch/internal/monitor"
	"github.com/mr-karan/slawatch/pkg/models"
)

// Client is the slawatch API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new API client
func New(cfg *cliconfig.Config) (*Client, error) {
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("server URL is required")
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.Server.URL, "/"),
		token:   cfg.Auth.Token,
		httpClient: &http.Client{
			Timeout: cfg.Server.Timeout,
		},
	}, nil
}

// RequestOptions describes one API call.
type RequestOptions struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// APIError represents an error response from the API
type APIError struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	ErrorType  string `json:"error_type,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
	}
	return e.Message
}

// Do performs an HTTP request to the API
func (c *Client) Do(ctx context.Context, opts RequestOptions) (*http.Response, error) {
	reqURL, err := url.Parse(c.baseURL + opts.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if opts.Query != nil {
		reqURL.RawQuery = opts.Query.Encode()
	}

	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "slawatch-cli/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// DoJSON performs a request and decodes the data field of the response into result.
func (c *Client) DoJSON(ctx context.Context, opts RequestOptions, result any) error {
	resp, err := c.Do(ctx, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Message == "" {
			return &APIError{
				Status:     "error",
				Message:    strings.TrimSpace(string(respBody)),
				StatusCode: resp.StatusCode,
			}
		}
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	if result == nil {
		return nil
	}
	envelope := struct {
		Status string `json:"status"`
		Data   any    `json:"data"`
	}{Data: result}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// --- API Methods ---

// Health is the server health summary.
type Health struct {
	Status     string    `json:"status"`
	Version    string    `json:"version"`
	Uptime     string    `json:"uptime"`
	CycleBusy  bool      `json:"cycle_running"`
	QueueDepth int       `json:"retry_queue_depth"`
	LastCycle  time.Time `json:"last_cycle"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.DoJSON(ctx, RequestOptions{Method: http.MethodGet, Path: "/health"}, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// SchedulerStatus returns trigger state and the last cycle summary.
func (c *Client) SchedulerStatus(ctx context.Context) (*monitor.SchedulerStatus, error) {
	var st monitor.SchedulerStatus
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/scheduler/status",
	}, &st)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Trigger runs a monitoring cycle on the server and waits for its summary.
func (c *Client) Trigger(ctx context.Context) (*monitor.CycleSummary, error) {
	var summary monitor.CycleSummary
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   "/api/v1/scheduler/trigger",
	}, &summary)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListAlerts returns alert history matching filter.
func (c *Client) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	q := url.Values{}
	if filter.TicketID != "" {
		q.Set("ticket_id", filter.TicketID)
	}
	if filter.Severity != "" {
		q.Set("severity", string(filter.Severity))
	}
	if !filter.From.IsZero() {
		q.Set("from", filter.From.UTC().Format(time.RFC3339))
	}
	if !filter.To.IsZero() {
		q.Set("to", filter.To.UTC().Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	var list []models.Alert
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/alerts",
		Query:  q,
	}, &list)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// DeliveryStats returns delivery outcome statistics.
func (c *Client) DeliveryStats(ctx context.Context) (*models.DeliveryStats, error) {
	var st models.DeliveryStats
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/deliveries/stats",
	}, &st)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Suppressions returns the current suppression records.
func (c *Client) Suppressions(ctx context.Context) ([]models.SuppressionRecord, error) {
	var recs []models.SuppressionRecord
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/suppressions",
	}, &recs)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// UpdateConfig applies a runtime configuration update and returns the new configuration.
func (c *Client) UpdateConfig(ctx context.Context, update config.RuntimeUpdate) (*config.Config, error) {
	var cfg config.Config
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodPut,
		Path:   "/api/v1/config",
		Body:   update,
	}, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Config returns the server's effective configuration.
func (c *Client) Config(ctx context.Context) (*config.Config, error) {
	var cfg config.Config
	if err := c.DoJSON(ctx, RequestOptions{Method: http.MethodGet, Path: "/api/v1/config"}, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

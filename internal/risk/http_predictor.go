package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// HTTPPredictorOptions configures the prediction service client.
type HTTPPredictorOptions struct {
	URL        string
	Timeout    time.Duration
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// HTTPPredictor calls the external prediction service. Consecutive failures open
// a circuit breaker so that a dead service fails fast instead of consuming every
// ticket's timeout.
type HTTPPredictor struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
}

// predictionEnvelope mirrors the service response wrapper.
type predictionEnvelope struct {
	Success bool        `json:"success"`
	Result  *Prediction `json:"result"`
	Error   string      `json:"error"`
}

// NewHTTPPredictor constructs a predictor for the service at opts.URL.
func NewHTTPPredictor(opts HTTPPredictorOptions) (*HTTPPredictor, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, fmt.Errorf("prediction service URL is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "prediction_client")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "prediction-service",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("prediction circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	return &HTTPPredictor{
		url:     url,
		client:  client,
		breaker: breaker,
		log:     log,
	}, nil
}

// Predict implements Predictor.
func (p *HTTPPredictor) Predict(ctx context.Context, req PredictionRequest) (*Prediction, error) {
	res, err := p.breaker.Execute(func() (interface{}, error) {
		return p.do(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("prediction service unavailable: %w", err)
		}
		return nil, err
	}
	return res.(*Prediction), nil
}

func (p *HTTPPredictor) do(ctx context.Context, req PredictionRequest) (*Prediction, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal prediction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create prediction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send prediction request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read prediction response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := raw
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, fmt.Errorf("prediction service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var env predictionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode prediction response: %w", err)
	}
	if !env.Success || env.Result == nil {
		if env.Error == "" {
			env.Error = "empty result"
		}
		return nil, fmt.Errorf("prediction failed: %s", env.Error)
	}
	if err := env.Result.validate(); err != nil {
		return nil, fmt.Errorf("%w: breach_probability %v", err, env.Result.BreachProbability)
	}

	p.log.Debug("prediction received", "ticket_id", req.TicketID, "breach_probability", env.Result.BreachProbability)
	return env.Result, nil
}

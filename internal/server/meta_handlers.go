package server

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/slawatch/internal/metrics"
)

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status     string    `json:"status"`
	Version    string    `json:"version"`
	Uptime     string    `json:"uptime"`
	CycleBusy  bool      `json:"cycle_running"`
	QueueDepth int       `json:"retry_queue_depth"`
	LastCycle  time.Time `json:"last_cycle,omitempty"`
}

// handleHealth reports liveness and a short engine summary.
// GET /health
func (s *Server) handleHealth(c *fiber.Ctx) error {
	st := s.scheduler.Status()
	resp := HealthResponse{
		Status:     "ok",
		Version:    s.version,
		Uptime:     time.Since(s.startedAt).Round(time.Second).String(),
		CycleBusy:  st.Running,
		QueueDepth: st.QueueDepth,
	}
	if st.LastCycle != nil {
		resp.LastCycle = st.LastCycle.StartedAt
	}
	return SendSuccess(c, fiber.StatusOK, resp)
}

// handleMetrics exposes metrics in the Prometheus text format.
// GET /metrics
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	metrics.WritePrometheus(c.Response().BodyWriter())
	return nil
}

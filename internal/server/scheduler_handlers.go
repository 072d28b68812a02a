package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/slawatch/internal/scheduler"
	"github.com/mr-karan/slawatch/pkg/models"
)

// handleSchedulerStatus returns trigger state and the last cycle summary.
// GET /api/v1/scheduler/status
// @Summary Scheduler status
// @Tags scheduler
// @Produce json
// @Success 200 {object} models.APIResponse{data=monitor.SchedulerStatus}
// @Router /scheduler/status [get]
func (s *Server) handleSchedulerStatus(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, s.scheduler.Status())
}

// handleTriggerCycle runs a full monitoring cycle synchronously.
// POST /api/v1/scheduler/trigger
// @Summary Run a monitoring cycle
// @Description Runs a full cycle and returns its summary. Fails with 409 while another cycle runs.
// @Tags scheduler
// @Produce json
// @Success 200 {object} models.APIResponse{data=monitor.CycleSummary}
// @Failure 409 {object} models.APIResponse
// @Failure 502 {object} models.APIResponse
// @Router /scheduler/trigger [post]
func (s *Server) handleTriggerCycle(c *fiber.Ctx) error {
	summary, err := s.scheduler.TriggerNow(c.UserContext())
	if err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			return SendErrorWithType(c, fiber.StatusConflict, "A monitoring cycle is already running", models.ConflictErrorType)
		}
		s.log.Error("manual cycle failed", "error", err)
		return SendError(c, fiber.StatusBadGateway, "Monitoring cycle failed: "+err.Error())
	}
	return SendSuccess(c, fiber.StatusOK, summary)
}

// handleDeliveryStats returns delivery outcome statistics.
// GET /api/v1/deliveries/stats
// @Summary Delivery statistics
// @Tags deliveries
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.DeliveryStats}
// @Router /deliveries/stats [get]
func (s *Server) handleDeliveryStats(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, s.engine.Dispatcher().Stats())
}

// handleRetryQueue lists deliveries waiting for their next attempt.
// GET /api/v1/deliveries/queue
// @Summary Retry queue
// @Tags deliveries
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /deliveries/queue [get]
func (s *Server) handleRetryQueue(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, s.engine.Dispatcher().Queue().Snapshot())
}

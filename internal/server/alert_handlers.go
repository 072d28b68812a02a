package server

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/slawatch/pkg/models"
)

const maxAlertHistoryLimit = 1000

// handleListAlerts returns alert history, newest first.
// GET /api/v1/alerts?ticket_id=&severity=&from=&to=&limit=
// @Summary List alerts
// @Tags alerts
// @Produce json
// @Param ticket_id query string false "Ticket ID"
// @Param severity query string false "info, warning, error or critical"
// @Param from query string false "RFC 3339 lower bound on created_at"
// @Param to query string false "RFC 3339 upper bound on created_at"
// @Param limit query int false "1 to 1000, default 50"
// @Success 200 {object} models.APIResponse{data=[]models.Alert}
// @Failure 400 {object} models.APIResponse
// @Router /alerts [get]
func (s *Server) handleListAlerts(c *fiber.Ctx) error {
	filter, err := parseAlertFilter(c)
	if err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	}

	alerts, err := s.engine.History().ListAlerts(c.Context(), filter)
	if err != nil {
		s.log.Error("failed to list alerts", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list alerts", models.DatabaseErrorType)
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return SendSuccess(c, fiber.StatusOK, alerts)
}

// handleListAlertDeliveries returns the deliveries recorded for one alert.
// GET /api/v1/alerts/:id/deliveries
// @Summary List deliveries for an alert
// @Tags alerts
// @Produce json
// @Param id path string true "Alert ID"
// @Success 200 {object} models.APIResponse{data=[]models.Delivery}
// @Router /alerts/{id}/deliveries [get]
func (s *Server) handleListAlertDeliveries(c *fiber.Ctx) error {
	alertID := c.Params("id")
	deliveries, err := s.engine.History().ListDeliveries(c.Context(), alertID)
	if err != nil {
		s.log.Error("failed to list deliveries", "alert_id", alertID, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list deliveries", models.DatabaseErrorType)
	}
	if deliveries == nil {
		deliveries = []models.Delivery{}
	}
	return SendSuccess(c, fiber.StatusOK, deliveries)
}

// handleListSuppressions returns the current suppression records.
// GET /api/v1/suppressions
// @Summary List active suppressions
// @Tags alerts
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.SuppressionRecord}
// @Router /suppressions [get]
func (s *Server) handleListSuppressions(c *fiber.Ctx) error {
	records, err := s.engine.Suppressions(c.Context())
	if err != nil {
		s.log.Error("failed to list suppressions", "error", err)
		return SendError(c, fiber.StatusInternalServerError, "Failed to list suppressions")
	}
	if records == nil {
		records = []models.SuppressionRecord{}
	}
	return SendSuccess(c, fiber.StatusOK, records)
}

func parseAlertFilter(c *fiber.Ctx) (models.AlertFilter, error) {
	f := models.AlertFilter{
		TicketID: c.Query("ticket_id"),
		Severity: models.AlertSeverity(c.Query("severity")),
		Limit:    c.QueryInt("limit", models.DefaultAlertHistoryLimit),
	}
	if f.Severity != "" && !f.Severity.IsValid() {
		return f, fmt.Errorf("invalid severity %q", f.Severity)
	}
	if f.Limit <= 0 || f.Limit > maxAlertHistoryLimit {
		return f, fmt.Errorf("limit must be between 1 and %d", maxAlertHistoryLimit)
	}

	var err error
	if f.From, err = parseTimeParam(c.Query("from")); err != nil {
		return f, fmt.Errorf("invalid from: %w", err)
	}
	if f.To, err = parseTimeParam(c.Query("to")); err != nil {
		return f, fmt.Errorf("invalid to: %w", err)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("to must not be before from")
	}
	return f, nil
}

// parseTimeParam accepts RFC 3339 timestamps. An empty value is the zero time.
func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/slawatch/internal/config"
	"github.com/mr-karan/slawatch/pkg/models"
)

// handleGetConfig returns the active configuration. Secrets are omitted by
// the config json tags.
// GET /api/v1/config
// @Summary Get configuration
// @Tags config
// @Produce json
// @Success 200 {object} models.APIResponse{data=config.Config}
// @Router /config [get]
func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, s.engine.Config())
}

// handleUpdateConfig validates a partial runtime update, persists it and
// applies it to the running engine and scheduler.
// PUT /api/v1/config
// @Summary Update runtime settings
// @Tags config
// @Accept json
// @Produce json
// @Param update body config.RuntimeUpdate true "Partial update"
// @Success 200 {object} models.APIResponse{data=config.Config}
// @Failure 400 {object} models.APIResponse
// @Failure 500 {object} models.APIResponse
// @Router /config [put]
func (s *Server) handleUpdateConfig(c *fiber.Ctx) error {
	var req config.RuntimeUpdate
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}

	s.configMu.Lock()
	defer s.configMu.Unlock()

	updated, err := req.Apply(s.engine.Config())
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
		}
		s.log.Error("failed to apply configuration update", "error", err)
		return SendError(c, fiber.StatusInternalServerError, "Failed to apply configuration")
	}

	if s.settings != nil {
		if err := s.settings.SaveSettings(c.UserContext(), config.RuntimeSettings(updated)); err != nil {
			s.log.Error("failed to persist configuration", "error", err)
			return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to persist configuration", models.DatabaseErrorType)
		}
	}

	s.scheduler.UpdateConfig(updated)
	s.log.Info("runtime configuration updated")
	return SendSuccess(c, fiber.StatusOK, updated)
}

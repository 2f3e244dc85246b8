package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/omnidrive/domain/kinematics"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
	"github.com/open-teleop/omnidrive/services"
)

// ConfigHandler serves the runtime geometry.
type ConfigHandler struct {
	geometryService services.GeometryService
	logger          customlog.Logger
}

func NewConfigHandler(geometryService services.GeometryService, logger customlog.Logger) *ConfigHandler {
	if geometryService == nil {
		panic("GeometryService cannot be nil in NewConfigHandler")
	}
	return &ConfigHandler{
		geometryService: geometryService,
		logger:          logger,
	}
}

// RegisterConfigRoutes mounts GET/PUT /api/v1/config/geometry.
func RegisterConfigRoutes(app fiber.Router, geometryService services.GeometryService, logger customlog.Logger) {
	h := NewConfigHandler(geometryService, logger)

	group := app.Group("/api/v1/config")
	group.Get("/geometry", h.handleGetGeometry)
	group.Put("/geometry", h.handleUpdateGeometry)

	logger.Infof("Registered geometry configuration API endpoints under /api/v1/config")
}

func (h *ConfigHandler) handleGetGeometry(c *fiber.Ctx) error {
	yamlData, err := h.geometryService.GetGeometryYAML()
	if err != nil {
		h.logger.Errorf("Failed to render geometry YAML: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to retrieve geometry: %v", err),
		})
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}

func (h *ConfigHandler) handleUpdateGeometry(c *fiber.Ctx) error {
	switch ct := c.Get(fiber.HeaderContentType); ct {
	case "application/x-yaml", "application/yaml", "text/yaml", "":
	default:
		h.logger.Warnf("Geometry update with Content-Type %s, parsing as YAML anyway", ct)
	}

	body := c.Body()
	if len(body) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Request body cannot be empty.",
		})
	}

	file, err := h.geometryService.UpdateGeometry(body)
	if err != nil {
		h.logger.Errorf("Failed to update geometry: %v", err)
		if errors.Is(err, kinematics.ErrInvalidGeometry) || errors.Is(err, services.ErrInvalidGeometryFile) {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Geometry update failed: %v", err),
			})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Internal server error during geometry update: %v", err),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Geometry updated; the drive uses it from the next tick.",
		"version": file.Version,
	})
}

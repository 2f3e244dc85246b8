package drive

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/omnidrive/pkg/api"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

// Handler exposes the drive over REST.
type Handler struct {
	service *Service
	logger  customlog.Logger
}

// RegisterRoutes mounts the drive endpoints under /api/v1/drive.
func RegisterRoutes(app fiber.Router, service *Service, logger customlog.Logger) {
	h := &Handler{service: service, logger: logger}

	group := app.Group("/api/v1/drive")
	group.Post("/command", h.handleCommand)
	group.Post("/stop", h.handleStop)
	group.Post("/reset", h.handleReset)
	group.Get("/status", h.handleStatus)

	logger.Infof("Registered drive API endpoints under /api/v1/drive")
}

func (h *Handler) handleCommand(c *fiber.Ctx) error {
	cmd, err := api.ParseMotionCommand(c.Body())
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(api.CommandReply{Status: api.ReplyError, Error: err.Error()})
	}
	if cmd.Kind == api.CommandNone {
		return c.JSON(fiber.Map{"status": api.ReplyIgnored})
	}

	res, err := h.service.Submit(cmd)
	if err != nil {
		return h.submitError(c, err)
	}
	return c.JSON(api.NewOKReply(res))
}

func (h *Handler) handleStop(c *fiber.Ctx) error {
	if err := h.service.Halt(); err != nil {
		return h.submitError(c, err)
	}
	return c.JSON(fiber.Map{"status": api.ReplyOK})
}

func (h *Handler) handleReset(c *fiber.Ctx) error {
	h.service.Reset()
	return c.JSON(fiber.Map{"status": api.ReplyOK})
}

func (h *Handler) handleStatus(c *fiber.Ctx) error {
	return c.JSON(h.service.Status())
}

func (h *Handler) submitError(c *fiber.Ctx, err error) error {
	h.logger.Warnf("Drive rejected command: %v", err)
	return c.Status(http.StatusServiceUnavailable).JSON(api.NewErrorReply(err))
}

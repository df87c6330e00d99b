package api

import (
	"context"
	"errors"
	"time"

	"github.com/bobby-s-dev/location-weather/internal/display"
	"github.com/bobby-s-dev/location-weather/internal/lifecycle"
	"github.com/bobby-s-dev/location-weather/internal/permission"
	"github.com/bobby-s-dev/location-weather/internal/scheduler"
	"github.com/bobby-s-dev/location-weather/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const uiCallTimeout = 5 * time.Second

// UI runs a function on the UI loop and waits for it.
type UI interface {
	Call(ctx context.Context, fn func()) error
}

type DisplayReader interface {
	Snapshot() display.Snapshot
}

type StatusReporter interface {
	Status() services.Status
}

type PermissionResolver interface {
	Resolve(granted bool) error
}

type ProviderStatus interface {
	GetStatus() map[string]interface{}
}

type Handler struct {
	ui          UI
	owner       *lifecycle.Owner
	status      StatusReporter
	display     DisplayReader
	permissions PermissionResolver
	provider    ProviderStatus
	logger      *zap.Logger
}

func NewHandler(ui UI, owner *lifecycle.Owner, status StatusReporter, d DisplayReader, permissions PermissionResolver, provider ProviderStatus, logger *zap.Logger) *Handler {
	return &Handler{
		ui:          ui,
		owner:       owner,
		status:      status,
		display:     d,
		permissions: permissions,
		provider:    provider,
		logger:      logger.Named("api"),
	}
}

type permissionRequest struct {
	Granted *bool `json:"granted"`
}

// GetDisplay handles GET /api/v1/display
func (h *Handler) GetDisplay(c *fiber.Ctx) error {
	return c.JSON(h.display.Snapshot())
}

// GetStatus handles GET /api/v1/status
func (h *Handler) GetStatus(c *fiber.Ctx) error {
	var (
		state  lifecycle.State
		status services.Status
	)
	err := h.onUI(c, func() {
		state = h.owner.State()
		status = h.status.Status()
	})
	if err != nil {
		return h.uiUnavailable(c, err)
	}

	return c.JSON(fiber.Map{
		"lifecycle":  state.String(),
		"controller": status,
		"provider":   h.provider.GetStatus(),
		"timestamp":  time.Now(),
	})
}

// PostLifecycle handles POST /api/v1/lifecycle/:event
func (h *Handler) PostLifecycle(c *fiber.Ctx) error {
	ev, err := lifecycle.ParseEvent(c.Params("event"))
	if err != nil || (ev != lifecycle.EventResume && ev != lifecycle.EventPause) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Event must be one of: resume, pause",
		})
	}

	var (
		handleErr error
		state     lifecycle.State
	)
	err = h.onUI(c, func() {
		handleErr = h.owner.Handle(ev)
		state = h.owner.State()
	})
	if err != nil {
		return h.uiUnavailable(c, err)
	}

	var invalid *lifecycle.ErrInvalidTransition
	if errors.As(handleErr, &invalid) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": handleErr.Error(),
			"state": state.String(),
		})
	}
	if handleErr != nil {
		return handleErr
	}

	h.logger.Info("Lifecycle event applied", zap.String("event", string(ev)))
	return c.JSON(fiber.Map{"state": state.String()})
}

// PostPermission handles POST /api/v1/permission
func (h *Handler) PostPermission(c *fiber.Ctx) error {
	var req permissionRequest
	if err := c.BodyParser(&req); err != nil || req.Granted == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Body must be a JSON object with a boolean \"granted\" field",
		})
	}

	if err := h.permissions.Resolve(*req.Granted); err != nil {
		if errors.Is(err, permission.ErrNoPendingRequest) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "No permission request is waiting for an answer",
			})
		}
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"granted": *req.Granted})
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime).String(),
	})
}

func (h *Handler) onUI(c *fiber.Ctx, fn func()) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), uiCallTimeout)
	defer cancel()
	return h.ui.Call(ctx, fn)
}

func (h *Handler) uiUnavailable(c *fiber.Ctx, err error) error {
	h.logger.Warn("UI loop unavailable", zap.Error(err))
	if errors.Is(err, scheduler.ErrLoopStopped) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Service is shutting down",
		})
	}
	return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
		"error": "UI loop did not respond in time",
	})
}

var startTime = time.Now()

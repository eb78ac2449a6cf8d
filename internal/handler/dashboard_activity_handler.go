package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/internal/service"
	"github.com/noah-isme/volunteer-hub-web/internal/utils"
)

// DashboardActivityHandler exposes the activities page of the dashboard.
type DashboardActivityHandler struct {
	store     *service.DashboardSessionStore
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewDashboardActivityHandler constructs the handler.
func NewDashboardActivityHandler(store *service.DashboardSessionStore, validate *validator.Validate, logger zerolog.Logger) *DashboardActivityHandler {
	return &DashboardActivityHandler{
		store:     store,
		validator: validate,
		logger:    logger.With().Str("component", "dashboard_activity_handler").Logger(),
	}
}

// Register binds the activities page routes.
func (h *DashboardActivityHandler) Register(router fiber.Router) {
	router.Get("/overview", h.overview)
	router.Get("/activities", h.view)
	router.Put("/activities/filters", h.updateFilters)
	router.Put("/activities/filters/keyword", h.keyword)
	router.Post("/activities/filters/reset", h.resetFilters)
	router.Put("/activities/page", h.page)
	router.Post("/activities/refresh", h.refresh)
	router.Delete("/activities/view", h.closeView)
	router.Post("/activities/:id/view", h.openView)
	router.Delete("/activities/:id", h.delete)
}

func (h *DashboardActivityHandler) overview(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	overview, err := session.Overview(requestContext(c))
	if err != nil {
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "overview", overview)
}

func (h *DashboardActivityHandler) view(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "activities", session.View())
}

func (h *DashboardActivityHandler) updateFilters(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	var payload dto.FilterUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	if err := session.UpdateFilters(payload.Fields()); err != nil {
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "filters updated", session.View())
}

func (h *DashboardActivityHandler) keyword(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	var payload dto.KeywordRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	session.SetKeyword(payload.Keyword)
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "keyword accepted", session.View())
}

func (h *DashboardActivityHandler) resetFilters(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	session.ResetFilters()
	return utils.SendSuccess(c, "filters reset", session.View())
}

func (h *DashboardActivityHandler) page(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	var payload dto.PageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	if err := session.SetPage(payload.Page); err != nil {
		return sendServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "page changed", session.View())
}

func (h *DashboardActivityHandler) refresh(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	if err := session.Refresh(requestContext(c)); err != nil {
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "activities refreshed", session.View())
}

func (h *DashboardActivityHandler) delete(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	if err := session.Delete(requestContext(c), c.Params("id")); err != nil {
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "activity deleted", session.View())
}

func (h *DashboardActivityHandler) openView(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	detail, err := session.ViewActivity(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "activity", detail)
}

func (h *DashboardActivityHandler) closeView(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	session.CloseView()
	return utils.SendSuccess(c, "view closed", session.View())
}

package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/service"
	"github.com/noah-isme/volunteer-hub-web/internal/utils"
)

// PublicActivityHandler serves the public activity listing.
type PublicActivityHandler struct {
	service service.PublicActivityService
	logger  zerolog.Logger
}

// NewPublicActivityHandler constructs the handler.
func NewPublicActivityHandler(service service.PublicActivityService, logger zerolog.Logger) *PublicActivityHandler {
	return &PublicActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "public_activity_handler").Logger(),
	}
}

// Register binds the public activity routes.
func (h *PublicActivityHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/:id", h.detail)
}

func (h *PublicActivityHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil || page < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}

	response, err := h.service.Page(requestContext(c), page)
	if err != nil {
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}

	if response.CacheHit {
		c.Set("X-Cache", "HIT")
	} else {
		c.Set("X-Cache", "MISS")
	}

	return utils.SendSuccess(c, "activities", response)
}

func (h *PublicActivityHandler) detail(c *fiber.Ctx) error {
	item, err := h.service.Detail(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "activity", item)
}

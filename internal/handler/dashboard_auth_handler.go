package handler

import (
	"crypto/subtle"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/internal/middleware"
	"github.com/noah-isme/volunteer-hub-web/internal/service"
	"github.com/noah-isme/volunteer-hub-web/internal/utils"
)

// UnlockResponse is returned after a successful unlock.
type UnlockResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DashboardAuthHandler unlocks and locks the dashboard.
type DashboardAuthHandler struct {
	store     *service.DashboardSessionStore
	lock      *middleware.DashboardLock
	password  []byte
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewDashboardAuthHandler constructs the handler.
func NewDashboardAuthHandler(store *service.DashboardSessionStore, lock *middleware.DashboardLock, password string, validate *validator.Validate, logger zerolog.Logger) *DashboardAuthHandler {
	return &DashboardAuthHandler{
		store:     store,
		lock:      lock,
		password:  []byte(password),
		validator: validate,
		logger:    logger.With().Str("component", "dashboard_auth_handler").Logger(),
	}
}

// Register binds the lock routes. limit guards unlock attempts.
func (h *DashboardAuthHandler) Register(router fiber.Router, limit fiber.Handler) {
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Post("/unlock", limit, h.unlock)
	router.Post("/lock", h.lockDashboard)
}

func (h *DashboardAuthHandler) unlock(c *fiber.Ctx) error {
	var payload dto.UnlockRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", fieldErrors(err))
	}

	if subtle.ConstantTimeCompare([]byte(payload.Password), h.password) != 1 {
		requestLogger(h.logger, c).Warn().Str("ip", c.IP()).Msg("dashboard unlock rejected")
		return utils.SendError(c, fiber.StatusUnauthorized, "incorrect password")
	}

	session := h.store.Create(requestContext(c))
	token, expires, err := h.lock.Issue(session.ID())
	if err != nil {
		h.store.Remove(session.ID())
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to sign dashboard token")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to unlock dashboard")
	}

	h.lock.SetCookie(c, token, expires)
	requestLogger(h.logger, c).Info().Str("session_id", session.ID()).Msg("dashboard unlocked")

	return utils.SendSuccess(c, "dashboard unlocked", UnlockResponse{
		SessionID: session.ID(),
		Token:     token,
		ExpiresAt: expires.UTC(),
	})
}

func (h *DashboardAuthHandler) lockDashboard(c *fiber.Ctx) error {
	if sessionID, err := h.lock.Parse(c.Cookies(middleware.DashboardCookieName)); err == nil {
		h.store.Remove(sessionID)
	}
	h.lock.ClearCookie(c)
	return utils.SendSuccess(c, "dashboard locked", nil)
}

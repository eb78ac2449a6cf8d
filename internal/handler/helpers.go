package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/middleware"
	"github.com/noah-isme/volunteer-hub-web/internal/service"
	"github.com/noah-isme/volunteer-hub-web/internal/utils"
	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func fieldErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		fields[strings.ToLower(fe.Field()[:1])+fe.Field()[1:]] = fe.Tag()
	}
	return fields
}

func dashboardSession(c *fiber.Ctx, store *service.DashboardSessionStore) (*service.DashboardSession, error) {
	id := middleware.DashboardSessionID(c)
	if id == "" {
		return nil, service.ErrSessionNotFound
	}
	return store.Get(id)
}

// sendServiceError maps service and upstream API errors onto the response
// envelope.
func sendServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var (
		validation *activityapi.ValidationError
		httpErr    *activityapi.HTTPError
		timeoutErr *activityapi.TimeoutError
		networkErr *activityapi.NetworkError
		parseErr   *activityapi.ParseError
	)

	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return utils.SendError(c, fiber.StatusUnauthorized, "dashboard session expired")
	case errors.Is(err, service.ErrActivityNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDeleteInProgress),
		errors.Is(err, service.ErrFormClosed),
		errors.Is(err, service.ErrFormBusy),
		errors.Is(err, service.ErrUploadInProgress):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidFilter),
		errors.Is(err, service.ErrInvalidMediaKind),
		errors.Is(err, service.ErrMediaIndexOutOfRange),
		errors.Is(err, service.ErrMissingActivityID):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", fieldErrors(err))
	case errors.As(err, &validation):
		return utils.SendError(c, fiber.StatusBadRequest, validation.Message)
	case errors.As(err, &httpErr):
		if httpErr.Status == fiber.StatusNotFound {
			return utils.SendError(c, fiber.StatusNotFound, httpErr.Message)
		}
		return utils.SendError(c, fiber.StatusBadGateway, httpErr.Message)
	case errors.As(err, &timeoutErr):
		return utils.SendError(c, fiber.StatusGatewayTimeout, err.Error())
	case errors.As(err, &networkErr), errors.As(err, &parseErr):
		return utils.SendError(c, fiber.StatusBadGateway, err.Error())
	default:
		logger.Error().Err(err).Msg("unhandled request error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/observability"
)

const slowRequestThreshold = 2 * time.Second

// Observability records request metrics and one structured log line per
// public or dashboard request. Probe and scrape endpoints are skipped.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		if !instrumented(c.Path()) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		statusLabel := strconv.Itoa(status)

		observability.WebRequests().WithLabelValues(method, route, statusLabel).Inc()
		observability.WebLatency().WithLabelValues(method, route).Observe(duration.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.WebErrors().WithLabelValues(method, route, statusLabel).Inc()
		}

		level := zerolog.InfoLevel
		switch {
		case status >= fiber.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status >= fiber.StatusBadRequest, duration > slowRequestThreshold:
			level = zerolog.WarnLevel
		}

		event := logger.WithLevel(level).Err(err)
		if sessionID := DashboardSessionID(c); sessionID != "" {
			event = event.Str("session_id", sessionID)
		}
		event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("route", route).
			Str("method", method).
			Int("status", status).
			Dur("latency", duration).
			Msg("request completed")

		return err
	}
}

func instrumented(path string) bool {
	return strings.HasPrefix(path, "/dashboard") || strings.HasPrefix(path, "/api/public")
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

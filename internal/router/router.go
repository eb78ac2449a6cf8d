package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/volunteer-hub-web/internal/config"
	"github.com/noah-isme/volunteer-hub-web/internal/handler"
	"github.com/noah-isme/volunteer-hub-web/internal/middleware"
	"github.com/noah-isme/volunteer-hub-web/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	PublicActivityHandler    *handler.PublicActivityHandler
	DashboardAuthHandler     *handler.DashboardAuthHandler
	DashboardActivityHandler *handler.DashboardActivityHandler
	DashboardFormHandler     *handler.DashboardFormHandler
	NotificationHandler      *handler.NotificationHandler
	DashboardLock            *middleware.DashboardLock
	UnlockLimiter            fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	if deps.PublicActivityHandler != nil {
		deps.PublicActivityHandler.Register(app.Group("/api/public/activities"))
	}

	dashboard := app.Group("/dashboard")
	if deps.DashboardAuthHandler != nil {
		deps.DashboardAuthHandler.Register(dashboard, deps.UnlockLimiter)
	}

	if deps.DashboardLock == nil {
		return
	}

	locked := dashboard.Group("/api", deps.DashboardLock.Protected())
	if deps.DashboardActivityHandler != nil {
		deps.DashboardActivityHandler.Register(locked)
	}
	if deps.DashboardFormHandler != nil {
		deps.DashboardFormHandler.Register(locked)
	}
	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(locked)
	}
}

package middleware

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

const accessLogFormat = "${time} ${status} ${method} ${path} ${latency} cid=${locals:correlation_id}\n"

// Config customises the middleware registration pipeline.
type Config struct {
	Logger *zerolog.Logger
	// AllowOrigins is a comma separated origin list. The dashboard cookie is
	// only sent cross-origin when explicit origins are configured.
	AllowOrigins string
	// Production disables panic stack traces.
	Production bool
}

// Register attaches the common middlewares used by the web service.
func Register(app *fiber.App, cfg Config) {
	requestLogger := zerolog.New(io.Discard)
	if cfg.Logger != nil {
		requestLogger = *cfg.Logger
	}

	app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.Production}))
	app.Use(CorrelationID())
	app.Use(Observability(requestLogger))
	app.Use(logger.New(logger.Config{Format: accessLogFormat}))
	app.Use(cors.New(corsConfig(cfg.AllowOrigins)))
}

func corsConfig(origins string) cors.Config {
	origins = strings.TrimSpace(origins)
	config := cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods:  "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		ExposeHeaders: "X-Correlation-ID, X-Cache",
	}
	if origins != "" && origins != "*" {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return config
}

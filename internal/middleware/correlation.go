package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

const (
	correlationLocalsKey = "correlation_id"
	maxCorrelationLength = 64
)

// CorrelationID tags every request with an id that is echoed back to the
// caller and forwarded on calls to the activities API. Client supplied ids
// that are too long or contain unexpected characters are replaced.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		incoming := acceptCorrelationID(c.Get(activityapi.CorrelationHeader))
		if incoming == "" {
			incoming = acceptCorrelationID(c.Get("X-Request-ID"))
		}
		if incoming == "" {
			incoming = uuid.NewString()
		}

		c.Locals(correlationLocalsKey, incoming)
		c.Set(activityapi.CorrelationHeader, incoming)

		base := c.UserContext()
		c.SetUserContext(activityapi.WithCorrelationID(base, incoming))

		return c.Next()
	}
}

// CorrelationIDFromContext extracts the correlation identifier from context, if present.
func CorrelationIDFromContext(ctx context.Context) string {
	return activityapi.CorrelationID(ctx)
}

// GetCorrelationID returns the correlation identifier bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationLocalsKey).(string); ok {
		return id
	}
	return activityapi.CorrelationID(c.UserContext())
}

// ContextWithCorrelation attaches the correlation identifier to the provided context.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	return activityapi.WithCorrelationID(ctx, correlationID)
}

func acceptCorrelationID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxCorrelationLength {
		return ""
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return ""
		}
	}
	return value
}

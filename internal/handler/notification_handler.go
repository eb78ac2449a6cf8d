package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/internal/service"
	"github.com/noah-isme/volunteer-hub-web/internal/utils"
)

const notificationSessionKey = "notification_session"

// NotificationHandler streams the dashboard notification slot.
type NotificationHandler struct {
	store   *service.DashboardSessionStore
	logger  zerolog.Logger
	timeout time.Duration
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(store *service.DashboardSessionStore, logger zerolog.Logger, timeout time.Duration) *NotificationHandler {
	return &NotificationHandler{
		store:   store,
		logger:  logger.With().Str("component", "notification_handler").Logger(),
		timeout: timeout,
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/notifications", h.current)
	router.Delete("/notifications", h.clear)
	router.Get("/notifications/stream", h.stream)

	router.Use("/notifications/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		session, err := dashboardSession(c, h.store)
		if err != nil {
			return sendServiceError(c, h.logger, err)
		}
		c.Locals(notificationSessionKey, session)
		return c.Next()
	})
	router.Get("/notifications/ws", websocket.New(h.handleConnection))
}

func (h *NotificationHandler) current(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "notification", dto.NotificationState{Notification: session.Notifier().Current()})
}

func (h *NotificationHandler) clear(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}
	session.Notifier().Clear()
	return utils.SendSuccess(c, "notification cleared", dto.NotificationState{})
}

func (h *NotificationHandler) stream(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))
	stream, cleanup := session.Notifier().Subscribe()
	keepAliveInterval := h.keepAlive()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(keepAliveInterval / 2)
		defer ticker.Stop()

		for {
			select {
			case state, ok := <-stream:
				if !ok {
					return
				}
				if err := writeNotificationEvent(w, state); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write notification event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write notification keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (h *NotificationHandler) handleConnection(conn *websocket.Conn) {
	session, ok := conn.Locals(notificationSessionKey).(*service.DashboardSession)
	if !ok || session == nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "dashboard locked"))
		_ = conn.Close()
		return
	}

	stream, cleanup := session.Notifier().Subscribe()
	defer cleanup()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug().Str("session_id", session.ID()).Msg("notification websocket connected")
	defer h.logger.Debug().Str("session_id", session.ID()).Msg("notification websocket disconnected")

	ticker := time.NewTicker(h.keepAlive() / 2)
	defer ticker.Stop()

	for {
		select {
		case state, ok := <-stream:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"))
				return
			}
			if err := conn.WriteJSON(state); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *NotificationHandler) keepAlive() time.Duration {
	if h.timeout <= 0 {
		return 30 * time.Second
	}
	return h.timeout
}

func writeNotificationEvent(w *bufio.Writer, state dto.NotificationState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: notification\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}

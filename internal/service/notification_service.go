package service

import (
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/internal/observability"
)

// Notification kinds.
const (
	NotificationSuccess = "success"
	NotificationError   = "error"
	NotificationWarning = "warning"
	NotificationInfo    = "info"
)

const (
	defaultNotificationDuration = 5 * time.Second
	notificationBufferSize      = 4
)

type notifyConfig struct {
	autoClose bool
	duration  time.Duration
}

// NotifyOption customises a single notification.
type NotifyOption func(*notifyConfig)

// WithDuration sets how long the notification stays visible.
func WithDuration(d time.Duration) NotifyOption {
	return func(c *notifyConfig) {
		if d > 0 {
			c.duration = d
		}
	}
}

// WithoutAutoClose keeps the notification until it is cleared or replaced.
func WithoutAutoClose() NotifyOption {
	return func(c *notifyConfig) {
		c.autoClose = false
	}
}

// NotificationService is the single-slot notification channel of one
// dashboard session. A new notification replaces the visible one.
type NotificationService interface {
	Notify(kind, message string, opts ...NotifyOption) dto.NotificationResponse
	Success(message string, opts ...NotifyOption) dto.NotificationResponse
	Error(message string, opts ...NotifyOption) dto.NotificationResponse
	Warning(message string, opts ...NotifyOption) dto.NotificationResponse
	Info(message string, opts ...NotifyOption) dto.NotificationResponse
	QuickSuccess(message string) dto.NotificationResponse
	QuickError(message string) dto.NotificationResponse
	QuickWarning(message string) dto.NotificationResponse
	QuickInfo(message string) dto.NotificationResponse
	PersistentError(message string) dto.NotificationResponse
	PersistentWarning(message string) dto.NotificationResponse
	Clear()
	Current() *dto.NotificationResponse
	Subscribe() (<-chan dto.NotificationState, func())
	Close()
}

// discardNotifier absorbs notifications for components wired without a
// session channel.
var discardNotifier = NewNotificationService(zerolog.Nop())

type notificationService struct {
	mu         sync.Mutex
	logger     zerolog.Logger
	sanitizer  *bluemonday.Policy
	current    *dto.NotificationResponse
	generation uint64
	timer      *time.Timer
	subscriber chan dto.NotificationState
	closed     bool
	now        func() time.Time
}

// NewNotificationService constructs the notification channel for a session.
func NewNotificationService(logger zerolog.Logger) NotificationService {
	return &notificationService{
		logger:    logger.With().Str("component", "notification_service").Logger(),
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

func (s *notificationService) Notify(kind, message string, opts ...NotifyOption) dto.NotificationResponse {
	cfg := notifyConfig{autoClose: true, duration: defaultNotificationDuration}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch kind {
	case NotificationSuccess, NotificationError, NotificationWarning, NotificationInfo:
	default:
		kind = NotificationInfo
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	notification := dto.NotificationResponse{
		ID:         s.generation,
		Kind:       kind,
		Message:    strings.TrimSpace(s.sanitizer.Sanitize(message)),
		AutoClose:  cfg.autoClose,
		DurationMs: cfg.duration.Milliseconds(),
		CreatedAt:  s.now().UTC(),
	}
	if s.closed {
		return notification
	}

	s.stopTimerLocked()
	s.current = &notification
	if cfg.autoClose {
		generation := s.generation
		s.timer = time.AfterFunc(cfg.duration, func() { s.expire(generation) })
	}
	s.sendLocked(dto.NotificationState{Notification: &notification})

	observability.NotificationsPublished().WithLabelValues(kind).Inc()
	s.logger.Debug().Str("kind", kind).Uint64("id", notification.ID).Msg("notification published")

	return notification
}

func (s *notificationService) Success(message string, opts ...NotifyOption) dto.NotificationResponse {
	return s.Notify(NotificationSuccess, message, opts...)
}

func (s *notificationService) Error(message string, opts ...NotifyOption) dto.NotificationResponse {
	return s.Notify(NotificationError, message, opts...)
}

func (s *notificationService) Warning(message string, opts ...NotifyOption) dto.NotificationResponse {
	return s.Notify(NotificationWarning, message, opts...)
}

func (s *notificationService) Info(message string, opts ...NotifyOption) dto.NotificationResponse {
	return s.Notify(NotificationInfo, message, opts...)
}

func (s *notificationService) QuickSuccess(message string) dto.NotificationResponse {
	return s.Success(message, WithDuration(3*time.Second))
}

func (s *notificationService) QuickError(message string) dto.NotificationResponse {
	return s.Error(message, WithDuration(5*time.Second))
}

func (s *notificationService) QuickWarning(message string) dto.NotificationResponse {
	return s.Warning(message, WithDuration(4*time.Second))
}

func (s *notificationService) QuickInfo(message string) dto.NotificationResponse {
	return s.Info(message, WithDuration(3*time.Second))
}

func (s *notificationService) PersistentError(message string) dto.NotificationResponse {
	return s.Error(message, WithoutAutoClose())
}

func (s *notificationService) PersistentWarning(message string) dto.NotificationResponse {
	return s.Warning(message, WithoutAutoClose())
}

func (s *notificationService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.stopTimerLocked()
	if s.current == nil {
		return
	}
	s.current = nil
	s.sendLocked(dto.NotificationState{})
}

func (s *notificationService) Current() *dto.NotificationResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// Subscribe attaches the display surface. Only one subscriber exists at a
// time; attaching a new one closes the previous channel.
func (s *notificationService) Subscribe() (<-chan dto.NotificationState, func()) {
	ch := make(chan dto.NotificationState, notificationBufferSize)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if s.subscriber != nil {
		close(s.subscriber)
		observability.NotificationSubscribers().Dec()
	}
	s.subscriber = ch
	observability.NotificationSubscribers().Inc()
	if s.current != nil {
		current := *s.current
		ch <- dto.NotificationState{Notification: &current}
	}
	s.mu.Unlock()

	cleanup := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.subscriber == ch {
			close(ch)
			s.subscriber = nil
			observability.NotificationSubscribers().Dec()
		}
	}
	return ch, cleanup
}

// Close stops pending timers and detaches the subscriber.
func (s *notificationService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.stopTimerLocked()
	s.current = nil
	if s.subscriber != nil {
		close(s.subscriber)
		s.subscriber = nil
		observability.NotificationSubscribers().Dec()
	}
}

func (s *notificationService) expire(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation || s.current == nil {
		return
	}
	s.current = nil
	s.timer = nil
	s.sendLocked(dto.NotificationState{})
}

func (s *notificationService) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// sendLocked delivers state without blocking. When the subscriber lags the
// oldest queued state is dropped so the latest one always arrives.
func (s *notificationService) sendLocked(state dto.NotificationState) {
	if s.subscriber == nil {
		return
	}
	for {
		select {
		case s.subscriber <- state:
			return
		default:
		}
		select {
		case <-s.subscriber:
		default:
		}
	}
}

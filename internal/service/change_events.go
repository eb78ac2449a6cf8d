package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/observability"
)

// Activity change actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// ActivityChangeEvent announces that an activity was changed through a
// dashboard.
type ActivityChangeEvent struct {
	Action     string    `json:"action"`
	ActivityID string    `json:"activityId"`
	Source     string    `json:"source"`
	SentAt     time.Time `json:"sentAt"`
}

// ActivityChangePublisher announces activity changes.
type ActivityChangePublisher interface {
	Publish(ctx context.Context, action, activityID string) error
}

// ActivityChangeBus fans activity changes out to local handlers and, when
// configured, to other replicas over Redis pub/sub and NATS.
type ActivityChangeBus interface {
	ActivityChangePublisher
	Handle(fn func(ActivityChangeEvent))
	Start(ctx context.Context) error
}

type activityChangeBus struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger

	mu       sync.RWMutex
	handlers []func(ActivityChangeEvent)
}

// NewActivityChangeBus constructs the change bus. Either transport may be nil.
func NewActivityChangeBus(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) ActivityChangeBus {
	base := strings.Trim(strings.TrimSpace(channelBase), ".:")
	if base == "" {
		base = "volunteer"
	}
	return &activityChangeBus{
		redis:        redisClient,
		redisChannel: base + ":activities:changes",
		nats:         natsConn,
		natsSubject:  base + ".activities.changes",
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "activity_change_bus").Logger(),
	}
}

func (b *activityChangeBus) Handle(fn func(ActivityChangeEvent)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, fn)
	b.mu.Unlock()
}

// Start subscribes to the configured transports. Consumers stop when ctx is
// cancelled.
func (b *activityChangeBus) Start(ctx context.Context) error {
	if b.redis != nil {
		pubsub := b.redis.Subscribe(ctx, b.redisChannel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return err
		}
		go b.consumeRedis(ctx, pubsub)
	}

	if b.nats != nil {
		sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
			b.handleEvent("nats", msg.Data)
		})
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			if err := sub.Drain(); err != nil {
				b.logger.Warn().Err(err).Msg("failed to drain activity change subscription")
			}
		}()
	}
	return nil
}

func (b *activityChangeBus) Publish(ctx context.Context, action, activityID string) error {
	event := ActivityChangeEvent{
		Action:     action,
		ActivityID: activityID,
		Source:     b.nodeID,
		SentAt:     time.Now().UTC(),
	}
	b.dispatch(event)
	observability.ActivityEvents().WithLabelValues("published", action).Inc()

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var errs []error
	if b.redis != nil {
		if err := b.redis.Publish(ctx, b.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.nats != nil {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *activityChangeBus) consumeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			b.logger.Error().Err(err).Msg("activity change redis subscription closed")
			return
		}
		b.handleEvent("redis", []byte(msg.Payload))
	}
}

func (b *activityChangeBus) handleEvent(transport string, payload []byte) {
	var event ActivityChangeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		b.logger.Warn().Err(err).Str("transport", transport).Msg("invalid activity change payload")
		return
	}
	if event.Source == b.nodeID {
		return
	}

	observability.ActivityEvents().WithLabelValues("received", event.Action).Inc()
	b.dispatch(event)
}

func (b *activityChangeBus) dispatch(event ActivityChangeEvent) {
	b.mu.RLock()
	handlers := append([]func(ActivityChangeEvent){}, b.handlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

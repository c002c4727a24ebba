package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
)

// DefaultEventChannel carries session lifecycle events between replicas.
const DefaultEventChannel = "quiz:events"

// Sink receives relayed events, typically the local event hub.
type Sink interface {
	Publish(event domain.Event)
}

// EventBus publishes lifecycle events to a Redis channel and relays everything on that
// channel, including this instance's own events, into a local sink. Websocket clients of any
// replica therefore see every transition.
type EventBus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewEventBus(client *redis.Client, channel string, logger *zap.Logger) *EventBus {
	if channel == "" {
		channel = DefaultEventChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{client: client, channel: channel, logger: logger}
}

// Publish is fire-and-forget; a lost event only delays a websocket update.
func (b *EventBus) Publish(event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("encode event", zap.Error(err))
		return
	}
	if err := b.client.Publish(context.Background(), b.channel, payload).Err(); err != nil {
		b.logger.Warn("publish event",
			zap.String("type", string(event.Type)),
			zap.String("sessionId", event.SessionID),
			zap.Error(err),
		)
	}
}

// Relay forwards channel messages to sink until ctx is done.
func (b *EventBus) Relay(ctx context.Context, sink Sink) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("decode event", zap.Error(err))
				continue
			}
			sink.Publish(event)
		}
	}
}

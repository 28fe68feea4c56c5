package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventChannel = "omnicast:events"

// RedisPublisher mirrors control-plane events onto a Redis pub/sub channel
// so other instances (or external consumers) can observe session activity.
type RedisPublisher struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

func NewRedisPublisher(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *RedisPublisher {
	return &RedisPublisher{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Publish publishes an event to the shared channel.
func (p *RedisPublisher) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = p.instanceID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, eventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debugw("published event",
		"type", event.Type,
		"session_id", event.SessionID,
		"destination_id", event.DestinationID,
	)

	return nil
}

// Subscribe consumes events published by other instances and calls the
// handler for each one. Events from this instance are skipped. Blocks
// until ctx is cancelled.
func (p *RedisPublisher) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if p.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	p.pubsub = p.client.Subscribe(ctx, eventChannel)
	defer p.pubsub.Close()

	ch := p.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				p.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			if event.InstanceID == p.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				p.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// Close closes the subscription if active.
func (p *RedisPublisher) Close() error {
	if p.pubsub != nil {
		return p.pubsub.Close()
	}
	return nil
}

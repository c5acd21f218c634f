package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"marketplace-chat/internal/models"
)

// RedisFabric shares groups across service instances. Membership stays local in
// a Hub; Publish goes through a Redis channel per group and every instance,
// this one included, replays received events into its local Hub.
type RedisFabric struct {
	client *redis.Client
	pubsub *redis.PubSub
	prefix string
	local  *Hub
	logger zerolog.Logger
	done   chan struct{}
}

// NewRedisFabric subscribes to prefix* and starts relaying into local.
func NewRedisFabric(ctx context.Context, client *redis.Client, prefix string, local *Hub, logger zerolog.Logger) (*RedisFabric, error) {
	pubsub := client.PSubscribe(ctx, prefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s*: %w", prefix, err)
	}

	f := &RedisFabric{
		client: client,
		pubsub: pubsub,
		prefix: prefix,
		local:  local,
		logger: logger,
		done:   make(chan struct{}),
	}
	go f.relay()
	return f, nil
}

func (f *RedisFabric) Join(ctx context.Context, group string, sub Subscriber) error {
	return f.local.Join(ctx, group, sub)
}

func (f *RedisFabric) Leave(ctx context.Context, group string, sub Subscriber) error {
	return f.local.Leave(ctx, group, sub)
}

// Publish sends event to every instance subscribed to the group's channel.
func (f *RedisFabric) Publish(ctx context.Context, group string, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.prefix+group, payload).Err()
}

// Close stops the relay and the local hub. The Redis client is owned by the caller.
func (f *RedisFabric) Close() error {
	err := f.pubsub.Close()
	<-f.done
	_ = f.local.Close()
	return err
}

func (f *RedisFabric) relay() {
	defer close(f.done)
	for msg := range f.pubsub.Channel() {
		group := strings.TrimPrefix(msg.Channel, f.prefix)
		var event models.Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			f.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("discarding malformed fabric event")
			continue
		}
		if err := f.local.Publish(context.Background(), group, event); err != nil {
			f.logger.Debug().Err(err).Str("group", group).Msg("local relay failed")
		}
	}
}

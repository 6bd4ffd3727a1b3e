package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"midad_platform/midad/metrics"
	"midad_platform/utils/logging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisFeed distributes change events over redis pub/sub so multiple replicas
// see the same stream. One channel per owner.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(addr, password string) *RedisFeed {
	return &RedisFeed{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// NewRedisFeedFromClient wraps an existing client, used in tests with
// miniredis.
func NewRedisFeedFromClient(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func ownerChannel(ownerId uuid.UUID) string {
	return fmt.Sprintf("notifications:%v", ownerId)
}

func (f *RedisFeed) Publish(event Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := f.client.Publish(ctx, ownerChannel(event.OwnerId), event.Kind).Err()
	if err != nil {
		slog.Error("error publishing change event", "code", logging.REALTIME_PUBLISH, "owner_id", event.OwnerId, "kind", event.Kind, "error", err)
		return fmt.Errorf("error publishing change event: %w", err)
	}

	metrics.FeedEventsPublished.WithLabelValues(event.Kind).Inc()
	return nil
}

func (f *RedisFeed) Subscribe(ownerId uuid.UUID, onChange func(Event)) (Subscription, error) {
	pubsub := f.client.Subscribe(context.Background(), ownerChannel(ownerId))

	// Receive confirms the subscription is live before any event can be
	// published for it.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("error subscribing to change events: %w", err)
	}

	sub := &redisSubscription{pubsub: pubsub, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		for msg := range pubsub.Channel() {
			onChange(Event{OwnerId: ownerId, Kind: msg.Payload})
		}
	}()

	metrics.FeedSubscriptions.Inc()

	return sub, nil
}

func (f *RedisFeed) Close() error {
	return f.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Cancel() {
	s.once.Do(func() {
		if err := s.pubsub.Close(); err != nil {
			slog.Error("error closing change event subscription", "code", logging.REALTIME_SUBSCRIBE, "error", err)
		}
		// Wait for the delivery goroutine to drain so the callback cannot
		// fire after Cancel returns.
		<-s.done

		metrics.FeedSubscriptions.Dec()
	})
}

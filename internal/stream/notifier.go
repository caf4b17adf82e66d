package stream

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Change topics. A topic fires whenever a committed writeSet touched the
// corresponding collection; payloads carry no data, subscribers re-query.
const TopicTickets = "conv:tickets:changed"

// TopicLog names the per-ticket message log channel.
func TopicLog(ticketID string) string {
	return "conv:log:changed:" + ticketID
}

// Notifier fans change signals out across processes.
type Notifier interface {
	Publish(ctx context.Context, topic string) error
	// Subscribe returns a signal channel for the topic. The channel closes
	// when ctx is cancelled or the transport fails; callers distinguish the
	// two via ctx.Err().
	Subscribe(ctx context.Context, topic string) <-chan struct{}
}

// RedisNotifier implements Notifier over redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisNotifier constructs the notifier.
func NewRedisNotifier(client *redis.Client, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger}
}

// Publish emits a change signal on the topic.
func (n *RedisNotifier) Publish(ctx context.Context, topic string) error {
	return n.client.Publish(ctx, topic, "1").Err()
}

// Subscribe delivers coalesced change signals until ctx is cancelled or the
// pub/sub connection drops.
func (n *RedisNotifier) Subscribe(ctx context.Context, topic string) <-chan struct{} {
	out := make(chan struct{}, 1)
	pubsub := n.client.Subscribe(ctx, topic)

	go func() {
		<-ctx.Done()
		_ = pubsub.Close()
	}()

	go func() {
		defer close(out)
		for range pubsub.Channel() {
			select {
			case out <- struct{}{}:
			default:
				// A pending signal already forces a re-query.
			}
		}
	}()

	return out
}

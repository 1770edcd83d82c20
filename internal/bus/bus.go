// Package bus provides a process-wide publish/subscribe channel bus over a
// single shared Redis pub/sub connection. Every inbound message arrives on
// one stream; the bus demultiplexes it to local subscribers by exact
// channel match, dropping messages whose embedded sender id equals the
// receiving subscriber's own id.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DeliverFunc receives one message published to a subscribed channel.
// It must not block; deliveries fan out on the shared dispatcher goroutine.
type DeliverFunc = func(channel string, payload []byte)

// Bus multiplexes many logical subscriptions onto one Redis pub/sub
// connection. Subscriptions are keyed by (owner, channel): double
// subscribes and unsubscribes of unheld channels are no-ops, so there is
// exactly one active subscription per (owner, channel) pair.
type Bus struct {
	client *goredis.Client
	pubsub *goredis.PubSub
	logger *zap.Logger

	subs subscriberTable

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Bus sharing the given client's connection pool. One
// dedicated pub/sub connection is opened for the whole process and a
// dispatcher goroutine starts fanning inbound messages out immediately.
//
// Precondition: client and logger must be non-nil.
// Postcondition: Returns a running Bus; Close must be called to stop it.
func New(ctx context.Context, client *goredis.Client, logger *zap.Logger) *Bus {
	b := &Bus{
		client: client,
		pubsub: client.Subscribe(ctx),
		logger: logger,
		subs:   newSubscriberTable(),
	}

	b.wg.Add(1)
	go b.dispatchLoop()
	return b
}

// Subscribe registers deliver for messages on channel, on behalf of owner.
// Subscribing an (owner, channel) pair that is already held is a no-op.
// The Redis-level subscription is added when the first local owner joins
// a channel.
func (b *Bus) Subscribe(ctx context.Context, channel, owner string, deliver DeliverFunc) error {
	first, added := b.subs.add(channel, owner, deliver)
	if !added {
		return nil
	}
	if first {
		if err := b.pubsub.Subscribe(ctx, channel); err != nil {
			b.subs.remove(channel, owner)
			return fmt.Errorf("subscribing channel %s: %w", channel, err)
		}
	}
	b.logger.Debug("channel subscribed",
		zap.String("channel", channel),
		zap.String("owner", owner),
	)
	return nil
}

// Unsubscribe releases owner's subscription on channel. Unsubscribing a
// channel that is not held is a no-op. The Redis-level subscription is
// dropped when the last local owner leaves a channel.
func (b *Bus) Unsubscribe(ctx context.Context, channel, owner string) error {
	last, removed := b.subs.remove(channel, owner)
	if !removed {
		return nil
	}
	if last {
		if err := b.pubsub.Unsubscribe(ctx, channel); err != nil {
			return fmt.Errorf("unsubscribing channel %s: %w", channel, err)
		}
	}
	b.logger.Debug("channel unsubscribed",
		zap.String("channel", channel),
		zap.String("owner", owner),
	)
	return nil
}

// Publish sends payload to channel, fire-and-forget. The payload is
// JSON-encoded; subscribers receive the encoded bytes verbatim.
func (b *Bus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", channel, err)
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// Close stops the dispatcher and releases the pub/sub connection.
//
// Postcondition: No further deliveries occur after Close returns.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		_ = b.pubsub.Close()
		b.wg.Wait()
	})
}

// dispatchLoop drains the shared inbound stream until the pub/sub
// connection closes.
func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	for msg := range b.pubsub.Channel() {
		delivered := b.subs.dispatch(msg.Channel, []byte(msg.Payload))
		if delivered == 0 {
			b.logger.Debug("message with no local subscribers",
				zap.String("channel", msg.Channel),
			)
		}
	}
}

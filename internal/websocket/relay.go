package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	publishTimeout = 2 * time.Second
	minBackoff     = time.Second
	maxBackoff     = 30 * time.Second
)

// Publisher delivers a message to a room. Both Hub and RedisRelay satisfy it.
type Publisher interface {
	Publish(room string, msg Message)
}

type envelope struct {
	Room    string  `json:"room"`
	Message Message `json:"message"`
}

// RedisRelay fans messages out across instances. Publish goes to a Redis
// channel; Serve subscribes to it and delivers to the local hub.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	hub        *Hub
	logger     *slog.Logger
	subscribed atomic.Bool
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		client:     client,
		channel:    channel,
		hub:        hub,
		logger:     logger,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Subscribed reports whether this instance is currently receiving the channel.
func (r *RedisRelay) Subscribed() bool {
	return r.subscribed.Load()
}

// Publish sends msg through Redis. Local clients get it directly when Redis
// is unreachable or this instance is not subscribed, so an outage never
// swallows events for the clients connected here.
func (r *RedisRelay) Publish(room string, msg Message) {
	payload, err := json.Marshal(envelope{Room: room, Message: msg})
	if err != nil {
		r.logger.Error("marshal relay message", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	receivers, err := r.client.Publish(ctx, r.channel, payload).Result()
	switch {
	case err != nil:
		r.logger.Warn("relay publish failed, delivering locally", "room", room, "error", err)
		r.hub.Publish(room, msg)
	case receivers == 0 || !r.Subscribed():
		r.hub.Publish(room, msg)
	}
}

// Serve runs the subscription until ctx is cancelled, resubscribing with
// exponential backoff whenever it fails or drops.
func (r *RedisRelay) Serve(ctx context.Context) {
	backoff := r.minBackoff
	for {
		start := time.Now()
		err := r.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > r.maxBackoff {
			backoff = r.minBackoff
		}
		r.logger.Warn("relay subscription ended, retrying", "channel", r.channel, "in", backoff, "error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, r.maxBackoff)
	}
}

// Run subscribes to the relay channel until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.logger.Info("relay subscribed", "channel", r.channel)

	ch := pubsub.Channel()
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				r.logger.Warn("decode relay message", "error", err)
				continue
			}
			r.hub.Publish(env.Room, env.Message)
		case <-ctx.Done():
			return nil
		}
	}
}

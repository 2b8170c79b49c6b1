package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultBusChannel = "taskhive:rooms"

type busMessage struct {
	Room  RoomKey         `json:"room"`
	Frame json.RawMessage `json:"frame"`
	Close bool            `json:"close,omitempty"`
}

// RedisBus relays room frames between instances. Every instance, the
// publisher included, receives each message through its subscription and
// delivers it to its local registry, so delivery is at-most-once exactly as
// on a single instance. While the subscription is down, frames go straight
// to the local registry instead.
type RedisBus struct {
	client   *redis.Client
	channel  string
	local    *Registry
	relaying atomic.Bool
}

// NewRedisBus connects to redisURL and checks the server is reachable.
func NewRedisBus(redisURL, channel string, local *Registry) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBusWithClient(client, channel, local), nil
}

func NewRedisBusWithClient(client *redis.Client, channel string, local *Registry) *RedisBus {
	if channel == "" {
		channel = DefaultBusChannel
	}

	return &RedisBus{
		client:  client,
		channel: channel,
		local:   local,
	}
}

// Broadcast publishes frame for room on the shared channel. When the publish
// fails, or when Run is not relaying, local members still get the frame.
func (b *RedisBus) Broadcast(ctx context.Context, room RoomKey, frame []byte) error {
	return b.relay(ctx, busMessage{Room: room, Frame: frame})
}

// CloseRoom is Broadcast followed by eviction of the room's members on every
// instance.
func (b *RedisBus) CloseRoom(ctx context.Context, room RoomKey, frame []byte) error {
	return b.relay(ctx, busMessage{Room: room, Frame: frame, Close: true})
}

func (b *RedisBus) relay(ctx context.Context, m busMessage) error {
	relaying := b.relaying.Load()
	if !relaying {
		b.deliver(m)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode bus message: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		if relaying {
			b.deliver(m)
		}
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}

	return nil
}

func (b *RedisBus) deliver(m busMessage) {
	b.local.Publish(m.Room, m.Frame)
	if m.Close {
		b.local.EvictRoom(m.Room)
	}
}

// Relaying reports whether Run is subscribed and delivering messages.
func (b *RedisBus) Relaying() bool {
	return b.relaying.Load()
}

// Run subscribes to the shared channel and delivers every message to the
// local registry until ctx is cancelled.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	b.relaying.Store(true)
	defer b.relaying.Store(false)

	log.Printf("Relaying room events over redis channel %s", b.channel)

	messages := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %s closed", b.channel)
			}

			var m busMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				log.Printf("Dropping malformed bus message: %v", err)
				continue
			}

			b.deliver(m)
		}
	}
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

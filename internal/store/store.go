// Package store defines the key-value/pub-sub operations the chat core needs
// from its backing store, plus implementations under store/redis and
// store/memory.
package store

import (
	"context"
	"time"
)

// Message is one raw pub/sub delivery.
type Message struct {
	Channel string
	Payload string
}

// Subscription is a live subscription to a single channel. It owns a
// dedicated store connection for its whole lifetime.
type Subscription interface {
	// Messages returns the delivery channel. It is closed when the
	// subscription ends, either by Close or by a transport failure.
	Messages() <-chan Message
	// Err reports why the delivery channel closed. Nil after a clean Close.
	Err() error
	// Close unsubscribes and releases the connection. Idempotent.
	Close() error
}

// Store is the set of atomic operations the chat core issues against the
// backing key-value store.
type Store interface {
	// SetAdd adds members to the set at key and returns how many were
	// actually added (0 when all were already present).
	SetAdd(ctx context.Context, key string, members ...string) (int64, error)
	// SetRemove removes members from the set at key and returns how many
	// were actually removed.
	SetRemove(ctx context.Context, key string, members ...string) (int64, error)
	// SetMembers returns all members of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)
	// HashSet writes multiple fields of the hash at key.
	HashSet(ctx context.Context, key string, fields map[string]string) error
	// HashGetAll reads the whole hash at key. A missing key yields an empty map.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error
	// Expire sets a sliding TTL on key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Publish sends payload to every subscriber of channel.
	Publish(ctx context.Context, channel, payload string) error
	// Subscribe opens a dedicated subscription on channel. The returned
	// handle is usable immediately; messages published after Subscribe
	// returns are guaranteed to be delivered.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	// Close releases all connections.
	Close() error
}

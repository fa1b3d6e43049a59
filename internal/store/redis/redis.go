package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vovakirdan/redischat/internal/store"
)

// RedisStore implements store.Store on a Redis server.
//
// One client backs all command-path operations; every subscription gets its
// own connection because SUBSCRIBE occupies a connection for its lifetime.
type RedisStore struct {
	client *goredis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close releases the client and its connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) SetAdd(ctx context.Context, key string, members ...string) (int64, error) {
	added, err := s.client.SAdd(ctx, key, toAny(members)...).Result()
	if err != nil {
		return 0, fmt.Errorf("sadd %s: %w", key, err)
	}
	return added, nil
}

func (s *RedisStore) SetRemove(ctx context.Context, key string, members ...string) (int64, error) {
	removed, err := s.client.SRem(ctx, key, toAny(members)...).Result()
	if err != nil {
		return 0, fmt.Errorf("srem %s: %w", key, err)
	}
	return removed, nil
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}

func (s *RedisStore) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return fields, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Publish(ctx context.Context, channel, payload string) error {
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a dedicated pub/sub connection on channel and waits for
// the subscription confirmation before returning, so publishes issued after
// Subscribe returns are always delivered.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) (store.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := newRedisSubscription(pubsub.Channel(), pubsub.Close)
	go sub.pump()
	return sub, nil
}

// errStreamEnded marks a pub/sub stream that the server side dropped.
var errStreamEnded = errors.New("pubsub stream ended unexpectedly")

type redisSubscription struct {
	src     <-chan *goredis.Message
	closeFn func() error
	msgs    chan store.Message

	closeOnce sync.Once
	closeErr  error

	mu        sync.Mutex
	requested bool
	err       error
}

func newRedisSubscription(src <-chan *goredis.Message, closeFn func() error) *redisSubscription {
	return &redisSubscription{
		src:     src,
		closeFn: closeFn,
		msgs:    make(chan store.Message),
	}
}

// pump forwards deliveries from the pub/sub connection until it closes.
// A stream that ends without a Close request is a transport failure and
// is reported through Err.
func (s *redisSubscription) pump() {
	defer close(s.msgs)
	for msg := range s.src {
		s.msgs <- store.Message{Channel: msg.Channel, Payload: msg.Payload}
	}
	s.mu.Lock()
	if !s.requested {
		s.err = errStreamEnded
	}
	s.mu.Unlock()
}

func (s *redisSubscription) Messages() <-chan store.Message {
	return s.msgs
}

func (s *redisSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.requested = true
		s.mu.Unlock()
		s.closeErr = s.closeFn()
	})
	return s.closeErr
}

func toAny(members []string) []interface{} {
	out := make([]interface{}, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}

// Package memory is an in-process store.Store used by tests and offline runs.
// It honors the same atomicity and delivery-order contracts as the Redis
// implementation: per-publisher per-channel order is preserved, and set
// mutations report how many members actually changed.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vovakirdan/redischat/internal/store"
)

const subscriptionBuffer = 128

// MemoryStore implements store.Store with plain maps.
type MemoryStore struct {
	// Now is the clock used for TTL checks. Tests may replace it.
	Now func() time.Time

	mu        sync.Mutex
	sets      map[string]map[string]struct{}
	hashes    map[string]map[string]string
	deadlines map[string]time.Time
	subs      map[string][]*memorySubscription
	closed    bool
}

// New returns an empty store.
func New() *MemoryStore {
	return &MemoryStore{
		Now:       time.Now,
		sets:      make(map[string]map[string]struct{}),
		hashes:    make(map[string]map[string]string),
		deadlines: make(map[string]time.Time),
		subs:      make(map[string][]*memorySubscription),
	}
}

// purgeExpiredLocked drops any key whose deadline has passed. Callers hold mu.
func (s *MemoryStore) purgeExpiredLocked() {
	now := s.Now()
	for key, deadline := range s.deadlines {
		if now.After(deadline) {
			delete(s.sets, key)
			delete(s.hashes, key)
			delete(s.deadlines, key)
		}
	}
}

func (s *MemoryStore) SetAdd(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	var added int64
	for _, m := range members {
		if _, exists := set[m]; !exists {
			set[m] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (s *MemoryStore) SetRemove(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()

	set, ok := s.sets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, m := range members {
		if _, exists := set[m]; exists {
			delete(set, m)
			removed++
		}
	}
	if len(set) == 0 {
		delete(s.sets, key)
	}
	return removed, nil
}

func (s *MemoryStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()

	members := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		members = append(members, m)
	}
	return members, nil
}

func (s *MemoryStore) HashSet(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()

	hash, ok := s.hashes[key]
	if !ok {
		hash = make(map[string]string)
		s.hashes[key] = hash
	}
	for k, v := range fields {
		hash[k] = v
	}
	return nil
}

func (s *MemoryStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()

	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()

	if _, ok := s.sets[key]; ok {
		return true, nil
	}
	_, ok := s.hashes[key]
	return ok, nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.sets, key)
		delete(s.hashes, key)
		delete(s.deadlines, key)
	}
	return nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()

	if _, ok := s.sets[key]; !ok {
		if _, ok := s.hashes[key]; !ok {
			return nil
		}
	}
	s.deadlines[key] = s.Now().Add(ttl)
	return nil
}

func (s *MemoryStore) Publish(ctx context.Context, channel, payload string) error {
	s.mu.Lock()
	targets := make([]*memorySubscription, len(s.subs[channel]))
	copy(targets, s.subs[channel])
	s.mu.Unlock()

	msg := store.Message{Channel: channel, Payload: payload}
	for _, sub := range targets {
		sub.deliver(msg)
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, channel string) (store.Subscription, error) {
	sub := &memorySubscription{
		store:   s,
		channel: channel,
		msgs:    make(chan store.Message, subscriptionBuffer),
	}

	s.mu.Lock()
	s.subs[channel] = append(s.subs[channel], sub)
	s.mu.Unlock()

	return sub, nil
}

// Break terminates every subscription on channel with err, simulating a
// transport failure toward those subscribers.
func (s *MemoryStore) Break(channel string, err error) {
	s.mu.Lock()
	targets := s.subs[channel]
	delete(s.subs, channel)
	s.mu.Unlock()

	for _, sub := range targets {
		sub.fail(err)
	}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var all []*memorySubscription
	for _, subs := range s.subs {
		all = append(all, subs...)
	}
	s.subs = make(map[string][]*memorySubscription)
	s.mu.Unlock()

	for _, sub := range all {
		sub.fail(nil)
	}
	return nil
}

func (s *MemoryStore) detach(sub *memorySubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[sub.channel]
	for i, candidate := range subs {
		if candidate == sub {
			s.subs[sub.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

type memorySubscription struct {
	store   *MemoryStore
	channel string

	mu     sync.Mutex
	msgs   chan store.Message
	closed bool
	err    error
}

// deliver enqueues a message, dropping it if the subscriber buffer is full.
func (s *memorySubscription) deliver(msg store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.msgs <- msg:
	default:
	}
}

func (s *memorySubscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.msgs)
}

func (s *memorySubscription) Messages() <-chan store.Message {
	return s.msgs
}

func (s *memorySubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *memorySubscription) Close() error {
	s.store.detach(s)
	s.fail(nil)
	return nil
}

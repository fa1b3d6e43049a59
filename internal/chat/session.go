package chat

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/redischat/internal/store"
)

// Options tunes a session. Zero values fall back to defaults.
type Options struct {
	// PresenceTTL is the sliding expiry on user:<name> and channels:<name>.
	PresenceTTL time.Duration
	// StopTimeout bounds the wait for a listener to confirm unsubscription.
	StopTimeout time.Duration
	// EventBuffer sizes the event channel toward the presentation layer.
	EventBuffer int
}

const (
	defaultPresenceTTL = 180 * time.Second
	defaultStopTimeout = 5 * time.Second
	defaultEventBuffer = 64
)

// Session is one user's identity plus its set of live channel listeners.
//
// All commands must be issued from a single goroutine (the dispatcher loop);
// the listeners map is touched only by that command path. Listener goroutines
// read the identity through the mutex and post events, nothing else.
type Session struct {
	id    string
	store store.Store
	log   zerolog.Logger

	ttl         time.Duration
	stopTimeout time.Duration

	mu       sync.RWMutex
	username string
	closed   bool

	// listeners maps channel key ("channel:<name>") to its live listener.
	listeners map[string]*Listener

	events chan Event
}

// NewSession builds an unidentified session on the given store.
func NewSession(st store.Store, logger *zerolog.Logger, opts Options) *Session {
	if opts.PresenceTTL <= 0 {
		opts.PresenceTTL = defaultPresenceTTL
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}

	id := uuid.NewString()
	return &Session{
		id:          id,
		store:       st,
		log:         logger.With().Str("session_id", id).Logger(),
		ttl:         opts.PresenceTTL,
		stopTimeout: opts.StopTimeout,
		listeners:   make(map[string]*Listener),
		events:      make(chan Event, opts.EventBuffer),
	}
}

// ID returns the per-process session instance id.
func (s *Session) ID() string {
	return s.id
}

// Username returns the current identity, or "" when unidentified.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) setUsername(name string) {
	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
}

// Events returns the channel the presentation layer consumes.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Channels lists the channel keys with a live listener, sorted.
func (s *Session) Channels() []string {
	keys := make([]string, 0, len(s.listeners))
	for key := range s.listeners {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Joined reports whether the session has a live listener for channel name.
func (s *Session) Joined(channel string) bool {
	_, ok := s.listeners[ChannelKey(channel)]
	return ok
}

// Identify claims name and announces the user on the broadcast channel.
// If the session already holds a different identity, the old presence
// records are deleted and every listener stopped before the claim, so the
// two identities never overlap.
func (s *Session) Identify(ctx context.Context, name string, age int, sex, location string) error {
	exists, err := s.store.Exists(ctx, UserKey(name))
	if err != nil {
		return storeFailure(err)
	}
	if exists {
		return chatError(ErrCodeAlreadyExists, fmt.Sprintf("user %s already exists", name))
	}

	if old := s.Username(); old != "" {
		if err := s.store.Delete(ctx, UserKey(old), ChannelsKey(old)); err != nil {
			return storeFailure(err)
		}
		s.reset()
	}

	s.setUsername(name)
	profile := map[string]string{
		"name":     name,
		"age":      strconv.Itoa(age),
		"sex":      sex,
		"location": location,
	}
	if err := s.store.HashSet(ctx, UserKey(name), profile); err != nil {
		s.teardownPresence(ctx)
		return storeFailure(err)
	}
	if err := s.refreshPresence(ctx); err != nil {
		s.teardownPresence(ctx)
		return err
	}

	if _, err := s.store.SetAdd(ctx, ChannelsKey(name), ChannelKey(name), ChannelKey(BroadcastChannel)); err != nil {
		s.teardownPresence(ctx)
		return storeFailure(err)
	}
	// The membership set did not exist before the add, so it needs its own
	// expiry now.
	if err := s.refreshPresence(ctx); err != nil {
		s.teardownPresence(ctx)
		return err
	}

	for _, key := range []string{ChannelKey(BroadcastChannel), ChannelKey(name)} {
		if err := s.listen(ctx, key); err != nil {
			s.teardownPresence(ctx)
			return err
		}
	}

	if err := s.announce(ctx, ChannelKey(BroadcastChannel), name+" has joined the server"); err != nil {
		s.teardownPresence(ctx)
		return err
	}

	s.log.Info().Str("username", name).Msg("identified")
	return nil
}

// Join subscribes the session to a channel. The join announcement is
// published only when the membership set actually changed.
func (s *Session) Join(ctx context.Context, channel string) error {
	if err := s.ensureIdentified(ctx); err != nil {
		return err
	}

	key := ChannelKey(channel)
	if _, ok := s.listeners[key]; ok {
		return chatError(ErrCodeAlreadyJoined, fmt.Sprintf("already joined channel %s", channel))
	}

	name := s.Username()
	added, err := s.store.SetAdd(ctx, ChannelsKey(name), key)
	if err != nil {
		return storeFailure(err)
	}

	if err := s.listen(ctx, key); err != nil {
		if added > 0 {
			if _, remErr := s.store.SetRemove(ctx, ChannelsKey(name), key); remErr != nil {
				s.log.Warn().Err(remErr).Str("channel", key).Msg("membership rollback failed")
			}
		}
		return err
	}

	if added > 0 {
		if err := s.announce(ctx, key, name+" has joined channel: "+channel); err != nil {
			return err
		}
	}

	return s.refreshPresence(ctx)
}

// Leave unsubscribes from a channel. The leave announcement goes out
// before the local listener stops, while the session is still subscribed.
func (s *Session) Leave(ctx context.Context, channel string) error {
	if err := s.ensureIdentified(ctx); err != nil {
		return err
	}

	key := ChannelKey(channel)
	listener, ok := s.listeners[key]
	if !ok {
		return chatError(ErrCodeNotJoined, fmt.Sprintf("not joined to channel %s", channel))
	}

	name := s.Username()
	removed, err := s.store.SetRemove(ctx, ChannelsKey(name), key)
	if err != nil {
		return storeFailure(err)
	}

	if removed > 0 {
		if err := s.announce(ctx, key, name+" has left channel: "+channel); err != nil {
			return err
		}
	}

	if err := listener.Stop(); err != nil {
		s.log.Warn().Err(err).Str("channel", key).Msg("listener stop failed")
	}
	delete(s.listeners, key)

	return s.refreshPresence(ctx)
}

// Whois returns the profile hash for username; the map is empty when no
// such user exists.
func (s *Session) Whois(ctx context.Context, username string) (map[string]string, error) {
	if err := s.ensureIdentified(ctx); err != nil {
		return nil, err
	}
	if err := s.refreshPresence(ctx); err != nil {
		return nil, err
	}

	profile, err := s.store.HashGetAll(ctx, UserKey(username))
	if err != nil {
		return nil, storeFailure(err)
	}
	return profile, nil
}

// Tell sends a private message on the recipient's own channel. The sender
// does not need to be subscribed there.
func (s *Session) Tell(ctx context.Context, username, message string) error {
	if err := s.ensureIdentified(ctx); err != nil {
		return err
	}

	msg := Message{Name: s.Username(), Channel: username, Body: message}
	if err := s.publish(ctx, ChannelKey(username), msg); err != nil {
		return err
	}

	return s.refreshPresence(ctx)
}

// SendMessage broadcasts to a joined channel. Empty channel defaults to
// the reserved broadcast channel.
func (s *Session) SendMessage(ctx context.Context, channel, message string) error {
	if err := s.ensureIdentified(ctx); err != nil {
		return err
	}

	if channel == "" {
		channel = BroadcastChannel
	}
	key := ChannelKey(channel)
	if _, ok := s.listeners[key]; !ok {
		return chatError(ErrCodeNotJoined, fmt.Sprintf("not joined to channel %s", channel))
	}

	msg := Message{Name: s.Username(), Channel: channel, Body: message}
	if err := s.publish(ctx, key, msg); err != nil {
		return err
	}

	return s.refreshPresence(ctx)
}

// Delete removes the user from the store, announces the departure, and
// stops every listener. The session is unidentified afterwards.
func (s *Session) Delete(ctx context.Context) error {
	if err := s.ensureIdentified(ctx); err != nil {
		return err
	}

	name := s.Username()
	if err := s.store.Delete(ctx, UserKey(name), ChannelsKey(name)); err != nil {
		return storeFailure(err)
	}

	if err := s.announce(ctx, ChannelKey(BroadcastChannel), name+" has left the server"); err != nil {
		return err
	}

	s.reset()
	s.log.Info().Str("username", name).Msg("deleted")
	return nil
}

// Shutdown tears the session down at process exit: a best-effort Delete
// when identified, then the event channel closes. No commands may be
// issued afterwards.
func (s *Session) Shutdown(ctx context.Context) {
	if s.Username() != "" {
		if err := s.Delete(ctx); err != nil {
			s.log.Warn().Err(err).Msg("delete on shutdown failed")
			s.reset()
		}
	} else {
		s.reset()
	}
	// A listener whose Stop timed out may still be draining its stream.
	// Marking the session closed under the write lock means no such
	// goroutine can be mid-post when the event channel closes.
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	close(s.events)
}

// ensureIdentified guards every command that needs an identity. When the
// store has expired the presence record behind our back, the session is
// forced back to unidentified and the command fails.
func (s *Session) ensureIdentified(ctx context.Context) error {
	name := s.Username()
	if name == "" {
		return chatError(ErrCodeNotIdentified, "you must identify first")
	}

	exists, err := s.store.Exists(ctx, UserKey(name))
	if err != nil {
		return storeFailure(err)
	}
	if !exists {
		s.reset()
		s.log.Warn().Str("username", name).Msg("presence expired in store, session reset")
		return chatError(ErrCodeNotIdentified, fmt.Sprintf("presence for %s expired, identify again", name))
	}
	return nil
}

// listen starts a listener and registers it in the subscription map.
func (s *Session) listen(ctx context.Context, channelKey string) error {
	listener, err := StartListener(ctx, s.store, channelKey, s.deliver, s.listenerFailed, &s.log, s.stopTimeout)
	if err != nil {
		return storeFailure(err)
	}
	s.listeners[channelKey] = listener
	return nil
}

// deliver posts a decoded inbound message toward the presentation layer.
// It runs on listener goroutines and reads only the session identity.
func (s *Session) deliver(channelKey, from, body string) {
	s.post(Event{
		Kind:       EventChannelMessage,
		From:       from,
		Channel:    channelKey,
		Body:       body,
		ReceivedAt: time.Now(),
	})
}

// listenerFailed surfaces a listener killed by a store failure. It must
// not touch the listeners map; the dead listener stays registered until
// the command path removes it.
func (s *Session) listenerFailed(channelKey string, failure *Error) {
	s.post(Event{
		Kind:       EventListenerStopped,
		Channel:    channelKey,
		Err:        failure,
		ReceivedAt: time.Now(),
	})
}

// post attributes an event and enqueues it without blocking. The read
// lock is held across the send so Shutdown cannot close the channel
// underneath it; posts arriving after Shutdown are dropped.
func (s *Session) post(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Debug().Str("channel", ev.Channel).Msg("session closed, dropping event")
		return
	}
	ev.Username = s.username
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Str("channel", ev.Channel).Msg("event buffer full, dropping event")
	}
}

// announce publishes a SERVER-authored notice on a channel.
func (s *Session) announce(ctx context.Context, channelKey, text string) error {
	return s.publish(ctx, channelKey, Message{Name: ServerName, Body: text})
}

func (s *Session) publish(ctx context.Context, channelKey string, msg Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := s.store.Publish(ctx, channelKey, payload); err != nil {
		return storeFailure(err)
	}
	return nil
}

// refreshPresence slides the TTL on both presence keys.
func (s *Session) refreshPresence(ctx context.Context) error {
	name := s.Username()
	if name == "" {
		return nil
	}
	if err := s.store.Expire(ctx, UserKey(name), s.ttl); err != nil {
		return storeFailure(err)
	}
	if err := s.store.Expire(ctx, ChannelsKey(name), s.ttl); err != nil {
		return storeFailure(err)
	}
	return nil
}

// teardownPresence undoes a partially completed Identify.
func (s *Session) teardownPresence(ctx context.Context) {
	name := s.Username()
	if name == "" {
		return
	}
	if err := s.store.Delete(ctx, UserKey(name), ChannelsKey(name)); err != nil {
		s.log.Warn().Err(err).Str("username", name).Msg("presence cleanup failed")
	}
	s.reset()
}

// reset stops every listener, clears the subscription map, and drops the
// identity. No subscription outlives the identity that created it.
func (s *Session) reset() {
	for key, listener := range s.listeners {
		if err := listener.Stop(); err != nil {
			s.log.Warn().Err(err).Str("channel", key).Msg("listener stop failed")
		}
		delete(s.listeners, key)
	}
	s.setUsername("")
}

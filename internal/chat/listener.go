package chat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/redischat/internal/store"
)

// ListenerState tracks the subscription lifecycle. Stopped is terminal.
type ListenerState int32

const (
	ListenerCreated ListenerState = iota
	ListenerSubscribing
	ListenerActive
	ListenerStopping
	ListenerStopped
)

func (s ListenerState) String() string {
	switch s {
	case ListenerCreated:
		return "created"
	case ListenerSubscribing:
		return "subscribing"
	case ListenerActive:
		return "active"
	case ListenerStopping:
		return "stopping"
	case ListenerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MessageHandler receives each decoded inbound message.
type MessageHandler func(channelKey, from, body string)

// FailureHandler is invoked once if the receive loop dies on a store
// failure rather than a requested stop. It runs on the listener goroutine
// and must not touch the owning session's subscription map.
type FailureHandler func(channelKey string, err *Error)

// Listener owns one subscription and the goroutine draining it. The
// subscription handle is acquired synchronously before the goroutine
// launches, so Stop is safe at any point after StartListener returns.
type Listener struct {
	channelKey string
	sub        store.Subscription
	onMessage  MessageHandler
	onFailure  FailureHandler
	log        zerolog.Logger

	stopTimeout time.Duration
	state       atomic.Int32
	done        chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// StartListener subscribes to channelKey and begins the receive loop.
// The subscribe round-trip completes before the goroutine starts, so a
// publish issued after StartListener returns is always delivered.
func StartListener(ctx context.Context, st store.Store, channelKey string, onMessage MessageHandler, onFailure FailureHandler, logger *zerolog.Logger, stopTimeout time.Duration) (*Listener, error) {
	l := &Listener{
		channelKey:  channelKey,
		onMessage:   onMessage,
		onFailure:   onFailure,
		log:         logger.With().Str("channel", channelKey).Logger(),
		stopTimeout: stopTimeout,
		done:        make(chan struct{}),
	}

	l.state.Store(int32(ListenerSubscribing))
	sub, err := st.Subscribe(ctx, channelKey)
	if err != nil {
		l.state.Store(int32(ListenerStopped))
		return nil, fmt.Errorf("subscribe %s: %w", channelKey, err)
	}
	l.sub = sub
	l.state.Store(int32(ListenerActive))

	go l.run()

	l.log.Debug().Msg("listener started")
	return l, nil
}

// ChannelKey returns the topic this listener is subscribed to.
func (l *Listener) ChannelKey() string {
	return l.channelKey
}

// State returns the current lifecycle state.
func (l *Listener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// run drains the subscription until it closes. Malformed payloads are
// logged and dropped; they never end the loop.
func (l *Listener) run() {
	defer close(l.done)

	for raw := range l.sub.Messages() {
		msg, err := DecodeMessage(raw.Payload)
		if err != nil {
			l.log.Warn().Err(err).Str("payload", raw.Payload).Msg("dropping malformed message")
			continue
		}
		l.onMessage(l.channelKey, msg.Name, msg.Body)
	}

	requested := l.State() == ListenerStopping
	l.state.Store(int32(ListenerStopped))

	if err := l.sub.Err(); err != nil && !requested {
		l.log.Error().Err(err).Msg("listener terminated by store failure")
		if l.onFailure != nil {
			l.onFailure(l.channelKey, storeFailure(err))
		}
		return
	}
	l.log.Debug().Msg("listener stopped")
}

// Stop requests unsubscription and waits for the receive loop to exit,
// bounded by the configured stop timeout. Safe to call from any state and
// idempotent; later calls return the first call's result.
func (l *Listener) Stop() error {
	l.stopOnce.Do(func() {
		if l.State() != ListenerStopped {
			l.state.Store(int32(ListenerStopping))
		}
		if err := l.sub.Close(); err != nil {
			l.log.Warn().Err(err).Msg("unsubscribe failed")
		}

		select {
		case <-l.done:
		case <-time.After(l.stopTimeout):
			l.stopErr = fmt.Errorf("listener %s: unsubscribe not confirmed within %s", l.channelKey, l.stopTimeout)
		}
	})
	return l.stopErr
}

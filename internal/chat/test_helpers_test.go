package chat

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/redischat/internal/store/memory"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func newTestSession(t *testing.T, st *memory.MemoryStore) *Session {
	t.Helper()
	return NewSession(st, testLogger(), Options{
		PresenceTTL: time.Minute,
		StopTimeout: 2 * time.Second,
		EventBuffer: 32,
	})
}

func mustEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return Event{}
}

// mustMessageFrom waits for a chat message authored by from, skipping
// anything else (announcements, other senders).
func mustMessageFrom(t *testing.T, ch <-chan Event, from string) Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev.Kind == EventChannelMessage && ev.From == from {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected message from %s not received", from)
	return Event{}
}

package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/redischat/internal/chat"
	"github.com/vovakirdan/redischat/internal/store/memory"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *memory.MemoryStore) {
	t.Helper()
	st := memory.New()
	logger := zerolog.Nop()
	session := chat.NewSession(st, &logger, chat.Options{
		PresenceTTL: time.Minute,
		StopTimeout: time.Second,
	})
	return New(session, &logger, "all"), st
}

func TestDispatchGrammarErrors(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		name string
		line string
	}{
		{"unknown command", "/frobnicate"},
		{"me too few args", "/me alice 30 f"},
		{"me age not numeric", "/me alice thirty f nyc"},
		{"join missing channel", "/join"},
		{"join extra args", "/join a b"},
		{"leave missing channel", "/leave"},
		{"whois missing user", "/whois"},
		{"tell missing message", "/tell bob"},
		{"chat missing message", "/chat sports"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Dispatch(ctx, tt.line); err == nil {
				t.Fatalf("expected error for %q", tt.line)
			}
		})
	}
}

func TestDispatchRequiresIdentity(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, "hello world")
	if chat.Code(err) != chat.ErrCodeNotIdentified {
		t.Fatalf("expected not_identified, got %v", err)
	}
}

func TestDispatchFlow(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	reply, err := d.Dispatch(ctx, "/me alice 30 f nyc")
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if !strings.Contains(reply, "alice") {
		t.Fatalf("unexpected reply: %q", reply)
	}

	if _, err := d.Dispatch(ctx, "/join sports"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if d.LastChannel() != "sports" {
		t.Fatalf("last channel = %q, want sports", d.LastChannel())
	}

	// Bare text goes to the last channel.
	watcher, err := st.Subscribe(ctx, "channel:sports")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer watcher.Close()

	if _, err := d.Dispatch(ctx, "hello sports fans"); err != nil {
		t.Fatalf("bare text: %v", err)
	}

	select {
	case msg := <-watcher.Messages():
		decoded, err := chat.DecodeMessage(msg.Payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.Name != "alice" || decoded.Body != "hello sports fans" {
			t.Fatalf("unexpected broadcast: %+v", decoded)
		}
	case <-time.After(time.Second):
		t.Fatal("bare text was not broadcast to the last channel")
	}

	// Leaving the last channel retargets bare text to the default.
	if _, err := d.Dispatch(ctx, "/leave sports"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if d.LastChannel() != chat.BroadcastChannel {
		t.Fatalf("last channel = %q, want %s", d.LastChannel(), chat.BroadcastChannel)
	}
}

func TestDispatchWhois(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	if _, err := d.Dispatch(ctx, "/me alice 30 f nyc"); err != nil {
		t.Fatalf("me: %v", err)
	}

	reply, err := d.Dispatch(ctx, "/whois alice")
	if err != nil {
		t.Fatalf("whois: %v", err)
	}
	for _, want := range []string{"name=alice", "age=30", "sex=f", "location=nyc"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("whois reply %q missing %q", reply, want)
		}
	}

	reply, err = d.Dispatch(ctx, "/whois nobody")
	if err != nil {
		t.Fatalf("whois nobody: %v", err)
	}
	if !strings.Contains(reply, "no such user") {
		t.Fatalf("unexpected reply for unknown user: %q", reply)
	}
}

func TestDispatchDelete(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	if _, err := d.Dispatch(ctx, "/me alice 30 f nyc"); err != nil {
		t.Fatalf("me: %v", err)
	}
	if _, err := d.Dispatch(ctx, "/delete"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	exists, err := st.Exists(ctx, "user:alice")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("user key should be gone after /delete")
	}

	// Any further command needs a fresh /me.
	_, err = d.Dispatch(ctx, "hello")
	if chat.Code(err) != chat.ErrCodeNotIdentified {
		t.Fatalf("expected not_identified, got %v", err)
	}
}

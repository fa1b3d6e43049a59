package history

import (
	"context"
	"testing"
	"time"
)

func TestAppendAndRecent(t *testing.T) {
	h, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	bodies := []string{"first", "second", "third"}
	for i, body := range bodies {
		entry := Entry{
			SessionID:  "sess-1",
			Channel:    "sports",
			Sender:     "alice",
			Body:       body,
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := h.Append(ctx, entry); err != nil {
			t.Fatalf("append %q: %v", body, err)
		}
	}
	if err := h.Append(ctx, Entry{SessionID: "sess-1", Channel: "news", Sender: "bob", Body: "elsewhere", ReceivedAt: base}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := h.Recent(ctx, "sports", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Body != "second" || got[1].Body != "third" {
		t.Fatalf("unexpected order: %q, %q", got[0].Body, got[1].Body)
	}
	if got[0].Sender != "alice" || got[0].Channel != "sports" {
		t.Fatalf("unexpected entry: %+v", got[0])
	}
}

func TestRecentEmptyChannel(t *testing.T) {
	h, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	got, err := h.Recent(context.Background(), "ghost", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}

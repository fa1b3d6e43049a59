package chat

import "time"

// EventKind is a notification the core emits to the presentation layer.
type EventKind int

const (
	// EventChannelMessage delivers a decoded inbound chat message.
	EventChannelMessage EventKind = iota
	// EventListenerStopped reports a listener that died on a store failure.
	EventListenerStopped
)

// Event crosses the boundary between listener goroutines and the
// presentation layer. Listeners post events; they never call UI code.
type Event struct {
	Kind EventKind
	// Username is the owning session's identity at delivery time.
	Username string
	// From is the sender display name, or SERVER for announcements.
	From string
	// Channel is the pub/sub topic the message arrived on ("channel:<name>").
	Channel string
	// Body is the message text.
	Body string
	// Err is set on EventListenerStopped.
	Err *Error
	// ReceivedAt is when the event was decoded locally.
	ReceivedAt time.Time
}

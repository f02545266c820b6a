package history

import (
	"context"
	"time"
)

// EventType defines the kind of console event.
type EventType string

const (
	EventConnected      EventType = "connected"
	EventDisconnected   EventType = "disconnected"
	EventExhausted      EventType = "exhausted"
	EventSnapshot       EventType = "snapshot"
	EventCommand        EventType = "command"
	EventSessionExpired EventType = "session_expired"
)

// Event is a console lifecycle or fleet event exported to external
// analytics/audit systems. It is append-only and never read back by the
// console itself.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	// Client is the target worker id, empty for connection-level events.
	Client string `json:"client,omitempty"`
	// Detail carries the command name, client count, or state text.
	Detail string `json:"detail,omitempty"`
}

// Sink is a destination for console events (analytics/audit systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

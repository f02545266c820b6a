package notify

import (
	"sync"
	"time"
)

// DisplayDuration is how long a notification stays current before it
// expires on its own.
const DisplayDuration = 3 * time.Second

// Level classifies a notification for display.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a transient user-facing message. It is never persisted.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier holds at most one current notification and expires it after
// DisplayDuration. Posting a new notification replaces the current one and
// restarts the expiry timer; the previous timer is always stopped first so
// a stale expiry can never clear a newer message.
type Notifier struct {
	mu      sync.Mutex
	current *Notification
	timer   *time.Timer
	ttl     time.Duration
	sink    func(Notification)
}

// NewNotifier returns a Notifier with the default display duration.
// sink, when non-nil, observes every posted notification.
func NewNotifier(sink func(Notification)) *Notifier {
	return &Notifier{ttl: DisplayDuration, sink: sink}
}

// SetTTL overrides the display duration. Useful in tests.
func (n *Notifier) SetTTL(d time.Duration) {
	n.mu.Lock()
	n.ttl = d
	n.mu.Unlock()
}

// Notify posts a notification, replacing any current one.
func (n *Notifier) Notify(level Level, message string) {
	note := Notification{Level: level, Message: message, At: time.Now()}
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
	}
	n.current = &note
	n.timer = time.AfterFunc(n.ttl, func() { n.expire(note) })
	sink := n.sink
	n.mu.Unlock()
	if sink != nil {
		sink(note)
	}
}

func (n *Notifier) expire(note Notification) {
	n.mu.Lock()
	if n.current != nil && *n.current == note {
		n.current = nil
	}
	n.mu.Unlock()
}

// Current returns the visible notification, if any.
func (n *Notifier) Current() *Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return nil
	}
	c := *n.current
	return &c
}

// Dismiss clears the current notification immediately.
func (n *Notifier) Dismiss() {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
	}
	n.current = nil
	n.mu.Unlock()
}

// Convenience helpers used throughout the console.

func (n *Notifier) Info(msg string)    { n.Notify(LevelInfo, msg) }
func (n *Notifier) Success(msg string) { n.Notify(LevelSuccess, msg) }
func (n *Notifier) Warning(msg string) { n.Notify(LevelWarning, msg) }
func (n *Notifier) Error(msg string)   { n.Notify(LevelError, msg) }

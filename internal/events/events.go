package events

import (
	"sync"
	"time"

	"github.com/lumivid/messaging/pkg/log"
)

// Event is a typed in-process event delivered to registered handlers.
type Event interface {
	Name() string
}

// UserConnected fires when a session is admitted for a resolved identity.
type UserConnected struct {
	UserID    string
	SessionID string
	At        time.Time
}

func (UserConnected) Name() string { return "user_connected" }

// UserDisconnected fires when a user's session is released or evicted.
type UserDisconnected struct {
	UserID    string
	SessionID string
	LastOne   bool // true when this was the user's last session
	At        time.Time
}

func (UserDisconnected) Name() string { return "user_disconnected" }

// MessageSent fires after a message has been durably persisted.
type MessageSent struct {
	MessageID      string
	ConversationID string
	SenderID       string
	At             time.Time
}

func (MessageSent) Name() string { return "message_sent" }

// MessageRecalled fires after a message has been marked recalled.
type MessageRecalled struct {
	MessageID      string
	ConversationID string
	SenderID       string
	At             time.Time
}

func (MessageRecalled) Name() string { return "message_recalled" }

// Handler receives published events.
type Handler func(Event)

// Bus is an explicitly constructed publish/subscribe dispatcher for the
// small set of core events. Handlers run synchronously in publish order;
// a panicking handler is logged and never takes down the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for the named event.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish delivers the event to every handler registered for its name.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	hs := b.handlers[e.Name()]
	b.mu.RUnlock()

	for _, h := range hs {
		b.safeCall(h, e)
	}
}

func (b *Bus) safeCall(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			l := log.L()
			l.Error().Interface("panic", r).Str("event", e.Name()).Msg("event handler panicked")
		}
	}()
	h(e)
}

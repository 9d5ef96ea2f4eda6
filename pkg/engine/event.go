package engine

import (
	"sync"
	"time"
)

// EventKind identifies the type of relay event.
type EventKind string

const (
	EventHumanTurn  EventKind = "human_turn"  // A human message was accepted into a session.
	EventRoundStart EventKind = "round_start" // A scheduler round began; Round carries 1 or 2.
	EventAgentReply EventKind = "agent_reply" // An agent produced a visible turn (including error text).
	EventAgentPass  EventKind = "agent_pass"  // An agent declined its turn.
	EventAgentError EventKind = "agent_error" // An agent call failed; Data holds the error. A reply event with the error text follows.
)

// Event is an immutable notification of relay activity.
type Event struct {
	Kind      EventKind
	ChatID    string
	Speaker   string
	Round     int
	Text      string
	Timestamp time.Time
	Data      any
}

// Subscription receives events from an EventBus.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// EventBus fans out events to all active subscribers. It is safe for
// concurrent use.
type EventBus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewEventBus creates an EventBus ready for use.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe creates a new subscription with the given channel buffer size.
// The caller should read from sub.C and eventually call Unsubscribe.
func (b *EventBus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish sends an event to all subscribers. If a subscriber's buffer is
// full the event is dropped for that subscriber, so a slow consumer never
// stalls a scheduler round.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
		}
	}
}

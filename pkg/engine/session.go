package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/germanamz/parley/pkg/chatlog"
	"github.com/germanamz/parley/pkg/chats/transcript"
	"github.com/germanamz/parley/pkg/chats/turn"
)

// Session binds one chat's transcript to the shared responder set. It is
// the single entry point the transport layer calls per incoming human
// message. Concurrent Submit calls on the same session are serialized;
// different sessions share no mutable state and may run concurrently.
type Session struct {
	id     string
	sched  *Scheduler
	log    *chatlog.Log
	events *EventBus

	mu sync.Mutex
	tr *transcript.Transcript
}

// newSession creates a session over an already-replayed transcript.
func newSession(id string, tr *transcript.Transcript, sched *Scheduler, log *chatlog.Log, events *EventBus) *Session {
	return &Session{
		id:     id,
		tr:     tr,
		sched:  sched,
		log:    log,
		events: events,
	}
}

// ID returns the opaque chat identifier this session is keyed by.
func (s *Session) ID() string { return s.id }

// Turns returns a copy of the session's transcript so far.
func (s *Session) Turns() []turn.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tr.Turns()
}

// Submit appends a human turn, runs the two-round scheduler, and returns
// the agent turns produced, in production order. Every turn is durably
// persisted before Submit returns. Individual provider failures come back
// as error-text replies, never as a Submit error; Submit errors only when
// a turn cannot be persisted.
func (s *Session) Submit(ctx context.Context, speaker, text string) ([]turn.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	human := turn.Human(speaker, text)
	if err := s.log.Append(s.id, human); err != nil {
		return nil, fmt.Errorf("engine: session %s: persist turn: %w", s.id, err)
	}
	s.tr.Append(human)

	if s.events != nil {
		s.events.Publish(Event{
			Kind:      EventHumanTurn,
			ChatID:    s.id,
			Speaker:   speaker,
			Text:      text,
			Timestamp: time.Now(),
		})
	}

	return s.sched.Run(ctx, s.tr, func(t turn.Turn) error {
		return s.log.Append(s.id, t)
	})
}

// Package engine is the relay's composition root. It builds provider
// responders from configuration, owns the per-chat history log and the
// event bus, and exposes the session store the transport layer works
// against.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/germanamz/parley/pkg/chatlog"
	"github.com/germanamz/parley/pkg/chats/transcript"
	"github.com/germanamz/parley/pkg/providers/provider"
)

// Engine assembles the relay from configuration and manages sessions.
// Sessions are created explicitly when a chat is authorized and looked up
// per message; there is no implicit creation.
type Engine struct {
	cfg        Config
	events     *EventBus
	log        *slog.Logger
	chatlog    *chatlog.Log
	responders []provider.Responder
	shuffle    Shuffle

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option customizes an Engine.
type Option func(*Engine)

// WithShuffle overrides the round-ordering permutation, mainly so tests
// can make scheduling deterministic.
func WithShuffle(s Shuffle) Option {
	return func(e *Engine) { e.shuffle = s }
}

// New creates an Engine from the given configuration. Providers without a
// credential are skipped; the set of active responders is exactly the
// configured providers whose key is present. It is an error for that set
// to be empty, or for any configured provider to carry an unknown kind.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	cl, err := chatlog.New(cfg.ChatsDir)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		events:   NewEventBus(),
		log:      logger,
		chatlog:  cl,
		sessions: make(map[string]*Session),
	}

	for _, opt := range opts {
		opt(e)
	}

	for _, pc := range cfg.Providers {
		if pc.APIKey == "" {
			logger.Info("skipping provider without credential", "provider", pc.Name)
			continue
		}

		r, err := buildResponder(pc)
		if err != nil {
			return nil, fmt.Errorf("engine: provider %q: %w", pc.Name, err)
		}
		e.responders = append(e.responders, r)
		logger.Info("provider active", "provider", pc.Name, "kind", pc.Kind, "model", pc.Model)
	}

	if len(e.responders) == 0 {
		return nil, fmt.Errorf("engine: no configured provider has a credential")
	}

	return e, nil
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// AgentNames returns the names of the active responders, in config order.
func (e *Engine) AgentNames() []string {
	names := make([]string, len(e.responders))
	for i, r := range e.responders {
		names[i] = r.Name()
	}
	return names
}

// CreateSession creates the session for the given chat id, replaying any
// persisted history for that id so a restarted process reconstructs the
// conversation. It is an error if the session already exists.
func (e *Engine) CreateSession(id string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.sessions[id]; exists {
		return nil, fmt.Errorf("engine: session %s already exists", id)
	}

	turns, err := e.chatlog.Load(id)
	if err != nil {
		return nil, fmt.Errorf("engine: session %s: replay history: %w", id, err)
	}

	sched := &Scheduler{
		Responders: e.responders,
		Shuffle:    e.shuffle,
		Events:     e.events,
		ChatID:     id,
		Log:        e.log,
	}

	s := newSession(id, transcript.New(turns...), sched, e.chatlog, e.events)
	e.sessions[id] = s

	e.log.Info("session created", "chat", id, "replayed_turns", len(turns))

	return s, nil
}

// Session returns the session for the given chat id, if one was created.
func (e *Engine) Session(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	return s, ok
}

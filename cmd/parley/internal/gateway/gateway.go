// Package gateway is the WebSocket front end of the relay. It carries
// chat rooms over JSON frames, gates session creation behind the shared
// secret, and streams agent replies to the room as the scheduler produces
// them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/germanamz/parley/pkg/engine"
)

// Frame is the single message envelope on a gateway connection.
//
// Client to server:
//
//	{"type":"start","secret":"..."}        authorize the room
//	{"type":"message","name":"Ada","text":"..."}
//
// Server to client:
//
//	{"type":"message","role":"human|agent","speaker":"...","text":"..."}
//	{"type":"notice","text":"..."}
type Frame struct {
	Type    string `json:"type"`
	Secret  string `json:"secret,omitempty"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Gateway serves chat rooms over WebSocket connections. Each connection
// attaches to one room, identified by the "chat" query parameter.
type Gateway struct {
	engine *engine.Engine
	secret string
	log    *slog.Logger
}

// New creates a Gateway in front of the given engine. The secret is what
// a room must present in its start frame before messages are relayed.
func New(e *engine.Engine, secret string, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}

	return &Gateway{engine: e, secret: secret, log: log}
}

// Handler returns the HTTP handler serving the gateway at /ws.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.serveWS)

	return mux
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat")
	if chatID == "" {
		http.Error(w, "missing chat id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.log.Error("websocket accept failed", "chat", chatID, "err", err)
		return
	}

	g.log.Info("connection opened", "chat", chatID)

	err = g.handle(r.Context(), conn, chatID)
	if err != nil && !errors.Is(err, context.Canceled) {
		var closeErr websocket.CloseError
		if !errors.As(err, &closeErr) {
			g.log.Error("connection failed", "chat", chatID, "err", err)
			_ = conn.Close(websocket.StatusInternalError, "internal error")
			return
		}
	}

	g.log.Info("connection closed", "chat", chatID)
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// handle runs one connection: a writer goroutine draining the outbound
// queue, a forwarder turning engine events for this room into frames, and
// the read loop processing client frames until the peer goes away.
func (g *Gateway) handle(ctx context.Context, conn *websocket.Conn, chatID string) error {
	ctx, cancel := context.WithCancel(ctx)

	out := make(chan Frame, 64)
	sub := g.engine.Events().Subscribe(64)
	defer g.engine.Events().Unsubscribe(sub)

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-out:
				if err := wsjson.Write(ctx, conn, f); err != nil {
					return
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if ev.ChatID != chatID {
					continue
				}

				switch ev.Kind {
				case engine.EventHumanTurn:
					g.send(ctx, out, Frame{Type: "message", Role: "human", Speaker: ev.Speaker, Text: ev.Text})
				case engine.EventAgentReply:
					g.send(ctx, out, Frame{Type: "message", Role: "agent", Speaker: ev.Speaker, Text: ev.Text})
				}
			}
		}
	}()

	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return err
		}

		switch f.Type {
		case "start":
			g.handleStart(ctx, out, chatID, f.Secret)
		case "message":
			g.handleMessage(ctx, out, chatID, f)
		default:
			g.send(ctx, out, Frame{Type: "notice", Text: fmt.Sprintf("unknown frame type %q", f.Type)})
		}
	}
}

func (g *Gateway) handleStart(ctx context.Context, out chan<- Frame, chatID, secret string) {
	if _, ok := g.engine.Session(chatID); ok {
		g.send(ctx, out, Frame{Type: "notice", Text: "This chat is already authorized and initialized."})
		return
	}

	if secret != g.secret {
		g.log.Warn("rejected start with bad secret", "chat", chatID)
		g.send(ctx, out, Frame{Type: "notice", Text: "Unauthorized. Please provide the correct secret key."})
		return
	}

	if _, err := g.engine.CreateSession(chatID); err != nil {
		// Lost a create race with another connection; the room is usable
		// either way.
		if _, ok := g.engine.Session(chatID); ok {
			g.send(ctx, out, Frame{Type: "notice", Text: "This chat is already authorized and initialized."})
			return
		}

		g.log.Error("session create failed", "chat", chatID, "err", err)
		g.send(ctx, out, Frame{Type: "notice", Text: "Failed to initialize this chat."})
		return
	}

	g.send(ctx, out, Frame{Type: "notice", Text: "Chat authorized and initialized."})
}

func (g *Gateway) handleMessage(ctx context.Context, out chan<- Frame, chatID string, f Frame) {
	session, ok := g.engine.Session(chatID)
	if !ok {
		g.send(ctx, out, Frame{Type: "notice", Text: "This chat is not authorized. Send a start frame with the secret key to begin."})
		return
	}

	name := f.Name
	if name == "" {
		name = "Anonymous"
	}

	// Replies stream to the room through the event forwarder while the
	// scheduler runs; the returned list is not needed here.
	if _, err := session.Submit(ctx, name, f.Text); err != nil {
		g.log.Error("submit failed", "chat", chatID, "err", err)
		g.send(ctx, out, Frame{Type: "notice", Text: "Failed to process the message."})
	}
}

// send enqueues a frame for the writer goroutine, giving up if the
// connection is going away.
func (g *Gateway) send(ctx context.Context, out chan<- Frame, f Frame) {
	select {
	case out <- f:
	case <-ctx.Done():
	}
}

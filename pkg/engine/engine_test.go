package engine_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/germanamz/parley/pkg/chats/turn"
	"github.com/germanamz/parley/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openAIServer serves the Chat Completions shape, replying from script in
// call order and counting calls.
func openAIServer(t *testing.T, calls *atomic.Int32, script ...string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))

		reply := "PASS"
		if n <= len(script) {
			reply = script[n-1]
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	return srv
}

// anthropicServer serves the Messages shape. An empty script entry is sent
// as an empty content array, the API's way of declining.
func anthropicServer(t *testing.T, calls *atomic.Int32, script ...string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))

		content := []map[string]any{}
		if n <= len(script) && script[n-1] != "" {
			content = append(content, map[string]any{"type": "text", "text": script[n-1]})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":     content,
			"stop_reason": "end_turn",
		})
	}))
	t.Cleanup(srv.Close)

	return srv
}

func testConfig(t *testing.T, providers ...engine.ProviderConfig) engine.Config {
	t.Helper()

	return engine.Config{
		Secret:    "hunter2",
		ChatsDir:  t.TempDir(),
		Providers: providers,
	}
}

func TestNew_UnknownKindIsFatal(t *testing.T) {
	cfg := testConfig(t, engine.ProviderConfig{
		Name: "Mystery", Kind: "cohere", Model: "m", APIKey: "k",
	})

	_, err := engine.New(cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider kind "cohere"`)
}

func TestNew_RequiresOneCredentialedProvider(t *testing.T) {
	cfg := testConfig(t,
		engine.ProviderConfig{Name: "GPT", Kind: "openai", Model: "m"},
		engine.ProviderConfig{Name: "Claude", Kind: "anthropic", Model: "m"},
	)

	_, err := engine.New(cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no configured provider has a credential")
}

func TestNew_SkipsProvidersWithoutCredential(t *testing.T) {
	cfg := testConfig(t,
		engine.ProviderConfig{Name: "GPT", Kind: "openai", Model: "m", APIKey: "k"},
		engine.ProviderConfig{Name: "Claude", Kind: "anthropic", Model: "m"},
	)

	e, err := engine.New(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"GPT"}, e.AgentNames())
}

func TestSessionStore_ExplicitCreateAndLookup(t *testing.T) {
	cfg := testConfig(t, engine.ProviderConfig{
		Name: "GPT", Kind: "openai", Model: "m", APIKey: "k",
	})

	e, err := engine.New(cfg, quietLogger())
	require.NoError(t, err)

	_, ok := e.Session("room-1")
	assert.False(t, ok, "no implicit creation")

	s, err := e.CreateSession("room-1")
	require.NoError(t, err)
	assert.Equal(t, "room-1", s.ID())

	got, ok := e.Session("room-1")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, err = e.CreateSession("room-1")
	require.Error(t, err, "double create is an error")
}

// Scenario from the turn protocol: Alpha (openai shape) replies "hi" in
// round 1, Beta (anthropic shape) declines with an empty content array.
// Round 2 must run; both pass there.
func TestSubmit_TwoProviderScenario(t *testing.T) {
	var alphaCalls, betaCalls atomic.Int32
	alphaSrv := openAIServer(t, &alphaCalls, "hi", "PASS")
	betaSrv := anthropicServer(t, &betaCalls, "", "PASS")

	cfg := testConfig(t,
		engine.ProviderConfig{Name: "Alpha", Kind: "openai", BaseURL: alphaSrv.URL, Model: "m", APIKey: "k"},
		engine.ProviderConfig{Name: "Beta", Kind: "anthropic", BaseURL: betaSrv.URL, Model: "m", APIKey: "k"},
	)

	e, err := engine.New(cfg, quietLogger(), engine.WithShuffle(identity))
	require.NoError(t, err)

	s, err := e.CreateSession("room")
	require.NoError(t, err)

	replies, err := s.Submit(context.Background(), "Ada", "hello")
	require.NoError(t, err)

	require.Len(t, replies, 1)
	assert.Equal(t, turn.Agent("Alpha", "hi"), replies[0])

	assert.Equal(t, int32(2), alphaCalls.Load(), "each provider is called once per round")
	assert.Equal(t, int32(2), betaCalls.Load())

	assert.Equal(t, []turn.Turn{
		turn.Human("Ada", "hello"),
		turn.Agent("Alpha", "hi"),
	}, s.Turns())
}

func TestSubmit_AllPassMeansNoSecondRound(t *testing.T) {
	var alphaCalls, betaCalls atomic.Int32
	alphaSrv := openAIServer(t, &alphaCalls, "PASS")
	betaSrv := anthropicServer(t, &betaCalls, "")

	cfg := testConfig(t,
		engine.ProviderConfig{Name: "Alpha", Kind: "openai", BaseURL: alphaSrv.URL, Model: "m", APIKey: "k"},
		engine.ProviderConfig{Name: "Beta", Kind: "anthropic", BaseURL: betaSrv.URL, Model: "m", APIKey: "k"},
	)

	e, err := engine.New(cfg, quietLogger(), engine.WithShuffle(identity))
	require.NoError(t, err)

	s, err := e.CreateSession("room")
	require.NoError(t, err)

	replies, err := s.Submit(context.Background(), "Ada", "hello")
	require.NoError(t, err)

	assert.Empty(t, replies)
	assert.Equal(t, int32(1), alphaCalls.Load())
	assert.Equal(t, int32(1), betaCalls.Load())
	assert.Equal(t, []turn.Turn{turn.Human("Ada", "hello")}, s.Turns(), "only the human turn is persisted")
}

func TestSubmit_FailingProviderDegradesGracefully(t *testing.T) {
	var alphaCalls, betaCalls atomic.Int32

	alphaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		alphaCalls.Add(1)
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(alphaSrv.Close)
	betaSrv := anthropicServer(t, &betaCalls, "", "")

	cfg := testConfig(t,
		engine.ProviderConfig{Name: "Alpha", Kind: "openai", BaseURL: alphaSrv.URL, Model: "m", APIKey: "k"},
		engine.ProviderConfig{Name: "Beta", Kind: "anthropic", BaseURL: betaSrv.URL, Model: "m", APIKey: "k"},
	)

	e, err := engine.New(cfg, quietLogger(), engine.WithShuffle(identity))
	require.NoError(t, err)

	s, err := e.CreateSession("room")
	require.NoError(t, err)

	replies, err := s.Submit(context.Background(), "Ada", "hello")
	require.NoError(t, err, "provider failures are never Submit errors")

	require.Len(t, replies, 2, "the error reply counts as non-pass, so round 2 runs")
	for _, r := range replies {
		assert.Equal(t, "Alpha", r.Speaker)
		assert.Contains(t, r.Text, "Error making request to Alpha")
		assert.Contains(t, r.Text, "upstream exploded")
	}
	assert.Equal(t, int32(2), betaCalls.Load())
}

func TestRestartReplaysHistory(t *testing.T) {
	var calls atomic.Int32
	srv := openAIServer(t, &calls, "hi Ada", "PASS")

	cfg := testConfig(t, engine.ProviderConfig{
		Name: "Alpha", Kind: "openai", BaseURL: srv.URL, Model: "m", APIKey: "k",
	})

	e1, err := engine.New(cfg, quietLogger(), engine.WithShuffle(identity))
	require.NoError(t, err)
	s1, err := e1.CreateSession("room")
	require.NoError(t, err)
	_, err = s1.Submit(context.Background(), "Ada", "hello")
	require.NoError(t, err)

	// A new engine over the same chats dir reconstructs the session by
	// replaying the log.
	e2, err := engine.New(cfg, quietLogger(), engine.WithShuffle(identity))
	require.NoError(t, err)
	s2, err := e2.CreateSession("room")
	require.NoError(t, err)

	assert.Equal(t, s1.Turns(), s2.Turns())
}

func TestSubmit_PublishesReplyEvents(t *testing.T) {
	var calls atomic.Int32
	srv := openAIServer(t, &calls, "hi", "PASS")

	cfg := testConfig(t, engine.ProviderConfig{
		Name: "Alpha", Kind: "openai", BaseURL: srv.URL, Model: "m", APIKey: "k",
	})

	e, err := engine.New(cfg, quietLogger(), engine.WithShuffle(identity))
	require.NoError(t, err)

	sub := e.Events().Subscribe(32)
	t.Cleanup(func() { e.Events().Unsubscribe(sub) })

	s, err := e.CreateSession("room")
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), "Ada", "hello")
	require.NoError(t, err)

	var kinds []engine.EventKind
	var replyText string
	for len(sub.C) > 0 {
		ev := <-sub.C
		kinds = append(kinds, ev.Kind)
		if ev.Kind == engine.EventAgentReply {
			replyText = ev.Text
			assert.Equal(t, "room", ev.ChatID)
			assert.Equal(t, "Alpha", ev.Speaker)
		}
	}

	assert.Equal(t, []engine.EventKind{
		engine.EventHumanTurn,
		engine.EventRoundStart,
		engine.EventAgentReply,
		engine.EventRoundStart,
		engine.EventAgentPass,
	}, kinds)
	assert.Equal(t, "hi", replyText)
}

func TestConcurrentSubmitsAreSerialized(t *testing.T) {
	var calls atomic.Int32
	srv := openAIServer(t, &calls, "r1", "PASS", "r2", "PASS")

	cfg := testConfig(t, engine.ProviderConfig{
		Name: "Alpha", Kind: "openai", BaseURL: srv.URL, Model: "m", APIKey: "k",
	})

	e, err := engine.New(cfg, quietLogger(), engine.WithShuffle(identity))
	require.NoError(t, err)

	s, err := e.CreateSession("room")
	require.NoError(t, err)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			_, err := s.Submit(context.Background(), "Ada", fmt.Sprintf("msg %d", i))
			done <- err
		}(i)
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}

	// Both submissions completed with interleaving prevented: the two
	// human turns and two replies are all present and every reply
	// directly follows a human turn in a valid order.
	turns := s.Turns()
	require.Len(t, turns, 4)

	var humans, agents int
	for _, tr := range turns {
		if tr.Speaker == "Ada" {
			humans++
		} else {
			agents++
		}
	}
	assert.Equal(t, 2, humans)
	assert.Equal(t, 2, agents)
}

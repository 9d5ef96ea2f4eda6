package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/germanamz/parley/pkg/chats/transcript"
	"github.com/germanamz/parley/pkg/chats/turn"
	"github.com/germanamz/parley/pkg/providers/provider"
)

// Shuffle returns a permutation of [0, n) deciding the order responders
// are offered a turn within a round. The default draws a fresh uniform
// permutation per round; tests can inject a deterministic one.
type Shuffle func(n int) []int

func uniformShuffle(n int) []int {
	return rand.Perm(n)
}

// Scheduler runs the two-round turn protocol over a fixed responder set
// and one session's transcript.
//
// Round 1 offers every responder a turn, sequentially, in a random order.
// Each non-pass reply is appended to the transcript before the next
// responder runs, so later responders see earlier contributions. Round 2
// runs only if round 1 produced at least one non-pass reply, over a fresh
// permutation of the full set; then the scheduler is done.
type Scheduler struct {
	Responders []provider.Responder
	Shuffle    Shuffle   // nil = fresh uniform permutation per round
	Events     *EventBus // nil = no events published
	ChatID     string
	Log        *slog.Logger // nil = slog.Default()
}

// Run executes both rounds against tr and returns the produced turns in
// production order. record is called with each turn after it is appended,
// before the next responder runs; it is where the session persists the
// turn. A record failure aborts the run, returning the turns produced so
// far.
//
// A responder error never aborts the run: the error text becomes that
// responder's visible reply.
func (s *Scheduler) Run(ctx context.Context, tr *transcript.Transcript, record func(turn.Turn) error) ([]turn.Turn, error) {
	first, err := s.runRound(ctx, 1, tr, record)
	if err != nil {
		return first, err
	}

	if len(first) == 0 {
		return nil, nil
	}

	second, err := s.runRound(ctx, 2, tr, record)
	return append(first, second...), err
}

func (s *Scheduler) runRound(ctx context.Context, round int, tr *transcript.Transcript, record func(turn.Turn) error) ([]turn.Turn, error) {
	s.publish(Event{Kind: EventRoundStart, Round: round})

	shuffle := s.Shuffle
	if shuffle == nil {
		shuffle = uniformShuffle
	}

	var produced []turn.Turn

	for _, idx := range shuffle(len(s.Responders)) {
		r := s.Responders[idx]

		reply, err := r.Respond(ctx, tr)
		if err != nil {
			// The failure is surfaced to the room as this agent's reply
			// instead of aborting the round.
			s.logger().Error("agent request failed",
				"chat", s.ChatID, "agent", r.Name(), "round", round, "err", err)
			s.publish(Event{Kind: EventAgentError, Speaker: r.Name(), Round: round, Data: err})
			reply = fmt.Sprintf("Error making request to %s: %v", r.Name(), err)
		}

		if provider.IsPass(reply) {
			s.logger().Debug("agent passed", "chat", s.ChatID, "agent", r.Name(), "round", round)
			s.publish(Event{Kind: EventAgentPass, Speaker: r.Name(), Round: round})
			continue
		}

		t := turn.Agent(r.Name(), reply)
		tr.Append(t)
		if err := record(t); err != nil {
			return produced, fmt.Errorf("engine: record turn from %s: %w", r.Name(), err)
		}
		produced = append(produced, t)

		s.publish(Event{Kind: EventAgentReply, Speaker: r.Name(), Round: round, Text: reply})
	}

	return produced, nil
}

func (s *Scheduler) publish(e Event) {
	if s.Events == nil {
		return
	}

	e.ChatID = s.ChatID
	e.Timestamp = time.Now()
	s.Events.Publish(e)
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

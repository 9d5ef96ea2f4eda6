// Package transcript provides the append-only conversation log shared by
// all provider adapters in a session.
package transcript

import (
	"github.com/germanamz/parley/pkg/chats/turn"
)

// Transcript is an ordered, append-only sequence of turns. Insertion order
// is the single source of truth for what has been said: turns are never
// reordered or deleted. The zero value is ready to use.
//
// Transcript is not safe for concurrent use; the owning session must
// serialize access.
type Transcript struct {
	turns []turn.Turn
}

// New creates a Transcript pre-populated with the given turns,
// e.g. when replaying a persisted history.
func New(turns ...turn.Turn) *Transcript {
	return &Transcript{turns: turns}
}

// Append adds one or more turns to the end of the transcript.
func (tr *Transcript) Append(turns ...turn.Turn) {
	tr.turns = append(tr.turns, turns...)
}

// Len returns the number of turns in the transcript.
func (tr *Transcript) Len() int {
	return len(tr.turns)
}

// At returns the turn at the given index.
// It panics if the index is out of range.
func (tr *Transcript) At(index int) turn.Turn {
	return tr.turns[index]
}

// Last returns the most recent turn and true, or a zero Turn and false if
// the transcript is empty.
func (tr *Transcript) Last() (turn.Turn, bool) {
	if len(tr.turns) == 0 {
		return turn.Turn{}, false
	}
	return tr.turns[len(tr.turns)-1], true
}

// Turns returns a copy of all turns: the immutable snapshot a provider
// call reads. Appends made after the copy is taken are not visible
// through it.
func (tr *Transcript) Turns() []turn.Turn {
	cp := make([]turn.Turn, len(tr.turns))
	copy(cp, tr.turns)
	return cp
}

// BySpeaker returns all turns authored by the given speaker.
func (tr *Transcript) BySpeaker(speaker string) []turn.Turn {
	var out []turn.Turn
	for _, t := range tr.turns {
		if t.Speaker == speaker {
			out = append(out, t)
		}
	}
	return out
}

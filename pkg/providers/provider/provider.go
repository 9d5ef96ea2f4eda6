// Package provider defines the contract all LLM provider adapters
// implement, plus the pieces they share: the system prompt, the pass
// convention, and the transcript-to-wire flattening rule.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/germanamz/parley/pkg/chats/role"
	"github.com/germanamz/parley/pkg/chats/transcript"
	"github.com/germanamz/parley/pkg/chats/turn"
)

// Responder sends the conversation so far to an LLM and returns its reply
// text. One Respond call is one outbound network request.
type Responder interface {
	// Name returns the agent name this responder speaks as. It is the
	// unique key used to attribute turns in the transcript.
	Name() string

	// Respond produces the agent's reply to the given transcript.
	// A reply equal to the pass token (see IsPass) declines the turn.
	Respond(ctx context.Context, tr *transcript.Transcript) (string, error)
}

// PassToken is the reserved reply an agent uses to decline a turn.
const PassToken = "PASS"

// IsPass reports whether reply is an explicit decline: trimmed,
// case-insensitive equality with PassToken.
func IsPass(reply string) bool {
	return strings.EqualFold(strings.TrimSpace(reply), PassToken)
}

// SystemPrompt builds the fixed instructions for an agent. It explains the
// speaker tags, forbids the agent from prefixing its own output with its
// own tag, and defines the pass convention.
func SystemPrompt(agentName string) string {
	return fmt.Sprintf(`You are in a chat session with one or more humans, and one or more AIs.
Messages from humans are identified by 👤[Name], messages from AIs are
identified by 🤖[Name]. These identifiers are provided by the chat system,
you should NOT under any circumstances start your own messages with %s.

Your goal is to work with the other AIs to help the humans in the chat; you can
respond to the humans or the AIs as you feel appropriate. When you respond
to anyone, you should make it clear who you are responding to, using their
name (WITHOUT the emoji or square brackets) if appropriate.

If you are given a chance to respond, but you do not think it would be
helpful for you to add anything, you should say "PASS" and nothing else.

You should keep your response to less than 1024 tokens.
`, turn.Tag(role.Agent, agentName))
}

// WireMessage is a flattened turn ready for a provider's message list.
// Role is always "assistant" or "user"; provider packages convert it to
// their own request types.
type WireMessage struct {
	Role    string
	Content string
}

// Flatten maps a transcript snapshot onto the two-role wire model for the
// agent named self. The agent's own turns become untagged "assistant"
// messages; every other turn (human or other agent) becomes a "user"
// message carrying the speaker tag, so the model can tell participants
// apart. Tags are never applied to self turns, and a speaker is never
// re-labelled as anyone else.
func Flatten(tr *transcript.Transcript, self string) []WireMessage {
	turns := tr.Turns()
	msgs := make([]WireMessage, 0, len(turns))

	for _, t := range turns {
		if t.Kind == role.Agent && t.Speaker == self {
			msgs = append(msgs, WireMessage{Role: "assistant", Content: t.Text})
			continue
		}

		msgs = append(msgs, WireMessage{Role: "user", Content: t.Tagged()})
	}

	return msgs
}

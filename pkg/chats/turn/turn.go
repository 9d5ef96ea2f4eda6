// Package turn defines the Turn type, one unit of conversation content
// attributed to a single speaker.
package turn

import (
	"fmt"

	"github.com/germanamz/parley/pkg/chats/role"
)

// Turn represents a single contribution to a conversation. It is a value
// type that copies cheaply and is never mutated after creation.
//
// Its JSON encoding is also the persisted history record, one per line:
//
//	{"role":"human","speaker":"Ada","text":"hello"}
type Turn struct {
	Kind    role.Kind `json:"role"`
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
}

// Human creates a turn authored by a human speaker.
func Human(speaker, text string) Turn {
	return Turn{Kind: role.Human, Speaker: speaker, Text: text}
}

// Agent creates a turn authored by an AI agent.
func Agent(speaker, text string) Turn {
	return Turn{Kind: role.Agent, Speaker: speaker, Text: text}
}

// Tag returns the speaker identifier shown to models, e.g. "🤖[Claude]".
// Humans are marked with 👤, agents with 🤖, so a model can tell
// participants apart even though the wire only has two roles.
func (t Turn) Tag() string {
	return Tag(t.Kind, t.Speaker)
}

// Tagged renders the turn the way other participants see it:
// the speaker tag followed by the text.
func (t Turn) Tagged() string {
	return fmt.Sprintf("%s: %s", t.Tag(), t.Text)
}

// Tag builds the speaker identifier for the given kind and name.
func Tag(k role.Kind, speaker string) string {
	if k == role.Agent {
		return fmt.Sprintf("🤖[%s]", speaker)
	}
	return fmt.Sprintf("👤[%s]", speaker)
}

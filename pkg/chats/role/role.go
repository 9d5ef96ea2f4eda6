// Package role defines the speaker kinds used in relay conversations.
package role

// Kind identifies who authored a turn in a conversation.
type Kind string

const (
	Human Kind = "human"
	Agent Kind = "agent"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case Human, Agent:
		return true
	}
	return false
}

// String returns the underlying string value of the kind.
func (k Kind) String() string {
	return string(k)
}

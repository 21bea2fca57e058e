package aigc

// roles of a turn
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn of a conversation
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

type Messages []Message

// Append returns the history with one more turn, it never touches earlier turns
func (z Messages) Append(role, content string) Messages {
	return append(z, Message{Role: role, Content: content})
}

// Clone returns a copy which is safe to send while the original keeps growing
func (z Messages) Clone() Messages {
	if z == nil {
		return Messages{}
	}
	out := make(Messages, len(z))
	copy(out, z)
	return out
}

// Pair is a [user, assistant] exchange as kept by chat widgets
type Pair []string

// PairsToMessages converts widget history into turns, pairs whose length is not 2 are skipped
func PairsToMessages(pairs []Pair) Messages {
	out := make(Messages, 0, len(pairs)*2)
	for _, p := range pairs {
		if len(p) != 2 {
			continue
		}
		out = append(out,
			Message{Role: RoleUser, Content: p[0]},
			Message{Role: RoleAssistant, Content: p[1]},
		)
	}
	return out
}

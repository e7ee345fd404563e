package models

// Role names the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation, tagged with the speaker role.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is the caller-owned conversation log, oldest turn first.
type History []Turn

// Clone returns a copy that shares no backing array with h.
func (h History) Clone() History {
	if h == nil {
		return History{}
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// ChatRequest is the body accepted by POST /chat.
type ChatRequest struct {
	Message string  `json:"message"`
	History History `json:"history"`
	UserID  string  `json:"user_id"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response string  `json:"response"`
	History  History `json:"history"`
}

// PromptContext is the rendered window handed to the inference gateway.
// Turns holds the window followed by the new user turn.
type PromptContext struct {
	Text  string
	Turns []Turn
}

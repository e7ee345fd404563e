// Package history keeps the caller-owned conversation log bounded and
// renders the window sent to the model.
package history

import (
	"chatrelay/internal/models"
	"chatrelay/internal/prompt"
)

// Window returns a copy of the last k turns of h.
func Window(h models.History, k int) models.History {
	if k <= 0 || len(h) == 0 {
		return models.History{}
	}
	if k > len(h) {
		k = len(h)
	}
	return h[len(h)-k:].Clone()
}

// BuildContext renders the last windowSize turns plus the new message with f.
func BuildContext(h models.History, message string, windowSize int, f prompt.Formatter) models.PromptContext {
	window := Window(h, windowSize)
	turns := make([]models.Turn, 0, len(window)+1)
	turns = append(turns, window...)
	turns = append(turns, models.Turn{Role: models.RoleUser, Content: message})
	return models.PromptContext{
		Text:  f.Format(window, message),
		Turns: turns,
	}
}

// AppendAndTruncate appends the exchange and keeps the last retentionSize turns.
func AppendAndTruncate(h models.History, userMessage, assistantReply string, retentionSize int) models.History {
	next := make(models.History, 0, len(h)+2)
	next = append(next, h...)
	next = append(next,
		models.Turn{Role: models.RoleUser, Content: userMessage},
		models.Turn{Role: models.RoleAssistant, Content: assistantReply},
	)
	return Window(next, retentionSize)
}

package prompt

import (
	"strings"

	"chatrelay/internal/models"
)

var commonSpecialTokens = []string{"<|endoftext|>", "<|im_end|>", "<|im_start|>", "</s>", "<s>", "[INST]", "[/INST]"}

// dialogFormatter renders "<Label>: content" lines followed by an open
// assistant cue.
type dialogFormatter struct {
	name      string
	user      string
	assistant string
}

func (f *dialogFormatter) Name() string { return f.name }

// label renders every role other than user with the assistant label.
func (f *dialogFormatter) label(role models.Role) string {
	if role == models.RoleUser {
		return f.user
	}
	return f.assistant
}

func (f *dialogFormatter) Format(window []models.Turn, message string) string {
	var b strings.Builder
	for _, turn := range window {
		b.WriteString(f.label(turn.Role))
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	b.WriteString(f.user)
	b.WriteString(": ")
	b.WriteString(message)
	b.WriteString("\n")
	b.WriteString(f.assistant)
	b.WriteString(":")
	return b.String()
}

func (f *dialogFormatter) Clean(generated string) string {
	out := stripTokens(generated, commonSpecialTokens...)
	out = strings.TrimSpace(out)
	out = strings.TrimSpace(strings.TrimPrefix(out, f.assistant+":"))
	// the model may keep writing the dialogue on behalf of both sides
	out = cutAtAny(out, "\n"+f.user+":", "\n"+f.assistant+":")
	return strings.TrimSpace(out)
}

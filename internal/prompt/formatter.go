package prompt

import (
	"fmt"
	"strings"

	"chatrelay/internal/models"
)

// Formatter renders a prompt window for one model family and cleans the
// text that family generates.
type Formatter interface {
	Name() string
	Format(window []models.Turn, message string) string
	Clean(generated string) string
}

const (
	FamilyDialog   = "dialog"
	FamilyDialoGPT = "dialogpt"
	FamilyChatML   = "chatml"
	FamilyInstruct = "instruct"
	FamilyChat     = "chat"
)

// Options tunes the label based formatters.
type Options struct {
	UserLabel      string
	AssistantLabel string
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.UserLabel) == "" {
		o.UserLabel = "User"
	}
	if strings.TrimSpace(o.AssistantLabel) == "" {
		o.AssistantLabel = "Assistant"
	}
	return o
}

// New returns the formatter registered for family.
func New(family string, opts Options) (Formatter, error) {
	opts = opts.withDefaults()
	switch strings.ToLower(strings.TrimSpace(family)) {
	case "", FamilyDialog:
		return &dialogFormatter{name: FamilyDialog, user: opts.UserLabel, assistant: opts.AssistantLabel}, nil
	case FamilyChat:
		return &dialogFormatter{name: FamilyChat, user: opts.UserLabel, assistant: opts.AssistantLabel}, nil
	case FamilyDialoGPT:
		return dialoGPTFormatter{}, nil
	case FamilyChatML:
		return chatMLFormatter{}, nil
	case FamilyInstruct:
		return instructFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown prompt family: %s", family)
	}
}

// Families lists every supported family name.
func Families() []string {
	return []string{FamilyDialog, FamilyDialoGPT, FamilyChatML, FamilyInstruct, FamilyChat}
}

// stripTokens removes every occurrence of the given markers.
func stripTokens(s string, tokens ...string) string {
	for _, tok := range tokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return s
}

// cutAtAny truncates s at the earliest occurrence of any marker.
func cutAtAny(s string, markers ...string) string {
	cut := len(s)
	for _, m := range markers {
		if m == "" {
			continue
		}
		if idx := strings.Index(s, m); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	return s[:cut]
}

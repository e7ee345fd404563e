package prompt

import (
	"strings"

	"chatrelay/internal/models"
)

const eosToken = "<|endoftext|>"

// dialoGPTFormatter joins turns with the end-of-text token.
type dialoGPTFormatter struct{}

func (dialoGPTFormatter) Name() string { return FamilyDialoGPT }

func (dialoGPTFormatter) Format(window []models.Turn, message string) string {
	var b strings.Builder
	for _, turn := range window {
		b.WriteString(turn.Content)
		b.WriteString(eosToken)
	}
	b.WriteString(message)
	b.WriteString(eosToken)
	return b.String()
}

func (dialoGPTFormatter) Clean(generated string) string {
	out := strings.TrimSpace(generated)
	out = strings.TrimPrefix(out, eosToken)
	out = cutAtAny(out, eosToken)
	return strings.TrimSpace(out)
}

const (
	imStart = "<|im_start|>"
	imEnd   = "<|im_end|>"
)

// chatMLFormatter renders ChatML turn blocks.
type chatMLFormatter struct{}

func (chatMLFormatter) Name() string { return FamilyChatML }

func (chatMLFormatter) Format(window []models.Turn, message string) string {
	var b strings.Builder
	for _, turn := range window {
		writeChatMLTurn(&b, chatMLRole(turn.Role), turn.Content)
	}
	writeChatMLTurn(&b, string(models.RoleUser), message)
	b.WriteString(imStart)
	b.WriteString(string(models.RoleAssistant))
	b.WriteString("\n")
	return b.String()
}

func (chatMLFormatter) Clean(generated string) string {
	out := strings.TrimSpace(generated)
	out = strings.TrimPrefix(out, imStart+string(models.RoleAssistant))
	out = cutAtAny(out, imEnd, imStart)
	out = stripTokens(out, eosToken, "</s>")
	return strings.TrimSpace(out)
}

func chatMLRole(role models.Role) string {
	if role == models.RoleUser {
		return string(models.RoleUser)
	}
	return string(models.RoleAssistant)
}

func writeChatMLTurn(b *strings.Builder, role, content string) {
	b.WriteString(imStart)
	b.WriteString(role)
	b.WriteString("\n")
	b.WriteString(content)
	b.WriteString(imEnd)
	b.WriteString("\n")
}

// instructFormatter renders [INST] blocks used by Llama/Mistral instruct models.
type instructFormatter struct{}

func (instructFormatter) Name() string { return FamilyInstruct }

func (instructFormatter) Format(window []models.Turn, message string) string {
	var b strings.Builder
	open := false
	for _, turn := range window {
		if turn.Role != models.RoleUser {
			if open {
				b.WriteString(" [/INST]")
			} else {
				b.WriteString("<s>[INST]  [/INST]")
			}
			b.WriteString(" ")
			b.WriteString(turn.Content)
			b.WriteString("</s>")
			open = false
			continue
		}
		if open {
			// consecutive user turns share one instruction block
			b.WriteString("\n")
			b.WriteString(turn.Content)
			continue
		}
		b.WriteString("<s>[INST] ")
		b.WriteString(turn.Content)
		open = true
	}
	if open {
		b.WriteString("\n")
	} else {
		b.WriteString("<s>[INST] ")
	}
	b.WriteString(message)
	b.WriteString(" [/INST]")
	return b.String()
}

func (instructFormatter) Clean(generated string) string {
	out := strings.TrimSpace(generated)
	out = cutAtAny(out, "[INST]")
	out = stripTokens(out, "[/INST]", "</s>", "<s>", eosToken)
	return strings.TrimSpace(out)
}

package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
)

const DefaultClaudeModel = "claude-3-5-haiku-latest"

// newClaudeBackend targets the Anthropic messages API. Retries are disabled
// on the transport so the gateway still makes a single call.
func newClaudeBackend(ctx context.Context, cfg Config) (*chatModelBackend, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultClaudeModel
	}
	temperature := float32(cfg.Temperature)
	conf := &claude.Config{
		APIKey:      cfg.AuthToken,
		Model:       modelName,
		MaxTokens:   cfg.MaxNewTokens,
		Temperature: &temperature,
		HTTPClient:  recordingClient(cfg, true),
	}
	if cfg.Endpoint != "" {
		conf.BaseURL = &cfg.Endpoint
	}
	chatModel, err := claude.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("init claude model: %w", err)
	}
	return &chatModelBackend{chatModel: chatModel}, nil
}

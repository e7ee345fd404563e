package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

func newGeminiBackend(ctx context.Context, cfg Config) (*chatModelBackend, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.AuthToken,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  recordingClient(cfg, false),
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.Endpoint},
	})
	if err != nil {
		return nil, fmt.Errorf("init genai client: %w", err)
	}
	maxTokens := cfg.MaxNewTokens
	temperature := float32(cfg.Temperature)
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       modelName,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini model: %w", err)
	}
	return &chatModelBackend{chatModel: chatModel}, nil
}

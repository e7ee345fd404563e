package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"chatrelay/internal/models"
)

// chatModelBackend sends the prompt window as chat messages through an eino
// chat model. The model's HTTP client must route through recordingTransport.
type chatModelBackend struct {
	chatModel model.BaseChatModel
}

func recordingClient(cfg Config, noRetry bool) *http.Client {
	return &http.Client{
		Transport: &recordingTransport{base: cfg.HTTPClient.Transport, noRetry: noRetry},
		Timeout:   cfg.HTTPClient.Timeout,
	}
}

// newChatModelBackend targets an OpenAI-compatible chat completions endpoint.
func newChatModelBackend(ctx context.Context, cfg Config) (*chatModelBackend, error) {
	maxTokens := cfg.MaxNewTokens
	temperature := float32(cfg.Temperature)
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     cfg.Endpoint,
		Model:       cfg.Model,
		APIKey:      cfg.AuthToken,
		HTTPClient:  recordingClient(cfg, false),
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	return &chatModelBackend{chatModel: chatModel}, nil
}

func (b *chatModelBackend) Call(ctx context.Context, p models.PromptContext) (int, string, error) {
	rec := &statusRecorder{}
	resp, err := b.chatModel.Generate(withStatusRecorder(ctx, rec), convertTurns(p.Turns))
	status, transportErr := rec.result()
	if err != nil {
		return status, "", chatModelError(ctx, status, transportErr, err)
	}
	if status == 0 {
		status = http.StatusOK
	}
	if resp == nil {
		return status, "", ErrMalformedResponse
	}
	return status, resp.Content, nil
}

// chatModelError picks the error the gateway classifies. A failure after a
// 2xx response means the body could not be turned into a message.
func chatModelError(ctx context.Context, status int, transportErr, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case status != 0 && (status < 200 || status > 299):
		return nil
	case transportErr != nil:
		return transportErr
	case status != 0:
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	default:
		return err
	}
}

// convertTurns maps every non-user turn onto the assistant role.
func convertTurns(turns []models.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		role := schema.Assistant
		if turn.Role == models.RoleUser {
			role = schema.User
		}
		messages = append(messages, &schema.Message{
			Role:    role,
			Content: turn.Content,
		})
	}
	return messages
}

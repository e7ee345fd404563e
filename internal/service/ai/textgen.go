package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"chatrelay/internal/models"
)

const maxResponseBytes = 1 << 20

type textGenerationRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters textGenerationParams `json:"parameters"`
}

type textGenerationParams struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	DoSample       bool    `json:"do_sample"`
	ReturnFullText bool    `json:"return_full_text"`
}

type textGenerationResult struct {
	GeneratedText *string `json:"generated_text"`
}

// textGenerationBackend talks to a hosted text-generation inference API.
type textGenerationBackend struct {
	client       *http.Client
	endpoint     string
	token        string
	maxNewTokens int
	temperature  float64
}

func newTextGenerationBackend(cfg Config) *textGenerationBackend {
	return &textGenerationBackend{
		client:       cfg.HTTPClient,
		endpoint:     cfg.Endpoint,
		token:        cfg.AuthToken,
		maxNewTokens: cfg.MaxNewTokens,
		temperature:  cfg.Temperature,
	}
}

func (b *textGenerationBackend) Call(ctx context.Context, p models.PromptContext) (int, string, error) {
	payload, err := json.Marshal(textGenerationRequest{
		Inputs: p.Text,
		Parameters: textGenerationParams{
			MaxNewTokens:   b.maxNewTokens,
			Temperature:    b.temperature,
			DoSample:       true,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return 0, "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// the body is never surfaced to the caller
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return resp.StatusCode, "", nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}
	text, err := parseGenerated(body)
	return resp.StatusCode, text, err
}

// parseGenerated extracts generated_text from the first result of the list.
func parseGenerated(body []byte) (string, error) {
	var results []textGenerationResult
	if err := json.Unmarshal(body, &results); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(results) == 0 || results[0].GeneratedText == nil {
		return "", ErrMalformedResponse
	}
	return *results[0].GeneratedText, nil
}

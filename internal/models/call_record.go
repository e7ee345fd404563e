package models

import "time"

// CallRecord describes one outbound generation call. It carries no conversation content.
type CallRecord struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	ClientKey string    `json:"client_key"`
	Family    string    `json:"family"`
	Outcome   string    `json:"outcome"`
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	PromptLen int       `json:"prompt_len"`
	CreatedAt time.Time `json:"created_at"`
}

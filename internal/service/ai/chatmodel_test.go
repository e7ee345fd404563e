package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"chatrelay/internal/models"
	"chatrelay/internal/prompt"
)

func newChatGateway(t *testing.T, endpoint string) *Gateway {
	t.Helper()
	return newBackendGateway(t, BackendChatCompletions, endpoint, time.Second)
}

func newBackendGateway(t *testing.T, backend, endpoint string, timeout time.Duration) *Gateway {
	t.Helper()
	f, err := prompt.New(prompt.FamilyChat, prompt.Options{})
	if err != nil {
		t.Fatalf("formatter: %v", err)
	}
	model := "test-model"
	if backend != BackendChatCompletions {
		model = ""
	}
	gw, err := NewGateway(context.Background(), Config{
		Backend:   backend,
		Endpoint:  endpoint,
		Model:     model,
		AuthToken: "sk-test",
		Timeout:   timeout,
	}, f, nil)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw
}

func TestChatCompletionsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"test-model",` +
			`"choices":[{"index":0,"message":{"role":"assistant","content":" Hi there "},"finish_reason":"stop"}],` +
			`"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
	defer server.Close()

	res := newChatGateway(t, server.URL).Generate(context.Background(), helloRequest())
	if res.Outcome != OutcomeSucceeded || res.Text != "Hi there" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestChatCompletionsWarming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"loading","type":"server_error"}}`))
	}))
	defer server.Close()

	res := newChatGateway(t, server.URL).Generate(context.Background(), helloRequest())
	if res.Outcome != OutcomeWarming || res.Status != http.StatusServiceUnavailable {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestChatCompletionsMalformedBody(t *testing.T) {
	bodies := map[string]string{
		"not json":      "not json at all",
		"empty choices": `{"id":"1","object":"chat.completion","created":1,"model":"test-model","choices":[]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			res := newChatGateway(t, server.URL).Generate(context.Background(), helloRequest())
			if res.Outcome != OutcomeMalformed || res.Status != http.StatusOK {
				t.Fatalf("unexpected result %+v", res)
			}
			reply := DefaultReplies().Text(res)
			if !slices.Contains(DefaultReplies().Fallbacks, reply) {
				t.Fatalf("expected a fallback reply, got %q", reply)
			}
		})
	}
}

func TestHostedBackendsWarming(t *testing.T) {
	for _, backend := range []string{BackendClaude, BackendGemini} {
		t.Run(backend, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
			}))
			defer server.Close()

			res := newBackendGateway(t, backend, server.URL, 2*time.Second).Generate(context.Background(), helloRequest())
			if res.Outcome != OutcomeWarming || res.Status != http.StatusServiceUnavailable {
				t.Fatalf("unexpected result %+v", res)
			}
			if n := hits.Load(); n != 1 {
				t.Fatalf("expected exactly one upstream call, got %d", n)
			}
		})
	}
}

func TestHostedBackendsTimeout(t *testing.T) {
	for _, backend := range []string{BackendClaude, BackendGemini} {
		t.Run(backend, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(200 * time.Millisecond):
				}
			}))
			defer server.Close()

			res := newBackendGateway(t, backend, server.URL, 50*time.Millisecond).Generate(context.Background(), helloRequest())
			if res.Outcome != OutcomeTimeout {
				t.Fatalf("expected timeout, got %+v", res)
			}
		})
	}
}

func TestHostedBackendsNeedNoEndpoint(t *testing.T) {
	for _, backend := range []string{BackendClaude, BackendGemini} {
		cfg := Config{Backend: backend}.withDefaults()
		if cfg.Endpoint != "" {
			t.Fatalf("%s inherited endpoint %q", backend, cfg.Endpoint)
		}
	}
	if cfg := (Config{}).withDefaults(); cfg.Endpoint != DefaultEndpoint {
		t.Fatalf("text-generation lost its default endpoint: %q", cfg.Endpoint)
	}
}

func TestConvertTurnsMapsUnknownRolesToAssistant(t *testing.T) {
	msgs := convertTurns([]models.Turn{
		{Role: "system", Content: "be nice"},
		{Role: models.RoleUser, Content: "Hello"},
	})
	if msgs[0].Role != schema.Assistant || msgs[1].Role != schema.User {
		t.Fatalf("unexpected roles %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestChatCompletionsWithoutTokenIsUnconfigured(t *testing.T) {
	f, _ := prompt.New(prompt.FamilyChat, prompt.Options{})
	gw, err := NewGateway(context.Background(), Config{Backend: BackendChatCompletions}, f, nil)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if res := gw.Generate(context.Background(), helloRequest()); res.Outcome != OutcomeUnconfigured {
		t.Fatalf("expected unconfigured, got %s", res.Outcome)
	}
}

func TestClassify(t *testing.T) {
	if got := classify(200, nil); got != OutcomeSucceeded {
		t.Fatalf("200: %s", got)
	}
	if got := classify(0, nil); got != OutcomeUnexpected {
		t.Fatalf("0: %s", got)
	}
	if got := classify(200, context.DeadlineExceeded); got != OutcomeTimeout {
		t.Fatalf("deadline: %s", got)
	}
	if got := classify(0, context.Canceled); got != OutcomeUnexpected {
		t.Fatalf("canceled: %s", got)
	}
	if got := classify(200, ErrMalformedResponse); got != OutcomeMalformed {
		t.Fatalf("malformed: %s", got)
	}
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatrelay/internal/models"
	"chatrelay/internal/prompt"
)

const (
	BackendTextGeneration  = "text-generation"
	BackendChatCompletions = "chat-completions"
	BackendClaude          = "claude"
	BackendGemini          = "gemini"

	DefaultEndpoint     = "https://api-inference.huggingface.co/models/microsoft/DialoGPT-medium"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxNewTokens = 128
	DefaultTemperature  = 0.8

	logPromptLimit = 120
)

// ErrMalformedResponse is returned by backends when a 2xx body carries no usable text.
var ErrMalformedResponse = errors.New("malformed upstream response")

// Config is everything the gateway needs to reach the generation service.
type Config struct {
	Backend      string
	Endpoint     string
	Model        string
	AuthToken    string
	MaxNewTokens int
	Temperature  float64
	Timeout      time.Duration
	// HTTPClient overrides the client used for outbound calls.
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendTextGeneration
	}
	c.Backend = strings.ToLower(c.Backend)
	if c.Endpoint == "" && c.Backend == BackendTextGeneration {
		c.Endpoint = DefaultEndpoint
	}
	if c.MaxNewTokens <= 0 {
		c.MaxNewTokens = DefaultMaxNewTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return c
}

// Backend performs exactly one outbound call. It returns the upstream HTTP
// status when one was received and the raw generated text on success.
type Backend interface {
	Call(ctx context.Context, p models.PromptContext) (status int, text string, err error)
}

// Request is one generation call.
type Request struct {
	ID     string
	Prompt models.PromptContext
}

// Gateway turns a prompt into a single reply and never fails the caller.
type Gateway struct {
	cfg       Config
	backend   Backend
	formatter prompt.Formatter
	logger    *zap.Logger
}

// NewGateway builds a gateway with the backend selected by cfg.Backend.
func NewGateway(ctx context.Context, cfg Config, formatter prompt.Formatter, logger *zap.Logger) (*Gateway, error) {
	cfg = cfg.withDefaults()
	var newChat func(context.Context, Config) (*chatModelBackend, error)
	switch cfg.Backend {
	case BackendTextGeneration:
		return NewGatewayWithBackend(cfg, newTextGenerationBackend(cfg), formatter, logger), nil
	case BackendChatCompletions:
		newChat = newChatModelBackend
	case BackendClaude:
		newChat = newClaudeBackend
	case BackendGemini:
		newChat = newGeminiBackend
	default:
		return nil, fmt.Errorf("invalid backend: %s", cfg.Backend)
	}
	// chat backends are never called without a token
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return NewGatewayWithBackend(cfg, nil, formatter, logger), nil
	}
	cm, err := newChat(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewGatewayWithBackend(cfg, cm, formatter, logger), nil
}

// NewGatewayWithBackend wires an explicit backend, mostly for tests.
func NewGatewayWithBackend(cfg Config, backend Backend, formatter prompt.Formatter, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cfg:       cfg.withDefaults(),
		backend:   backend,
		formatter: formatter,
		logger:    logger.Named("gateway"),
	}
}

// Configured reports whether an auth token is present.
func (g *Gateway) Configured() bool {
	return strings.TrimSpace(g.cfg.AuthToken) != ""
}

// Describe names the backend and formatter family, for status payloads.
func (g *Gateway) Describe() string {
	return fmt.Sprintf("%s/%s", g.cfg.Backend, g.formatter.Name())
}

// Generate performs at most one outbound call and classifies its outcome.
func (g *Gateway) Generate(ctx context.Context, req Request) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("generation panicked", zap.String("request_id", req.ID), zap.Any("panic", r))
			res = Result{Outcome: OutcomeUnexpected}
		}
		res.Latency = time.Since(start)
		g.logCall(req, res)
	}()

	if !g.Configured() || g.backend == nil {
		return Result{Outcome: OutcomeUnconfigured}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	status, text, err := g.backend.Call(callCtx, req.Prompt)
	res = Result{Status: status, Outcome: classify(status, err)}
	if err != nil && res.Outcome != OutcomeMalformed {
		g.logger.Debug("generation call failed", zap.String("request_id", req.ID), zap.Error(err))
	}
	if res.Outcome == OutcomeSucceeded {
		res.Text = g.formatter.Clean(text)
		if res.Text == "" {
			res.Outcome = OutcomeMalformed
		}
	}
	return res
}

func (g *Gateway) logCall(req Request, res Result) {
	fields := []zap.Field{
		zap.String("request_id", req.ID),
		zap.String("prompt", truncate(req.Prompt.Text, logPromptLimit)),
		zap.Int("status", res.Status),
		zap.String("outcome", res.Outcome.String()),
		zap.Duration("latency", res.Latency),
	}
	if res.Outcome == OutcomeSucceeded || res.Outcome == OutcomeUnconfigured {
		g.logger.Info("generation call", fields...)
		return
	}
	g.logger.Warn("generation call", fields...)
}

// classify maps an upstream status and transport error onto an outcome.
func classify(status int, err error) Outcome {
	if status != 0 && (status < 200 || status > 299) {
		switch status {
		case http.StatusServiceUnavailable:
			return OutcomeWarming
		case http.StatusTooManyRequests:
			return OutcomeRateLimited
		default:
			return OutcomeUpstreamError
		}
	}
	if err != nil {
		return classifyError(err)
	}
	if status == 0 {
		return OutcomeUnexpected
	}
	return OutcomeSucceeded
}

func classifyError(err error) Outcome {
	if errors.Is(err, ErrMalformedResponse) {
		return OutcomeMalformed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return OutcomeUnexpected
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return OutcomeConnectionFailure
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return OutcomeConnectionFailure
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return OutcomeConnectionFailure
	}
	return OutcomeUnexpected
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

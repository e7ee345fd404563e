// Package chat runs one relay exchange: window the history, call the model,
// map the outcome to a reply and hand back the bounded history.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatrelay/internal/history"
	"chatrelay/internal/models"
	"chatrelay/internal/prompt"
	"chatrelay/internal/service/ai"
	"chatrelay/internal/worker"
)

// DefaultClientKey is used for requests without a user id.
const DefaultClientKey = "guest"

// Generator performs one classified generation call.
type Generator interface {
	Generate(ctx context.Context, req ai.Request) ai.Result
	Configured() bool
	Describe() string
}

// CallRecorder accounts for finished calls.
type CallRecorder interface {
	Record(ctx context.Context, rec models.CallRecord)
}

// Options holds the windowing sizes and reply texts.
type Options struct {
	ContextWindow int
	RetentionSize int
	Replies       ai.Replies
}

// Service composes history windowing, the gateway, the dispatcher and the recorder.
type Service struct {
	gateway    Generator
	formatter  prompt.Formatter
	dispatcher *worker.Dispatcher
	recorder   CallRecorder
	opts       Options
	logger     *zap.Logger
}

// NewService wires the pipeline. dispatcher and recorder may be nil.
func NewService(gateway Generator, formatter prompt.Formatter, dispatcher *worker.Dispatcher, recorder CallRecorder, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Replies = opts.Replies.Merge(ai.DefaultReplies())
	return &Service{
		gateway:    gateway,
		formatter:  formatter,
		dispatcher: dispatcher,
		recorder:   recorder,
		opts:       opts,
		logger:     logger.Named("chat"),
	}
}

// Configured reports whether the gateway holds an auth token.
func (s *Service) Configured() bool {
	return s.gateway.Configured()
}

// Describe names the backend and prompt family in use.
func (s *Service) Describe() string {
	return s.gateway.Describe()
}

// WorkerStats reports running and idle pool workers, zero without a dispatcher.
func (s *Service) WorkerStats() (running, idle int) {
	if s.dispatcher == nil {
		return 0, 0
	}
	return s.dispatcher.Stats()
}

// Replies exposes the reply texts, e.g. for the panic path of the HTTP layer.
func (s *Service) Replies() ai.Replies {
	return s.opts.Replies
}

// Chat runs one exchange. It always returns a reply and the updated history.
func (s *Service) Chat(ctx context.Context, requestID string, req models.ChatRequest) (models.ChatResponse, ai.Result) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	clientKey := strings.TrimSpace(req.UserID)
	if clientKey == "" {
		clientKey = DefaultClientKey
	}

	pc := history.BuildContext(req.History, req.Message, s.opts.ContextWindow, s.formatter)
	res := s.generate(ctx, clientKey, ai.Request{ID: requestID, Prompt: pc})
	reply := s.opts.Replies.Text(res)

	if s.recorder != nil {
		s.recorder.Record(ctx, models.CallRecord{
			RequestID: requestID,
			ClientKey: clientKey,
			Family:    s.formatter.Name(),
			Outcome:   res.Outcome.String(),
			Status:    res.Status,
			LatencyMS: res.Latency.Milliseconds(),
			PromptLen: len([]rune(pc.Text)),
		})
	}

	return models.ChatResponse{
		Response: reply,
		History:  history.AppendAndTruncate(req.History, req.Message, reply, s.opts.RetentionSize),
	}, res
}

func (s *Service) generate(ctx context.Context, clientKey string, req ai.Request) ai.Result {
	if s.dispatcher == nil {
		return s.gateway.Generate(ctx, req)
	}
	res, err := worker.Do(ctx, s.dispatcher, clientKey, func(ctx context.Context) ai.Result {
		return s.gateway.Generate(ctx, req)
	})
	switch {
	case err == nil:
		return res
	case errors.Is(err, worker.ErrDispatcherBusy):
		s.logger.Warn("dispatcher busy", zap.String("request_id", req.ID), zap.String("client", clientKey))
		return ai.Result{Outcome: ai.OutcomeBusy}
	default:
		s.logger.Warn("generation job aborted", zap.String("request_id", req.ID), zap.Error(err))
		return ai.Result{Outcome: ai.OutcomeUnexpected}
	}
}

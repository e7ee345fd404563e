package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatrelay/internal/models"
)

const (
	countersKey  = "outcomes"
	storeTimeout = 2 * time.Second
	queueSize    = 256
)

// CounterStore keeps outcome counters shared between instances.
type CounterStore interface {
	IncrField(ctx context.Context, key, field string, delta int64) error
	Counters(ctx context.Context, key string) (map[string]int64, error)
}

// CallStore persists call records.
type CallStore interface {
	InsertCall(ctx context.Context, rec models.CallRecord) (int64, error)
	DeleteCallsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountCallsByOutcome(ctx context.Context) (map[string]int64, error)
}

// Recorder accounts for every generation call. Local counters are updated
// inline; store writes happen on a background goroutine and failures are
// logged and swallowed.
type Recorder struct {
	counters CounterStore
	calls    CallStore
	logger   *zap.Logger

	queue chan models.CallRecord
	done  chan struct{}

	mu     sync.Mutex
	local  map[string]int64
	closed bool
}

// NewRecorder builds a recorder. counters and calls are optional. Call Close
// to flush queued records.
func NewRecorder(counters CounterStore, calls CallStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		counters: counters,
		calls:    calls,
		logger:   logger.Named("audit"),
		local:    make(map[string]int64),
	}
	if counters != nil || calls != nil {
		r.queue = make(chan models.CallRecord, queueSize)
		r.done = make(chan struct{})
		go r.drain()
	}
	return r
}

// Record counts rec locally and queues it for the configured stores. It never
// waits on a store; when the queue is full the record is dropped.
func (r *Recorder) Record(_ context.Context, rec models.CallRecord) {
	if r == nil {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[rec.Outcome]++
	if r.queue == nil || r.closed {
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("audit queue full, dropping call record", zap.String("request_id", rec.RequestID))
	}
}

// Close stops accepting store writes and waits for queued ones to finish.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.queue == nil || r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) drain() {
	defer close(r.done)
	for rec := range r.queue {
		r.store(rec)
	}
}

func (r *Recorder) store(rec models.CallRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if r.counters != nil {
		if err := r.counters.IncrField(ctx, countersKey, rec.Outcome, 1); err != nil {
			r.logger.Warn("increment shared counter failed", zap.String("request_id", rec.RequestID), zap.Error(err))
		}
	}
	if r.calls != nil {
		if _, err := r.calls.InsertCall(ctx, rec); err != nil {
			r.logger.Warn("store call record failed", zap.String("request_id", rec.RequestID), zap.Error(err))
		}
	}
}

// LocalCounts returns a copy of this instance's outcome counters.
func (r *Recorder) LocalCounts() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.local))
	for k, v := range r.local {
		out[k] = v
	}
	return out
}

// Counts prefers the shared counters, then the call log, then this instance's own counters.
func (r *Recorder) Counts(ctx context.Context) map[string]int64 {
	if r.counters != nil {
		shared, err := r.counters.Counters(ctx, countersKey)
		if err == nil {
			return shared
		}
		r.logger.Warn("read shared counters failed", zap.Error(err))
	}
	if r.calls != nil {
		stored, err := r.calls.CountCallsByOutcome(ctx)
		if err == nil {
			return stored
		}
		r.logger.Warn("count stored calls failed", zap.Error(err))
	}
	return r.LocalCounts()
}

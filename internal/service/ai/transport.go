package ai

import (
	"context"
	"net/http"
	"sync"
)

type statusRecorderKey struct{}

// statusRecorder captures what the transport saw for one call.
type statusRecorder struct {
	mu     sync.Mutex
	status int
	err    error
}

func (r *statusRecorder) record(resp *http.Response, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if resp != nil {
		r.status = resp.StatusCode
	}
	r.err = err
}

func (r *statusRecorder) result() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.err
}

func withStatusRecorder(ctx context.Context, rec *statusRecorder) context.Context {
	return context.WithValue(ctx, statusRecorderKey{}, rec)
}

// recordingTransport reports status codes to the recorder found in the request context.
// noRetry marks every response as final for clients that honour X-Should-Retry.
type recordingTransport struct {
	base    http.RoundTripper
	noRetry bool
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if rec, ok := req.Context().Value(statusRecorderKey{}).(*statusRecorder); ok {
		rec.record(resp, err)
	}
	if t.noRetry && resp != nil {
		resp.Header.Set("X-Should-Retry", "false")
	}
	return resp, err
}

package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultRetention     = 72 * time.Hour
	DefaultPruneInterval = 30 * time.Minute
)

// StartPruner deletes call records older than retention every interval until ctx is done.
func (r *Recorder) StartPruner(ctx context.Context, retention, interval time.Duration) {
	if r == nil || r.calls == nil {
		return
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	go r.pruneLoop(ctx, retention, interval)
}

func (r *Recorder) pruneLoop(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pruneOnce(ctx, retention)
		}
	}
}

func (r *Recorder) pruneOnce(ctx context.Context, retention time.Duration) {
	removed, err := r.calls.DeleteCallsBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		r.logger.Warn("prune call records failed", zap.Error(err))
		return
	}
	if removed > 0 {
		r.logger.Info("pruned call records", zap.Int64("removed", removed))
	}
}

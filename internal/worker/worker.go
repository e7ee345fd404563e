package worker

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

type JobType int

const (
	Run JobType = iota
	Stop
)

func (t JobType) String() string {
	switch t {
	case Run:
		return "run"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("job(%d)", int(t))
	}
}

// Job is a unit of work queued for a client.
type Job struct {
	Type      JobType
	ClientKey string
	Fn        func()
}

type Worker struct {
	id         int64
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(id int64, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

// Start announces the worker as idle and serves jobs until told to stop.
func (w *Worker) Start() {
	go func() {
		defer w.pool.retire(w.jobChannel)
		w.pool.Release(w.jobChannel)
		for job := range w.jobChannel {
			if job.Type == Stop {
				w.pool.debug("worker stopped", zap.Int64("worker", w.id))
				return
			}
			w.run(job)
			w.pool.Release(w.jobChannel)
		}
	}()
}

func (w *Worker) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error("job panicked",
				zap.Int64("worker", w.id),
				zap.String("client", job.ClientKey),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	if job.Fn != nil {
		job.Fn()
	}
}

package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDispatcherBusy is returned when the job queue is full.
var ErrDispatcherBusy = errors.New("dispatcher busy")

// ErrJobFailed is returned by Do when the job ended without a result.
var ErrJobFailed = errors.New("job failed")

type clientQueue struct {
	jobs     []Job
	enqueued bool
}

// Config sizes the worker pool and the dispatcher queue.
type Config struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration

	// Logger receives panics from jobs. Nil discards them.
	Logger *zap.Logger

	// Debug logs worker lifecycle and job assignment.
	Debug bool
}

type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher

	mu        sync.Mutex
	queues    map[string]*clientQueue // job queue for each client
	ready     *list.List              // round-robin queue storing client keys
	positions map[string]*list.Element
	quit      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	pool := newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout, cfg.Logger.Named("worker"), cfg.Debug)

	d := &Dispatcher{
		queues:    make(map[string]*clientQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		pool:      pool,
		JobQueue:  make(chan Job, cfg.QueueSize),
		quit:      make(chan struct{}),
	}

	// Warm up workers.
	for i := 0; i < pool.min; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of the client in the front of the ready queue
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue: // force congestion
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		// if we have a new job, enqueue it and its client
		select {
		case job := <-d.JobQueue: // non-congestion
			d.enqueueJob(job)
		case <-d.quit:
			return
		default:
		}
	}
}

// Submit queues a job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case <-d.quit:
		return ErrDispatcherBusy
	default:
	}
	select {
	case d.JobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Stats reports running and idle workers.
func (d *Dispatcher) Stats() (running, idle int) {
	return d.pool.Stats()
}

// Close stops dispatching and retires idle workers.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.quit)
		d.pool.close()
	})
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.ClientKey]
	if q == nil {
		q = &clientQueue{}
		d.queues[job.ClientKey] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		// client already enqueued, skip
		return
	}
	// new client, enqueue
	q.enqueued = true
	d.positions[job.ClientKey] = d.ready.PushBack(job.ClientKey)
}

// dispatchOne get first client in the ready queue and dispatch its job
func (d *Dispatcher) dispatchOne() bool {
	job, ok := d.nextJob()
	if !ok {
		return false
	}
	workerChan := d.pool.acquire()
	if d.pool.verbose {
		d.pool.debug("assign job",
			zap.Stringer("type", job.Type),
			zap.String("client", job.ClientKey),
			zap.Int64("worker", d.pool.workerID(workerChan)),
		)
	}
	workerChan <- job
	return true
}

// nextJob pops the head job of the first ready client and rotates the client to the back.
func (d *Dispatcher) nextJob() (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	elem := d.ready.Front()
	if elem == nil {
		return Job{}, false
	}
	clientKey := elem.Value.(string)
	q := d.queues[clientKey]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		// client only had one job, it'll be handled, client leaves the queue
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, clientKey)
		delete(d.queues, clientKey)
	} else {
		// get to the back of queue
		d.ready.MoveToBack(elem)
	}
	return job, true
}

// Do runs fn on a pool worker and waits for its result. A job whose context
// is already done when a worker picks it up is skipped.
func Do[T any](ctx context.Context, d *Dispatcher, clientKey string, fn func(context.Context) T) (T, error) {
	var zero T
	resultCh := make(chan T, 1)
	done := make(chan struct{})
	job := Job{
		Type:      Run,
		ClientKey: clientKey,
		Fn: func() {
			defer close(done)
			if ctx.Err() != nil {
				return
			}
			resultCh <- fn(ctx)
		},
	}
	if err := d.Submit(job); err != nil {
		return zero, err
	}
	select {
	case res := <-resultCh:
		return res, nil
	case <-done:
		select {
		case res := <-resultCh:
			return res, nil
		default:
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, ErrJobFailed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

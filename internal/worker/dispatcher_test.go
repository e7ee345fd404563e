package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestDispatcher(t *testing.T, cfg Config) *Dispatcher {
	t.Helper()
	d := NewDispatcher(cfg)
	t.Cleanup(d.Close)
	return d
}

func TestDoReturnsResult(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})
	got, err := Do(context.Background(), d, "guest", func(context.Context) string { return "hi" })
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "hi" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestDoBoundsConcurrency(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 0, MaxWorkers: 2, QueueSize: 16})
	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Do(context.Background(), d, "client", func(context.Context) int {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return 0
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, saw %d", p)
	}
	if running, _ := d.Stats(); running > 2 {
		t.Fatalf("expected at most 2 workers, got %d", running)
	}
}

func TestSubmitReportsBusy(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	if err := d.Submit(Job{Type: Run, ClientKey: "a", Fn: func() {
		close(started)
		<-block
	}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	busy := false
	for i := 0; i < 10; i++ {
		if err := d.Submit(Job{Type: Run, ClientKey: "b", Fn: func() {}}); errors.Is(err, ErrDispatcherBusy) {
			busy = true
			break
		}
	}
	if !busy {
		t.Fatalf("expected ErrDispatcherBusy once the queue is full")
	}
}

func TestDoSkipsCancelledJob(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran int32
	_, err := Do(ctx, d, "a", func(context.Context) int {
		atomic.StoreInt32(&ran, 1)
		return 1
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// give the worker a chance to pick the job up
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatalf("cancelled job should not run")
	}
}

func TestDoReportsPanickedJob(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4})
	_, err := Do(context.Background(), d, "a", func(context.Context) int { panic("boom") })
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	// the worker survives the panic
	got, err := Do(context.Background(), d, "a", func(context.Context) int { return 7 })
	if err != nil || got != 7 {
		t.Fatalf("expected worker to keep serving, got %d, %v", got, err)
	}
}

func TestPanickedJobIsLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4, Logger: zap.New(core), Debug: true})
	if _, err := Do(context.Background(), d, "alice", func(context.Context) int { panic("boom") }); !errors.Is(err, ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for logs.FilterMessage("job panicked").Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	entries := logs.FilterMessage("job panicked").All()
	if len(entries) != 1 {
		t.Fatalf("expected one panic entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["client"]; got != "alice" {
		t.Fatalf("unexpected client field %v", got)
	}
	if entries[0].LoggerName != "worker" {
		t.Fatalf("unexpected logger name %q", entries[0].LoggerName)
	}
	if logs.FilterMessage("worker started").Len() == 0 {
		t.Fatalf("expected lifecycle entries with Debug set")
	}
}

func TestLifecycleQuietWithoutDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4, Logger: zap.New(core)})
	if _, err := Do(context.Background(), d, "a", func(context.Context) int { return 1 }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if n := logs.Len(); n != 0 {
		t.Fatalf("expected no log entries, got %d", n)
	}
}

func TestNextJobRoundRobin(t *testing.T) {
	d := &Dispatcher{
		queues:    make(map[string]*clientQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}
	for _, key := range []string{"a", "a", "a", "b", "c"} {
		d.enqueueJob(Job{Type: Run, ClientKey: key})
	}
	var order []string
	for {
		job, ok := d.nextJob()
		if !ok {
			break
		}
		order = append(order, job.ClientKey)
	}
	want := []string{"a", "b", "c", "a", "a"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", order, want)
		}
	}
}

func TestIdleWorkersExpire(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 0, MaxWorkers: 2, QueueSize: 4, WorkerIdleTimeout: 20 * time.Millisecond})
	if _, err := Do(context.Background(), d, "a", func(context.Context) int { return 1 }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if running, _ := d.Stats(); running == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	running, _ := d.Stats()
	t.Fatalf("expected idle worker to be retired, %d still running", running)
}

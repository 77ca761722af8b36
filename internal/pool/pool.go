// Package pool provides the bounded worker pool the space uses to deliver
// events off the write path.
package pool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default sizing used when New is given non-positive values.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 1024
)

// Pool runs submitted tasks on a fixed set of goroutines fed by a bounded queue.
// Submit never blocks: a full queue rejects the task.
type Pool struct {
	workers   int
	queueSize int

	tasks   chan func(context.Context)
	wg      sync.WaitGroup
	metrics *poolMetrics

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	panicked  atomic.Int64
	dropped   atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithRegisterer exports pool metrics to reg using prefix as the metric name
// prefix, e.g. "tuplespace_events".
func WithRegisterer(reg prometheus.Registerer, prefix string) Option {
	return func(p *Pool) {
		if reg == nil || prefix == "" {
			return
		}
		p.metrics = newPoolMetrics(reg, prefix)
	}
}

// New creates a pool. Call Start before submitting.
func New(workers, queueSize int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	p := &Pool{
		workers:   workers,
		queueSize: queueSize,
		tasks:     make(chan func(context.Context), queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Tasks receive ctx; cancelling it stops the workers
// without draining the queue.
func (p *Pool) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.started = true
	return nil
}

// Submit queues task for execution.
func (p *Pool) Submit(task func(context.Context)) error {
	if task == nil {
		return fmt.Errorf("nil task")
	}

	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrNotStarted
	}
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.tasks <- task:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(len(p.tasks)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Stop closes the queue and waits up to timeout for queued tasks to finish.
func (p *Pool) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.tasks)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats is a point-in-time view of pool activity.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Panicked   int64 `json:"panicked"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.tasks),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Panicked:   p.panicked.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(ctx, task)
		}
	}
}

func (p *Pool) run(ctx context.Context, task func(context.Context)) {
	start := time.Now()
	status := "success"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			p.panicked.Add(1)
			log.Printf("[Pool] Recovered from task panic: %v", r)
		}
		p.processed.Add(1)
		if p.metrics != nil {
			p.metrics.processed.Inc()
			p.metrics.queueDepth.Set(float64(len(p.tasks)))
			p.metrics.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		}
	}()
	task(ctx)
}

// Package dispatch moves record batches from the caller into a backend
// without stalling the producer: each sink owns one bounded worker pool and
// one bounded work queue, and a full queue rejects rather than blocks.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"logship/internal/metrics"
	"logship/internal/sinkerr"

	"github.com/sirupsen/logrus"
)

const (
	// MaxWorkers is the hard ceiling on a sink's worker pool. A configured
	// count above this is clamped, not rejected.
	MaxWorkers = 500

	// DefaultQueueSize bounds the work queue when no capacity is configured.
	DefaultQueueSize = 10000

	defaultWorkers = 4
)

// ErrQueueFull is returned by Submit when the work queue is at capacity. The
// unit of work is dropped and reported; the submitter is never blocked.
var ErrQueueFull = errors.New("dispatch: work queue full")

// ErrNotRunning is returned by Submit outside the Started window.
var ErrNotRunning = errors.New("dispatch: engine not running")

// Task is one unit of backend work, typically a single batch send attempt.
type Task struct {
	Records int
	Run     func(ctx context.Context) error
}

// Engine is a per-sink bounded worker pool. Worker failures are classified
// and logged at the pool boundary and never propagate: the engine keeps
// draining subsequent tasks. The engine performs no retries of its own;
// retry, where any exists, belongs to the backend SDK.
type Engine struct {
	name    string
	workers int
	queue   chan Task
	logger  *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	submitted int64
	rejected  int64
	completed int64
	failed    int64
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Rejected  int64 `json:"rejected"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Queued    int   `json:"queued"`
	Capacity  int   `json:"capacity"`
	Workers   int   `json:"workers"`
}

// NewEngine builds an engine for the named sink, clamping the worker count to
// MaxWorkers and applying queue defaults.
func NewEngine(name string, workers, queueSize int, logger *logrus.Logger) *Engine {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > MaxWorkers {
		logger.WithFields(logrus.Fields{
			"sink":       name,
			"configured": workers,
			"max":        MaxWorkers,
		}).Warn("Worker count too large, clamping")
		workers = MaxWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Engine{
		name:    name,
		workers: workers,
		queue:   make(chan Task, queueSize),
		logger:  logger,
	}
}

// Start launches the worker pool. Starting a running engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	e.running = true
	e.logger.WithFields(logrus.Fields{
		"sink":       e.name,
		"workers":    e.workers,
		"queue_size": cap(e.queue),
	}).Info("Dispatch engine started")
}

// Submit enqueues a task without blocking. A full queue returns ErrQueueFull
// after counting and logging the drop; the caller treats that as a
// recoverable condition, not a failure to surface upstream.
func (e *Engine) Submit(t Task) error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	select {
	case e.queue <- t:
		atomic.AddInt64(&e.submitted, 1)
		metrics.SinkQueueUtilization.WithLabelValues(e.name).Set(float64(len(e.queue)) / float64(cap(e.queue)))
		return nil
	default:
		atomic.AddInt64(&e.rejected, 1)
		metrics.RecordsDroppedTotal.WithLabelValues(e.name, "queue_full").Add(float64(t.Records))
		e.logger.WithFields(logrus.Fields{
			"sink":    e.name,
			"records": t.Records,
		}).Warn("Work queue full, dropping batch")
		return ErrQueueFull
	}
}

// Stop releases the worker pool. Queued tasks that have not started may be
// abandoned; in-flight tasks observe context cancellation. Stop is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.WithFields(logrus.Fields{
		"sink":      e.name,
		"completed": atomic.LoadInt64(&e.completed),
		"failed":    atomic.LoadInt64(&e.failed),
		"rejected":  atomic.LoadInt64(&e.rejected),
	}).Info("Dispatch engine stopped")
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Submitted: atomic.LoadInt64(&e.submitted),
		Rejected:  atomic.LoadInt64(&e.rejected),
		Completed: atomic.LoadInt64(&e.completed),
		Failed:    atomic.LoadInt64(&e.failed),
		Queued:    len(e.queue),
		Capacity:  cap(e.queue),
		Workers:   e.workers,
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case t := <-e.queue:
			e.execute(t)
		}
	}
}

func (e *Engine) execute(t Task) {
	err := t.Run(e.ctx)
	metrics.SinkQueueUtilization.WithLabelValues(e.name).Set(float64(len(e.queue)) / float64(cap(e.queue)))
	if err == nil {
		atomic.AddInt64(&e.completed, 1)
		return
	}
	atomic.AddInt64(&e.failed, 1)
	kind := sinkerr.KindOf(err)
	metrics.RecordsDroppedTotal.WithLabelValues(e.name, string(kind)).Add(float64(t.Records))
	e.logger.WithError(err).WithFields(logrus.Fields{
		"sink":    e.name,
		"kind":    string(kind),
		"records": t.Records,
	}).Error("Backend send failed, batch dropped")
}

package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"logship/pkg/types"

	"github.com/sirupsen/logrus"
)

// Batcher accumulates individual records into batches and hands each batch to
// a flush callback when either the size threshold or the linger interval is
// reached. Like the engine, it rejects on a full intake queue instead of
// blocking the producer.
type Batcher struct {
	size   int
	linger time.Duration
	in     chan types.AccessRecord
	flush  func(types.Batch)
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	accepted int64
	dropped  int64
}

// NewBatcher builds a batcher flushing through fn.
func NewBatcher(cfg types.BatchConfig, fn func(types.Batch), logger *logrus.Logger) *Batcher {
	size := cfg.Size
	if size <= 0 {
		size = 100
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Batcher{
		size:   size,
		linger: cfg.LingerDuration(),
		in:     make(chan types.AccessRecord, queueSize),
		flush:  fn,
		logger: logger,
	}
}

// Start launches the flush loop.
func (b *Batcher) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.wg.Add(1)
	go b.loop()
	b.running = true
}

// Add enqueues one record without blocking. A full intake queue drops the
// record and reports false.
func (b *Batcher) Add(rec types.AccessRecord) bool {
	select {
	case b.in <- rec:
		atomic.AddInt64(&b.accepted, 1)
		return true
	default:
		atomic.AddInt64(&b.dropped, 1)
		return false
	}
}

// Dropped returns the number of records rejected at the intake queue.
func (b *Batcher) Dropped() int64 {
	return atomic.LoadInt64(&b.dropped)
}

// Stop drains the intake queue, flushes the final partial batch and stops the
// loop. Idempotent.
func (b *Batcher) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.cancel()
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Batcher) loop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.linger)
	defer ticker.Stop()

	batch := make(types.Batch, 0, b.size)
	emit := func() {
		if len(batch) == 0 {
			return
		}
		b.flush(batch)
		batch = make(types.Batch, 0, b.size)
	}

	for {
		select {
		case <-b.ctx.Done():
			// Drain whatever is already queued, then flush the remainder.
			for {
				select {
				case rec := <-b.in:
					batch = append(batch, rec)
					if len(batch) >= b.size {
						emit()
					}
				default:
					emit()
					return
				}
			}
		case rec := <-b.in:
			batch = append(batch, rec)
			if len(batch) >= b.size {
				emit()
				ticker.Reset(b.linger)
			}
		case <-ticker.C:
			emit()
		}
	}
}

package dispatch

import (
	"sync"
	"testing"
	"time"

	"logship/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchCollector struct {
	mu      sync.Mutex
	batches []types.Batch
}

func (c *batchCollector) collect(batch types.Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batch)
}

func (c *batchCollector) snapshot() []types.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Batch, len(c.batches))
	copy(out, c.batches)
	return out
}

func (c *batchCollector) records() int {
	total := 0
	for _, b := range c.snapshot() {
		total += len(b)
	}
	return total
}

func TestBatcherFlushesOnSize(t *testing.T) {
	collector := &batchCollector{}
	b := NewBatcher(types.BatchConfig{Size: 3, Linger: "1h", QueueSize: 100}, collector.collect, testLogger())
	b.Start()
	defer b.Stop()

	for i := 0; i < 3; i++ {
		require.True(t, b.Add(types.AccessRecord{Path: "/x"}))
	}

	assert.Eventually(t, func() bool {
		return collector.records() == 3
	}, 2*time.Second, 10*time.Millisecond)

	batches := collector.snapshot()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
}

func TestBatcherFlushesOnLinger(t *testing.T) {
	collector := &batchCollector{}
	b := NewBatcher(types.BatchConfig{Size: 1000, Linger: "50ms", QueueSize: 100}, collector.collect, testLogger())
	b.Start()
	defer b.Stop()

	require.True(t, b.Add(types.AccessRecord{Path: "/x"}))

	assert.Eventually(t, func() bool {
		return collector.records() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBatcherStopFlushesRemainder(t *testing.T) {
	collector := &batchCollector{}
	b := NewBatcher(types.BatchConfig{Size: 1000, Linger: "1h", QueueSize: 100}, collector.collect, testLogger())
	b.Start()

	for i := 0; i < 7; i++ {
		require.True(t, b.Add(types.AccessRecord{Path: "/x"}))
	}
	b.Stop()

	assert.Equal(t, 7, collector.records())
}

func TestBatcherStopIsIdempotent(t *testing.T) {
	b := NewBatcher(types.BatchConfig{Size: 10, Linger: "1h", QueueSize: 10}, func(types.Batch) {}, testLogger())
	b.Start()
	b.Stop()
	b.Stop()
}

func TestBatcherAddRejectsWhenQueueFull(t *testing.T) {
	// Never started, so the intake queue is not drained.
	b := NewBatcher(types.BatchConfig{Size: 10, Linger: "1h", QueueSize: 2}, func(types.Batch) {}, testLogger())

	assert.True(t, b.Add(types.AccessRecord{}))
	assert.True(t, b.Add(types.AccessRecord{}))

	start := time.Now()
	assert.False(t, b.Add(types.AccessRecord{}))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int64(1), b.Dropped())
}

package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"logship/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeClient struct {
	name     string
	initErr  error
	inits    int32
	consumes int32
	closes   int32
	started  bool
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Init(ctx context.Context) error {
	atomic.AddInt32(&f.inits, 1)
	if f.initErr != nil {
		return f.initErr
	}
	f.started = true
	return nil
}

func (f *fakeClient) Consume(ctx context.Context, batch types.Batch) error {
	if !f.started {
		return nil
	}
	atomic.AddInt32(&f.consumes, 1)
	return nil
}

func (f *fakeClient) Close() error {
	f.started = false
	atomic.AddInt32(&f.closes, 1)
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestStartupInitializesAllClients(t *testing.T) {
	a := &fakeClient{name: "a"}
	b := &fakeClient{name: "b"}
	c := NewController(testLogger(), a, b)

	started := c.Startup(context.Background())

	assert.Equal(t, 2, started)
	assert.Equal(t, int32(1), a.inits)
	assert.Equal(t, int32(1), b.inits)
}

func TestStartupIsolatesInitFailure(t *testing.T) {
	bad := &fakeClient{name: "bad", initErr: errors.New("backend down")}
	good := &fakeClient{name: "good"}
	c := NewController(testLogger(), bad, good)

	started := c.Startup(context.Background())

	assert.Equal(t, 1, started)
	assert.True(t, good.started)
	assert.False(t, bad.started)
}

func TestDispatchFansOutToStartedClients(t *testing.T) {
	bad := &fakeClient{name: "bad", initErr: errors.New("backend down")}
	good := &fakeClient{name: "good"}
	c := NewController(testLogger(), bad, good)
	c.Startup(context.Background())

	batch := types.Batch{{Path: "/a"}, {Path: "/b"}}
	c.Dispatch(context.Background(), batch)
	c.Dispatch(context.Background(), batch)

	assert.Equal(t, int32(2), good.consumes)
	assert.Equal(t, int32(0), bad.consumes)
}

func TestDispatchEmptyBatchIsNoop(t *testing.T) {
	client := &fakeClient{name: "a"}
	c := NewController(testLogger(), client)
	c.Startup(context.Background())

	c.Dispatch(context.Background(), nil)
	c.Dispatch(context.Background(), types.Batch{})

	assert.Equal(t, int32(0), client.consumes)
}

func TestShutdownRunsHooksOnce(t *testing.T) {
	client := &fakeClient{name: "a"}
	c := NewController(testLogger(), client)
	c.Startup(context.Background())

	c.Shutdown()
	c.Shutdown()

	assert.Equal(t, int32(1), client.closes)
}

func TestShutdownSkipsNeverStartedClients(t *testing.T) {
	bad := &fakeClient{name: "bad", initErr: errors.New("backend down")}
	c := NewController(testLogger(), bad)
	c.Startup(context.Background())

	c.Shutdown()

	assert.Equal(t, int32(0), bad.closes)
}

func TestRestartReinitializesClient(t *testing.T) {
	client := &fakeClient{name: "a"}
	c := NewController(testLogger(), client)
	c.Startup(context.Background())

	err := c.Restart(context.Background(), "a")

	assert.NoError(t, err)
	assert.Equal(t, int32(2), client.inits)
}

func TestRestartUnknownSink(t *testing.T) {
	c := NewController(testLogger(), &fakeClient{name: "a"})

	err := c.Restart(context.Background(), "nope")

	assert.Error(t, err)
}

func TestRestartFailureReportsError(t *testing.T) {
	client := &fakeClient{name: "a", initErr: errors.New("still down")}
	c := NewController(testLogger(), client)

	err := c.Restart(context.Background(), "a")

	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	c := NewController(testLogger(), &fakeClient{name: "a"}, &fakeClient{name: "b"})
	assert.Equal(t, []string{"a", "b"}, c.Names())
}

func TestHooksReplaceByName(t *testing.T) {
	hooks := NewHooks()
	var first, second int32
	hooks.Register("sink", func() error { atomic.AddInt32(&first, 1); return nil })
	hooks.Register("sink", func() error { atomic.AddInt32(&second, 1); return nil })

	hooks.Run(testLogger())

	assert.Equal(t, int32(0), first)
	assert.Equal(t, int32(1), second)
}

func TestHooksRunReverseOrder(t *testing.T) {
	hooks := NewHooks()
	var order []string
	hooks.Register("first", func() error { order = append(order, "first"); return nil })
	hooks.Register("second", func() error { order = append(order, "second"); return nil })

	hooks.Run(testLogger())

	assert.Equal(t, []string{"second", "first"}, order)
}

func TestHooksFailureDoesNotStopOthers(t *testing.T) {
	hooks := NewHooks()
	var ran int32
	hooks.Register("ok", func() error { atomic.AddInt32(&ran, 1); return nil })
	hooks.Register("bad", func() error { return errors.New("close failed") })

	hooks.Run(testLogger())

	assert.Equal(t, int32(1), ran)
}

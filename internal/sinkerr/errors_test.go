package sinkerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesContext(t *testing.T) {
	err := Connect("clickhouse", "ch:9000/shipping", errors.New("dial refused"))
	assert.Contains(t, err.Error(), "clickhouse")
	assert.Contains(t, err.Error(), "ch:9000/shipping")
	assert.Contains(t, err.Error(), "connect")
	assert.Contains(t, err.Error(), "dial refused")
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := New(KindBackendRejected, "kafka", "topic", inner)
	assert.True(t, errors.Is(err, inner))
}

func TestKindOfTypedError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Config("kafka", errors.New("no brokers")))
	assert.Equal(t, KindConfig, KindOf(err))
}

func TestKindOfContextErrors(t *testing.T) {
	assert.Equal(t, KindInterrupted, KindOf(context.Canceled))
	assert.Equal(t, KindInterrupted, KindOf(fmt.Errorf("send: %w", context.DeadlineExceeded)))
}

func TestKindOfNetError(t *testing.T) {
	var netErr net.Error = &net.OpError{Op: "dial", Err: &timeoutError{}}
	assert.Equal(t, KindTransientNetwork, KindOf(netErr))
}

func TestKindOfDefaultsToBackendRejected(t *testing.T) {
	assert.Equal(t, KindBackendRejected, KindOf(errors.New("column type mismatch")))
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

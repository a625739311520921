package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"logship/internal/dispatch"
	"logship/internal/lifecycle"
	"logship/pkg/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSink struct {
	mu       sync.Mutex
	name     string
	consumed types.Batch
}

func (s *stubSink) Name() string                   { return s.name }
func (s *stubSink) Init(ctx context.Context) error { return nil }
func (s *stubSink) Close() error                   { return nil }

func (s *stubSink) Consume(ctx context.Context, batch types.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumed = append(s.consumed, batch...)
	return nil
}

func (s *stubSink) records() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consumed)
}

func newTestApp(t *testing.T, sink *stubSink) (*App, *mux.Router) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &types.Config{}
	cfg.App.Name = "logship"
	cfg.Batch = types.BatchConfig{Size: 2, Linger: "20ms", QueueSize: 100}
	cfg.Metrics.Enabled = false

	app := &App{
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}
	app.ctx, app.cancel = context.WithCancel(context.Background())
	app.controller = lifecycle.NewController(logger, sink)
	app.batcher = dispatch.NewBatcher(cfg.Batch, func(batch types.Batch) {
		app.controller.Dispatch(app.ctx, batch)
	}, logger)

	app.controller.Startup(app.ctx)
	app.batcher.Start()
	t.Cleanup(func() {
		app.batcher.Stop()
		app.controller.Shutdown()
		app.cancel()
	})

	router := mux.NewRouter()
	app.registerHandlers(router)
	return app, router
}

func TestRecordsIngestAcceptsBatch(t *testing.T) {
	sink := &stubSink{name: "stub"}
	_, router := newTestApp(t, sink)

	body, err := json.Marshal([]types.AccessRecord{
		{Method: "GET", Path: "/api/orders", Status: 200},
		{Method: "POST", Path: "/api/orders", Status: 201},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/records", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["accepted"])
	assert.Equal(t, 0, resp["dropped"])

	assert.Eventually(t, func() bool {
		return sink.records() == 2
	}, 2*time.Second, 10*time.Millisecond, "batch reaches the sink")
}

func TestRecordsIngestDefaultsTimestampAndTraceID(t *testing.T) {
	sink := &stubSink{name: "stub"}
	_, router := newTestApp(t, sink)

	body := []byte(`[{"method":"GET","path":"/x"}]`)
	req := httptest.NewRequest(http.MethodPost, "/v1/records", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool {
		return sink.records() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.False(t, sink.consumed[0].Timestamp.IsZero())
	assert.NotEmpty(t, sink.consumed[0].TraceID)
}

func TestRecordsIngestRejectsInvalidJSON(t *testing.T) {
	_, router := newTestApp(t, &stubSink{name: "stub"})

	req := httptest.NewRequest(http.MethodPost, "/v1/records", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordsIngestRejectsEmptyBatch(t *testing.T) {
	_, router := newTestApp(t, &stubSink{name: "stub"})

	req := httptest.NewRequest(http.MethodPost, "/v1/records", bytes.NewReader([]byte("[]")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	_, router := newTestApp(t, &stubSink{name: "stub"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestStatsEndpoint(t *testing.T) {
	_, router := newTestApp(t, &stubSink{name: "stub"})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "batcher")
	assert.Contains(t, resp, "sinks")
}

func TestSinkRestartEndpoint(t *testing.T) {
	_, router := newTestApp(t, &stubSink{name: "stub"})

	req := httptest.NewRequest(http.MethodPost, "/sinks/stub/restart", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSinkRestartUnknownSink(t *testing.T) {
	_, router := newTestApp(t, &stubSink{name: "stub"})

	req := httptest.NewRequest(http.MethodPost, "/sinks/nope/restart", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

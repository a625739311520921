package types

import (
	"context"
	"time"
)

// AccessRecord is one captured request/response pair as produced by the
// gateway. Records are immutable after handoff: the shipping layer reads
// them but never mutates them.
type AccessRecord struct {
	Timestamp       time.Time `json:"timestamp" db:"timestamp"`
	ClientIP        string    `json:"client_ip" db:"client_ip"`
	Method          string    `json:"method" db:"method"`
	RequestHeader   string    `json:"request_header" db:"request_header"`
	ResponseHeader  string    `json:"response_header" db:"response_header"`
	QueryParams     string    `json:"query_params" db:"query_params"`
	RequestBody     string    `json:"request_body" db:"request_body"`
	RequestURI      string    `json:"request_uri" db:"request_uri"`
	ResponseBody    string    `json:"response_body" db:"response_body"`
	ResponseLength  int       `json:"response_length" db:"response_length"`
	RPCType         string    `json:"rpc_type" db:"rpc_type"`
	Status          int       `json:"status" db:"status"`
	UpstreamIP      string    `json:"upstream_ip" db:"upstream_ip"`
	UpstreamLatency int64     `json:"upstream_latency_ms" db:"upstream_latency_ms"`
	UserAgent       string    `json:"user_agent" db:"user_agent"`
	Host            string    `json:"host" db:"host"`
	Module          string    `json:"module" db:"module"`
	TraceID         string    `json:"trace_id" db:"trace_id"`
	Path            string    `json:"path" db:"path"`
}

// Batch is an ordered group of records flushed together. A batch is owned by
// the dispatch engine for the duration of one send attempt and discarded
// afterwards; delivery is best-effort, not durable.
type Batch []AccessRecord

// SinkClient is the capability contract every backend adapter satisfies.
//
// Init validates the adapter's configuration and opens the backend handle.
// A client whose configuration is missing required fields stays uninitialized
// and performs no connection attempt. Calling Init on a started client closes
// the previous handle first, so at most one handle is live per instance.
//
// Consume accepts a batch for asynchronous delivery. It is a no-op on a
// non-started client or an empty batch, and must not block the caller beyond
// enqueueing. Records within one batch reach the backend in order; no
// ordering is guaranteed across batches.
//
// Close is idempotent and safe to call from a shutdown hook.
type SinkClient interface {
	Name() string
	Init(ctx context.Context) error
	Consume(ctx context.Context, batch Batch) error
	Close() error
}

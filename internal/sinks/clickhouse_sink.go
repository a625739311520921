package sinks

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"logship/internal/dispatch"
	"logship/internal/lifecycle"
	"logship/internal/metrics"
	"logship/internal/sinkerr"
	"logship/pkg/types"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const (
	clickhouseSinkName = "clickhouse"

	clickhouseCreateDatabaseSQL = `CREATE DATABASE IF NOT EXISTS %s`

	clickhouseCreateTableSQL = `CREATE TABLE IF NOT EXISTS %s.%s (
		timestamp DateTime64(3),
		client_ip Nullable(String),
		method Nullable(String),
		request_header Nullable(String),
		response_header Nullable(String),
		query_params Nullable(String),
		request_body Nullable(String),
		request_uri Nullable(String),
		response_body Nullable(String),
		response_length Nullable(Int32),
		rpc_type Nullable(String),
		status Nullable(Int32),
		upstream_ip Nullable(String),
		upstream_latency_ms Nullable(Int64),
		user_agent Nullable(String),
		host Nullable(String),
		module Nullable(String),
		trace_id Nullable(String),
		path Nullable(String)
	) ENGINE = MergeTree() ORDER BY timestamp`

	clickhouseInsertSQL = `INSERT INTO %s.%s (
		timestamp, client_ip, method, request_header, response_header,
		query_params, request_body, request_uri, response_body, response_length,
		rpc_type, status, upstream_ip, upstream_latency_ms, user_agent,
		host, module, trace_id, path
	) VALUES (
		:timestamp, :client_ip, :method, :request_header, :response_header,
		:query_params, :request_body, :request_uri, :response_body, :response_length,
		:rpc_type, :status, :upstream_ip, :upstream_latency_ms, :user_agent,
		:host, :module, :trace_id, :path
	)`
)

// clickhouseRow mirrors the 19-column table with null-safe typed values so
// blank record fields land as NULL instead of empty strings.
type clickhouseRow struct {
	Timestamp       time.Time      `db:"timestamp"`
	ClientIP        sql.NullString `db:"client_ip"`
	Method          sql.NullString `db:"method"`
	RequestHeader   sql.NullString `db:"request_header"`
	ResponseHeader  sql.NullString `db:"response_header"`
	QueryParams     sql.NullString `db:"query_params"`
	RequestBody     sql.NullString `db:"request_body"`
	RequestURI      sql.NullString `db:"request_uri"`
	ResponseBody    sql.NullString `db:"response_body"`
	ResponseLength  sql.NullInt32  `db:"response_length"`
	RPCType         sql.NullString `db:"rpc_type"`
	Status          sql.NullInt32  `db:"status"`
	UpstreamIP      sql.NullString `db:"upstream_ip"`
	UpstreamLatency sql.NullInt64  `db:"upstream_latency_ms"`
	UserAgent       sql.NullString `db:"user_agent"`
	Host            sql.NullString `db:"host"`
	Module          sql.NullString `db:"module"`
	TraceID         sql.NullString `db:"trace_id"`
	Path            sql.NullString `db:"path"`
}

// ClickHouseSink ships record batches to the columnar analytics table with
// one bulk insert per batch. The insert is synchronous at the driver level,
// so it always runs on a dispatch engine worker, never on the caller.
type ClickHouseSink struct {
	cfg    types.ClickHouseConfig
	logger *logrus.Logger
	guard  lifecycle.Guard
	engine *dispatch.Engine

	// initMu serializes Init and Close so concurrent restarts cannot leave
	// a second pool live.
	initMu sync.Mutex

	db   *sqlx.DB
	open func(ctx context.Context, driverName, dsn string) (*sqlx.DB, error)

	insertSQL string
}

// NewClickHouseSink builds an unstarted sink.
func NewClickHouseSink(cfg types.ClickHouseConfig, logger *logrus.Logger) *ClickHouseSink {
	table := cfg.Table
	if table == "" {
		table = "access_log"
	}
	return &ClickHouseSink{
		cfg:       cfg,
		logger:    logger,
		engine:    dispatch.NewEngine(clickhouseSinkName, cfg.Engine.Workers, cfg.Engine.QueueSize, logger),
		open:      openClickHouse,
		insertSQL: fmt.Sprintf(clickhouseInsertSQL, cfg.Database, table),
	}
}

func openClickHouse(ctx context.Context, driverName, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Name implements types.SinkClient.
func (s *ClickHouseSink) Name() string {
	return clickhouseSinkName
}

// Init validates the configuration, opens the connection pool and prepares
// the schema. A validation failure aborts before any connection attempt; a
// started sink is closed first so at most one pool is ever live.
func (s *ClickHouseSink) Init(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return sinkerr.Config(clickhouseSinkName, err)
	}
	s.initMu.Lock()
	defer s.initMu.Unlock()
	s.closeLocked()

	dest := fmt.Sprintf("%s:%d/%s", s.cfg.Host, s.cfg.Port, s.cfg.Database)
	db, err := s.open(ctx, "clickhouse", s.cfg.DSN())
	if err != nil {
		return sinkerr.Connect(clickhouseSinkName, dest, err)
	}
	if err := s.ensureSchema(ctx, db); err != nil {
		db.Close()
		return sinkerr.Connect(clickhouseSinkName, dest, err)
	}

	s.engine.Start()
	s.guard.Transition(func(cur lifecycle.State) lifecycle.State {
		s.db = db
		return lifecycle.StateStarted
	})
	s.logger.WithFields(logrus.Fields{
		"host":     s.cfg.Host,
		"database": s.cfg.Database,
	}).Info("ClickHouse sink initialized")
	return nil
}

func (s *ClickHouseSink) ensureSchema(ctx context.Context, db *sqlx.DB) error {
	table := s.cfg.Table
	if table == "" {
		table = "access_log"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(clickhouseCreateDatabaseSQL, s.cfg.Database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(clickhouseCreateTableSQL, s.cfg.Database, table)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Consume enqueues one bulk insert for the batch. No-op when the sink is not
// started or the batch is empty; a full work queue drops the batch with a
// log line instead of blocking the caller.
func (s *ClickHouseSink) Consume(ctx context.Context, batch types.Batch) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := s.guard.WhileStarted(func() error {
		db := s.db
		task := dispatch.Task{
			Records: len(batch),
			Run: func(taskCtx context.Context) error {
				return s.insertBatch(taskCtx, db, batch)
			},
		}
		if err := s.engine.Submit(task); err != nil {
			// Drop already counted and logged by the engine.
			return nil
		}
		return nil
	})
	return err
}

func (s *ClickHouseSink) insertBatch(ctx context.Context, db *sqlx.DB, batch types.Batch) error {
	start := time.Now()
	rows := make([]clickhouseRow, len(batch))
	for i := range batch {
		rows[i] = toClickHouseRow(&batch[i])
	}
	if _, err := db.NamedExecContext(ctx, s.insertSQL, rows); err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}
	metrics.SinkSendDuration.WithLabelValues(clickhouseSinkName).Observe(time.Since(start).Seconds())
	metrics.SinkBatchRecords.WithLabelValues(clickhouseSinkName).Observe(float64(len(batch)))
	metrics.RecordsShippedTotal.WithLabelValues(clickhouseSinkName, "success").Add(float64(len(batch)))
	s.logger.WithFields(logrus.Fields{
		"records":     len(batch),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("ClickHouse batch inserted")
	return nil
}

// Close stops the worker pool and releases the connection pool. Idempotent;
// a release failure is logged and the state is still forced to closed.
func (s *ClickHouseSink) Close() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.closeLocked()
}

func (s *ClickHouseSink) closeLocked() error {
	var db *sqlx.DB
	s.guard.Transition(func(cur lifecycle.State) lifecycle.State {
		if cur != lifecycle.StateStarted {
			return cur
		}
		db = s.db
		s.db = nil
		return lifecycle.StateClosed
	})
	if db == nil {
		return nil
	}
	s.engine.Stop()
	if err := db.Close(); err != nil {
		s.logger.WithError(sinkerr.CloseFailure(clickhouseSinkName, err)).Error("ClickHouse pool close failed")
	}
	s.logger.Info("ClickHouse sink closed")
	return nil
}

func toClickHouseRow(rec *types.AccessRecord) clickhouseRow {
	return clickhouseRow{
		Timestamp:       rec.Timestamp,
		ClientIP:        nullString(rec.ClientIP),
		Method:          nullString(rec.Method),
		RequestHeader:   nullString(rec.RequestHeader),
		ResponseHeader:  nullString(rec.ResponseHeader),
		QueryParams:     nullString(rec.QueryParams),
		RequestBody:     nullString(rec.RequestBody),
		RequestURI:      nullString(rec.RequestURI),
		ResponseBody:    nullString(rec.ResponseBody),
		ResponseLength:  sql.NullInt32{Int32: int32(rec.ResponseLength), Valid: true},
		RPCType:         nullString(rec.RPCType),
		Status:          sql.NullInt32{Int32: int32(rec.Status), Valid: true},
		UpstreamIP:      nullString(rec.UpstreamIP),
		UpstreamLatency: sql.NullInt64{Int64: rec.UpstreamLatency, Valid: true},
		UserAgent:       nullString(rec.UserAgent),
		Host:            nullString(rec.Host),
		Module:          nullString(rec.Module),
		TraceID:         nullString(rec.TraceID),
		Path:            nullString(rec.Path),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

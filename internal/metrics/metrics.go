// Package metrics holds the prometheus collectors shared by the shipping
// layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsShippedTotal counts records handed to a backend, by outcome.
	RecordsShippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_records_shipped_total",
			Help: "Total number of records shipped to sinks",
		},
		[]string{"sink", "status"},
	)

	// RecordsDroppedTotal counts records dropped before reaching a backend.
	RecordsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_records_dropped_total",
			Help: "Total number of records dropped by the shipping layer",
		},
		[]string{"sink", "reason"},
	)

	// SinkQueueUtilization is the fill ratio of a sink's work queue.
	SinkQueueUtilization = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logship_sink_queue_utilization",
			Help: "Work queue utilization per sink (0.0 to 1.0)",
		},
		[]string{"sink"},
	)

	// SinkSendDuration observes one backend send attempt.
	SinkSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logship_sink_send_duration_seconds",
			Help:    "Time spent sending a batch to a sink backend",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"sink"},
	)

	// SinkBatchRecords observes batch sizes as submitted to backends.
	SinkBatchRecords = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logship_sink_batch_records",
			Help:    "Records per batch submitted to a sink backend",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"sink"},
	)

	// SinkUp reports whether a sink client is started.
	SinkUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logship_sink_up",
			Help: "Whether the sink client is started (1) or not (0)",
		},
		[]string{"sink"},
	)

	// IngestRecordsTotal counts records accepted by the HTTP ingest endpoint.
	IngestRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_ingest_records_total",
			Help: "Total number of records received by the ingest endpoint",
		},
		[]string{"status"},
	)
)

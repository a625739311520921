// Package sinks contains the backend adapters of the shipping layer. Each
// adapter satisfies types.SinkClient by translating a generic record batch
// into backend-native calls; everything beyond that translation boundary is
// an external collaborator.
package sinks

import (
	"logship/pkg/types"

	"github.com/sirupsen/logrus"
)

// Build constructs one client per enabled backend from configuration. The
// clients are returned unstarted; the lifecycle controller initializes them.
func Build(cfg types.SinksConfig, logger *logrus.Logger) []types.SinkClient {
	var clients []types.SinkClient
	if cfg.ClickHouse.Enabled {
		clients = append(clients, NewClickHouseSink(cfg.ClickHouse, logger))
	}
	if cfg.CloudWatch.Enabled {
		clients = append(clients, NewCloudWatchSink(cfg.CloudWatch, logger))
	}
	if cfg.Kafka.Enabled {
		clients = append(clients, NewKafkaSink(cfg.Kafka, logger))
	}
	return clients
}

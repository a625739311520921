package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"logship/internal/dispatch"
	"logship/internal/lifecycle"
	"logship/internal/metrics"
	"logship/internal/sinkerr"
	"logship/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/sirupsen/logrus"
)

const (
	cloudwatchSinkName = "cloudwatch"

	// Service ceilings for one PutLogEvents call. Configured thresholds are
	// clamped to these, never raised above them.
	cloudwatchMaxBatchCount = 10000
	cloudwatchMaxBatchBytes = 1048576
	cloudwatchMaxEventBytes = 256 * 1024

	// Per-event bookkeeping overhead the service charges on top of the
	// message payload.
	cloudwatchEventOverhead = 26
)

// cloudwatchAPI is the slice of the CloudWatch Logs SDK the sink uses.
type cloudwatchAPI interface {
	CreateLogGroup(ctx context.Context, in *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, in *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, in *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchSink ships record batches to the cloud log-collection service
// with chunked PutLogEvents calls. The SDK call is synchronous, so each batch
// runs on a dispatch engine worker; retry and backoff are delegated to the
// SDK retryer configured at init.
type CloudWatchSink struct {
	cfg    types.CloudWatchConfig
	logger *logrus.Logger
	guard  lifecycle.Guard
	engine *dispatch.Engine

	// initMu serializes Init and Close so concurrent restarts cannot leave
	// a second client live.
	initMu sync.Mutex

	client    cloudwatchAPI
	newClient func(ctx context.Context, cfg types.CloudWatchConfig) (cloudwatchAPI, error)

	batchCount int
	batchBytes int
}

// NewCloudWatchSink builds an unstarted sink, clamping batch thresholds to
// the service ceilings.
func NewCloudWatchSink(cfg types.CloudWatchConfig, logger *logrus.Logger) *CloudWatchSink {
	count := cfg.MaxBatchCount
	if count <= 0 || count > cloudwatchMaxBatchCount {
		count = cloudwatchMaxBatchCount
	}
	bytes := cfg.MaxBatchBytes
	if bytes <= 0 || bytes > cloudwatchMaxBatchBytes {
		bytes = cloudwatchMaxBatchBytes
	}
	return &CloudWatchSink{
		cfg:        cfg,
		logger:     logger,
		engine:     dispatch.NewEngine(cloudwatchSinkName, cfg.Engine.Workers, cfg.Engine.QueueSize, logger),
		newClient:  newCloudWatchClient,
		batchCount: count,
		batchBytes: bytes,
	}
}

func newCloudWatchClient(ctx context.Context, cfg types.CloudWatchConfig) (cloudwatchAPI, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	}
	if cfg.Retries > 0 {
		opts = append(opts, awsconfig.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxBackoffDelay(
				retry.AddWithMaxAttempts(retry.NewStandard(), cfg.Retries+1),
				cfg.MaxBackoffDuration(),
			)
		}))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return cloudwatchlogs.NewFromConfig(awsCfg, func(o *cloudwatchlogs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Name implements types.SinkClient.
func (s *CloudWatchSink) Name() string {
	return cloudwatchSinkName
}

// Init validates the configuration and prepares the log group and stream.
// Missing fields abort before any service call; a started sink is closed
// first.
func (s *CloudWatchSink) Init(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return sinkerr.Config(cloudwatchSinkName, err)
	}
	s.initMu.Lock()
	defer s.initMu.Unlock()
	s.closeLocked()

	dest := s.cfg.LogGroup + "/" + s.cfg.LogStream
	client, err := s.newClient(ctx, s.cfg)
	if err != nil {
		return sinkerr.Connect(cloudwatchSinkName, dest, err)
	}
	if err := ensureLogStream(ctx, client, s.cfg.LogGroup, s.cfg.LogStream); err != nil {
		return sinkerr.Connect(cloudwatchSinkName, dest, err)
	}

	s.engine.Start()
	s.guard.Transition(func(cur lifecycle.State) lifecycle.State {
		s.client = client
		return lifecycle.StateStarted
	})
	s.logger.WithFields(logrus.Fields{
		"region":     s.cfg.Region,
		"log_group":  s.cfg.LogGroup,
		"log_stream": s.cfg.LogStream,
	}).Info("CloudWatch sink initialized")
	return nil
}

func ensureLogStream(ctx context.Context, client cloudwatchAPI, group, stream string) error {
	_, err := client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(group),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create log group: %w", err)
	}
	_, err = client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create log stream: %w", err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var exists *cwtypes.ResourceAlreadyExistsException
	return errors.As(err, &exists)
}

// Consume enqueues the batch as one unit of work so records keep their order
// across the chunked put calls. No-op on a non-started sink or empty batch.
func (s *CloudWatchSink) Consume(ctx context.Context, batch types.Batch) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := s.guard.WhileStarted(func() error {
		client := s.client
		task := dispatch.Task{
			Records: len(batch),
			Run: func(taskCtx context.Context) error {
				return s.putBatch(taskCtx, client, batch)
			},
		}
		if err := s.engine.Submit(task); err != nil {
			return nil
		}
		return nil
	})
	return err
}

// putBatch splits the batch into chunks honoring the per-call size and count
// ceilings and sends them in order. An oversized single record is a
// size-exceeded drop, not a batch failure.
func (s *CloudWatchSink) putBatch(ctx context.Context, client cloudwatchAPI, batch types.Batch) error {
	start := time.Now()
	var (
		events     []cwtypes.InputLogEvent
		chunkBytes int
		shipped    int
	)

	flush := func() error {
		if len(events) == 0 {
			return nil
		}
		_, err := client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(s.cfg.LogGroup),
			LogStreamName: aws.String(s.cfg.LogStream),
			LogEvents:     events,
		})
		if err != nil {
			return fmt.Errorf("put log events: %w", err)
		}
		shipped += len(events)
		events = nil
		chunkBytes = 0
		return nil
	}

	for i := range batch {
		payload, err := json.Marshal(&batch[i])
		if err != nil {
			metrics.RecordsDroppedTotal.WithLabelValues(cloudwatchSinkName, string(sinkerr.KindBackendRejected)).Inc()
			s.logger.WithError(err).Warn("Record marshal failed, dropping")
			continue
		}
		size := len(payload) + cloudwatchEventOverhead
		if size > cloudwatchMaxEventBytes {
			metrics.RecordsDroppedTotal.WithLabelValues(cloudwatchSinkName, string(sinkerr.KindSizeExceeded)).Inc()
			s.logger.WithFields(logrus.Fields{
				"log_group": s.cfg.LogGroup,
				"bytes":     size,
				"trace_id":  batch[i].TraceID,
			}).Warn("Record exceeds maximum event size, dropping")
			continue
		}
		if len(events) >= s.batchCount || chunkBytes+size > s.batchBytes {
			if err := flush(); err != nil {
				return err
			}
		}
		events = append(events, cwtypes.InputLogEvent{
			Message:   aws.String(string(payload)),
			Timestamp: aws.Int64(batch[i].Timestamp.UnixMilli()),
		})
		chunkBytes += size
	}
	if err := flush(); err != nil {
		return err
	}

	metrics.SinkSendDuration.WithLabelValues(cloudwatchSinkName).Observe(time.Since(start).Seconds())
	metrics.SinkBatchRecords.WithLabelValues(cloudwatchSinkName).Observe(float64(shipped))
	metrics.RecordsShippedTotal.WithLabelValues(cloudwatchSinkName, "success").Add(float64(shipped))
	return nil
}

// Close stops the worker pool and drops the service client. Idempotent.
func (s *CloudWatchSink) Close() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.closeLocked()
}

func (s *CloudWatchSink) closeLocked() error {
	released := false
	s.guard.Transition(func(cur lifecycle.State) lifecycle.State {
		if cur != lifecycle.StateStarted {
			return cur
		}
		s.client = nil
		released = true
		return lifecycle.StateClosed
	})
	if !released {
		return nil
	}
	s.engine.Stop()
	s.logger.Info("CloudWatch sink closed")
	return nil
}

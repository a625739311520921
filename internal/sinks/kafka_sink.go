package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"logship/internal/lifecycle"
	"logship/internal/metrics"
	"logship/internal/sinkerr"
	"logship/pkg/compression"
	"logship/pkg/types"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const kafkaSinkName = "kafka"

// KafkaSink publishes each record as one broker message through an async
// producer. Publishing is fire-and-forget: a full producer buffer drops the
// record instead of blocking, and delivery outcomes are observed by a
// reporter goroutine rather than awaited by the caller. Producer-level retry
// is the broker client's own, configured at init.
type KafkaSink struct {
	cfg    types.KafkaConfig
	logger *logrus.Logger
	guard  lifecycle.Guard
	codec  *compression.Codec

	// initMu serializes Init and Close so concurrent restarts cannot leave
	// a second producer live.
	initMu sync.Mutex

	producer    sarama.AsyncProducer
	newProducer func(cfg types.KafkaConfig) (sarama.AsyncProducer, error)

	reporterWG sync.WaitGroup
}

// NewKafkaSink builds an unstarted sink.
func NewKafkaSink(cfg types.KafkaConfig, logger *logrus.Logger) *KafkaSink {
	return &KafkaSink{
		cfg:         cfg,
		logger:      logger,
		newProducer: newSaramaProducer,
	}
}

func newSaramaProducer(cfg types.KafkaConfig) (sarama.AsyncProducer, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	sc.Producer.Retry.Max = cfg.RetryMax
	sc.Producer.Retry.Backoff = cfg.RetryBackoffDuration()
	if cfg.LingerMs > 0 {
		sc.Producer.Flush.Frequency = time.Duration(cfg.LingerMs) * time.Millisecond
	}
	if cfg.FlushMessages > 0 {
		sc.Producer.Flush.Messages = cfg.FlushMessages
	}
	if cfg.MaxMessageBytes > 0 {
		sc.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}
	if cfg.QueueSize > 0 {
		sc.ChannelBufferSize = cfg.QueueSize
	}

	if cfg.SASL.Enabled {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = cfg.SASL.Username
		sc.Net.SASL.Password = cfg.SASL.Password
		switch cfg.SASL.Mechanism {
		case "SCRAM-SHA-256":
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &xdgSCRAMClient{HashGeneratorFcn: scramSHA256}
			}
		case "SCRAM-SHA-512":
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &xdgSCRAMClient{HashGeneratorFcn: scramSHA512}
			}
		default:
			sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	return sarama.NewAsyncProducer(cfg.Brokers, sc)
}

// Name implements types.SinkClient.
func (s *KafkaSink) Name() string {
	return kafkaSinkName
}

// Init validates the configuration, builds the compression codec and the
// async producer, and starts the reporter. A started sink is closed first.
func (s *KafkaSink) Init(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return sinkerr.Config(kafkaSinkName, err)
	}
	codec, err := compression.New(s.cfg.CompressAlg)
	if err != nil {
		return sinkerr.Config(kafkaSinkName, err)
	}
	s.initMu.Lock()
	defer s.initMu.Unlock()
	s.closeLocked()

	producer, err := s.newProducer(s.cfg)
	if err != nil {
		return sinkerr.Connect(kafkaSinkName, s.cfg.Topic, err)
	}

	s.reporterWG.Add(1)
	go s.report(producer)

	s.guard.Transition(func(cur lifecycle.State) lifecycle.State {
		s.producer = producer
		s.codec = codec
		return lifecycle.StateStarted
	})
	s.logger.WithFields(logrus.Fields{
		"brokers":      s.cfg.Brokers,
		"topic":        s.cfg.Topic,
		"compress_alg": codec.Algorithm(),
	}).Info("Kafka sink initialized")
	return nil
}

// Consume publishes one message per record. The input channel is fed with a
// non-blocking select so a saturated producer sheds records rather than
// stalling the caller.
func (s *KafkaSink) Consume(ctx context.Context, batch types.Batch) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := s.guard.WhileStarted(func() error {
		for i := range batch {
			msg, err := s.buildMessage(&batch[i])
			if err != nil {
				metrics.RecordsDroppedTotal.WithLabelValues(kafkaSinkName, string(sinkerr.KindBackendRejected)).Inc()
				s.logger.WithError(err).Warn("Record encode failed, dropping")
				continue
			}
			select {
			case s.producer.Input() <- msg:
			default:
				metrics.RecordsDroppedTotal.WithLabelValues(kafkaSinkName, "queue_full").Inc()
				s.logger.WithField("topic", s.cfg.Topic).Warn("Producer buffer full, dropping record")
			}
		}
		return nil
	})
	return err
}

// buildMessage serializes the record and, when compression is enabled, wraps
// the payload in the size-prefixed envelope the downstream consumers expect.
func (s *KafkaSink) buildMessage(rec *types.AccessRecord) (*sarama.ProducerMessage, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	if s.codec.Enabled() {
		payload, err = s.codec.Encode(payload)
		if err != nil {
			return nil, fmt.Errorf("compress record: %w", err)
		}
	}
	msg := &sarama.ProducerMessage{
		Topic: s.cfg.Topic,
		Value: sarama.ByteEncoder(payload),
	}
	if rec.TraceID != "" {
		msg.Key = sarama.StringEncoder(rec.TraceID)
	}
	return msg, nil
}

// report drains delivery outcomes until the producer is closed. Failures are
// classified and logged here, at the last point where the record is known.
func (s *KafkaSink) report(producer sarama.AsyncProducer) {
	defer s.reporterWG.Done()

	successes := producer.Successes()
	errors := producer.Errors()
	for successes != nil || errors != nil {
		select {
		case _, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			metrics.RecordsShippedTotal.WithLabelValues(kafkaSinkName, "success").Inc()
		case perr, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			kind := sinkerr.KindOf(perr.Err)
			metrics.RecordsDroppedTotal.WithLabelValues(kafkaSinkName, string(kind)).Inc()
			s.logger.WithError(perr.Err).WithFields(logrus.Fields{
				"topic": perr.Msg.Topic,
				"kind":  string(kind),
			}).Error("Broker publish failed, record dropped")
		}
	}
}

// Close drains buffered messages through AsyncClose, waits for the reporter
// to observe the remaining outcomes and releases the producer. Idempotent.
func (s *KafkaSink) Close() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.closeLocked()
}

func (s *KafkaSink) closeLocked() error {
	var producer sarama.AsyncProducer
	s.guard.Transition(func(cur lifecycle.State) lifecycle.State {
		if cur != lifecycle.StateStarted {
			return cur
		}
		producer = s.producer
		s.producer = nil
		return lifecycle.StateClosed
	})
	if producer == nil {
		return nil
	}
	producer.AsyncClose()
	s.reporterWG.Wait()
	s.logger.Info("Kafka sink closed")
	return nil
}

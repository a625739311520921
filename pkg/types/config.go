package types

import (
	"fmt"
	"time"
)

// Config is the top-level daemon configuration.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
	Batch   BatchConfig   `yaml:"batch"`
	Sinks   SinksConfig   `yaml:"sinks"`
}

// AppConfig general application settings.
type AppConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ServerConfig HTTP ingest server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// MetricsConfig prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// BatchConfig controls the flush cycle that turns incoming records into
// batches: flush when Size records accumulate or Linger elapses, whichever
// comes first.
type BatchConfig struct {
	Size      int    `yaml:"size"`
	Linger    string `yaml:"linger"`
	QueueSize int    `yaml:"queue_size"`
}

// LingerDuration parses the linger interval, falling back to the default.
func (c BatchConfig) LingerDuration() time.Duration {
	if d, err := time.ParseDuration(c.Linger); err == nil && d > 0 {
		return d
	}
	return 5 * time.Second
}

// SinksConfig holds one configuration block per backend.
type SinksConfig struct {
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	Kafka      KafkaConfig      `yaml:"kafka"`
}

// EngineConfig bounds a sink's worker pool and work queue. Workers above the
// hard ceiling are clamped by the dispatch engine, not rejected here.
type EngineConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// ClickHouseConfig configures the columnar analytics sink.
type ClickHouseConfig struct {
	Enabled  bool         `yaml:"enabled"`
	Host     string       `yaml:"host"`
	Port     int          `yaml:"port"`
	Database string       `yaml:"database"`
	Table    string       `yaml:"table"`
	Username string       `yaml:"username"`
	Password string       `yaml:"password"`
	Engine   EngineConfig `yaml:"engine"`
}

// Validate checks required connection fields.
func (c ClickHouseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("clickhouse: host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("clickhouse: database is required")
	}
	if c.Username == "" {
		return fmt.Errorf("clickhouse: username is required")
	}
	return nil
}

// DSN builds the clickhouse-go connection string.
func (c ClickHouseConfig) DSN() string {
	port := c.Port
	if port == 0 {
		port = 9000
	}
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s", c.Username, c.Password, c.Host, port, c.Database)
}

// CloudWatchConfig configures the cloud log-collection sink. Retry settings
// are forwarded to the SDK retryer, not applied by the dispatch engine.
type CloudWatchConfig struct {
	Enabled         bool         `yaml:"enabled"`
	Region          string       `yaml:"region"`
	LogGroup        string       `yaml:"log_group"`
	LogStream       string       `yaml:"log_stream"`
	AccessKeyID     string       `yaml:"access_key_id"`
	SecretAccessKey string       `yaml:"secret_access_key"`
	Endpoint        string       `yaml:"endpoint"`
	MaxBatchCount   int          `yaml:"max_batch_count"`
	MaxBatchBytes   int          `yaml:"max_batch_bytes"`
	Retries         int          `yaml:"retries"`
	MaxBackoff      string       `yaml:"max_backoff"`
	Engine          EngineConfig `yaml:"engine"`
}

// Validate checks required endpoint and credential fields.
func (c CloudWatchConfig) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("cloudwatch: region is required")
	}
	if c.LogGroup == "" {
		return fmt.Errorf("cloudwatch: log_group is required")
	}
	if c.LogStream == "" {
		return fmt.Errorf("cloudwatch: log_stream is required")
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return fmt.Errorf("cloudwatch: access_key_id and secret_access_key are required")
	}
	return nil
}

// MaxBackoffDuration parses the retry backoff ceiling.
func (c CloudWatchConfig) MaxBackoffDuration() time.Duration {
	if d, err := time.ParseDuration(c.MaxBackoff); err == nil && d > 0 {
		return d
	}
	return 20 * time.Second
}

// KafkaConfig configures the message-broker sink.
type KafkaConfig struct {
	Enabled         bool       `yaml:"enabled"`
	Brokers         []string   `yaml:"brokers"`
	Topic           string     `yaml:"topic"`
	CompressAlg     string     `yaml:"compress_alg"`
	RequiredAcks    int        `yaml:"required_acks"`
	MaxMessageBytes int        `yaml:"max_message_bytes"`
	RetryMax        int        `yaml:"retry_max"`
	RetryBackoff    string     `yaml:"retry_backoff"`
	LingerMs        int        `yaml:"linger_ms"`
	FlushMessages   int        `yaml:"flush_messages"`
	QueueSize       int        `yaml:"queue_size"`
	SASL            SASLConfig `yaml:"sasl"`
}

// SASLConfig optional broker authentication.
type SASLConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// Validate checks required broker fields.
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}
	if c.Topic == "" {
		return fmt.Errorf("kafka: topic is required")
	}
	return nil
}

// RetryBackoffDuration parses the producer retry backoff.
func (c KafkaConfig) RetryBackoffDuration() time.Duration {
	if d, err := time.ParseDuration(c.RetryBackoff); err == nil && d > 0 {
		return d
	}
	return 100 * time.Millisecond
}

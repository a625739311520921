package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"logship/pkg/types"

	"gopkg.in/yaml.v2"
)

// LoadConfig loads configuration from a YAML file and environment variables.
// File values come first, then defaults fill the gaps, then LOGSHIP_*
// environment variables override.
func LoadConfig(configFile string) (*types.Config, error) {
	config := &types.Config{}

	if configFile != "" {
		if err := loadConfigFile(configFile, config); err != nil {
			return nil, err
		}
	}

	applyDefaults(config)
	applyEnvironmentOverrides(config)

	return config, nil
}

func loadConfigFile(filename string, config *types.Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyDefaults(config *types.Config) {
	// App defaults
	if config.App.Name == "" {
		config.App.Name = "logship"
	}
	if config.App.LogLevel == "" {
		config.App.LogLevel = "info"
	}
	if config.App.LogFormat == "" {
		config.App.LogFormat = "json"
	}

	// Server defaults
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8401
	}
	if config.Server.ReadTimeout == "" {
		config.Server.ReadTimeout = "10s"
	}
	if config.Server.WriteTimeout == "" {
		config.Server.WriteTimeout = "10s"
	}

	// Metrics defaults
	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
	config.Metrics.Enabled = true

	// Batch defaults
	if config.Batch.Size == 0 {
		config.Batch.Size = 100
	}
	if config.Batch.Linger == "" {
		config.Batch.Linger = "5s"
	}
	if config.Batch.QueueSize == 0 {
		config.Batch.QueueSize = 10000
	}
}

func applyEnvironmentOverrides(config *types.Config) {
	// Server overrides
	if port := getEnvInt("LOGSHIP_SERVER_PORT", 0); port != 0 {
		config.Server.Port = port
	}
	if host := getEnvString("LOGSHIP_SERVER_HOST", ""); host != "" {
		config.Server.Host = host
	}

	// Logging overrides
	if level := getEnvString("LOGSHIP_LOG_LEVEL", ""); level != "" {
		config.App.LogLevel = level
	}
	if format := getEnvString("LOGSHIP_LOG_FORMAT", ""); format != "" {
		config.App.LogFormat = format
	}

	// Batch overrides
	if size := getEnvInt("LOGSHIP_BATCH_SIZE", 0); size != 0 {
		config.Batch.Size = size
	}
	if linger := getEnvString("LOGSHIP_BATCH_LINGER", ""); linger != "" {
		config.Batch.Linger = linger
	}

	// Sink enable/disable overrides
	config.Sinks.ClickHouse.Enabled = getEnvBool("LOGSHIP_CLICKHOUSE_ENABLED", config.Sinks.ClickHouse.Enabled)
	config.Sinks.CloudWatch.Enabled = getEnvBool("LOGSHIP_CLOUDWATCH_ENABLED", config.Sinks.CloudWatch.Enabled)
	config.Sinks.Kafka.Enabled = getEnvBool("LOGSHIP_KAFKA_ENABLED", config.Sinks.Kafka.Enabled)

	// ClickHouse credential overrides keep secrets out of the config file.
	if host := getEnvString("LOGSHIP_CLICKHOUSE_HOST", ""); host != "" {
		config.Sinks.ClickHouse.Host = host
	}
	if pass := getEnvString("LOGSHIP_CLICKHOUSE_PASSWORD", ""); pass != "" {
		config.Sinks.ClickHouse.Password = pass
	}

	// CloudWatch credential overrides
	if key := getEnvString("LOGSHIP_AWS_ACCESS_KEY_ID", ""); key != "" {
		config.Sinks.CloudWatch.AccessKeyID = key
	}
	if secret := getEnvString("LOGSHIP_AWS_SECRET_ACCESS_KEY", ""); secret != "" {
		config.Sinks.CloudWatch.SecretAccessKey = secret
	}

	// Kafka overrides
	if brokers := getEnvStringSlice("LOGSHIP_KAFKA_BROKERS", nil); len(brokers) > 0 {
		config.Sinks.Kafka.Brokers = brokers
	}
	if topic := getEnvString("LOGSHIP_KAFKA_TOPIC", ""); topic != "" {
		config.Sinks.Kafka.Topic = topic
	}
	if pass := getEnvString("LOGSHIP_KAFKA_SASL_PASSWORD", ""); pass != "" {
		config.Sinks.Kafka.SASL.Password = pass
	}
}

// Environment variable helpers

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// ValidateConfig validates the assembled configuration. Per-sink connection
// details are validated again by each sink at Init; here only the shape of
// the daemon itself is checked.
func ValidateConfig(config *types.Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Batch.Size < 0 {
		return fmt.Errorf("invalid batch size: %d", config.Batch.Size)
	}

	anyEnabled := config.Sinks.ClickHouse.Enabled ||
		config.Sinks.CloudWatch.Enabled ||
		config.Sinks.Kafka.Enabled

	if !anyEnabled {
		return fmt.Errorf("at least one sink must be enabled")
	}

	return nil
}

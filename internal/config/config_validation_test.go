package config

import (
	"testing"

	"logship/pkg/types"
)

func validTestConfig() *types.Config {
	config := &types.Config{}
	applyDefaults(config)
	config.Sinks.Kafka.Enabled = true
	config.Sinks.Kafka.Brokers = []string{"kafka:9092"}
	config.Sinks.Kafka.Topic = "access-log"
	return config
}

// TestValidateConfigValid tests a complete configuration passes
func TestValidateConfigValid(t *testing.T) {
	config := validTestConfig()

	if err := ValidateConfig(config); err != nil {
		t.Errorf("Expected valid config, got error: %v", err)
	}
}

// TestValidateConfigNoSinks tests that zero enabled sinks is rejected
func TestValidateConfigNoSinks(t *testing.T) {
	config := &types.Config{}
	applyDefaults(config)

	if err := ValidateConfig(config); err == nil {
		t.Error("Expected error when no sink is enabled")
	}
}

// TestValidateConfigInvalidPort tests port range checking
func TestValidateConfigInvalidPort(t *testing.T) {
	for _, port := range []int{-1, 0, 70000} {
		config := validTestConfig()
		config.Server.Port = port

		if err := ValidateConfig(config); err == nil {
			t.Errorf("Expected error for port %d", port)
		}
	}
}

// TestClickHouseConfigValidate tests per-sink required fields
func TestClickHouseConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     types.ClickHouseConfig
		wantErr bool
	}{
		{
			name: "complete",
			cfg: types.ClickHouseConfig{
				Host:     "clickhouse",
				Database: "shipping",
				Username: "default",
			},
			wantErr: false,
		},
		{
			name:    "missing host",
			cfg:     types.ClickHouseConfig{Database: "shipping", Username: "default"},
			wantErr: true,
		},
		{
			name:    "missing database",
			cfg:     types.ClickHouseConfig{Host: "clickhouse", Username: "default"},
			wantErr: true,
		},
		{
			name:    "missing username",
			cfg:     types.ClickHouseConfig{Host: "clickhouse", Database: "shipping"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestCloudWatchConfigValidate tests cloud sink required fields
func TestCloudWatchConfigValidate(t *testing.T) {
	complete := types.CloudWatchConfig{
		Region:          "us-east-1",
		LogGroup:        "gateway-access",
		LogStream:       "shipper",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}
	if err := complete.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	missing := complete
	missing.LogStream = ""
	if err := missing.Validate(); err == nil {
		t.Error("Expected error for missing log stream")
	}

	noCreds := complete
	noCreds.SecretAccessKey = ""
	if err := noCreds.Validate(); err == nil {
		t.Error("Expected error for missing credentials")
	}
}

// TestKafkaConfigValidate tests broker sink required fields
func TestKafkaConfigValidate(t *testing.T) {
	complete := types.KafkaConfig{
		Brokers: []string{"kafka:9092"},
		Topic:   "access-log",
	}
	if err := complete.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	if err := (types.KafkaConfig{Topic: "access-log"}).Validate(); err == nil {
		t.Error("Expected error for missing brokers")
	}
	if err := (types.KafkaConfig{Brokers: []string{"kafka:9092"}}).Validate(); err == nil {
		t.Error("Expected error for missing topic")
	}
}

// TestKafkaRetryBackoffDuration tests duration parsing fallback
func TestKafkaRetryBackoffDuration(t *testing.T) {
	cfg := types.KafkaConfig{RetryBackoff: "250ms"}
	if cfg.RetryBackoffDuration().Milliseconds() != 250 {
		t.Errorf("Expected 250ms, got %v", cfg.RetryBackoffDuration())
	}

	cfg.RetryBackoff = "garbage"
	if cfg.RetryBackoffDuration().Milliseconds() != 100 {
		t.Errorf("Expected fallback 100ms, got %v", cfg.RetryBackoffDuration())
	}
}

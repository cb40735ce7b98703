// Package config loads feed-handler configuration from a YAML file with
// FEEDHANDLER_* environment overrides layered on top.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Processing modes for the per-order pipeline.
const (
	ModeTick      = "tick"
	ModeConflated = "conflated"
)

// KafkaConfig enables the optional envelope mirror when brokers are set.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic"`
}

// Config covers both pipelines; each binary reads the fields it needs.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`

	Mode                 string `mapstructure:"mode" yaml:"mode" validate:"oneof=tick conflated"`
	ConflationIntervalMs int    `mapstructure:"conflation_interval_ms" yaml:"conflation_interval_ms" validate:"min=1"`
	BookDepth            int    `mapstructure:"book_depth" yaml:"book_depth" validate:"min=1,max=32"`
	BookMaxOrders        int    `mapstructure:"book_max_orders" yaml:"book_max_orders" validate:"min=0"`

	InputGroup    string `mapstructure:"input_group" yaml:"input_group" validate:"required,ip4_addr"`
	InputPort     int    `mapstructure:"input_port" yaml:"input_port" validate:"min=1,max=65535"`
	SnapshotGroup string `mapstructure:"snapshot_group" yaml:"snapshot_group" validate:"omitempty,ip4_addr"`
	SnapshotPort  int    `mapstructure:"snapshot_port" yaml:"snapshot_port" validate:"min=0,max=65535"`
	OutputGroup   string `mapstructure:"output_group" yaml:"output_group" validate:"required,ip4_addr"`
	OutputPort    int    `mapstructure:"output_port" yaml:"output_port" validate:"min=1,max=65535"`
	Interface     string `mapstructure:"interface" yaml:"interface"`
	OutputTTL     int    `mapstructure:"output_ttl" yaml:"output_ttl" validate:"min=0,max=255"`
	InputBuffer   int    `mapstructure:"input_buffer" yaml:"input_buffer" validate:"min=0"`

	RecoveryTimeoutMs int `mapstructure:"recovery_timeout_ms" yaml:"recovery_timeout_ms" validate:"min=1"`
	StatsIntervalSec  int `mapstructure:"stats_interval_sec" yaml:"stats_interval_sec" validate:"min=1"`

	MetricsListen string      `mapstructure:"metrics_listen" yaml:"metrics_listen"`
	Kafka         KafkaConfig `mapstructure:"kafka" yaml:"kafka"`
}

// DefaultItch returns the per-order pipeline defaults.
func DefaultItch() Config {
	return Config{
		LogLevel:             "info",
		Mode:                 ModeConflated,
		ConflationIntervalMs: 100,
		BookDepth:            10,
		BookMaxOrders:        500000,
		InputGroup:           "239.1.1.1",
		InputPort:            30001,
		OutputGroup:          "239.1.1.2",
		OutputPort:           30002,
		Interface:            "0.0.0.0",
		OutputTTL:            1,
		InputBuffer:          65536,
		RecoveryTimeoutMs:    5000,
		StatsIntervalSec:     10,
		Kafka:                KafkaConfig{Topic: "marketdata.envelopes"},
	}
}

// DefaultMdp returns the price-level pipeline defaults, including the
// snapshot feed used for gap recovery.
func DefaultMdp() Config {
	cfg := DefaultItch()
	cfg.InputGroup = "239.2.1.1"
	cfg.InputPort = 40001
	cfg.SnapshotGroup = "239.2.1.2"
	cfg.SnapshotPort = 40002
	cfg.OutputGroup = "239.2.1.3"
	cfg.OutputPort = 40003
	return cfg
}

// Load reads the optional YAML file at path over the supplied defaults,
// then applies FEEDHANDLER_* environment overrides and validates.
func Load(path string, defaults Config) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("mode", defaults.Mode)
	v.SetDefault("conflation_interval_ms", defaults.ConflationIntervalMs)
	v.SetDefault("book_depth", defaults.BookDepth)
	v.SetDefault("book_max_orders", defaults.BookMaxOrders)
	v.SetDefault("input_group", defaults.InputGroup)
	v.SetDefault("input_port", defaults.InputPort)
	v.SetDefault("snapshot_group", defaults.SnapshotGroup)
	v.SetDefault("snapshot_port", defaults.SnapshotPort)
	v.SetDefault("output_group", defaults.OutputGroup)
	v.SetDefault("output_port", defaults.OutputPort)
	v.SetDefault("interface", defaults.Interface)
	v.SetDefault("output_ttl", defaults.OutputTTL)
	v.SetDefault("input_buffer", defaults.InputBuffer)
	v.SetDefault("recovery_timeout_ms", defaults.RecoveryTimeoutMs)
	v.SetDefault("stats_interval_sec", defaults.StatsIntervalSec)
	v.SetDefault("metrics_listen", defaults.MetricsListen)
	v.SetDefault("kafka.brokers", defaults.Kafka.Brokers)
	v.SetDefault("kafka.topic", defaults.Kafka.Topic)

	v.SetEnvPrefix("FEEDHANDLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("config: field %s fails %q", f.StructField(), f.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	if c.SnapshotGroup != "" && c.SnapshotPort == 0 {
		return errors.New("config: snapshot_group set without snapshot_port")
	}
	return nil
}

// MirrorEnabled reports whether the Kafka envelope mirror should run.
func (c *Config) MirrorEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

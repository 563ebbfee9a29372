package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the transport and logging settings of the monitor. The
// discovery timeout, window capacity and poll tick are fixed.
type Config struct {
	Receiver ReceiverConfig `yaml:"receiver"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ReceiverConfig controls the OTLP listener fed by the armband bridge.
type ReceiverConfig struct {
	Address string `yaml:"address"`
	Buffer  int    `yaml:"buffer"`
}

// MetricsConfig enables the Prometheus endpoint when Address is set.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load reads the YAML file at path, or at $EMG_RATE_CONFIG when path is
// empty, on top of the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("EMG_RATE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Receiver: ReceiverConfig{
			Address: ":4317",
			Buffer:  256,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func (c *Config) validate() error {
	if c.Receiver.Buffer < 1 {
		return fmt.Errorf("receiver buffer must be positive, got %d", c.Receiver.Buffer)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("EMG_RATE_RECEIVER_ADDRESS"); v != "" {
		cfg.Receiver.Address = v
	}
	if v := os.Getenv("EMG_RATE_BUFFER"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse EMG_RATE_BUFFER: %w", err)
		}
		cfg.Receiver.Buffer = size
	}
	if v := os.Getenv("EMG_RATE_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("EMG_RATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	switch v := os.Getenv("EMG_RATE_LOG_FORMAT"); v {
	case "":
	case "json":
		cfg.Logging.JSON = true
	case "text", "console":
		cfg.Logging.JSON = false
	default:
		return fmt.Errorf("invalid EMG_RATE_LOG_FORMAT %q, want json or text", v)
	}

	return nil
}

// Package config loads the agent configuration from an optional YAML file
// with environment-variable overrides on top.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type LokiConfig struct {
	URL         string        `yaml:"url"`
	TenantID    string        `yaml:"tenant_id"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Compress    bool          `yaml:"compress"`
	MaxAttempts uint          `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

type BatchConfig struct {
	SizeLimit             int           `yaml:"size_limit"`
	Period                time.Duration `yaml:"period"`
	QueueLimit            int           `yaml:"queue_limit"`
	EagerlyEmitFirstEvent bool          `yaml:"eager_first_event"`
	MinimumBackoff        time.Duration `yaml:"minimum_backoff"`
	MaximumBackoff        time.Duration `yaml:"maximum_backoff"`
	DropBatchThreshold    int           `yaml:"drop_batch_threshold"`
	DropQueueThreshold    int           `yaml:"drop_queue_threshold"`
}

type DaemonConfig struct {
	LogRootPath        string        `yaml:"log_root_path"`
	ScanInterval       time.Duration `yaml:"scan_interval"`
	MinWorkers         int           `yaml:"min_workers"`
	MaxWorkers         int           `yaml:"max_workers"`
	FileQueueSize      int           `yaml:"file_queue_size"`
	NodeName           string        `yaml:"node_name"`
	ScaleUpThreshold   float64       `yaml:"scale_up_threshold"`
	ScaleDownThreshold float64       `yaml:"scale_down_threshold"`
	ScaleCheckInterval time.Duration `yaml:"scale_check_interval"`
	FileIdleTimeout    time.Duration `yaml:"file_idle_timeout"`
}

type Config struct {
	Loki        LokiConfig   `yaml:"loki"`
	Batch       BatchConfig  `yaml:"batch"`
	Daemon      DaemonConfig `yaml:"daemon"`
	MetricsAddr string       `yaml:"metrics_addr"`
	SelfLog     bool         `yaml:"selflog"`
}

func Default() Config {
	return Config{
		Loki: LokiConfig{
			URL:         "http://loki:3100",
			MaxAttempts: 3,
			Timeout:     5 * time.Second,
		},
		Batch: BatchConfig{
			SizeLimit:  1000,
			Period:     5 * time.Second,
			QueueLimit: 100000,
		},
		Daemon: DaemonConfig{
			LogRootPath:        "/var/log/pods",
			ScanInterval:       30 * time.Second,
			MinWorkers:         2,
			MaxWorkers:         10,
			FileQueueSize:      50,
			NodeName:           "unknown",
			ScaleUpThreshold:   0.9,
			ScaleDownThreshold: 0.3,
			ScaleCheckInterval: 15 * time.Second,
			FileIdleTimeout:    5 * time.Minute,
		},
		MetricsAddr: ":9090",
	}
}

// Load builds the configuration from defaults, then the YAML file at path if
// path is non-empty, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "reading config file %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parsing config file %s", path)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Loki.URL = getEnv("LOKI_URL", c.Loki.URL)
	c.Loki.TenantID = getEnv("LOKI_TENANT_ID", c.Loki.TenantID)
	c.Loki.Username = getEnv("LOKI_USERNAME", c.Loki.Username)
	c.Loki.Password = getEnv("LOKI_PASSWORD", c.Loki.Password)
	c.Loki.Compress = getEnvAsBool("LOKI_COMPRESS", c.Loki.Compress)
	c.Loki.MaxAttempts = uint(getEnvAsInt("MAX_RETRIES", int(c.Loki.MaxAttempts)))

	c.Batch.SizeLimit = getEnvAsInt("BATCH_SIZE", c.Batch.SizeLimit)
	c.Batch.Period = getEnvAsDuration("BATCH_TIMEOUT", c.Batch.Period)
	c.Batch.QueueLimit = getEnvAsInt("QUEUE_LIMIT", c.Batch.QueueLimit)
	c.Batch.EagerlyEmitFirstEvent = getEnvAsBool("EAGER_FIRST_EVENT", c.Batch.EagerlyEmitFirstEvent)

	c.Daemon.LogRootPath = getEnv("LOG_PATH", c.Daemon.LogRootPath)
	c.Daemon.NodeName = getEnv("NODE_NAME", c.Daemon.NodeName)
	c.Daemon.MinWorkers = getEnvAsInt("MIN_WORKERS", c.Daemon.MinWorkers)
	c.Daemon.MaxWorkers = getEnvAsInt("MAX_WORKERS", c.Daemon.MaxWorkers)
	c.Daemon.FileQueueSize = getEnvAsInt("QUEUE_SIZE", c.Daemon.FileQueueSize)
	c.Daemon.ScanInterval = getEnvAsDuration("SCAN_INTERVAL", c.Daemon.ScanInterval)
	c.Daemon.ScaleUpThreshold = getEnvAsFloat("SCALE_UP_THRESHOLD", c.Daemon.ScaleUpThreshold)
	c.Daemon.ScaleDownThreshold = getEnvAsFloat("SCALE_DOWN_THRESHOLD", c.Daemon.ScaleDownThreshold)
	c.Daemon.ScaleCheckInterval = getEnvAsDuration("SCALE_CHECK_INTERVAL", c.Daemon.ScaleCheckInterval)
	c.Daemon.FileIdleTimeout = getEnvAsDuration("FILE_IDLE_TIMEOUT", c.Daemon.FileIdleTimeout)

	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.SelfLog = getEnvAsBool("SELFLOG", c.SelfLog)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseFloat(value, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob of the checker. Precedence is
// flags > environment > file > defaults.
type Config struct {
	// Check policy
	Targets  string `yaml:"targets" json:"targets"`
	WarnDays int    `yaml:"warn_days" json:"warn_days"`

	// Identity stamped onto emitted reports
	Probe string `yaml:"probe" json:"probe"`
	Run   string `yaml:"run" json:"run"`

	// Pacing
	RatePerHost float64 `yaml:"rate_per_host" json:"rate_per_host"`

	// Output
	Ingest          string `yaml:"ingest" json:"ingest"`
	OutputFormat    string `yaml:"output_format" json:"output_format"`
	BatchMaxReports int    `yaml:"batch_max_reports" json:"batch_max_reports"`
	BatchFlushSec   int    `yaml:"batch_flush_sec" json:"batch_flush_sec"`

	// Observability
	MetricsAddr  string `yaml:"metrics_addr" json:"metrics_addr"`
	OTELEndpoint string `yaml:"otel_endpoint" json:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure" json:"otel_insecure"`
	OTELService  string `yaml:"otel_service" json:"otel_service"`

	// Redis work queue
	RedisQueueAddr string `yaml:"redis_queue_addr" json:"redis_queue_addr"`
	RedisQueueKey  string `yaml:"redis_queue_key" json:"redis_queue_key"`
}

func (c *Config) SetDefaults() {
	if c.WarnDays == 0 {
		c.WarnDays = 7
	}
	if c.Probe == "" {
		c.Probe = "local-1"
	}
	if c.Run == "" {
		c.Run = fmt.Sprintf("run-%d", time.Now().Unix())
	}
	if c.RatePerHost == 0 {
		c.RatePerHost = 1.0
	}
	if c.BatchMaxReports == 0 {
		c.BatchMaxReports = 500
	}
	if c.BatchFlushSec == 0 {
		c.BatchFlushSec = 2
	}
	if c.OTELService == "" {
		c.OTELService = "sslexp"
	}
	if c.RedisQueueKey == "" {
		c.RedisQueueKey = "sslexp:queue"
	}
}

func (c *Config) Validate() error {
	if c.WarnDays < 0 {
		return fmt.Errorf("warn_days must not be negative")
	}
	if c.RatePerHost <= 0 {
		return fmt.Errorf("rate_per_host must be positive")
	}
	if c.BatchMaxReports < 1 {
		return fmt.Errorf("batch_max_reports must be at least 1")
	}
	if c.BatchFlushSec < 1 {
		return fmt.Errorf("batch_flush_sec must be at least 1")
	}
	switch c.OutputFormat {
	case "", "json", "jsonl", "csv":
	default:
		return fmt.Errorf("unsupported output_format: %s", c.OutputFormat)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// MergeWithFlags overlays command-line flag values onto the config.
func (c *Config) MergeWithFlags(flags map[string]interface{}) {
	if v, ok := flags["targets"].(string); ok && v != "" {
		c.Targets = v
	}
	if v, ok := flags["warn_days"].(int); ok && v > 0 {
		c.WarnDays = v
	}
	if v, ok := flags["probe"].(string); ok && v != "" {
		c.Probe = v
	}
	if v, ok := flags["run"].(string); ok && v != "" {
		c.Run = v
	}
	if v, ok := flags["rate"].(float64); ok && v > 0 {
		c.RatePerHost = v
	}
	if v, ok := flags["ingest"].(string); ok && v != "" {
		c.Ingest = v
	}
	if v, ok := flags["output_format"].(string); ok && v != "" {
		c.OutputFormat = v
	}
	if v, ok := flags["batch_max_reports"].(int); ok && v > 0 {
		c.BatchMaxReports = v
	}
	if v, ok := flags["batch_flush_sec"].(int); ok && v > 0 {
		c.BatchFlushSec = v
	}
	if v, ok := flags["metrics_addr"].(string); ok && v != "" {
		c.MetricsAddr = v
	}
	if v, ok := flags["otel_endpoint"].(string); ok && v != "" {
		c.OTELEndpoint = v
	}
	if v, ok := flags["otel_insecure"].(bool); ok {
		c.OTELInsecure = v
	}
	if v, ok := flags["otel_service"].(string); ok && v != "" {
		c.OTELService = v
	}
}

// LoadFromEnv picks up the Redis queue settings from the environment.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("REDIS_QUEUE_ADDR"); v != "" {
		c.RedisQueueAddr = v
	}
	if v := os.Getenv("REDIS_QUEUE_KEY"); v != "" {
		c.RedisQueueKey = v
	}
}

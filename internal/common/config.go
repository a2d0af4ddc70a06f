package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Queue       QueueConfig       `toml:"queue"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Crawler     CrawlerConfig     `toml:"crawler"`
	Embeddings  EmbeddingsConfig  `toml:"embeddings"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Logging     LoggingConfig     `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval   string `toml:"poll_interval"`   // e.g. "1s" - worker poll cadence when no wake-up arrives
	Concurrency    int    `toml:"concurrency"`     // Number of concurrent workers
	StaleThreshold string `toml:"stale_threshold"` // e.g. "10m" - processing jobs older than this get recovered
}

type PipelineConfig struct {
	StepTimeout  string `toml:"step_timeout"`  // bounded timeout per pipeline step, e.g. "90s"
	PolicyFile   string `toml:"policy_file"`   // per-provider retry/backoff policy (YAML)
	DebugErrors  bool   `toml:"debug_errors"`  // include stacktraces in classified errors
	MinTextChars int    `toml:"min_text_chars"` // below this, extraction counts as trivially short
}

// CrawlerConfig controls the HTTP fetch side of URL providers
type CrawlerConfig struct {
	UserAgent        string `toml:"user_agent"`
	RequestTimeout   string `toml:"request_timeout"`    // HTTP request timeout, e.g. "30s"
	MaxBodySize      int    `toml:"max_body_size"`      // Maximum response body size in bytes
	RequestsPerHost  int    `toml:"requests_per_host"`  // rate limit per host per second
	EnableJavaScript bool   `toml:"enable_javascript"`  // render with chromedp when static HTML looks empty
	JavaScriptWait   string `toml:"javascript_wait"`    // wait after navigation, e.g. "3s"
}

type EmbeddingsConfig struct {
	Mode       string `toml:"mode"`        // "genai" or "offline"
	Model      string `toml:"model"`       // e.g. "gemini-embedding-001"
	APIKey     string `toml:"api_key"`     // overridden by GEMINI_API_KEY env var
	ChunkSize  int    `toml:"chunk_size"`  // characters per chunk
	ChunkOverlap int  `toml:"chunk_overlap"`
}

type DiagnosticsConfig struct {
	Enabled       bool   `toml:"enabled"`         // provision the event schema
	LegacyLogPath string `toml:"legacy_log_path"` // flat fallback log when schema is absent
}

type SchedulerConfig struct {
	Enabled        bool   `toml:"enabled"`
	HealthSweep    string `toml:"health_sweep"`    // cron spec for the health sweep
	StaleRecovery  string `toml:"stale_recovery"`  // cron spec for stale job recovery
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// DefaultConfig returns configuration defaults applied before any file or
// environment override.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/brains"},
		},
		Queue: QueueConfig{
			PollInterval:   "1s",
			Concurrency:    4,
			StaleThreshold: "10m",
		},
		Pipeline: PipelineConfig{
			StepTimeout:  "90s",
			MinTextChars: 40,
		},
		Crawler: CrawlerConfig{
			UserAgent:       "brains-ingest/1.0",
			RequestTimeout:  "30s",
			MaxBodySize:     10 * 1024 * 1024,
			RequestsPerHost: 2,
			JavaScriptWait:  "3s",
		},
		Embeddings: EmbeddingsConfig{
			Mode:         "offline",
			Model:        "gemini-embedding-001",
			ChunkSize:    1200,
			ChunkOverlap: 150,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:       true,
			LegacyLogPath: "./data/ingest-fallback.log",
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			HealthSweep:   "*/5 * * * *",
			StaleRecovery: "* * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration: defaults -> files in order -> env.
// Later files override earlier ones; missing files are an error only when
// explicitly named.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides on top of the
// file configuration.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("BRAINS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("BRAINS_DATA_DIR"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("BRAINS_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.Embeddings.APIKey = v
		config.Embeddings.Mode = "genai"
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue concurrency must be at least 1")
	}
	if c.Storage.Badger.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if _, err := c.Queue.PollIntervalDuration(); err != nil {
		return err
	}
	if _, err := c.Pipeline.StepTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// PollIntervalDuration parses the poll interval
func (q *QueueConfig) PollIntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(q.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid queue poll_interval %q: %w", q.PollInterval, err)
	}
	return d, nil
}

// StaleThresholdDuration parses the stale job threshold
func (q *QueueConfig) StaleThresholdDuration() time.Duration {
	d, err := time.ParseDuration(q.StaleThreshold)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// StepTimeoutDuration parses the per-step timeout
func (p *PipelineConfig) StepTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(p.StepTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid pipeline step_timeout %q: %w", p.StepTimeout, err)
	}
	return d, nil
}

// RequestTimeoutDuration parses the crawler HTTP timeout
func (c *CrawlerConfig) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// JavaScriptWaitDuration parses the chromedp render wait
func (c *CrawlerConfig) JavaScriptWaitDuration() time.Duration {
	d, err := time.ParseDuration(c.JavaScriptWait)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

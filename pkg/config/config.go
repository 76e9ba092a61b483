package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for values like "20m"
type Duration time.Duration

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full service configuration
type Config struct {
	DataDir string `yaml:"data_dir"`

	API        APIConfig        `yaml:"api"`
	Hub        HubConfig        `yaml:"hub"`
	Processing ProcessingConfig `yaml:"processing"`
	Worker     WorkerConfig     `yaml:"worker"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// APIConfig configures the HTTP surface
type APIConfig struct {
	Addr           string   `yaml:"addr"`
	WebhookSecret  string   `yaml:"webhook_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	CacheTTL       Duration `yaml:"cache_ttl"`
	MaxAgeLong     int      `yaml:"max_age_long"`
	MaxAgeShort    int      `yaml:"max_age_short"`
}

// HubConfig configures the upstream hub client
type HubConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Token    string   `yaml:"token"`
	Timeout  Duration `yaml:"timeout"`
}

// ProcessingConfig holds the step computation knobs
type ProcessingConfig struct {
	ParquetBaseURL  string   `yaml:"parquet_base_url"`
	ContentMaxBytes int      `yaml:"content_max_bytes"`
	RowsMaxNumber   int      `yaml:"rows_max_number"`
	RowsMinNumber   int      `yaml:"rows_min_number"`
	RowsMaxBytes    int      `yaml:"rows_max_bytes"`
	CellMinBytes    int      `yaml:"cell_min_bytes"`
	Blocklist       []string `yaml:"blocklist"`
	RetryableCodes  []string `yaml:"retryable_codes"`
}

// WorkerConfig configures the job loops
type WorkerConfig struct {
	Concurrency         int      `yaml:"concurrency"`
	AllowedKinds        []string `yaml:"allowed_kinds"`
	MaxJobsPerNamespace int      `yaml:"max_jobs_per_namespace"`
	HeartbeatInterval   Duration `yaml:"heartbeat_interval"`
	MaxJobDuration      Duration `yaml:"max_job_duration"`
	PollMaxInterval     Duration `yaml:"poll_max_interval"`
}

// ReconcilerConfig configures the maintenance loop
type ReconcilerConfig struct {
	Interval           Duration `yaml:"interval"`
	BackfillSampleSize int      `yaml:"backfill_sample_size"`
	ZombieMaxSilence   Duration `yaml:"zombie_max_silence"`
	ZombieMaxDuration  Duration `yaml:"zombie_max_duration"`
	MaxJobAttempts     int      `yaml:"max_job_attempts"`
	FinishedJobTTL     Duration `yaml:"finished_job_ttl"`
}

// MetricsConfig configures the store gauge collector
type MetricsConfig struct {
	CollectInterval Duration `yaml:"collect_interval"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		DataDir: "./burrow-data",
		API: APIConfig{
			Addr:        ":8080",
			CacheTTL:    Duration(10 * time.Second),
			MaxAgeLong:  120,
			MaxAgeShort: 10,
		},
		Hub: HubConfig{
			Endpoint: "http://localhost:8900",
			Timeout:  Duration(30 * time.Second),
		},
		Processing: ProcessingConfig{
			ParquetBaseURL:  "https://assets.example.org/datasets",
			ContentMaxBytes: 10_000_000,
			RowsMaxNumber:   100,
			RowsMinNumber:   10,
			RowsMaxBytes:    1_000_000,
			CellMinBytes:    100,
		},
		Worker: WorkerConfig{
			Concurrency:         4,
			MaxJobsPerNamespace: 2,
			HeartbeatInterval:   Duration(10 * time.Second),
			MaxJobDuration:      Duration(20 * time.Minute),
			PollMaxInterval:     Duration(10 * time.Second),
		},
		Reconciler: ReconcilerConfig{
			Interval:           Duration(time.Minute),
			BackfillSampleSize: 100,
			ZombieMaxSilence:   Duration(5 * time.Minute),
			ZombieMaxDuration:  Duration(20 * time.Minute),
			MaxJobAttempts:     20,
			FinishedJobTTL:     Duration(7 * 24 * time.Hour),
		},
		Metrics: MetricsConfig{
			CollectInterval: Duration(30 * time.Second),
		},
	}
}

// Load reads the configuration: defaults, then the YAML file if path is
// non-empty, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides the settings commonly injected at deploy time
func (c *Config) applyEnv() {
	envString("BURROW_DATA_DIR", &c.DataDir)
	envString("BURROW_API_ADDR", &c.API.Addr)
	envString("BURROW_WEBHOOK_SECRET", &c.API.WebhookSecret)
	envString("BURROW_HUB_ENDPOINT", &c.Hub.Endpoint)
	envString("BURROW_HUB_TOKEN", &c.Hub.Token)
	envString("BURROW_PARQUET_BASE_URL", &c.Processing.ParquetBaseURL)
	envInt("BURROW_CONTENT_MAX_BYTES", &c.Processing.ContentMaxBytes)
	envInt("BURROW_ROWS_MAX_NUMBER", &c.Processing.RowsMaxNumber)
	envInt("BURROW_WORKER_CONCURRENCY", &c.Worker.Concurrency)
	envList("BURROW_BLOCKLIST", &c.Processing.Blocklist)
	envList("BURROW_WORKER_ALLOWED_KINDS", &c.Worker.AllowedKinds)
}

// Validate rejects configurations that cannot work
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Processing.RowsMinNumber > c.Processing.RowsMaxNumber {
		return fmt.Errorf("rows_min_number (%d) must not exceed rows_max_number (%d)",
			c.Processing.RowsMinNumber, c.Processing.RowsMaxNumber)
	}
	if c.Processing.ContentMaxBytes <= 0 {
		return fmt.Errorf("content_max_bytes must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be positive")
	}
	return nil
}

func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envList(key string, target *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		*target = out
	}
}

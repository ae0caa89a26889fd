package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to run the dashboard worker.
type Config struct {
	Worker      WorkerConfig      `yaml:"worker"`
	Transform   TransformConfig   `yaml:"transform"`
	Cache       CacheConfig       `yaml:"cache"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// WorkerConfig controls request coalescing and event delivery.
type WorkerConfig struct {
	DebounceWindow   time.Duration `yaml:"debounceWindow"`
	ProgressInterval time.Duration `yaml:"progressInterval"`
	EventBuffer      int           `yaml:"eventBuffer"`
	GracefulTimeout  time.Duration `yaml:"gracefulTimeout"`
}

// TransformConfig controls the chunked transformer's pacing.
type TransformConfig struct {
	ChunkSize      int           `yaml:"chunkSize"`
	YieldThreshold time.Duration `yaml:"yieldThreshold"`
	YieldDuration  time.Duration `yaml:"yieldDuration"`
}

// CacheConfig bounds the memo cache.
type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	MaxAge   time.Duration `yaml:"maxAge"`
}

// AggregationConfig controls endpoint/IP rollups derived from the summary.
type AggregationConfig struct {
	ExcludedEndpoints []string      `yaml:"excludedEndpoints"`
	Window            time.Duration `yaml:"window"`
	TopPercent        float64       `yaml:"topPercent"`
}

// IngestConfig configures the snapshot source polled by the demo binary.
type IngestConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	SnapshotPath string        `yaml:"snapshotPath"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("STATLENS_WORKER_CONFIG")
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

	applyEnvOverrides(&cfg)
	normalise(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Worker: WorkerConfig{
			DebounceWindow:   300 * time.Millisecond,
			ProgressInterval: 100 * time.Millisecond,
			EventBuffer:      128,
			GracefulTimeout:  10 * time.Second,
		},
		Transform: TransformConfig{
			ChunkSize:      100,
			YieldThreshold: 50 * time.Millisecond,
			YieldDuration:  5 * time.Millisecond,
		},
		Cache: CacheConfig{
			Capacity: 5,
			MaxAge:   5 * time.Minute,
		},
		Aggregation: AggregationConfig{
			ExcludedEndpoints: []string{"/metrics", "/healthz", "/api/v1/stats"},
			Window:            24 * time.Hour,
			TopPercent:        20,
		},
		Ingest: IngestConfig{
			SnapshotPath: "/api/v1/stats/snapshot",
			Interval:     10 * time.Second,
			Timeout:      5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Metrics: MetricsConfig{Address: ":2112"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STATLENS_WORKER_DEBOUNCE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.DebounceWindow = d
		}
	}
	if v := os.Getenv("STATLENS_WORKER_PROGRESS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.ProgressInterval = d
		}
	}
	if v := os.Getenv("STATLENS_WORKER_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transform.ChunkSize = n
		}
	}
	if v := os.Getenv("STATLENS_WORKER_YIELD_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transform.YieldThreshold = d
		}
	}
	if v := os.Getenv("STATLENS_WORKER_YIELD_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transform.YieldDuration = d
		}
	}
	if v := os.Getenv("STATLENS_WORKER_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Capacity = n
		}
	}
	if v := os.Getenv("STATLENS_WORKER_CACHE_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.MaxAge = d
		}
	}
	if v := os.Getenv("STATLENS_WORKER_EXCLUDED_ENDPOINTS"); v != "" {
		parts := strings.Split(v, ",")
		excluded := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				excluded = append(excluded, p)
			}
		}
		cfg.Aggregation.ExcludedEndpoints = excluded
	}
	if v := os.Getenv("STATLENS_WORKER_AGGREGATION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Aggregation.Window = d
		}
	}
	if v := os.Getenv("STATLENS_WORKER_TOP_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Aggregation.TopPercent = f
		}
	}
	if v := os.Getenv("STATLENS_WORKER_INGEST_BASE_URL"); v != "" {
		cfg.Ingest.BaseURL = v
	}
	if v := os.Getenv("STATLENS_WORKER_INGEST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.Interval = d
		}
	}
	if v := os.Getenv("STATLENS_WORKER_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("STATLENS_WORKER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STATLENS_WORKER_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

// normalise clamps nonsensical values back to the defaults so a partially
// filled config file cannot wedge the pipeline.
func normalise(cfg *Config) {
	def := defaultConfig()
	if cfg.Transform.ChunkSize <= 0 {
		cfg.Transform.ChunkSize = def.Transform.ChunkSize
	}
	if cfg.Transform.YieldThreshold <= 0 {
		cfg.Transform.YieldThreshold = def.Transform.YieldThreshold
	}
	if cfg.Transform.YieldDuration <= 0 {
		cfg.Transform.YieldDuration = def.Transform.YieldDuration
	}
	if cfg.Cache.Capacity <= 0 {
		cfg.Cache.Capacity = def.Cache.Capacity
	}
	if cfg.Cache.MaxAge <= 0 {
		cfg.Cache.MaxAge = def.Cache.MaxAge
	}
	if cfg.Worker.DebounceWindow <= 0 {
		cfg.Worker.DebounceWindow = def.Worker.DebounceWindow
	}
	if cfg.Worker.EventBuffer <= 0 {
		cfg.Worker.EventBuffer = def.Worker.EventBuffer
	}
	if cfg.Aggregation.TopPercent <= 0 || cfg.Aggregation.TopPercent > 100 {
		cfg.Aggregation.TopPercent = def.Aggregation.TopPercent
	}
}

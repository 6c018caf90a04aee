// Package config holds extractor configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend identifiers.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// Cancellation policies for a user-initiated stop.
const (
	// CancelDrain lets in-flight batch tasks finish naturally.
	CancelDrain = "drain"
	// CancelAbort propagates cancellation into in-flight extractions.
	CancelAbort = "abort"
)

// Config holds the full configuration surface of a run.
type Config struct {
	// Storage.
	Backend    string `yaml:"backend"`
	BucketName string `yaml:"bucket_name"`
	GCSPrefix  string `yaml:"gcs_prefix"`
	LocalDir   string `yaml:"local_dir"`
	RootFolder string `yaml:"root_folder"`

	// Product list source. A non-empty ProductListFile wins over CatalogURL.
	ProductListFile string `yaml:"product_list_file"`
	CatalogURL      string `yaml:"catalog_url"`

	// Extraction.
	HeadlessMode           bool          `yaml:"headless_mode"`
	DelayBetweenProducts   int           `yaml:"delay_between_products"` // seconds
	MaxParallelExtractions int           `yaml:"max_parallel_extractions"`
	MaxRetries             int           `yaml:"max_retries"`
	ExtractionTimeout      time.Duration `yaml:"extraction_timeout"`
	UserAgent              string        `yaml:"user_agent"`
	PageCacheSize          int           `yaml:"page_cache_size"`

	// Validation.
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	SlowExtractionLimit time.Duration `yaml:"slow_extraction_limit"`

	// Run behavior.
	CancelPolicy string `yaml:"cancel_policy"`
	MetricsAddr  string `yaml:"metrics_addr"`
	Verbose      bool   `yaml:"verbose"`
}

// DefaultConfig returns conservative defaults mirroring a typical
// cloud-first deployment.
func DefaultConfig() *Config {
	return &Config{
		Backend:                BackendLocal,
		LocalDir:               "output",
		RootFolder:             "data",
		HeadlessMode:           true,
		DelayBetweenProducts:   3,
		MaxParallelExtractions: 3,
		MaxRetries:             3,
		ExtractionTimeout:      45 * time.Second,
		UserAgent:              "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		PageCacheSize:          256,
		ConfidenceThreshold:    50.0,
		SlowExtractionLimit:    60 * time.Second,
		CancelPolicy:           CancelDrain,
	}
}

// Load builds a Config from defaults, an optional YAML file, and environment
// overrides, in that order. An empty path falls back to EXTRACTOR_CONFIG_FILE.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("EXTRACTOR_CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	cfg.Backend = envOr("EXTRACTOR_BACKEND", cfg.Backend)
	cfg.BucketName = envOr("EXTRACTOR_BUCKET", cfg.BucketName)
	cfg.GCSPrefix = envOr("EXTRACTOR_GCS_PREFIX", cfg.GCSPrefix)
	cfg.LocalDir = envOr("EXTRACTOR_LOCAL_DIR", cfg.LocalDir)
	cfg.RootFolder = envOr("EXTRACTOR_ROOT_FOLDER", cfg.RootFolder)
	cfg.ProductListFile = envOr("EXTRACTOR_PRODUCT_LIST", cfg.ProductListFile)
	cfg.CatalogURL = envOr("EXTRACTOR_CATALOG_URL", cfg.CatalogURL)
	cfg.HeadlessMode = envBoolOr("EXTRACTOR_HEADLESS", cfg.HeadlessMode)
	cfg.DelayBetweenProducts = envIntOr("EXTRACTOR_DELAY_SECONDS", cfg.DelayBetweenProducts)
	cfg.MaxParallelExtractions = envIntOr("EXTRACTOR_MAX_PARALLEL", cfg.MaxParallelExtractions)
	cfg.MaxRetries = envIntOr("EXTRACTOR_MAX_RETRIES", cfg.MaxRetries)
	cfg.ExtractionTimeout = envDurationOr("EXTRACTOR_TIMEOUT", cfg.ExtractionTimeout)
	cfg.UserAgent = envOr("EXTRACTOR_USER_AGENT", cfg.UserAgent)
	cfg.PageCacheSize = envIntOr("EXTRACTOR_PAGE_CACHE", cfg.PageCacheSize)
	cfg.ConfidenceThreshold = envFloatOr("EXTRACTOR_CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold)
	cfg.SlowExtractionLimit = envDurationOr("EXTRACTOR_SLOW_LIMIT", cfg.SlowExtractionLimit)
	cfg.CancelPolicy = envOr("EXTRACTOR_CANCEL_POLICY", cfg.CancelPolicy)
	cfg.MetricsAddr = envOr("EXTRACTOR_METRICS_ADDR", cfg.MetricsAddr)
	cfg.Verbose = envBoolOr("EXTRACTOR_VERBOSE", cfg.Verbose)

	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
		if c.LocalDir == "" {
			return fmt.Errorf("local dir cannot be empty")
		}
	case BackendGCS:
		if c.BucketName == "" {
			return fmt.Errorf("bucket name is required for the gcs backend")
		}
	default:
		return fmt.Errorf("backend must be %q or %q", BackendLocal, BackendGCS)
	}

	if c.RootFolder == "" {
		return fmt.Errorf("root folder cannot be empty")
	}
	if c.DelayBetweenProducts < 0 {
		return fmt.Errorf("delay between products cannot be negative")
	}
	if c.MaxParallelExtractions < 1 {
		return fmt.Errorf("max parallel extractions must be at least 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.ExtractionTimeout <= 0 {
		return fmt.Errorf("extraction timeout must be positive")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		return fmt.Errorf("confidence threshold must be in [0, 100]")
	}
	if c.SlowExtractionLimit <= 0 {
		return fmt.Errorf("slow extraction limit must be positive")
	}
	if c.CancelPolicy != CancelDrain && c.CancelPolicy != CancelAbort {
		return fmt.Errorf("cancel policy must be %q or %q", CancelDrain, CancelAbort)
	}
	if c.PageCacheSize < 1 {
		return fmt.Errorf("page cache size must be at least 1")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

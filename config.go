package redev

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// NATSConfig configures the NATS deployment used for cross-process coupling.
type NATSConfig struct {
	// URL is the NATS server URL shared by both applications.
	URL string `yaml:"url"`

	// DatasetBucket is the KV bucket holding staged datasets.
	DatasetBucket string `yaml:"datasetBucket"`

	// GroupBucket is the KV bucket carrying collective broadcasts within each
	// application's process group.
	GroupBucket string `yaml:"groupBucket"`

	// BucketTTL bounds how long dataset and broadcast keys linger (0 = no expiration).
	//
	// A TTL longer than the longest expected setup keeps stale datasets from a
	// crashed run from being picked up by the next one.
	BucketTTL time.Duration `yaml:"bucketTtl"`
}

// Config is the configuration for the Coupler.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// Dataset is the staged dataset name shared by both applications.
	// Both sides must agree on it.
	Dataset string `yaml:"dataset"`

	// SetupTimeout bounds the whole Setup call (0 = wait indefinitely).
	//
	// The handshake blocks until the other application shows up, so the
	// default is to wait.
	SetupTimeout time.Duration `yaml:"setupTimeout"`

	// Compression enables lz4 compression of staged blocks on the write side.
	Compression bool `yaml:"compression"`

	// NATS controls the NATS-backed transport and process group.
	NATS NATSConfig `yaml:"nats"`
}

// DatasetName is the default dataset name.
const DatasetName = "rendezvous"

var (
	datasetPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	bucketPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		Dataset:      DatasetName,
		SetupTimeout: 0, // wait for the other side indefinitely
		Compression:  false,
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			DatasetBucket: "redev-dataset",
			GroupBucket:   "redev-group",
			BucketTTL:     10 * time.Minute,
		},
	}
}

// SetDefaults fills in missing configuration values with defaults.
//
// Zero durations are kept: they mean "no limit".
//
// Parameters:
//   - cfg: Configuration to fill in place
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Dataset == "" {
		cfg.Dataset = defaults.Dataset
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = defaults.NATS.URL
	}
	if cfg.NATS.DatasetBucket == "" {
		cfg.NATS.DatasetBucket = defaults.NATS.DatasetBucket
	}
	if cfg.NATS.GroupBucket == "" {
		cfg.NATS.GroupBucket = defaults.NATS.GroupBucket
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Rules:
//   - Dataset is a single key token of [A-Za-z0-9_-]
//   - SetupTimeout and BucketTTL are not negative
//   - Bucket names are valid JetStream KV bucket names and differ
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if !datasetPattern.MatchString(cfg.Dataset) {
		return fmt.Errorf("%w: dataset %q must match %s", ErrInvalidConfig, cfg.Dataset, datasetPattern)
	}
	if cfg.SetupTimeout < 0 {
		return fmt.Errorf("%w: setupTimeout must be >= 0, got %v", ErrInvalidConfig, cfg.SetupTimeout)
	}
	if cfg.NATS.BucketTTL < 0 {
		return fmt.Errorf("%w: nats.bucketTtl must be >= 0, got %v", ErrInvalidConfig, cfg.NATS.BucketTTL)
	}
	for _, b := range []string{cfg.NATS.DatasetBucket, cfg.NATS.GroupBucket} {
		if !bucketPattern.MatchString(b) {
			return fmt.Errorf("%w: bucket name %q must match %s", ErrInvalidConfig, b, bucketPattern)
		}
	}
	if cfg.NATS.DatasetBucket == cfg.NATS.GroupBucket {
		return fmt.Errorf("%w: dataset and group buckets must differ, both are %q", ErrInvalidConfig, cfg.NATS.GroupBucket)
	}

	return nil
}

// LoadConfig reads a YAML configuration file, fills in defaults and validates it.
//
// Parameters:
//   - path: Path to a YAML file
//
// Returns:
//   - Config: Loaded configuration
//   - error: Read, parse or validation error
//
// Example:
//
//	cfg, err := redev.LoadConfig("redev.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// TestConfig returns a configuration for fast test execution.
//
// Setups that cannot complete fail after a few seconds instead of hanging.
//
// Returns:
//   - Config: Configuration with a bounded setup
func TestConfig() Config {
	cfg := DefaultConfig()
	cfg.SetupTimeout = 10 * time.Second
	cfg.NATS.BucketTTL = time.Minute

	return cfg
}

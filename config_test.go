package redev

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "rendezvous", cfg.Dataset)
	require.Zero(t, cfg.SetupTimeout)
	require.False(t, cfg.Compression)
	require.Equal(t, "redev-dataset", cfg.NATS.DatasetBucket)
	require.Equal(t, "redev-group", cfg.NATS.GroupBucket)
	require.Equal(t, 10*time.Minute, cfg.NATS.BucketTTL)
	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, "rendezvous", cfg.Dataset)
		require.Equal(t, "redev-dataset", cfg.NATS.DatasetBucket)
		require.Zero(t, cfg.NATS.BucketTTL, "zero TTL means no expiration and is kept")
		require.NoError(t, cfg.Validate())
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			Dataset:      "mesh-exchange",
			SetupTimeout: time.Minute,
			NATS: NATSConfig{
				URL:           "nats://coupling:4222",
				DatasetBucket: "ds",
				GroupBucket:   "grp",
			},
		}
		SetDefaults(&cfg)

		require.Equal(t, "mesh-exchange", cfg.Dataset)
		require.Equal(t, time.Minute, cfg.SetupTimeout)
		require.Equal(t, "nats://coupling:4222", cfg.NATS.URL)
		require.Equal(t, "ds", cfg.NATS.DatasetBucket)
		require.Equal(t, "grp", cfg.NATS.GroupBucket)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"dataset with dot", func(c *Config) { c.Dataset = "a.b" }},
		{"empty dataset", func(c *Config) { c.Dataset = "" }},
		{"negative timeout", func(c *Config) { c.SetupTimeout = -time.Second }},
		{"negative ttl", func(c *Config) { c.NATS.BucketTTL = -time.Second }},
		{"bad bucket", func(c *Config) { c.NATS.GroupBucket = "a b" }},
		{"same buckets", func(c *Config) { c.NATS.GroupBucket = c.NATS.DatasetBucket }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

// TestConfig_YAML demonstrates that time.Duration works directly with YAML unmarshaling
func TestConfig_YAML(t *testing.T) {
	yamlConfig := `
dataset: coupling
setupTimeout: 45s
compression: true
nats:
  url: nats://nats:4222
  datasetBucket: cpl-dataset
  groupBucket: cpl-group
  bucketTtl: 2m
`

	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(yamlConfig), &cfg))

	require.Equal(t, "coupling", cfg.Dataset)
	require.Equal(t, 45*time.Second, cfg.SetupTimeout)
	require.True(t, cfg.Compression)
	require.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	require.Equal(t, 2*time.Minute, cfg.NATS.BucketTTL)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("partial file gets defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		require.NoError(t, os.WriteFile(path, []byte("setupTimeout: 5s\n"), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, 5*time.Second, cfg.SetupTimeout)
		require.Equal(t, "rendezvous", cfg.Dataset)
		require.Equal(t, "redev-group", cfg.NATS.GroupBucket)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("dataset: a.b\n"), 0o600))

		_, err := LoadConfig(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "malformed.yaml")
		require.NoError(t, os.WriteFile(path, []byte("dataset: [\n"), 0o600))

		_, err := LoadConfig(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "absent.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

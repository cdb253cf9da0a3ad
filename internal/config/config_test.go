package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, 15, cfg.Batch.ChunkSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Batch.ChunkDelay)
	assert.Equal(t, 5, cfg.Jobs.Workers)
	assert.Equal(t, 0, cfg.Jobs.MaxRetries)
	assert.Equal(t, "default", cfg.Company.DefaultID)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OFXINGEST_SERVER_PORT", "9090")
	t.Setenv("OFXINGEST_BATCH_CHUNK_SIZE", "20")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 20, cfg.Batch.ChunkSize)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: gcs\n  bucket: raw-ofx\n"), 0o644))
	t.Setenv("OFXINGEST_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gcs", cfg.Storage.Backend)
	assert.Equal(t, "raw-ofx", cfg.Storage.Bucket)
}

func TestValidate(t *testing.T) {
	base := Config{
		Storage: StorageConfig{Backend: "local", LocalDir: "x"},
		Batch:   BatchConfig{ChunkSize: 15},
		Jobs:    JobsConfig{Workers: 1},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"gcs without bucket", func(c *Config) { c.Storage = StorageConfig{Backend: "gcs"} }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }},
		{"warehouse without project", func(c *Config) { c.Warehouse.Enabled = true }},
		{"zero chunk size", func(c *Config) { c.Batch.ChunkSize = 0 }},
		{"zero workers", func(c *Config) { c.Jobs.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

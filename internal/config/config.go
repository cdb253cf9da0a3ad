package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	GCP       GCPConfig
	Warehouse WarehouseConfig
	AI        AIConfig
	Company   CompanyConfig
	Batch     BatchConfig
	Jobs      JobsConfig
	Upload    UploadConfig
}

type ServerConfig struct {
	Port string
}

type LogConfig struct {
	Level string
	JSON  bool
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// StorageConfig selects where raw statement files are kept.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	LocalDir string `mapstructure:"local_dir"`
	Bucket   string `mapstructure:"bucket"`
}

type GCPConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// WarehouseConfig controls the BigQuery export of processed transactions.
type WarehouseConfig struct {
	Enabled bool
	Dataset string
}

// AIConfig controls the Gemini fallbacks for bank names and categories.
type AIConfig struct {
	Enabled bool
	Model   string
}

type CompanyConfig struct {
	DefaultID string `mapstructure:"default_id"`
}

// BatchConfig tunes the chunked processing loop.
type BatchConfig struct {
	ChunkSize  int           `mapstructure:"chunk_size"`
	ChunkDelay time.Duration `mapstructure:"chunk_delay"`
}

type JobsConfig struct {
	Workers    int
	Buffer     int
	MaxRetries int `mapstructure:"max_retries"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

const envPrefix = "OFXINGEST"

// Load reads configuration from an optional .env file, an optional config file
// and the environment. Env var overrides use prefix OFXINGEST_.
func Load() (Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if cfgPath := os.Getenv(envPrefix + "_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("database.path", "ofx-ingest.db")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "storage")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")
	v.SetDefault("warehouse.enabled", false)
	v.SetDefault("warehouse.dataset", "finance")
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("company.default_id", "default")
	v.SetDefault("batch.chunk_size", 15)
	v.SetDefault("batch.chunk_delay", 500*time.Millisecond)
	v.SetDefault("jobs.workers", 5)
	v.SetDefault("jobs.buffer", 100)
	v.SetDefault("jobs.max_retries", 0)
	v.SetDefault("upload.max_bytes", int64(10<<20))
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("config: storage.local_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("config: storage.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Warehouse.Enabled && c.GCP.ProjectID == "" {
		return fmt.Errorf("config: gcp.project_id is required when warehouse.enabled")
	}
	if c.Batch.ChunkSize <= 0 {
		return fmt.Errorf("config: batch.chunk_size must be positive")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("config: jobs.workers must be positive")
	}
	return nil
}

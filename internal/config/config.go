// Package config loads process configuration from DECKCORE_* environment
// variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"deckcore/internal/blob"
	"deckcore/internal/core"
)

// Config is the full process configuration.
type Config struct {
	StorageDriver string `env:"DECKCORE_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"DECKCORE_SQLITE_PATH"`
	PostgresDSN   string `env:"DECKCORE_POSTGRES_DSN"`

	BlobDriver string   `env:"DECKCORE_BLOB_DRIVER" envDefault:"fs"`
	BlobFSRoot string   `env:"DECKCORE_BLOB_FS_ROOT"`
	S3         S3Config `envPrefix:"DECKCORE_BLOB_S3_"`

	LogLevel       string  `env:"DECKCORE_LOG_LEVEL" envDefault:"info"`
	OffsetWarnMM   float64 `env:"DECKCORE_OFFSET_WARN_MM" envDefault:"5"`
	MetricsEnabled bool    `env:"DECKCORE_METRICS_ENABLED" envDefault:"false"`
	// TraceFile receives one JSON line per service operation when set.
	TraceFile string `env:"DECKCORE_TRACE_FILE"`
}

// S3Config holds the DECKCORE_BLOB_S3_* variables.
type S3Config struct {
	Region          string `env:"REGION"`
	Bucket          string `env:"BUCKET"`
	Prefix          string `env:"PREFIX"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	SessionToken    string `env:"SESSION_TOKEN"`
	PathStyle       bool   `env:"PATH_STYLE"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the process environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Storage returns the offset store selection.
func (c Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
	}
}

// Blob returns the definition store selection.
func (c Config) Blob() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.BlobDriver),
		FSRoot: c.BlobFSRoot,
		S3: blob.S3Config{
			Region:          c.S3.Region,
			Bucket:          c.S3.Bucket,
			Prefix:          c.S3.Prefix,
			Endpoint:        c.S3.Endpoint,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			SessionToken:    c.S3.SessionToken,
			PathStyle:       c.S3.PathStyle,
		},
	}
}

// Logger builds a production zap logger at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

package config

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"deckcore/internal/blob"
	"deckcore/internal/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage().Driver != core.StorageSQLite {
		t.Fatalf("expected sqlite default, got %q", cfg.StorageDriver)
	}
	if cfg.Blob().Driver != blob.DriverFilesystem {
		t.Fatalf("expected fs blob default, got %q", cfg.BlobDriver)
	}
	if cfg.OffsetWarnMM != 5 || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DECKCORE_STORAGE_DRIVER", "postgres")
	t.Setenv("DECKCORE_POSTGRES_DSN", "postgres://db/deck")
	t.Setenv("DECKCORE_BLOB_DRIVER", "s3")
	t.Setenv("DECKCORE_BLOB_S3_BUCKET", "definitions")
	t.Setenv("DECKCORE_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("DECKCORE_OFFSET_WARN_MM", "2.5")
	t.Setenv("DECKCORE_LOG_LEVEL", "debug")
	t.Setenv("DECKCORE_TRACE_FILE", "/tmp/deckcore-trace.jsonl")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	st := cfg.Storage()
	if st.Driver != core.StoragePostgres || st.PostgresDSN != "postgres://db/deck" {
		t.Fatalf("unexpected storage %+v", st)
	}
	b := cfg.Blob()
	if b.Driver != blob.DriverS3 || b.S3.Bucket != "definitions" || !b.S3.PathStyle {
		t.Fatalf("unexpected blob config %+v", b)
	}
	if cfg.OffsetWarnMM != 2.5 {
		t.Fatalf("unexpected warn limit %v", cfg.OffsetWarnMM)
	}
	if cfg.TraceFile != "/tmp/deckcore-trace.jsonl" {
		t.Fatalf("unexpected trace file %q", cfg.TraceFile)
	}
	logger, err := cfg.Logger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug level enabled")
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("DECKCORE_OFFSET_WARN_MM", "wide")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}

	if _, err := (Config{LogLevel: "loud"}).Logger(); err == nil {
		t.Fatalf("expected log level error")
	}
}

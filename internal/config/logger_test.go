package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/simp-lee/logger"
)

func boolPtr(b bool) *bool { return &b }

func TestSetupLogger_NilConfig(t *testing.T) {
	if _, err := SetupLogger(nil); err == nil {
		t.Fatal("SetupLogger(nil) expected error, got nil")
	}
}

func TestSetupLogger_LevelMapping(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"invalid defaults to info", "invalid", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := SetupLogger(&LogConfig{Level: tt.level, Format: "text"})
			if err != nil {
				t.Fatalf("SetupLogger error: %v", err)
			}
			defer log.Close()

			if !log.Enabled(context.TODO(), tt.wantLevel) {
				t.Errorf("expected level %v to be enabled", tt.wantLevel)
			}
			if tt.wantLevel > slog.LevelDebug && log.Enabled(context.TODO(), tt.wantLevel-1) {
				t.Errorf("expected level %v to be disabled (configured: %v)", tt.wantLevel-1, tt.wantLevel)
			}
		})
	}
}

func TestSetupLogger_SetsDefault(t *testing.T) {
	log, err := SetupLogger(&LogConfig{Level: "warn", Format: "text"})
	if err != nil {
		t.Fatalf("SetupLogger error: %v", err)
	}
	defer log.Close()

	if slog.Default().Handler() != log.Handler() {
		t.Error("SetupLogger did not set slog.Default()")
	}
}

func TestSetupLogger_WritesFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "crmdesk.log")

	log, err := SetupLogger(&LogConfig{
		Level:    "info",
		Format:   "json",
		Color:    boolPtr(false),
		FilePath: filePath,
	})
	if err != nil {
		t.Fatalf("SetupLogger error: %v", err)
	}
	log.Info("view mounted", slog.String("entity", "RealEstateProperty"))
	if err := log.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if _, err := os.Stat(filePath); err != nil {
		t.Errorf("expected log file at %s: %v", filePath, err)
	}
}

func TestBuildLoggerOpts(t *testing.T) {
	// Level, Middleware, ConsoleFormat and ConsoleColor are always present.
	const baseCount = 4
	const fileBaseCount = baseCount + 2

	tests := []struct {
		name      string
		cfg       *LogConfig
		wantCount int
	}{
		{"console text", &LogConfig{Level: "debug", Format: "text"}, baseCount},
		{"unknown format", &LogConfig{Level: "info", Format: "whatever"}, baseCount},
		{"color disabled", &LogConfig{Level: "info", Format: "text", Color: boolPtr(false)}, baseCount},
		{"file", &LogConfig{Level: "info", Format: "json", FilePath: "/tmp/crmdesk.log"}, fileBaseCount},
		{"file with max size", &LogConfig{Level: "info", Format: "text", FilePath: "/tmp/crmdesk.log", MaxSizeMB: 10}, fileBaseCount + 1},
		{"file with compress false", &LogConfig{Level: "info", Format: "text", FilePath: "/tmp/crmdesk.log", CompressRotated: boolPtr(false)}, fileBaseCount + 1},
		{"file with all rotation fields", &LogConfig{
			Level: "info", Format: "json", FilePath: "/tmp/crmdesk.log",
			MaxSizeMB: 50, RetentionDays: 30, MaxBackups: 5, CompressRotated: boolPtr(true),
		}, fileBaseCount + 4},
		{"rotation ignored without file", &LogConfig{Level: "info", Format: "text", MaxSizeMB: 50, MaxBackups: 5}, baseCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(BuildLoggerOpts(tt.cfg)); got != tt.wantCount {
				t.Errorf("option count = %d, want %d", got, tt.wantCount)
			}
		})
	}

	if opts := BuildLoggerOpts(nil); opts != nil {
		t.Errorf("BuildLoggerOpts(nil) = %d options, want nil", len(opts))
	}
}

func TestBuildLoggerOpts_ProducesValidLogger(t *testing.T) {
	cfg := &LogConfig{
		Level: "info", Format: "json", FilePath: filepath.Join(t.TempDir(), "opts.log"),
		MaxSizeMB: 10, RetentionDays: 7, MaxBackups: 3, CompressRotated: boolPtr(true),
	}
	log, err := logger.New(BuildLoggerOpts(cfg)...)
	if err != nil {
		t.Fatalf("logger.New failed: %v", err)
	}
	defer log.Close()

	if !log.Enabled(context.TODO(), slog.LevelInfo) || log.Enabled(context.TODO(), slog.LevelDebug) {
		t.Error("expected info enabled and debug disabled")
	}
}

package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/suivivente")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.SessionCookieName != "sv_sess" || cfg.SessionTTL != 12*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ImportBatchSize != 50 || cfg.ImportMaxRows != 5000 || cfg.ImportMaxFileBytes != 25*1024*1024 {
		t.Fatalf("unexpected import defaults: %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("log level: %v", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/suivivente")
	t.Setenv("IMPORT_BATCH_SIZE", "10")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("IMPORT_MAX_ROWS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ImportBatchSize != 10 {
		t.Fatalf("batch size: %d", cfg.ImportBatchSize)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins: %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.SecureCookies {
		t.Fatal("prod forces secure cookies")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("log level: %v", cfg.LogLevel)
	}
	if cfg.ImportMaxRows != 5000 {
		t.Fatalf("invalid int must fall back, got %d", cfg.ImportMaxRows)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadRejectsBatchSize(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/suivivente")
	t.Setenv("IMPORT_BATCH_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero batch size")
	}
}

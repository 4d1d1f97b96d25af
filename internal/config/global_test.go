package config

import (
	"testing"
	"time"
)

// envVars lists every override read by applyEnvOverrides.
var envVars = []string{
	"TRAEFIKDNS_LOG_LEVEL",
	"TRAEFIKDNS_LOG_FORMAT",
	"TRAEFIKDNS_INTERVAL",
	"TRAEFIKDNS_DRY_RUN",
	"TRAEFIKDNS_OWNER_ID",
	"TRAEFIKDNS_OWNERSHIP_PREFIX",
	"TRAEFIKDNS_CONCURRENCY",
	"TRAEFIKDNS_PUSHGATEWAY_URL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.LogFormat != DefaultLogFormat {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, DefaultLogFormat)
	}
	if cfg.Interval != DefaultInterval {
		t.Errorf("Interval = %v, want %v", cfg.Interval, DefaultInterval)
	}
	if cfg.DryRun {
		t.Error("DryRun should default to false")
	}
	if cfg.DefaultTTL != 0 {
		t.Errorf("DefaultTTL = %d, want 0", cfg.DefaultTTL)
	}
}

func TestApplyEnvOverrides_Unset(t *testing.T) {
	clearEnv(t)

	cfg := defaults()
	if errs := applyEnvOverrides(cfg); len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if cfg.Interval != DefaultInterval || cfg.OwnerID != "default" {
		t.Errorf("expected defaults to survive, got %+v", cfg)
	}
}

func TestApplyEnvOverrides_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRAEFIKDNS_LOG_LEVEL", "DEBUG")
	t.Setenv("TRAEFIKDNS_LOG_FORMAT", "Text")
	t.Setenv("TRAEFIKDNS_INTERVAL", "5m")
	t.Setenv("TRAEFIKDNS_DRY_RUN", "yes")
	t.Setenv("TRAEFIKDNS_OWNER_ID", "cluster-a")
	t.Setenv("TRAEFIKDNS_OWNERSHIP_PREFIX", "_owner")
	t.Setenv("TRAEFIKDNS_CONCURRENCY", "8")
	t.Setenv("TRAEFIKDNS_PUSHGATEWAY_URL", "http://pushgateway:9091")

	cfg := defaults()
	if errs := applyEnvOverrides(cfg); len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want text", cfg.LogFormat)
	}
	if cfg.Interval != 5*time.Minute {
		t.Errorf("Interval = %v, want 5m", cfg.Interval)
	}
	if !cfg.DryRun {
		t.Error("DryRun should be true")
	}
	if cfg.OwnerID != "cluster-a" {
		t.Errorf("OwnerID = %q, want cluster-a", cfg.OwnerID)
	}
	if cfg.OwnershipPrefix != "_owner" {
		t.Errorf("OwnershipPrefix = %q, want _owner", cfg.OwnershipPrefix)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
	if cfg.Metrics.PushURL != "http://pushgateway:9091" {
		t.Errorf("PushURL = %q, want http://pushgateway:9091", cfg.Metrics.PushURL)
	}
}

func TestApplyEnvOverrides_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad interval", "TRAEFIKDNS_INTERVAL", "invalid"},
		{"interval without unit", "TRAEFIKDNS_INTERVAL", "60"},
		{"bad concurrency", "TRAEFIKDNS_CONCURRENCY", "four"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg := defaults()
			errs := applyEnvOverrides(cfg)
			if len(errs) != 1 {
				t.Errorf("expected 1 error for %s=%q, got %v", tt.key, tt.value, errs)
			}
			if cfg.Interval != DefaultInterval || cfg.Concurrency != DefaultConcurrency {
				t.Errorf("expected values to be left alone, got interval=%s concurrency=%d", cfg.Interval, cfg.Concurrency)
			}
		})
	}
}

func TestApplyEnvOverrides_DryRunKeepsValueOnGarbage(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRAEFIKDNS_DRY_RUN", "maybe")

	cfg := defaults()
	cfg.DryRun = true
	applyEnvOverrides(cfg)
	if !cfg.DryRun {
		t.Error("expected unparsable DRY_RUN to keep the file value")
	}
}

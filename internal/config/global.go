package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/traefik-dns/internal/ownership"
	"gitlab.bluewillows.net/root/traefik-dns/internal/retry"
)

// EnvPrefix is prepended to every environment variable read by this package.
const EnvPrefix = "TRAEFIKDNS_"

// Global configuration defaults.
const (
	DefaultConfigPath      = "/etc/traefik-dns/config.yml"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultInterval        = 60 * time.Second
	DefaultConcurrency     = 4
	DefaultProviderTimeout = 30 * time.Second
	DefaultSourceTimeout   = 10 * time.Second
	DefaultMetricsJob      = "traefik-dns"
)

// applyEnvOverrides replaces file values with TRAEFIKDNS_* environment
// variables. Environment variables always take precedence over the file.
func applyEnvOverrides(cfg *Config) []string {
	var errs []string

	if v := getEnv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getEnv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	if v := getEnv(EnvPrefix + "INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sINTERVAL: invalid duration %q (use format like 60s, 5m)", EnvPrefix, v))
		} else {
			cfg.Interval = interval
		}
	}

	if v := getEnv(EnvPrefix + "DRY_RUN"); v != "" {
		cfg.DryRun = parseBool(v, cfg.DryRun)
	}

	if v := getEnv(EnvPrefix + "OWNER_ID"); v != "" {
		cfg.OwnerID = v
	}
	if v := getEnv(EnvPrefix + "OWNERSHIP_PREFIX"); v != "" {
		cfg.OwnershipPrefix = v
	}

	if v := getEnv(EnvPrefix + "CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sCONCURRENCY: invalid integer %q", EnvPrefix, v))
		} else {
			cfg.Concurrency = n
		}
	}

	if v := getEnv(EnvPrefix + "PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushURL = v
	}

	return errs
}

// defaults returns a Config carrying every default value.
func defaults() *Config {
	return &Config{
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		Interval:        DefaultInterval,
		Concurrency:     DefaultConcurrency,
		OwnerID:         ownership.DefaultOwnerID,
		OwnershipPrefix: ownership.DefaultPrefix,
		Retry:           retry.DefaultPolicy(),
		Metrics:         MetricsConfig{Job: DefaultMetricsJob},
	}
}

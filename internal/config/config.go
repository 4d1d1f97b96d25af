// Package config loads and validates traefik-dns configuration from a YAML
// or TOML file, with environment variable interpolation and overrides.
package config

import (
	"time"

	"gitlab.bluewillows.net/root/traefik-dns/internal/retry"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
)

// Config holds the runtime configuration after defaults, environment
// overrides and validation have been applied.
type Config struct {
	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// Loop
	Interval     time.Duration
	CycleTimeout time.Duration
	DryRun       bool
	Concurrency  int // max zones listed or applied at once

	// Ownership markers
	OwnerID         string
	OwnershipPrefix string

	// DefaultTTL applies to zones that set no ttl. Zero means the TTL of
	// existing records is left alone.
	DefaultTTL int

	// Retry is the backoff policy for provider operations.
	Retry retry.Policy

	Sources   []*SourceConfig
	Providers []*ProviderConfig
	Zones     []*ZoneConfig

	Metrics MetricsConfig
}

// SourceConfig configures one proxy source.
type SourceConfig struct {
	Name string
	Type string // traefik, traefik-v1, file, docker

	// API sources
	URL           string
	Username      string
	Password      string
	Token         string
	Timeout       time.Duration
	TLSSkipVerify bool
	PageSize      int

	// File source
	Paths   []string
	Pattern string

	// Docker source
	DockerHost    string
	CleanupOnStop bool

	// Target overrides the zone target for every rule from this source.
	Target *source.Target
}

// ProviderConfig configures one DNS provider instance.
type ProviderConfig struct {
	Name string
	Type string // route53, cloudflare, rfc2136

	RateLimit float64       // requests per second, 0 disables limiting
	Burst     int           // limiter burst
	Timeout   time.Duration // per call
	BatchSize int           // max changes per batch, 0 uses the applier default

	// Config holds backend-specific settings with upper-cased keys.
	// Keys ending in _FILE have already been replaced by the file contents.
	Config map[string]string
}

// ZoneConfig maps a domain suffix to a provider.
type ZoneConfig struct {
	Name       string
	Provider   string
	ID         string
	Target     string
	RecordType provider.RecordType
	TTL        int
	Mode       provider.OperationalMode
	Exclude    []string
}

// MetricsConfig configures the optional Pushgateway push after each cycle.
type MetricsConfig struct {
	PushURL  string
	Job      string
	Instance string
}

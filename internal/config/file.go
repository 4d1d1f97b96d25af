package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"gitlab.bluewillows.net/root/traefik-dns/internal/retry"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
)

// FileConfig represents the configuration file structure.
// This mirrors the runtime Config but uses file-friendly types.
type FileConfig struct {
	Log *FileLogConfig `yaml:"log,omitempty" toml:"log"`

	Interval        string `yaml:"interval,omitempty" toml:"interval"`           // Go duration format (e.g., "60s", "5m")
	CycleTimeout    string `yaml:"cycle_timeout,omitempty" toml:"cycle_timeout"` // defaults to interval
	OwnerID         string `yaml:"owner_id,omitempty" toml:"owner_id"`
	OwnershipPrefix string `yaml:"ownership_prefix,omitempty" toml:"ownership_prefix"`
	DryRun          *bool  `yaml:"dry_run,omitempty" toml:"dry_run"` // Pointer to distinguish unset from false
	Concurrency     int    `yaml:"concurrency,omitempty" toml:"concurrency"`
	DefaultTTL      int    `yaml:"default_ttl,omitempty" toml:"default_ttl"`

	Retry *FileRetryConfig `yaml:"retry,omitempty" toml:"retry"`

	Sources   []FileSourceConfig   `yaml:"sources,omitempty" toml:"sources"`
	Providers []FileProviderConfig `yaml:"providers,omitempty" toml:"providers"`
	Zones     []FileZoneConfig     `yaml:"zones,omitempty" toml:"zones"`

	Metrics *FileMetricsConfig `yaml:"metrics,omitempty" toml:"metrics"`
}

// FileLogConfig holds logging settings.
type FileLogConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format"` // json, text
}

// FileRetryConfig holds the provider retry policy.
type FileRetryConfig struct {
	MaxAttempts     int      `yaml:"max_attempts,omitempty" toml:"max_attempts"`
	InitialInterval string   `yaml:"initial_interval,omitempty" toml:"initial_interval"`
	MaxInterval     string   `yaml:"max_interval,omitempty" toml:"max_interval"`
	MaxElapsed      string   `yaml:"max_elapsed,omitempty" toml:"max_elapsed"`
	Multiplier      float64  `yaml:"multiplier,omitempty" toml:"multiplier"`
	Jitter          *float64 `yaml:"jitter,omitempty" toml:"jitter"` // 0 disables jitter
}

// FileSourceConfig holds configuration for a proxy source.
type FileSourceConfig struct {
	Name          string            `yaml:"name" toml:"name"`
	Type          string            `yaml:"type" toml:"type"` // traefik, traefik-v1, file, docker
	URL           string            `yaml:"url,omitempty" toml:"url"`
	Username      string            `yaml:"username,omitempty" toml:"username"`
	Password      string            `yaml:"password,omitempty" toml:"password"`
	PasswordFile  string            `yaml:"password_file,omitempty" toml:"password_file"`
	Token         string            `yaml:"token,omitempty" toml:"token"`
	TokenFile     string            `yaml:"token_file,omitempty" toml:"token_file"`
	Timeout       string            `yaml:"timeout,omitempty" toml:"timeout"`
	TLSSkipVerify bool              `yaml:"tls_skip_verify,omitempty" toml:"tls_skip_verify"`
	PageSize      int               `yaml:"page_size,omitempty" toml:"page_size"`
	Paths         []string          `yaml:"paths,omitempty" toml:"paths"`
	Pattern       string            `yaml:"pattern,omitempty" toml:"pattern"`
	DockerHost    string            `yaml:"docker_host,omitempty" toml:"docker_host"`
	CleanupOnStop *bool             `yaml:"cleanup_on_stop,omitempty" toml:"cleanup_on_stop"`
	Target        *FileTargetConfig `yaml:"target,omitempty" toml:"target"`
}

// FileTargetConfig overrides the zone target for one source.
type FileTargetConfig struct {
	Value      string `yaml:"value" toml:"value"`
	RecordType string `yaml:"record_type,omitempty" toml:"record_type"`
	TTL        int    `yaml:"ttl,omitempty" toml:"ttl"`
}

// FileProviderConfig holds configuration for a DNS provider instance.
type FileProviderConfig struct {
	Name      string            `yaml:"name" toml:"name"` // Unique instance name
	Type      string            `yaml:"type" toml:"type"` // route53, cloudflare, rfc2136
	RateLimit float64           `yaml:"rate_limit,omitempty" toml:"rate_limit"`
	Burst     int               `yaml:"burst,omitempty" toml:"burst"`
	Timeout   string            `yaml:"timeout,omitempty" toml:"timeout"`
	BatchSize int               `yaml:"batch_size,omitempty" toml:"batch_size"`
	Config    map[string]string `yaml:"config,omitempty" toml:"config"` // Provider-specific settings
}

// FileZoneConfig maps a domain suffix to a provider.
type FileZoneConfig struct {
	Name       string   `yaml:"name" toml:"name"`
	Provider   string   `yaml:"provider" toml:"provider"`
	ID         string   `yaml:"id,omitempty" toml:"id"`
	Target     string   `yaml:"target" toml:"target"`
	RecordType string   `yaml:"record_type,omitempty" toml:"record_type"` // A, AAAA, CNAME, TXT
	TTL        int      `yaml:"ttl,omitempty" toml:"ttl"`
	Mode       string   `yaml:"mode,omitempty" toml:"mode"` // managed, additive
	Exclude    []string `yaml:"exclude,omitempty" toml:"exclude"`
}

// FileMetricsConfig holds Pushgateway settings.
type FileMetricsConfig struct {
	PushURL  string `yaml:"push_url,omitempty" toml:"push_url"`
	Job      string `yaml:"job,omitempty" toml:"job"`
	Instance string `yaml:"instance,omitempty" toml:"instance"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// LoadFile reads and parses a configuration file. Files ending in .toml are
// parsed as TOML; .yml, .yaml or no extension as YAML. Environment variables
// in ${VAR} format are interpolated before parsing, and unknown keys are errors.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	data = []byte(InterpolateEnvVars(string(data)))

	var cfg FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parsing TOML config: unknown key %q", undecoded[0].String())
		}
	case ".yml", ".yaml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (use .yml, .yaml or .toml)", ext)
	}

	return &cfg, nil
}

// ToConfig converts the file config to a runtime Config, applying defaults.
// Values from the file take precedence over defaults; env vars override later.
// The returned problems are collected rather than failing on the first one.
func (c *FileConfig) ToConfig() (*Config, []string) {
	cfg := defaults()
	var errs []string

	if c.Log != nil {
		if c.Log.Level != "" {
			cfg.LogLevel = strings.ToLower(c.Log.Level)
		}
		if c.Log.Format != "" {
			cfg.LogFormat = strings.ToLower(c.Log.Format)
		}
	}

	if c.Interval != "" {
		cfg.Interval, errs = parseDuration("interval", c.Interval, cfg.Interval, errs)
	}
	if c.CycleTimeout != "" {
		cfg.CycleTimeout, errs = parseDuration("cycle_timeout", c.CycleTimeout, 0, errs)
	}
	if c.OwnerID != "" {
		cfg.OwnerID = c.OwnerID
	}
	if c.OwnershipPrefix != "" {
		cfg.OwnershipPrefix = c.OwnershipPrefix
	}
	if c.DryRun != nil {
		cfg.DryRun = *c.DryRun
	}
	if c.Concurrency != 0 {
		cfg.Concurrency = c.Concurrency
	}
	cfg.DefaultTTL = c.DefaultTTL

	cfg.Retry, errs = c.Retry.toPolicy(errs)

	for i, fs := range c.Sources {
		s, sErrs := convertFileSource(i, fs)
		cfg.Sources = append(cfg.Sources, s)
		errs = append(errs, sErrs...)
	}

	for i, fp := range c.Providers {
		p, pErrs := convertFileProvider(i, fp)
		cfg.Providers = append(cfg.Providers, p)
		errs = append(errs, pErrs...)
	}

	for i, fz := range c.Zones {
		z, zErrs := convertFileZone(i, fz, cfg.DefaultTTL)
		cfg.Zones = append(cfg.Zones, z)
		errs = append(errs, zErrs...)
	}

	if c.Metrics != nil {
		cfg.Metrics.PushURL = c.Metrics.PushURL
		cfg.Metrics.Instance = c.Metrics.Instance
		if c.Metrics.Job != "" {
			cfg.Metrics.Job = c.Metrics.Job
		}
	}

	return cfg, errs
}

func (r *FileRetryConfig) toPolicy(errs []string) (retry.Policy, []string) {
	p := retry.DefaultPolicy()
	if r == nil {
		return p, errs
	}
	if r.MaxAttempts != 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.InitialInterval != "" {
		p.InitialInterval, errs = parseDuration("retry.initial_interval", r.InitialInterval, p.InitialInterval, errs)
	}
	if r.MaxInterval != "" {
		p.MaxInterval, errs = parseDuration("retry.max_interval", r.MaxInterval, p.MaxInterval, errs)
	}
	if r.MaxElapsed != "" {
		p.MaxElapsed, errs = parseDuration("retry.max_elapsed", r.MaxElapsed, p.MaxElapsed, errs)
	}
	if r.Multiplier != 0 {
		p.Multiplier = r.Multiplier
	}
	if r.Jitter != nil {
		p.Jitter = *r.Jitter
	}
	return p, errs
}

// convertFileSource converts a FileSourceConfig to SourceConfig.
func convertFileSource(i int, fs FileSourceConfig) (*SourceConfig, []string) {
	var errs []string
	owner := entryName("source", i, fs.Name)

	cfg := &SourceConfig{
		Name:          fs.Name,
		Type:          strings.ToLower(fs.Type),
		URL:           fs.URL,
		Username:      fs.Username,
		Timeout:       DefaultSourceTimeout,
		TLSSkipVerify: fs.TLSSkipVerify,
		PageSize:      fs.PageSize,
		Paths:         fs.Paths,
		Pattern:       fs.Pattern,
		DockerHost:    fs.DockerHost,
		CleanupOnStop: true,
	}

	var secretErrs []string
	cfg.Password, secretErrs = secretOrFile(owner, "password", fs.Password, fs.PasswordFile)
	errs = append(errs, secretErrs...)
	cfg.Token, secretErrs = secretOrFile(owner, "token", fs.Token, fs.TokenFile)
	errs = append(errs, secretErrs...)

	if fs.Timeout != "" {
		cfg.Timeout, errs = parseDuration(owner+": timeout", fs.Timeout, cfg.Timeout, errs)
	}
	if fs.CleanupOnStop != nil {
		cfg.CleanupOnStop = *fs.CleanupOnStop
	}

	if fs.Target != nil {
		rt, err := provider.ParseRecordType(fs.Target.RecordType)
		if err != nil {
			errs = append(errs, owner+": target: "+err.Error())
		}
		cfg.Target = &source.Target{Value: fs.Target.Value, RecordType: rt, TTL: fs.Target.TTL}
	}

	return cfg, errs
}

// convertFileProvider converts a FileProviderConfig to ProviderConfig.
func convertFileProvider(i int, fp FileProviderConfig) (*ProviderConfig, []string) {
	var errs []string
	owner := entryName("provider", i, fp.Name)

	cfg := &ProviderConfig{
		Name:      fp.Name,
		Type:      strings.ToLower(fp.Type),
		RateLimit: fp.RateLimit,
		Burst:     fp.Burst,
		Timeout:   DefaultProviderTimeout,
		BatchSize: fp.BatchSize,
	}

	if fp.Timeout != "" {
		cfg.Timeout, errs = parseDuration(owner+": timeout", fp.Timeout, cfg.Timeout, errs)
	}

	var secretErrs []string
	cfg.Config, secretErrs = resolveFileSecrets(owner, fp.Config)
	errs = append(errs, secretErrs...)

	return cfg, errs
}

// convertFileZone converts a FileZoneConfig to ZoneConfig.
func convertFileZone(i int, fz FileZoneConfig, defaultTTL int) (*ZoneConfig, []string) {
	var errs []string
	owner := entryName("zone", i, fz.Name)

	cfg := &ZoneConfig{
		Name:     provider.CanonicalName(fz.Name),
		Provider: fz.Provider,
		ID:       fz.ID,
		Target:   fz.Target,
		TTL:      fz.TTL,
		Mode:     provider.ModeManaged,
		Exclude:  slices.Clone(fz.Exclude),
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaultTTL
	}

	rt, err := provider.ParseRecordType(fz.RecordType)
	if err != nil {
		errs = append(errs, owner+": "+err.Error())
	}
	cfg.RecordType = rt

	if fz.Mode != "" {
		mode, err := provider.ParseOperationalMode(fz.Mode)
		if err != nil {
			errs = append(errs, owner+": "+err.Error())
		} else {
			cfg.Mode = mode
		}
	}

	return cfg, errs
}

// entryName names a list entry for error messages, falling back to its
// index when the name is missing.
func entryName(kind string, i int, name string) string {
	if name == "" {
		return fmt.Sprintf("%s[%d]", kind, i)
	}
	return fmt.Sprintf("%s %s", kind, name)
}

func parseDuration(field, value string, fallback time.Duration, errs []string) (time.Duration, []string) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, append(errs, fmt.Sprintf("%s: invalid duration %q (use format like 60s, 5m)", field, value))
	}
	return d, errs
}

package cloudflare

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTTL is applied when neither the record nor the instance sets a TTL.
// Cloudflare's minimum TTL is 60 seconds (1 = "automatic").
const DefaultTTL = 300

// Config holds Cloudflare-specific configuration.
type Config struct {
	Token    string // API token (Bearer authentication)
	Email    string // Account email, used with APIKey
	APIKey   string // Global API key, used with Email
	TTL      int    // Record TTL (defaults to DefaultTTL)
	Proxied  bool   // Whether to proxy records through Cloudflare (default: false)
	Endpoint string // API base URL override
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	switch {
	case c.Token != "":
	case c.Email != "" && c.APIKey != "":
	case c.Email != "" || c.APIKey != "":
		errs = append(errs, "EMAIL and API_KEY must be set together")
	default:
		errs = append(errs, "TOKEN or EMAIL and API_KEY is required")
	}
	if c.TTL < 0 {
		errs = append(errs, "TTL must be non-negative")
	}
	if c.TTL > 0 && c.TTL < 60 && c.TTL != 1 {
		errs = append(errs, "TTL must be at least 60 seconds (or 1 for automatic)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("cloudflare config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConfigFromMap builds a Config from provider config keys:
//   - TOKEN: API token
//   - EMAIL, API_KEY: legacy global key authentication
//   - TTL: record TTL (optional, defaults to 300)
//   - PROXIED: enable Cloudflare proxy (optional, defaults to false)
//   - ENDPOINT: API base URL (optional)
func ConfigFromMap(config map[string]string) (*Config, error) {
	cfg := &Config{
		Token:    strings.TrimSpace(config["TOKEN"]),
		Email:    strings.TrimSpace(config["EMAIL"]),
		APIKey:   strings.TrimSpace(config["API_KEY"]),
		TTL:      DefaultTTL,
		Endpoint: strings.TrimSpace(config["ENDPOINT"]),
	}

	if ttlStr := strings.TrimSpace(config["TTL"]); ttlStr != "" {
		ttl, err := strconv.Atoi(ttlStr)
		if err != nil {
			return nil, fmt.Errorf("invalid TTL value %q: %w", ttlStr, err)
		}
		cfg.TTL = ttl
	}
	if proxiedStr := config["PROXIED"]; proxiedStr != "" {
		cfg.Proxied = parseBool(proxiedStr)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseBool parses a boolean string.
// Accepts: true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

package route53

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTTL is applied to records whose TTL is unset.
const DefaultTTL = 300

// Zone types accepted by ZONE_TYPE.
const (
	ZoneTypeAny     = ""
	ZoneTypePublic  = "public"
	ZoneTypePrivate = "private"
)

// Config holds Route53-specific configuration. Credentials left empty fall
// back to the SDK's default chain (environment, shared config, instance role).
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string
	Endpoint        string
	TTL             int64

	// ZoneType restricts zone ID lookup to public or private hosted zones.
	ZoneType string
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	var errs []string

	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		errs = append(errs, "ACCESS_KEY_ID and SECRET_ACCESS_KEY must be set together")
	}
	if c.SessionToken != "" && c.AccessKeyID == "" {
		errs = append(errs, "SESSION_TOKEN requires ACCESS_KEY_ID")
	}
	if c.TTL < 0 {
		errs = append(errs, "TTL must be non-negative")
	}
	switch c.ZoneType {
	case ZoneTypeAny, ZoneTypePublic, ZoneTypePrivate:
	default:
		errs = append(errs, fmt.Sprintf("ZONE_TYPE %q must be public or private", c.ZoneType))
	}

	if len(errs) > 0 {
		return fmt.Errorf("route53 config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConfigFromMap builds a Config from provider config keys:
//   - REGION: AWS region (optional, Route53 is global; defaults to us-east-1)
//   - ACCESS_KEY_ID, SECRET_ACCESS_KEY, SESSION_TOKEN: static credentials
//   - PROFILE: shared config profile
//   - ENDPOINT: API endpoint override (e.g., localstack)
//   - TTL: default record TTL (optional, defaults to 300)
//   - ZONE_TYPE: public or private, used when resolving zone IDs
func ConfigFromMap(config map[string]string) (*Config, error) {
	cfg := &Config{
		Region:          strings.TrimSpace(config["REGION"]),
		AccessKeyID:     strings.TrimSpace(config["ACCESS_KEY_ID"]),
		SecretAccessKey: strings.TrimSpace(config["SECRET_ACCESS_KEY"]),
		SessionToken:    strings.TrimSpace(config["SESSION_TOKEN"]),
		Profile:         strings.TrimSpace(config["PROFILE"]),
		Endpoint:        strings.TrimSpace(config["ENDPOINT"]),
		TTL:             DefaultTTL,
		ZoneType:        strings.ToLower(strings.TrimSpace(config["ZONE_TYPE"])),
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	if ttlStr := strings.TrimSpace(config["TTL"]); ttlStr != "" {
		ttl, err := strconv.ParseInt(ttlStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TTL value %q: %w", ttlStr, err)
		}
		cfg.TTL = ttl
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

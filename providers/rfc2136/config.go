package rfc2136

import (
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Default configuration values.
const (
	// DefaultPort is the standard DNS port.
	DefaultPort = "53"

	// DefaultTimeout is the default timeout for DNS operations.
	DefaultTimeout = 10 * time.Second

	// DefaultTTL is applied to records whose TTL is unset.
	DefaultTTL = 300

	// DefaultTSIGAlgorithm is the default TSIG algorithm if none specified.
	DefaultTSIGAlgorithm = dns.HmacSHA256
)

// Config holds RFC 2136 provider configuration.
type Config struct {
	// Server is the DNS server address in host:port format (required).
	// If port is omitted, defaults to 53.
	Server string

	// TSIGKeyName is the TSIG key name (optional but recommended).
	TSIGKeyName string

	// TSIGSecret is the base64-encoded TSIG shared secret.
	TSIGSecret string

	// TSIGAlgorithm is hmac-md5, hmac-sha256 (default) or hmac-sha512.
	TSIGAlgorithm string

	// Timeout bounds each DNS exchange (default: 10s).
	Timeout time.Duration

	// UseTCP forces TCP transport for updates. AXFR always uses TCP.
	UseTCP bool

	// TTL is applied to records whose TTL is unset.
	TTL uint32
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server == "" {
		errs = append(errs, "SERVER is required")
	}

	if c.TSIGKeyName != "" || c.TSIGSecret != "" || c.TSIGAlgorithm != "" {
		if c.TSIGKeyName == "" {
			errs = append(errs, "TSIG_KEY_NAME is required when using TSIG authentication")
		}
		if c.TSIGSecret == "" {
			errs = append(errs, "TSIG_SECRET is required when using TSIG authentication")
		} else if _, err := base64.StdEncoding.DecodeString(c.TSIGSecret); err != nil {
			errs = append(errs, "TSIG_SECRET is not valid base64")
		}
		if !isValidAlgorithm(c.Algorithm()) {
			errs = append(errs, fmt.Sprintf("unsupported TSIG_ALGORITHM: %s (supported: hmac-md5, hmac-sha256, hmac-sha512)", c.TSIGAlgorithm))
		}
	}

	if c.Timeout < 0 {
		errs = append(errs, "TIMEOUT must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("rfc2136 config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Address returns the server address with port.
func (c *Config) Address() string {
	if _, _, err := net.SplitHostPort(c.Server); err == nil {
		return c.Server
	}
	return net.JoinHostPort(strings.Trim(c.Server, "[]"), DefaultPort)
}

// ExchangeTimeout returns the configured timeout or the default.
func (c *Config) ExchangeTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Algorithm returns the TSIG algorithm in miekg/dns format.
func (c *Config) Algorithm() string {
	switch strings.ToLower(strings.TrimSpace(c.TSIGAlgorithm)) {
	case "":
		return DefaultTSIGAlgorithm
	case "hmac-md5", "md5", dns.HmacMD5:
		return dns.HmacMD5
	case "hmac-sha256", "sha256", dns.HmacSHA256:
		return dns.HmacSHA256
	case "hmac-sha512", "sha512", dns.HmacSHA512:
		return dns.HmacSHA512
	default:
		return c.TSIGAlgorithm
	}
}

// HasTSIG returns true if TSIG authentication is configured.
func (c *Config) HasTSIG() bool {
	return c.TSIGKeyName != "" && c.TSIGSecret != ""
}

func isValidAlgorithm(alg string) bool {
	switch alg {
	case dns.HmacMD5, dns.HmacSHA256, dns.HmacSHA512:
		return true
	default:
		return false
	}
}

// ConfigFromMap builds a Config from provider config keys.
//
// Required keys: SERVER
// Optional keys: TSIG_KEY_NAME, TSIG_SECRET, TSIG_ALGORITHM, TIMEOUT
// (seconds or a Go duration), USE_TCP, TTL
func ConfigFromMap(config map[string]string) (*Config, error) {
	cfg := &Config{
		Server:        strings.TrimSpace(config["SERVER"]),
		TSIGKeyName:   strings.TrimSpace(config["TSIG_KEY_NAME"]),
		TSIGSecret:    strings.TrimSpace(config["TSIG_SECRET"]),
		TSIGAlgorithm: strings.TrimSpace(config["TSIG_ALGORITHM"]),
		TTL:           DefaultTTL,
	}
	if cfg.TSIGKeyName != "" {
		cfg.TSIGKeyName = dns.Fqdn(cfg.TSIGKeyName)
	}

	if v := strings.TrimSpace(config["TIMEOUT"]); v != "" {
		timeout, err := parseTimeout(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEOUT value %q: %w", v, err)
		}
		cfg.Timeout = timeout
	}
	if v := strings.TrimSpace(config["USE_TCP"]); v != "" {
		cfg.UseTCP = strings.EqualFold(v, "true") || v == "1"
	}
	if v := strings.TrimSpace(config["TTL"]); v != "" {
		ttl, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid TTL value %q: %w", v, err)
		}
		cfg.TTL = uint32(ttl)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

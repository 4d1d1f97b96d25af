// Package httputil provides the HTTP client shared by proxy sources and
// HTTP-based DNS providers.
package httputil

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Default HTTP client configuration values.
const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is used when no custom user agent is specified.
	DefaultUserAgent = "traefik-dns/1.0"
)

// ClientConfig contains configuration for creating an HTTP client.
type ClientConfig struct {
	// Timeout is the HTTP client timeout. Defaults to 30 seconds.
	Timeout time.Duration

	// TLSSkipVerify disables certificate verification. Only for self-signed
	// endpoints on trusted networks.
	TLSSkipVerify bool

	// UserAgent is the User-Agent header to set on requests.
	UserAgent string

	// Username and Password enable HTTP basic auth on every request.
	Username string
	Password string

	// BearerToken sets an Authorization: Bearer header on every request.
	// Ignored when Username is set.
	BearerToken string

	// Logger enables debug logging for HTTP requests.
	Logger *slog.Logger
}

// transport adds the User-Agent and credentials and logs each exchange at
// debug level.
type transport struct {
	base      http.RoundTripper
	userAgent string
	username  string
	password  string
	token     string
	logger    *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())

	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Authorization") == "" {
		switch {
		case t.username != "":
			req.SetBasicAuth(t.username, t.password)
		case t.token != "":
			req.Header.Set("Authorization", "Bearer "+t.token)
		}
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)

	if t.logger != nil {
		attrs := []any{
			slog.String("method", req.Method),
			slog.String("url", req.URL.Redacted()),
			slog.Duration("duration", time.Since(start)),
		}
		if resp != nil {
			attrs = append(attrs, slog.Int("status", resp.StatusCode))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		t.logger.Debug("HTTP request", attrs...)
	}

	return resp, err
}

// NewClient creates an HTTP client with the specified configuration.
// If cfg is nil, defaults are used (30s timeout, TLS verification enabled).
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	base := http.DefaultTransport
	if cfg.TLSSkipVerify {
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec // explicitly requested by configuration
			},
		}
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &transport{
			base:      base,
			userAgent: userAgent,
			username:  cfg.Username,
			password:  cfg.Password,
			token:     cfg.BearerToken,
			logger:    cfg.Logger,
		},
	}
}

// ParseRetryAfter interprets a Retry-After header, which is either a number
// of seconds or an HTTP date. It returns zero when the header is absent or
// unparseable, or when the date is already in the past.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

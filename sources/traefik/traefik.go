// Package traefik implements proxy sources that read router rules from Traefik.
//
// Four flavours are provided:
//   - API reads /api/http/routers from Traefik v2 and later.
//   - V1API reads /api/providers from Traefik v1.
//   - File reads the dynamic configuration files of the file provider.
//   - RulesFromLabels reads traefik.http.routers.<name>.rule container labels
//     and is used by the docker source.
package traefik

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/httputil"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
)

// DefaultTimeout bounds a single request to the Traefik API.
const DefaultTimeout = 10 * time.Second

// DefaultPageSize is the per_page value requested from the v2 API.
const DefaultPageSize = 100

// maxPages stops a misbehaving server from paginating forever.
const maxPages = 10000

var errPaginationRunaway = errors.New("pagination did not terminate")

type options struct {
	logger   *slog.Logger
	client   *http.Client
	target   *source.Target
	pageSize int
}

// Option is a functional option for Traefik sources.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient sets the HTTP client used for API requests. Credentials and
// timeouts are configured on the client (see httputil.NewClient).
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// WithTarget overrides the zone target for every rule from this source.
func WithTarget(target *source.Target) Option {
	return func(o *options) {
		o.target = target
	}
}

// WithPageSize sets the per_page value for v2 API pagination.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   slog.Default(),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = httputil.NewClient(&httputil.ClientConfig{Timeout: DefaultTimeout, Logger: o.logger})
	}
	return o
}

// endpoint issues JSON GET requests against a Traefik API base URL.
type endpoint struct {
	source string
	base   *url.URL
	client *http.Client
}

func newEndpoint(sourceName, baseURL string, client *http.Client) (*endpoint, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing traefik url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("traefik url %q: scheme must be http or https", baseURL)
	}
	return &endpoint{source: sourceName, base: u, client: client}, nil
}

// getJSON fetches path and decodes the body into out. Every failure is
// returned as a *source.FetchError.
func (e *endpoint) getJSON(ctx context.Context, path string, query url.Values, out any) (http.Header, error) {
	u := *e.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, source.NewFetchError(e.source, source.MalformedResponse, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, source.NewFetchError(e.source, source.Unreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, source.NewFetchError(e.source, source.Unauthorized, statusError(resp))
	case resp.StatusCode >= 500:
		return nil, source.NewFetchError(e.source, source.Unreachable, statusError(resp))
	case resp.StatusCode != http.StatusOK:
		return nil, source.NewFetchError(e.source, source.MalformedResponse, statusError(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		kind := source.MalformedResponse
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			kind = source.Unreachable
		}
		return nil, source.NewFetchError(e.source, kind, fmt.Errorf("decoding %s: %w", path, err))
	}
	return resp.Header, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
}

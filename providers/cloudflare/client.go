// Package cloudflare implements the provider interface for Cloudflare DNS.
//
// Cloudflare stores one record per value and addresses records by ID, so
// every change is a single request. Listing pages through
// result_info.total_pages.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/httputil"
)

const (
	// DefaultAPIEndpoint is the base URL for Cloudflare API v4.
	DefaultAPIEndpoint = "https://api.cloudflare.com/client/v4"

	// DefaultTimeout is the HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// pageSize is the largest per_page the dns_records endpoint accepts.
	pageSize = 100
)

// apiError represents an error from the Cloudflare API.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type resultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
}

// apiResponse is the standard Cloudflare API response wrapper.
type apiResponse struct {
	Success    bool            `json:"success"`
	Errors     []apiError      `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *resultInfo     `json:"result_info"`
}

// zoneResult represents a zone from the Cloudflare API.
type zoneResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// dnsRecord represents a DNS record from the Cloudflare API.
type dnsRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// requestError is a failed API call with everything needed to classify it.
type requestError struct {
	StatusCode int
	Errors     []apiError
	RetryAfter time.Duration
	Err        error
}

func (e *requestError) Error() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case len(e.Errors) > 0:
		return fmt.Sprintf("API error: %s (code: %d, status: %d)", e.Errors[0].Message, e.Errors[0].Code, e.StatusCode)
	default:
		return fmt.Sprintf("unexpected status code %d", e.StatusCode)
	}
}

func (e *requestError) Unwrap() error {
	return e.Err
}

func (e *requestError) hasCode(codes ...int) bool {
	for _, ae := range e.Errors {
		for _, c := range codes {
			if ae.Code == c {
				return true
			}
		}
	}
	return false
}

// Client is a Cloudflare DNS API client.
type Client struct {
	apiEndpoint string
	token       string
	email       string
	apiKey      string
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAPIEndpoint sets a custom API endpoint (useful for testing).
func WithAPIEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		if endpoint != "" {
			c.apiEndpoint = endpoint
		}
	}
}

// WithGlobalKey authenticates with an account email and global API key
// instead of a token.
func WithGlobalKey(email, apiKey string) ClientOption {
	return func(c *Client) {
		c.email = email
		c.apiKey = apiKey
	}
}

// NewClient creates a new Cloudflare API client. token may be empty when
// WithGlobalKey is given.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		apiEndpoint: DefaultAPIEndpoint,
		token:       token,
		logger:      slog.Default(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httputil.NewClient(&httputil.ClientConfig{Timeout: DefaultTimeout, Logger: c.logger})
	}

	return c
}

// doRequest performs an HTTP request to the Cloudflare API. Failures are
// returned as *requestError.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (*apiResponse, error) {
	reqURL := c.apiEndpoint + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &requestError{Err: fmt.Errorf("marshaling request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, &requestError{Err: fmt.Errorf("creating request: %w", err)}
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else {
		req.Header.Set("X-Auth-Email", c.email)
		req.Header.Set("X-Auth-Key", c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &requestError{Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &requestError{StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response body: %w", err)}
	}

	var apiResp apiResponse
	jsonErr := json.Unmarshal(respBody, &apiResp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := &requestError{StatusCode: resp.StatusCode, Errors: apiResp.Errors}
		if resp.StatusCode == http.StatusTooManyRequests {
			reqErr.RetryAfter = httputil.ParseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		}
		return nil, reqErr
	}

	if jsonErr != nil {
		return nil, &requestError{StatusCode: resp.StatusCode, Err: fmt.Errorf("parsing response JSON: %w", jsonErr)}
	}
	if !apiResp.Success {
		return nil, &requestError{StatusCode: resp.StatusCode, Errors: apiResp.Errors}
	}

	return &apiResp, nil
}

// FindZoneID returns the ID of the zone with exactly this name.
// It returns "" and no error when the zone does not exist.
func (c *Client) FindZoneID(ctx context.Context, zoneName string) (string, error) {
	params := url.Values{}
	params.Set("name", zoneName)

	resp, err := c.doRequest(ctx, http.MethodGet, "/zones", params, nil)
	if err != nil {
		return "", err
	}

	var zones []zoneResult
	if err := json.Unmarshal(resp.Result, &zones); err != nil {
		return "", &requestError{Err: fmt.Errorf("parsing zones response: %w", err)}
	}
	if len(zones) == 0 {
		return "", nil
	}

	c.logger.Debug("found zone",
		slog.String("zone", zoneName),
		slog.String("zone_id", zones[0].ID),
	)
	return zones[0].ID, nil
}

// ListRecords returns every DNS record in the zone, following pagination.
func (c *Client) ListRecords(ctx context.Context, zoneID string) ([]dnsRecord, error) {
	path := fmt.Sprintf("/zones/%s/dns_records", url.PathEscape(zoneID))

	var all []dnsRecord
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(pageSize))

		resp, err := c.doRequest(ctx, http.MethodGet, path, params, nil)
		if err != nil {
			return nil, err
		}

		var records []dnsRecord
		if err := json.Unmarshal(resp.Result, &records); err != nil {
			return nil, &requestError{Err: fmt.Errorf("parsing records response: %w", err)}
		}
		all = append(all, records...)

		if resp.ResultInfo == nil || page >= resp.ResultInfo.TotalPages || len(records) == 0 {
			break
		}
	}

	c.logger.Debug("listed records",
		slog.String("zone_id", zoneID),
		slog.Int("count", len(all)),
	)

	return all, nil
}

// CreateRecord creates a new DNS record in the specified zone.
func (c *Client) CreateRecord(ctx context.Context, zoneID string, record dnsRecord) (dnsRecord, error) {
	path := fmt.Sprintf("/zones/%s/dns_records", url.PathEscape(zoneID))
	return c.writeRecord(ctx, http.MethodPost, path, record)
}

// UpdateRecord overwrites the record with the given ID.
func (c *Client) UpdateRecord(ctx context.Context, zoneID, recordID string, record dnsRecord) (dnsRecord, error) {
	path := fmt.Sprintf("/zones/%s/dns_records/%s", url.PathEscape(zoneID), url.PathEscape(recordID))
	record.ID = ""
	return c.writeRecord(ctx, http.MethodPut, path, record)
}

func (c *Client) writeRecord(ctx context.Context, method, path string, record dnsRecord) (dnsRecord, error) {
	resp, err := c.doRequest(ctx, method, path, nil, record)
	if err != nil {
		return dnsRecord{}, err
	}

	var stored dnsRecord
	if err := json.Unmarshal(resp.Result, &stored); err != nil {
		return dnsRecord{}, &requestError{Err: fmt.Errorf("parsing record response: %w", err)}
	}
	return stored, nil
}

// DeleteRecord deletes a DNS record by ID.
func (c *Client) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	path := fmt.Sprintf("/zones/%s/dns_records/%s", url.PathEscape(zoneID), url.PathEscape(recordID))
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil, nil)
	return err
}

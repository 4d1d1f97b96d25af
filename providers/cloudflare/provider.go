package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// TypeName is the provider type used in configuration.
const TypeName = "cloudflare"

// Error codes Cloudflare returns when a create collides with an existing record.
const (
	codeRecordExists      = 81053
	codeRecordExistsCNAME = 81057
	codeIdenticalRecord   = 81058
)

// Provider implements provider.Provider for Cloudflare DNS.
type Provider struct {
	name    string
	ttl     int
	proxied bool
	client  *Client
	logger  *slog.Logger

	mu      sync.Mutex
	zoneIDs map[string]string
}

// ProviderOption is a functional option for configuring the Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets a custom logger for the provider.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClient replaces the API client.
func WithClient(c *Client) ProviderOption {
	return func(p *Provider) {
		p.client = c
	}
}

// New creates a new Cloudflare provider instance.
func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name:    name,
		ttl:     config.TTL,
		proxied: config.Proxied,
		logger:  slog.Default(),
		zoneIDs: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		clientOpts := []ClientOption{WithLogger(p.logger), WithAPIEndpoint(config.Endpoint)}
		if config.Token == "" {
			clientOpts = append(clientOpts, WithGlobalKey(config.Email, config.APIKey))
		}
		p.client = NewClient(config.Token, clientOpts...)
	}

	return p, nil
}

// Factory returns a provider.Factory function for use with the provider registry.
func Factory(logger *slog.Logger) provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		cfg, err := ConfigFromMap(config)
		if err != nil {
			return nil, err
		}
		return New(name, cfg, WithProviderLogger(logger.With(slog.String("provider", name))))
	}
}

// Name returns the provider instance name.
func (p *Provider) Name() string {
	return p.name
}

// Type returns "cloudflare".
func (p *Provider) Type() string {
	return TypeName
}

// ResolveZoneID looks up the zone ID for zoneName and caches it.
func (p *Provider) ResolveZoneID(ctx context.Context, zoneName string) (string, error) {
	p.mu.Lock()
	id, ok := p.zoneIDs[zoneName]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := p.client.FindZoneID(ctx, zoneName)
	if err != nil {
		return "", p.classify("resolve_zone", err)
	}
	if id == "" {
		return "", provider.NewError(p.name, "resolve_zone", provider.KindNotFound,
			fmt.Errorf("no zone named %s", zoneName))
	}

	p.mu.Lock()
	p.zoneIDs[zoneName] = id
	p.mu.Unlock()
	return id, nil
}

func (p *Provider) zoneID(ctx context.Context, zone provider.Zone) (string, error) {
	if zone.ID != "" {
		return zone.ID, nil
	}
	return p.ResolveZoneID(ctx, zone.Name)
}

// ListRecords returns every A, AAAA, CNAME and TXT record in the zone.
// Cloudflare keeps one entry per value, so several records may share a key.
func (p *Provider) ListRecords(ctx context.Context, zone provider.Zone) ([]provider.Record, error) {
	zoneID, err := p.zoneID(ctx, zone)
	if err != nil {
		return nil, err
	}

	apiRecords, err := p.client.ListRecords(ctx, zoneID)
	if err != nil {
		return nil, p.classify("list", err)
	}

	records := make([]provider.Record, 0, len(apiRecords))
	for _, r := range apiRecords {
		t := provider.RecordType(strings.ToUpper(r.Type))
		if !t.IsManaged() {
			continue
		}
		records = append(records, fromAPI(r))
	}

	p.logger.Debug("listed records",
		slog.String("zone", zone.Name),
		slog.String("zone_id", zoneID),
		slog.Int("count", len(records)),
	)
	return records, nil
}

// CreateRecord creates a single-valued record.
func (p *Provider) CreateRecord(ctx context.Context, zone provider.Zone, record provider.Record) (provider.Record, error) {
	zoneID, err := p.zoneID(ctx, zone)
	if err != nil {
		return provider.Record{}, err
	}
	body, err := p.toAPI(record)
	if err != nil {
		return provider.Record{}, provider.NewError(p.name, "create", provider.KindInvalid, err)
	}

	stored, err := p.client.CreateRecord(ctx, zoneID, body)
	if err != nil {
		return provider.Record{}, p.classify("create", err)
	}

	p.logger.Info("created record",
		slog.String("name", record.Name),
		slog.String("type", string(record.Type)),
		slog.String("value", record.Value()),
		slog.Int("ttl", body.TTL),
		slog.Bool("proxied", body.Proxied),
	)
	return fromAPI(stored), nil
}

// UpdateRecord overwrites current, which must carry the Cloudflare record ID.
func (p *Provider) UpdateRecord(ctx context.Context, zone provider.Zone, current, desired provider.Record) (provider.Record, error) {
	zoneID, err := p.zoneID(ctx, zone)
	if err != nil {
		return provider.Record{}, err
	}
	if current.ID == "" {
		return provider.Record{}, provider.NewError(p.name, "update", provider.KindInvalid,
			fmt.Errorf("record %s has no id", current.Key()))
	}
	body, err := p.toAPI(desired)
	if err != nil {
		return provider.Record{}, provider.NewError(p.name, "update", provider.KindInvalid, err)
	}

	stored, err := p.client.UpdateRecord(ctx, zoneID, current.ID, body)
	if err != nil {
		return provider.Record{}, p.classify("update", err)
	}

	p.logger.Info("updated record",
		slog.String("name", desired.Name),
		slog.String("type", string(desired.Type)),
		slog.String("from", current.Value()),
		slog.String("to", desired.Value()),
	)
	return fromAPI(stored), nil
}

// DeleteRecord removes the record with record.ID.
func (p *Provider) DeleteRecord(ctx context.Context, zone provider.Zone, record provider.Record) error {
	zoneID, err := p.zoneID(ctx, zone)
	if err != nil {
		return err
	}
	if record.ID == "" {
		return provider.NewError(p.name, "delete", provider.KindInvalid,
			fmt.Errorf("record %s has no id", record.Key()))
	}

	if err := p.client.DeleteRecord(ctx, zoneID, record.ID); err != nil {
		return p.classify("delete", err)
	}

	p.logger.Info("deleted record",
		slog.String("name", record.Name),
		slog.String("type", string(record.Type)),
		slog.String("value", record.Value()),
	)
	return nil
}

func (p *Provider) toAPI(record provider.Record) (dnsRecord, error) {
	if len(record.Values) != 1 {
		return dnsRecord{}, fmt.Errorf("record %s must carry exactly one value, got %d", record.Key(), len(record.Values))
	}

	ttl := record.TTL
	if ttl <= 0 {
		ttl = p.ttl
	}
	proxied := p.proxied && record.Type != provider.RecordTypeTXT
	// Proxied records always use automatic TTL.
	if proxied {
		ttl = 1
	}

	return dnsRecord{
		Type:    string(record.Type),
		Name:    record.Name,
		Content: record.Value(),
		TTL:     ttl,
		Proxied: proxied,
	}, nil
}

func fromAPI(r dnsRecord) provider.Record {
	t := provider.RecordType(strings.ToUpper(r.Type))
	content := r.Content
	if t == provider.RecordTypeTXT {
		content = unquoteTXT(content)
	}
	ttl := r.TTL
	// Cloudflare picks the TTL of proxied records.
	if r.Proxied {
		ttl = 0
	}
	rec := provider.NewRecord(r.Name, t, content, ttl)
	rec.ID = r.ID
	return rec
}

// unquoteTXT strips the quoting Cloudflare may return around TXT content.
func unquoteTXT(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}

func (p *Provider) classify(op string, err error) error {
	var re *requestError
	if !errors.As(err, &re) {
		return provider.Classify(p.name, op, err)
	}

	switch {
	case re.StatusCode == http.StatusTooManyRequests:
		return provider.NewRateLimited(p.name, op, re.RetryAfter, re)
	case re.hasCode(codeRecordExists, codeRecordExistsCNAME, codeIdenticalRecord):
		return provider.NewError(p.name, op, provider.KindConflict, re)
	case re.StatusCode == http.StatusUnauthorized || re.StatusCode == http.StatusForbidden:
		return provider.NewError(p.name, op, provider.KindUnauthorized, re)
	case re.StatusCode == http.StatusNotFound:
		return provider.NewError(p.name, op, provider.KindNotFound, re)
	case re.StatusCode == http.StatusConflict:
		return provider.NewError(p.name, op, provider.KindConflict, re)
	case re.StatusCode == 0 || re.StatusCode >= 500:
		return provider.Classify(p.name, op, re)
	default:
		return provider.NewError(p.name, op, provider.KindInvalid, re)
	}
}

// Ensure Provider implements the provider interfaces at compile time.
var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.ZoneResolver = (*Provider)(nil)
)

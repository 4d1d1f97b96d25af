package rfc2136

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// TypeName is the provider type name used in configuration.
const TypeName = "rfc2136"

// Provider implements provider.Provider and provider.Batcher for servers
// that accept RFC 2136 dynamic updates.
type Provider struct {
	name   string
	ttl    uint32
	client *client
	logger *slog.Logger
}

// ProviderOption is a functional option for configuring the Provider.
type ProviderOption func(*Provider)

// WithLogger sets the logger for the provider.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// New creates a new RFC 2136 provider instance.
func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name:   name,
		ttl:    config.TTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.ttl == 0 {
		p.ttl = DefaultTTL
	}
	p.client = newClient(config, p.logger)

	p.logger.Info("rfc2136 provider initialized",
		slog.String("server", config.Address()),
		slog.Bool("tsig", config.HasTSIG()),
		slog.Bool("tcp", config.UseTCP),
	)
	return p, nil
}

// Factory returns a provider.Factory for RFC 2136 providers.
func Factory(logger *slog.Logger) provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		cfg, err := ConfigFromMap(config)
		if err != nil {
			return nil, err
		}
		return New(name, cfg, WithLogger(logger.With(slog.String("provider", name))))
	}
}

// Name returns the provider instance name.
func (p *Provider) Name() string { return p.name }

// Type returns the provider type.
func (p *Provider) Type() string { return TypeName }

// ListRecords transfers the zone and returns its managed record sets.
func (p *Provider) ListRecords(ctx context.Context, zone provider.Zone) ([]provider.Record, error) {
	rrs, err := p.client.transfer(ctx, zone.Name)
	if err != nil {
		return nil, p.classify("list", err)
	}

	records := groupRRs(rrs, func(name string) bool {
		return provider.InZone(name, zone.Name)
	})
	p.logger.Debug("listed records",
		slog.String("zone", zone.Name),
		slog.Int("rrs", len(rrs)),
		slog.Int("records", len(records)),
	)
	return records, nil
}

// CreateRecord adds a record set that must not already exist.
func (p *Provider) CreateRecord(ctx context.Context, zone provider.Zone, record provider.Record) (provider.Record, error) {
	if err := p.apply(ctx, "create", zone, []provider.Change{provider.Create(zone, record)}); err != nil {
		return provider.Record{}, err
	}
	return p.stored(record), nil
}

// UpdateRecord replaces current with desired, provided current is still
// exactly what the server holds.
func (p *Provider) UpdateRecord(ctx context.Context, zone provider.Zone, current, desired provider.Record) (provider.Record, error) {
	if err := p.apply(ctx, "update", zone, []provider.Change{provider.Update(zone, current, desired)}); err != nil {
		return provider.Record{}, err
	}
	return p.stored(desired), nil
}

// DeleteRecord removes the values of record. Deleting values that do not
// exist is not an error in RFC 2136.
func (p *Provider) DeleteRecord(ctx context.Context, zone provider.Zone, record provider.Record) error {
	return p.apply(ctx, "delete", zone, []provider.Change{provider.Delete(zone, record)})
}

// ApplyChanges sends all changes as a single UPDATE. The server applies
// the message atomically.
func (p *Provider) ApplyChanges(ctx context.Context, zone provider.Zone, changes []provider.Change) error {
	if len(changes) == 0 {
		return nil
	}
	return p.apply(ctx, "batch", zone, changes)
}

func (p *Provider) apply(ctx context.Context, op string, zone provider.Zone, changes []provider.Change) error {
	msg, err := buildUpdate(zone.Name, changes, p.ttl)
	if err != nil {
		return provider.NewError(p.name, op, provider.KindInvalid, err)
	}
	if err := p.client.update(ctx, msg); err != nil {
		return p.classify(op, err)
	}
	p.logger.Debug("applied changes",
		slog.String("zone", zone.Name),
		slog.String("operation", op),
		slog.Int("changes", len(changes)),
	)
	return nil
}

func (p *Provider) stored(r provider.Record) provider.Record {
	if r.TTL == 0 {
		r.TTL = int(p.ttl)
	}
	return r
}

func (p *Provider) classify(op string, err error) error {
	var rerr *rcodeError
	if errors.As(err, &rerr) {
		switch rerr.Rcode {
		case dns.RcodeNotAuth, dns.RcodeRefused:
			return provider.NewError(p.name, op, provider.KindUnauthorized, err)
		case dns.RcodeYXRrset, dns.RcodeNXRrset, dns.RcodeYXDomain:
			return provider.NewError(p.name, op, provider.KindConflict, err)
		case dns.RcodeNotZone, dns.RcodeNameError:
			return provider.NewError(p.name, op, provider.KindNotFound, err)
		case dns.RcodeServerFailure:
			return provider.NewError(p.name, op, provider.KindTransient, err)
		default:
			return provider.NewError(p.name, op, provider.KindInvalid, err)
		}
	}

	var terr *transferError
	if errors.As(err, &terr) {
		if errors.Is(terr.Err, dns.ErrAuth) {
			return provider.NewError(p.name, op, provider.KindUnauthorized, err)
		}
		// miekg/dns reports a refused transfer only as an error string.
		if rcode, ok := transferRcode(terr.Err); ok {
			perr := p.classify(op, &rcodeError{Rcode: rcode})
			return provider.NewError(p.name, op, kindOf(perr), err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return provider.NewError(p.name, op, provider.KindTransient, err)
	}
	return provider.Classify(p.name, op, err)
}

func transferRcode(err error) (int, bool) {
	var rcode int
	if _, scanErr := fmt.Sscanf(err.Error(), "dns: bad xfr rcode: %d", &rcode); scanErr != nil {
		return 0, false
	}
	return rcode, true
}

func kindOf(err error) provider.ErrorKind {
	kind, _ := provider.KindOf(err)
	return kind
}

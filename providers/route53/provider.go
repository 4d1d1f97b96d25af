// Package route53 implements the provider interface for Amazon Route53.
//
// Route53 groups all values of a (name, type) into one record set and
// applies changes as atomic batches, so the provider implements
// provider.Batcher and routes single operations through it.
package route53

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/aws/aws-sdk-go/service/route53/route53iface"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// TypeName is the provider type used in configuration.
const TypeName = "route53"

// Provider implements provider.Provider and provider.Batcher for Route53.
type Provider struct {
	name     string
	api      route53iface.Route53API
	ttl      int64
	zoneType string
	logger   *slog.Logger
}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithAPI replaces the Route53 client.
func WithAPI(api route53iface.Route53API) Option {
	return func(p *Provider) {
		p.api = api
	}
}

// New creates a Route53 provider. Unless WithAPI is given, a client is
// built from config through an AWS session.
func New(name string, config *Config, opts ...Option) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name:     name,
		ttl:      config.TTL,
		zoneType: config.ZoneType,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.api == nil {
		sess, err := newSession(config)
		if err != nil {
			return nil, fmt.Errorf("creating aws session: %w", err)
		}
		p.api = route53.New(sess)
	}
	return p, nil
}

func newSession(config *Config) (*session.Session, error) {
	awsConfig := aws.Config{
		Region:     aws.String(config.Region),
		MaxRetries: aws.Int(0),
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}
	if config.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, config.SessionToken)
	}

	return session.NewSessionWithOptions(session.Options{
		Config:            awsConfig,
		Profile:           config.Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
}

// Factory returns a provider.Factory function for use with the provider registry.
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
func (p *Provider) Name() string {
	return p.name
}

// Type returns "route53".
func (p *Provider) Type() string {
	return TypeName
}

// ResolveZoneID finds the hosted zone named zoneName. When both a public
// and a private zone carry the name, ZONE_TYPE must pick one.
func (p *Provider) ResolveZoneID(ctx context.Context, zoneName string) (string, error) {
	fqdn := strings.TrimSuffix(zoneName, ".") + "."
	out, err := p.api.ListHostedZonesByNameWithContext(ctx, &route53.ListHostedZonesByNameInput{
		DNSName:  aws.String(fqdn),
		MaxItems: aws.String("10"),
	})
	if err != nil {
		return "", p.classify("resolve_zone", err)
	}

	var matches []*route53.HostedZone
	for _, hz := range out.HostedZones {
		if !strings.EqualFold(aws.StringValue(hz.Name), fqdn) {
			continue
		}
		private := hz.Config != nil && aws.BoolValue(hz.Config.PrivateZone)
		if (p.zoneType == ZoneTypePublic && private) || (p.zoneType == ZoneTypePrivate && !private) {
			continue
		}
		matches = append(matches, hz)
	}

	switch len(matches) {
	case 0:
		return "", provider.NewError(p.name, "resolve_zone", provider.KindNotFound,
			fmt.Errorf("no hosted zone named %s", zoneName))
	case 1:
		return strings.TrimPrefix(aws.StringValue(matches[0].Id), "/hostedzone/"), nil
	default:
		return "", provider.NewError(p.name, "resolve_zone", provider.KindInvalid,
			fmt.Errorf("%d hosted zones named %s; set ZONE_TYPE or the zone id", len(matches), zoneName))
	}
}

// ListRecords returns every plain A, AAAA, CNAME and TXT record set in the
// zone. Alias and routing-policy record sets are skipped.
func (p *Provider) ListRecords(ctx context.Context, zone provider.Zone) ([]provider.Record, error) {
	if zone.ID == "" {
		return nil, provider.NewError(p.name, "list", provider.KindInvalid, errMissingZoneID(zone))
	}

	var records []provider.Record
	skipped := 0
	input := &route53.ListResourceRecordSetsInput{HostedZoneId: aws.String(zone.ID)}
	err := p.api.ListResourceRecordSetsPagesWithContext(ctx, input, func(page *route53.ListResourceRecordSetsOutput, lastPage bool) bool {
		for _, rrs := range page.ResourceRecordSets {
			rec, ok := fromRecordSet(rrs)
			if !ok {
				skipped++
				continue
			}
			records = append(records, rec)
		}
		return true
	})
	if err != nil {
		return nil, p.classify("list", err)
	}

	p.logger.Debug("listed records",
		slog.String("zone", zone.Name),
		slog.String("zone_id", zone.ID),
		slog.Int("count", len(records)),
		slog.Int("skipped", skipped),
	)
	return records, nil
}

// ApplyChanges submits changes as one atomic change batch.
func (p *Provider) ApplyChanges(ctx context.Context, zone provider.Zone, changes []provider.Change) error {
	if zone.ID == "" {
		return provider.NewError(p.name, "batch", provider.KindInvalid, errMissingZoneID(zone))
	}
	if len(changes) == 0 {
		return nil
	}

	batch := &route53.ChangeBatch{}
	for _, c := range changes {
		batch.Changes = append(batch.Changes, changesFor(c, p.ttl)...)
	}

	_, err := p.api.ChangeResourceRecordSetsWithContext(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zone.ID),
		ChangeBatch:  batch,
	})
	if err != nil {
		return p.classify("batch", err)
	}

	p.logger.Info("applied change batch",
		slog.String("zone", zone.Name),
		slog.Int("changes", len(changes)),
	)
	return nil
}

// CreateRecord creates record through a single-change batch.
func (p *Provider) CreateRecord(ctx context.Context, zone provider.Zone, record provider.Record) (provider.Record, error) {
	if err := p.ApplyChanges(ctx, zone, []provider.Change{provider.Create(zone, record)}); err != nil {
		return provider.Record{}, err
	}
	return withTTL(record, p.ttl), nil
}

// UpdateRecord replaces current with desired through a single batch.
func (p *Provider) UpdateRecord(ctx context.Context, zone provider.Zone, current, desired provider.Record) (provider.Record, error) {
	if err := p.ApplyChanges(ctx, zone, []provider.Change{provider.Update(zone, current, desired)}); err != nil {
		return provider.Record{}, err
	}
	return withTTL(desired, p.ttl), nil
}

// DeleteRecord deletes the exact record set. A record set that is already
// gone is reported as NotFound.
func (p *Provider) DeleteRecord(ctx context.Context, zone provider.Zone, record provider.Record) error {
	err := p.ApplyChanges(ctx, zone, []provider.Change{provider.Delete(zone, record)})
	var aerr awserr.Error
	if provider.IsConflict(err) && errors.As(err, &aerr) && recordSetMissing(aerr) {
		return provider.NewError(p.name, "delete", provider.KindNotFound, aerr)
	}
	return err
}

// recordSetMissing reports whether a rejected batch failed because a DELETE
// named a record set that does not exist.
func recordSetMissing(aerr awserr.Error) bool {
	return aerr.Code() == route53.ErrCodeInvalidChangeBatch &&
		strings.Contains(strings.ToLower(aerr.Message()), "not found")
}

func withTTL(r provider.Record, defaultTTL int64) provider.Record {
	if r.TTL <= 0 {
		r.TTL = int(defaultTTL)
	}
	return r
}

func errMissingZoneID(zone provider.Zone) error {
	return fmt.Errorf("zone %s has no hosted zone id: %w", zone.Name, provider.ErrZoneResolutionUnsupported)
}

func (p *Provider) classify(op string, err error) error {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return provider.Classify(p.name, op, err)
	}

	switch aerr.Code() {
	case "Throttling", "ThrottlingException", route53.ErrCodePriorRequestNotComplete:
		return provider.NewRateLimited(p.name, op, 0, err)
	case route53.ErrCodeInvalidChangeBatch:
		return provider.NewError(p.name, op, provider.KindConflict, err)
	case route53.ErrCodeInvalidInput:
		return provider.NewError(p.name, op, provider.KindInvalid, err)
	case route53.ErrCodeNoSuchHostedZone:
		return provider.NewError(p.name, op, provider.KindNotFound, err)
	case "AccessDenied", "AccessDeniedException", "InvalidClientTokenId", "SignatureDoesNotMatch",
		"ExpiredToken", "UnrecognizedClientException", "IncompleteSignature", "MissingAuthenticationToken":
		return provider.NewError(p.name, op, provider.KindUnauthorized, err)
	}

	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		switch code := reqErr.StatusCode(); {
		case code == http.StatusTooManyRequests:
			return provider.NewRateLimited(p.name, op, 0, err)
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return provider.NewError(p.name, op, provider.KindUnauthorized, err)
		case code >= 400 && code < 500:
			return provider.NewError(p.name, op, provider.KindInvalid, err)
		}
	}
	return provider.Classify(p.name, op, err)
}

// Ensure Provider implements the provider interfaces at compile time.
var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.Batcher      = (*Provider)(nil)
	_ provider.ZoneResolver = (*Provider)(nil)
)

package config

import (
	"fmt"
	"slices"
	"strings"

	"gitlab.bluewillows.net/root/traefik-dns/internal/matcher"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
)

// ProviderTypes lists the provider types the binary registers factories for.
var ProviderTypes = []string{"route53", "cloudflare", "rfc2136"}

// GuardOptions returns the rate limit, timeout and observer applied to every
// call made through this provider instance.
func (p *ProviderConfig) GuardOptions(observer provider.Observer) provider.GuardOptions {
	return provider.GuardOptions{
		Limiter:  provider.NewLimiter(p.RateLimit, p.Burst),
		Timeout:  p.Timeout,
		Observer: observer,
	}
}

// BatchSizes returns the configured batch size of each provider that set one.
func (c *Config) BatchSizes() map[string]int {
	sizes := make(map[string]int)
	for _, p := range c.Providers {
		if p.BatchSize > 0 {
			sizes[p.Name] = p.BatchSize
		}
	}
	return sizes
}

// ZoneSet builds the zone mapping, compiling each zone's exclude globs.
func (c *Config) ZoneSet() (*provider.ZoneSet, error) {
	zones := make([]*provider.ZoneConfig, 0, len(c.Zones))
	for _, z := range c.Zones {
		m, err := matcher.MatchAll(z.Exclude)
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", z.Name, err)
		}
		zones = append(zones, &provider.ZoneConfig{
			Zone:       provider.Zone{Name: z.Name, ID: z.ID, Provider: z.Provider},
			Target:     z.Target,
			RecordType: z.RecordType,
			TTL:        z.TTL,
			Mode:       z.Mode,
			Matcher:    m,
		})
	}
	return provider.NewZoneSet(zones)
}

// validateProvider checks one provider instance.
func validateProvider(p *ProviderConfig) []string {
	var errs []string
	owner := "provider " + p.Name

	if p.Type == "" {
		errs = append(errs, owner+": type is required")
	} else if err := validateProviderType(p.Type, ProviderTypes); err != nil {
		errs = append(errs, owner+": "+err.Error())
	}
	if p.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("%s: rate_limit must not be negative, got %g", owner, p.RateLimit))
	}
	if p.Burst < 0 {
		errs = append(errs, fmt.Sprintf("%s: burst must not be negative, got %d", owner, p.Burst))
	}
	if p.Timeout <= 0 {
		errs = append(errs, owner+": timeout must be positive")
	}
	if p.BatchSize < 0 {
		errs = append(errs, fmt.Sprintf("%s: batch_size must not be negative, got %d", owner, p.BatchSize))
	}
	return errs
}

// validateZone checks one zone against the known provider names.
func validateZone(z *ZoneConfig, providers map[string]bool) []string {
	var errs []string
	owner := "zone " + z.Name

	if err := source.ValidateHostname(z.Name); err != nil {
		errs = append(errs, owner+": "+err.Error())
	}
	if strings.HasPrefix(z.Name, "*") {
		errs = append(errs, owner+": zone name cannot be a wildcard")
	}
	if z.Provider == "" {
		errs = append(errs, owner+": provider is required")
	} else if !providers[z.Provider] {
		errs = append(errs, fmt.Sprintf("%s: unknown provider %q", owner, z.Provider))
	}
	if z.Target == "" {
		errs = append(errs, owner+": target is required")
	} else {
		errs = append(errs, validateTargetRecordType(owner+": target", z.RecordType, z.Target)...)
	}
	if z.TTL < 0 {
		errs = append(errs, fmt.Sprintf("%s: ttl must not be negative, got %d", owner, z.TTL))
	}
	for _, pattern := range z.Exclude {
		if _, err := matcher.MatchAll([]string{pattern}); err != nil {
			errs = append(errs, fmt.Sprintf("%s: exclude %q: %v", owner, pattern, err))
		}
	}
	return errs
}

func joinTypes(types []string) string {
	sorted := slices.Clone(types)
	slices.Sort(sorted)
	return strings.Join(sorted, ", ")
}

package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/traefik-dns/internal/matcher"
)

// CanonicalName lowercases a DNS name and strips the trailing root dot.
func CanonicalName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "." {
		return ""
	}
	return strings.TrimSuffix(dns.CanonicalName(name), ".")
}

// InZone reports whether name is the zone apex or a name below it.
func InZone(name, zone string) bool {
	return dns.IsSubDomain(dns.Fqdn(zone), dns.Fqdn(name))
}

// Zone identifies a DNS zone at a provider.
type Zone struct {
	// Name is the canonical domain suffix the zone serves (e.g., "example.com").
	Name string

	// ID is the provider-native zone identifier (Route53 hosted zone ID,
	// Cloudflare zone ID). Providers that address zones by name leave it empty.
	ID string

	// Provider is the name of the provider instance serving the zone.
	Provider string
}

func (z Zone) String() string {
	if z.ID != "" {
		return fmt.Sprintf("%s (%s/%s)", z.Name, z.Provider, z.ID)
	}
	return fmt.Sprintf("%s (%s)", z.Name, z.Provider)
}

// ZoneConfig combines a zone with the record defaults that apply to names in it.
type ZoneConfig struct {
	Zone Zone

	// Target is the value for records in this zone:
	//   - For A/AAAA records: an IP address (e.g., "10.1.20.210")
	//   - For CNAME records: a target hostname (e.g., "lb.example.net")
	Target string

	// RecordType is the type of record created for each hostname.
	RecordType RecordType

	// TTL in seconds. Zero leaves the TTL to the provider and ignores it when
	// comparing records.
	TTL int

	// Mode controls whether deletes are allowed.
	Mode OperationalMode

	// Matcher optionally restricts which hostnames in the zone are managed.
	Matcher *matcher.DomainMatcher
}

// Manages reports whether hostname falls under this zone's scope filters.
func (c *ZoneConfig) Manages(hostname string) bool {
	return c.Matcher == nil || c.Matcher.Matches(hostname)
}

// ZoneConfigError reports an ambiguous zone mapping.
type ZoneConfigError struct {
	Suffix string
	Zones  []Zone
}

func (e *ZoneConfigError) Error() string {
	parts := make([]string, len(e.Zones))
	for i, z := range e.Zones {
		parts[i] = z.String()
	}
	return fmt.Sprintf("zone suffix %q is configured more than once: %s", e.Suffix, strings.Join(parts, ", "))
}

// ZoneSet resolves record names to the configured zone with the longest
// matching suffix.
type ZoneSet struct {
	zones   []*ZoneConfig
	byName  map[string]*ZoneConfig
	targets map[string]struct{}
}

// NewZoneSet validates and indexes zone configurations. Two zones with the
// same suffix are ambiguous and produce a *ZoneConfigError.
func NewZoneSet(zones []*ZoneConfig) (*ZoneSet, error) {
	s := &ZoneSet{
		byName:  make(map[string]*ZoneConfig, len(zones)),
		targets: make(map[string]struct{}, len(zones)),
	}
	for _, zc := range zones {
		zc.Zone.Name = CanonicalName(zc.Zone.Name)
		if zc.Zone.Name == "" {
			return nil, ErrConfigMissing("zone name")
		}
		if existing, ok := s.byName[zc.Zone.Name]; ok {
			return nil, &ZoneConfigError{Suffix: zc.Zone.Name, Zones: []Zone{existing.Zone, zc.Zone}}
		}
		if zc.Mode == "" {
			zc.Mode = ModeManaged
		}
		s.byName[zc.Zone.Name] = zc
		s.zones = append(s.zones, zc)
		if zc.Target != "" {
			s.targets[normalizeTarget(zc.RecordType, zc.Target)] = struct{}{}
		}
	}

	// Longest suffix first keeps Resolve deterministic.
	sort.SliceStable(s.zones, func(i, j int) bool {
		li, lj := dns.CountLabel(dns.Fqdn(s.zones[i].Zone.Name)), dns.CountLabel(dns.Fqdn(s.zones[j].Zone.Name))
		if li != lj {
			return li > lj
		}
		return s.zones[i].Zone.Name < s.zones[j].Zone.Name
	})
	return s, nil
}

// Resolve returns the zone with the longest suffix matching name.
func (s *ZoneSet) Resolve(name string) (*ZoneConfig, bool) {
	name = CanonicalName(name)
	for _, zc := range s.zones {
		if InZone(name, zc.Zone.Name) {
			return zc, true
		}
	}
	return nil, false
}

// Get returns the zone configured for exactly this suffix.
func (s *ZoneSet) Get(zoneName string) (*ZoneConfig, bool) {
	zc, ok := s.byName[CanonicalName(zoneName)]
	return zc, ok
}

// All returns every zone, longest suffix first.
func (s *ZoneSet) All() []*ZoneConfig {
	return s.zones
}

// Len returns the number of configured zones.
func (s *ZoneSet) Len() int {
	return len(s.zones)
}

// IsConfiguredTarget reports whether value is the target of any configured zone.
func (s *ZoneSet) IsConfiguredTarget(t RecordType, value string) bool {
	_, ok := s.targets[normalizeTarget(t, value)]
	return ok
}

func normalizeTarget(t RecordType, v string) string {
	if t == RecordTypeCNAME {
		return CanonicalName(v)
	}
	return strings.TrimSpace(v)
}

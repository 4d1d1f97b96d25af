// Package desired turns router rules into the set of DNS records that
// should exist.
package desired

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gitlab.bluewillows.net/root/traefik-dns/internal/ownership"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
)

// Record is a record the engine wants to exist, with the zone it belongs to
// and the routers that asked for it.
type Record struct {
	provider.Record

	Zone    *provider.ZoneConfig
	Routers []string
}

// ConflictError reports routers that want different records at one name.
// The name is excluded from the cycle.
type ConflictError struct {
	Name    string
	Type    provider.RecordType
	Values  []string
	Routers []string
}

func (e *ConflictError) Error() string {
	what := fmt.Sprintf("%s records", e.Type)
	if e.Type == "" {
		what = "record types"
	}
	return fmt.Sprintf("conflicting %s for %s: [%s] requested by routers [%s]",
		what, e.Name, strings.Join(e.Values, ", "), strings.Join(e.Routers, ", "))
}

// RuleError is a router whose rule or hostnames were rejected.
type RuleError struct {
	Rule     source.HostRule
	Hostname string
	Err      error
}

func (e *RuleError) Error() string {
	if e.Hostname != "" {
		return fmt.Sprintf("router %s: hostname %q: %v", e.Rule, e.Hostname, e.Err)
	}
	return fmt.Sprintf("router %s: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// Set is the outcome of one build.
type Set struct {
	// Records holds the desired records sorted by zone, name and type.
	Records []Record

	// Conflicts lists names excluded because routers disagree.
	Conflicts []*ConflictError

	// Errors lists rules and hostnames that were rejected.
	Errors []error

	// Excluded holds names that must not be touched this cycle.
	Excluded map[string]struct{}

	// Unmanaged counts hostnames outside every configured zone.
	Unmanaged int
}

// IsExcluded reports whether changes to name are suppressed this cycle.
func (s *Set) IsExcluded(name string) bool {
	_, ok := s.Excluded[name]
	return ok
}

// ForZone returns the desired records in zone.
func (s *Set) ForZone(zone string) []Record {
	var out []Record
	for _, r := range s.Records {
		if r.Zone.Zone.Name == zone {
			out = append(out, r)
		}
	}
	return out
}

// Builder derives desired records from router rules.
type Builder struct {
	zones   *provider.ZoneSet
	tracker *ownership.Tracker
	logger  *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder returns a Builder for the configured zones. Hostnames in the
// tracker's marker namespace are rejected.
func NewBuilder(zones *provider.ZoneSet, tracker *ownership.Tracker, opts ...Option) *Builder {
	b := &Builder{
		zones:   zones,
		tracker: tracker,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type candidate struct {
	rec     provider.Record
	zone    *provider.ZoneConfig
	routers []string
	values  map[string][]string // value key -> routers
}

// Build parses every rule and returns the desired set. It never fails as a
// whole: bad rules, bad hostnames and conflicting names are reported in the
// result and left out.
func (b *Builder) Build(rules []source.HostRule) *Set {
	set := &Set{Excluded: make(map[string]struct{})}
	byKey := make(map[provider.Key]*candidate)
	var order []provider.Key

	for _, hr := range rules {
		hosts, err := hr.Hostnames()
		if err != nil {
			b.logger.Warn("skipping router with malformed rule",
				slog.String("router", hr.String()),
				slog.String("error", err.Error()),
			)
			set.Errors = append(set.Errors, &RuleError{Rule: hr, Err: err})
			continue
		}

		for _, host := range hosts {
			rec, zc, err := b.materialize(hr, host)
			if err != nil {
				b.logger.Warn("skipping hostname",
					slog.String("router", hr.String()),
					slog.String("hostname", host),
					slog.String("error", err.Error()),
				)
				set.Errors = append(set.Errors, &RuleError{Rule: hr, Hostname: host, Err: err})
				continue
			}
			if zc == nil {
				set.Unmanaged++
				continue
			}

			key := rec.Key()
			c, ok := byKey[key]
			if !ok {
				c = &candidate{rec: rec, zone: zc, values: make(map[string][]string)}
				byKey[key] = c
				order = append(order, key)
			}
			value := valueKey(rec)
			c.values[value] = appendUnique(c.values[value], hr.String())
			c.routers = appendUnique(c.routers, hr.String())
		}
	}

	b.resolveConflicts(set, byKey, order)

	for _, key := range order {
		c := byKey[key]
		if set.IsExcluded(key.Name) {
			continue
		}
		set.Records = append(set.Records, Record{Record: c.rec, Zone: c.zone, Routers: c.routers})
	}
	sort.SliceStable(set.Records, func(i, j int) bool {
		x, y := set.Records[i], set.Records[j]
		if x.Zone.Zone.Name != y.Zone.Zone.Name {
			return x.Zone.Zone.Name < y.Zone.Zone.Name
		}
		if x.Name != y.Name {
			return x.Name < y.Name
		}
		return x.Type < y.Type
	})
	return set
}

func (b *Builder) resolveConflicts(set *Set, byKey map[provider.Key]*candidate, order []provider.Key) {
	for _, key := range order {
		c := byKey[key]
		if len(c.values) < 2 {
			continue
		}
		conflict := &ConflictError{Name: key.Name, Type: key.Type, Routers: c.routers}
		for v := range c.values {
			conflict.Values = append(conflict.Values, v)
		}
		sort.Strings(conflict.Values)
		b.exclude(set, conflict)
	}

	// CNAME cannot share a name with any other type.
	types := make(map[string][]provider.Key)
	for _, key := range order {
		types[key.Name] = append(types[key.Name], key)
	}
	for _, key := range order {
		keys := types[key.Name]
		if key.Type != provider.RecordTypeCNAME || len(keys) < 2 || set.IsExcluded(key.Name) {
			continue
		}
		conflict := &ConflictError{Name: key.Name}
		for _, k := range keys {
			conflict.Values = append(conflict.Values, string(k.Type)+" "+byKey[k].rec.Value())
			for _, r := range byKey[k].routers {
				conflict.Routers = appendUnique(conflict.Routers, r)
			}
		}
		b.exclude(set, conflict)
	}
}

func (b *Builder) exclude(set *Set, conflict *ConflictError) {
	b.logger.Error("conflicting desired records, name excluded from this cycle",
		slog.String("name", conflict.Name),
		slog.String("type", string(conflict.Type)),
		slog.Any("values", conflict.Values),
		slog.Any("routers", conflict.Routers),
	)
	set.Conflicts = append(set.Conflicts, conflict)
	set.Excluded[conflict.Name] = struct{}{}
}

// materialize builds the record for host. A nil zone means host is outside
// every configured zone, or filtered out by the zone's excludes.
func (b *Builder) materialize(hr source.HostRule, host string) (provider.Record, *provider.ZoneConfig, error) {
	if err := source.ValidateHostname(host); err != nil {
		return provider.Record{}, nil, err
	}
	name := provider.CanonicalName(host)
	if b.tracker != nil && b.tracker.InNamespace(name) {
		return provider.Record{}, nil, fmt.Errorf("name lies in the ownership marker namespace %q", b.tracker.Prefix())
	}

	zc, ok := b.zones.Resolve(name)
	if !ok || !zc.Manages(name) {
		return provider.Record{}, nil, nil
	}

	typ, value, ttl := zc.RecordType, zc.Target, zc.TTL
	if t := hr.Target; t != nil {
		if t.Value != "" {
			typ, value = t.RecordType, t.Value
		}
		if t.TTL != 0 {
			ttl = t.TTL
		}
	}
	if typ == "" {
		typ = provider.RecordTypeA
	}
	if value == "" {
		return provider.Record{}, nil, fmt.Errorf("zone %s has no target configured", zc.Zone.Name)
	}
	if typ == provider.RecordTypeCNAME {
		if name == zc.Zone.Name {
			return provider.Record{}, nil, fmt.Errorf("CNAME is not allowed at the zone apex %s", zc.Zone.Name)
		}
		value = provider.CanonicalName(value)
		if value == name {
			return provider.Record{}, nil, fmt.Errorf("CNAME would point at itself")
		}
	}
	return provider.NewRecord(name, typ, value, ttl), zc, nil
}

// valueKey distinguishes requests that would write different records.
// A differing TTL counts as a different record.
func valueKey(r provider.Record) string {
	if r.TTL > 0 {
		return fmt.Sprintf("%s ttl=%d", r.Value(), r.TTL)
	}
	return r.Value()
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// Package provider defines the DNS provider capability and the types shared
// by its backends.
package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// RecordType represents the type of DNS record.
type RecordType string

const (
	RecordTypeA     RecordType = "A"
	RecordTypeAAAA  RecordType = "AAAA"
	RecordTypeCNAME RecordType = "CNAME"
	RecordTypeTXT   RecordType = "TXT"
)

// ManagedTypes lists the record types the engine reads and writes.
var ManagedTypes = []RecordType{RecordTypeA, RecordTypeAAAA, RecordTypeCNAME, RecordTypeTXT}

// ParseRecordType parses a record type. An empty string yields A.
func ParseRecordType(s string) (RecordType, error) {
	switch RecordType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", RecordTypeA:
		return RecordTypeA, nil
	case RecordTypeAAAA:
		return RecordTypeAAAA, nil
	case RecordTypeCNAME:
		return RecordTypeCNAME, nil
	case RecordTypeTXT:
		return RecordTypeTXT, nil
	default:
		return "", fmt.Errorf("unsupported record type %q: must be one of A, AAAA, CNAME, TXT", s)
	}
}

// IsManaged reports whether t is one of ManagedTypes.
func (t RecordType) IsManaged() bool {
	return slices.Contains(ManagedTypes, t)
}

// Key identifies a record set by name and type.
type Key struct {
	Name string
	Type RecordType
}

func (k Key) String() string {
	return k.Name + "/" + string(k.Type)
}

// Record is a DNS record set as read from or written to a provider.
type Record struct {
	// Name is the canonical owner name: lowercase, no trailing dot.
	Name string

	Type RecordType

	// Values holds the record data. Desired records carry exactly one value;
	// providers with record-set semantics may return several.
	Values []string

	// TTL in seconds. Zero means unset.
	TTL int

	// ID is the provider-native identifier, empty for providers that address
	// records by name.
	ID string
}

// NewRecord builds a single-valued record with a canonical name.
func NewRecord(name string, typ RecordType, value string, ttl int) Record {
	return Record{
		Name:   CanonicalName(name),
		Type:   typ,
		Values: []string{value},
		TTL:    ttl,
	}
}

// Key returns the (name, type) key of the record.
func (r Record) Key() Key {
	return Key{Name: r.Name, Type: r.Type}
}

// Value returns the first value, or "" when the record has none.
func (r Record) Value() string {
	if len(r.Values) == 0 {
		return ""
	}
	return r.Values[0]
}

// SameValues reports whether both records carry the same set of values.
// CNAME targets compare case-insensitively and without the trailing dot.
func (r Record) SameValues(o Record) bool {
	if len(r.Values) != len(o.Values) {
		return false
	}
	a := normalizeValues(r.Type, r.Values)
	b := normalizeValues(o.Type, o.Values)
	return slices.Equal(a, b)
}

// Equal reports whether two records match for reconciliation purposes.
// TTL is compared only when both sides set it; a zero have.TTL means the
// provider chooses the TTL itself. Provider IDs are ignored.
func Equal(want, have Record) bool {
	if want.Name != have.Name || want.Type != have.Type {
		return false
	}
	if want.TTL != 0 && have.TTL != 0 && want.TTL != have.TTL {
		return false
	}
	return want.SameValues(have)
}

func (r Record) String() string {
	s := fmt.Sprintf("%s %s %s", r.Name, r.Type, strings.Join(r.Values, ","))
	if r.TTL > 0 {
		s += fmt.Sprintf(" ttl=%d", r.TTL)
	}
	return s
}

func normalizeValues(t RecordType, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if t == RecordTypeCNAME {
			v = CanonicalName(v)
		}
		out[i] = v
	}
	slices.Sort(out)
	return out
}

// Provider is the DNS capability every backend implements. All operations
// are scoped to a zone the provider serves.
type Provider interface {
	// Name returns the provider instance name (e.g., "aws-public").
	Name() string

	// Type returns the provider type (e.g., "route53", "cloudflare").
	Type() string

	// ListRecords returns every record of a managed type in the zone.
	// Pagination is handled internally and must be exhaustive.
	ListRecords(ctx context.Context, zone Zone) ([]Record, error)

	// CreateRecord creates a record and returns it as stored.
	CreateRecord(ctx context.Context, zone Zone, record Record) (Record, error)

	// UpdateRecord replaces current with desired and returns the stored result.
	UpdateRecord(ctx context.Context, zone Zone, current, desired Record) (Record, error)

	// DeleteRecord removes a record previously returned by ListRecords.
	DeleteRecord(ctx context.Context, zone Zone, record Record) error
}

// Batcher is implemented by providers that can apply several changes to one
// zone in a single all-or-nothing request.
type Batcher interface {
	ApplyChanges(ctx context.Context, zone Zone, changes []Change) error
}

// ZoneResolver is implemented by providers that can look up a zone ID by name.
type ZoneResolver interface {
	ResolveZoneID(ctx context.Context, zoneName string) (string, error)
}

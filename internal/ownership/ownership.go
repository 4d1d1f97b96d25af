// Package ownership decides which DNS records this installation may modify.
//
// Every record created by the engine is paired with a TXT marker at
// "<prefix>.<name>" whose value names the owning installation. Ownership is
// read back from the provider every cycle; it is never inferred from a
// record's name or content.
package ownership

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

const (
	// DefaultPrefix is the label prepended to a name to form its marker name.
	DefaultPrefix = "_traefik-dns"

	// DefaultOwnerID identifies the installation when none is configured.
	DefaultOwnerID = "default"

	heritage = "heritage=traefik-dns"
	ownerKey = "traefik-dns/owner="

	// wildcardLabel stands in for a leading "*" in marker names, since a
	// wildcard label is only valid as the leftmost label.
	wildcardLabel = "_wildcard"
)

// Tracker builds and recognizes ownership markers for one installation.
type Tracker struct {
	prefix  string
	ownerID string
	token   string
}

// New returns a Tracker. Empty arguments fall back to the defaults.
func New(prefix, ownerID string) (*Tracker, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	ownerID = strings.TrimSpace(ownerID)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ownerID == "" {
		ownerID = DefaultOwnerID
	}

	if strings.Contains(prefix, ".") {
		return nil, fmt.Errorf("ownership prefix %q must be a single label", prefix)
	}
	if _, ok := dns.IsDomainName(prefix); !ok {
		return nil, fmt.Errorf("ownership prefix %q is not a valid DNS label", prefix)
	}
	if strings.ContainsAny(ownerID, ", \t\"") {
		return nil, errors.New("owner id must not contain commas, quotes or whitespace")
	}

	return &Tracker{
		prefix:  prefix,
		ownerID: ownerID,
		token:   heritage + "," + ownerKey + ownerID,
	}, nil
}

// Prefix returns the marker label.
func (t *Tracker) Prefix() string { return t.prefix }

// OwnerID returns the installation identifier.
func (t *Tracker) OwnerID() string { return t.ownerID }

// Token returns the TXT value written into this installation's markers.
func (t *Tracker) Token() string { return t.token }

// MarkerName returns the marker owner name for a record name.
func (t *Tracker) MarkerName(name string) string {
	name = provider.CanonicalName(name)
	if rest, ok := strings.CutPrefix(name, "*."); ok {
		name = wildcardLabel + "." + rest
	}
	return t.prefix + "." + name
}

// SiblingName returns the record name a marker name protects.
func (t *Tracker) SiblingName(markerName string) (string, bool) {
	rest, ok := strings.CutPrefix(provider.CanonicalName(markerName), t.prefix+".")
	if !ok || rest == "" {
		return "", false
	}
	if tail, ok := strings.CutPrefix(rest, wildcardLabel+"."); ok {
		rest = "*." + tail
	}
	return rest, true
}

// InNamespace reports whether name lies under the marker prefix and so can
// never be published as a managed record.
func (t *Tracker) InNamespace(name string) bool {
	_, ok := t.SiblingName(name)
	return ok
}

// MarkerFor returns the TXT marker to create alongside a record at name.
func (t *Tracker) MarkerFor(name string, ttl int) provider.Record {
	return provider.NewRecord(t.MarkerName(name), provider.RecordTypeTXT, t.token, ttl)
}

// IsMarker reports whether r is a TXT record in the marker namespace,
// regardless of which installation wrote it.
func (t *Tracker) IsMarker(r provider.Record) bool {
	return r.Type == provider.RecordTypeTXT && t.InNamespace(r.Name)
}

// IsOwnMarker reports whether r is a marker written by this installation.
func (t *Tracker) IsOwnMarker(r provider.Record) bool {
	if !t.IsMarker(r) {
		return false
	}
	for _, v := range r.Values {
		if t.matches(v) {
			return true
		}
	}
	return false
}

// IsForeignMarker reports whether r is a marker written by another
// installation and not by this one.
func (t *Tracker) IsForeignMarker(r provider.Record) bool {
	if !t.IsMarker(r) || t.IsOwnMarker(r) {
		return false
	}
	for _, v := range r.Values {
		if _, ok := ParseToken(v); ok {
			return true
		}
	}
	return false
}

// IsOwned reports whether actual holds this installation's marker for name.
func (t *Tracker) IsOwned(name string, actual []provider.Record) bool {
	marker := t.MarkerName(name)
	for _, r := range actual {
		if r.Name == marker && t.IsOwnMarker(r) {
			return true
		}
	}
	return false
}

func (t *Tracker) matches(value string) bool {
	owner, ok := ParseToken(value)
	return ok && owner == t.ownerID
}

// ParseToken extracts the owner id from a marker value. Values written by
// other tools, or without an owner, are rejected.
func ParseToken(value string) (string, bool) {
	value = strings.Trim(strings.TrimSpace(value), `"`)

	var sawHeritage bool
	var owner string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == heritage:
			sawHeritage = true
		case strings.HasPrefix(part, ownerKey):
			owner = strings.TrimPrefix(part, ownerKey)
		}
	}
	if !sawHeritage || owner == "" {
		return "", false
	}
	return owner, true
}

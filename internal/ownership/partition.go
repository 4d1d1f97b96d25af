package ownership

import "gitlab.bluewillows.net/root/traefik-dns/pkg/provider"

// Partition splits the records of one zone into data records and markers.
type Partition struct {
	// Records are the data records, markers excluded.
	Records []provider.Record

	// Markers holds this installation's markers keyed by sibling name.
	Markers map[string]provider.Record

	// Foreign holds other installations' markers keyed by sibling name.
	Foreign map[string]provider.Record

	// Unknown holds TXT records in the marker namespace that carry no
	// recognizable token. They are left alone like foreign markers.
	Unknown map[string]provider.Record
}

// Split partitions actual. Every TXT record in the marker namespace is a
// marker; none of them is ever returned as a data record.
func (t *Tracker) Split(actual []provider.Record) Partition {
	p := Partition{
		Markers: make(map[string]provider.Record),
		Foreign: make(map[string]provider.Record),
		Unknown: make(map[string]provider.Record),
	}

	for _, r := range actual {
		if r.Type != provider.RecordTypeTXT {
			if !t.InNamespace(r.Name) {
				p.Records = append(p.Records, r)
			}
			continue
		}

		sibling, ok := t.SiblingName(r.Name)
		if !ok {
			p.Records = append(p.Records, r)
			continue
		}
		switch {
		case t.IsOwnMarker(r):
			p.Markers[sibling] = r
		case t.IsForeignMarker(r):
			p.Foreign[sibling] = r
		default:
			p.Unknown[sibling] = r
		}
	}
	return p
}

// Owns reports whether this installation's marker exists for name.
func (p Partition) Owns(name string) bool {
	_, ok := p.Markers[name]
	return ok
}

// Claimed reports whether any marker, ours or not, exists for name.
func (p Partition) Claimed(name string) bool {
	if _, ok := p.Markers[name]; ok {
		return true
	}
	if _, ok := p.Foreign[name]; ok {
		return true
	}
	_, ok := p.Unknown[name]
	return ok
}

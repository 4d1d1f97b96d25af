// Package plan computes the changes that converge a zone toward its
// desired records.
package plan

import (
	"fmt"
	"sort"

	"gitlab.bluewillows.net/root/traefik-dns/internal/desired"
	"gitlab.bluewillows.net/root/traefik-dns/internal/ownership"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// Phase orders the changes of a plan. Lower phases are applied first.
type Phase int

const (
	PhaseMarkerCreate Phase = iota
	PhaseUpsert
	PhaseDelete
	PhaseMarkerDelete
)

func (p Phase) String() string {
	switch p {
	case PhaseMarkerCreate:
		return "marker-create"
	case PhaseUpsert:
		return "upsert"
	case PhaseDelete:
		return "delete"
	default:
		return "marker-delete"
	}
}

// PhaseOf returns the phase a change belongs to.
func PhaseOf(c provider.Change) Phase {
	switch {
	case c.Marker && c.Action == provider.ActionDelete:
		return PhaseMarkerDelete
	case c.Marker:
		return PhaseMarkerCreate
	case c.Action == provider.ActionDelete:
		return PhaseDelete
	default:
		return PhaseUpsert
	}
}

// Warning is something the differ chose not to change.
type Warning struct {
	Zone    string
	Name    string
	Type    provider.RecordType
	Message string
}

func (w Warning) String() string {
	if w.Type != "" {
		return fmt.Sprintf("%s/%s in %s: %s", w.Name, w.Type, w.Zone, w.Message)
	}
	return fmt.Sprintf("%s in %s: %s", w.Name, w.Zone, w.Message)
}

// Plan is the ordered list of changes for one zone.
type Plan struct {
	Zone     provider.Zone
	Changes  []provider.Change
	Warnings []Warning

	// Unchanged counts desired records already in place.
	Unchanged int
}

// Count returns the number of non-marker changes with the given action.
func (p *Plan) Count(action provider.Action) int {
	n := 0
	for _, c := range p.Changes {
		if c.Action == action && !c.Marker {
			n++
		}
	}
	return n
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.Changes) == 0
}

// Differ compares desired and actual records of a zone.
type Differ struct {
	tracker *ownership.Tracker
	zones   *provider.ZoneSet
}

// NewDiffer returns a Differ. zones is used to recognize unowned records
// that point at a configured target; it may be nil.
func NewDiffer(tracker *ownership.Tracker, zones *provider.ZoneSet) *Differ {
	return &Differ{tracker: tracker, zones: zones}
}

type diffState struct {
	zc      *provider.ZoneConfig
	part    ownership.Partition
	byKey   map[provider.Key][]int
	byName  map[string][]int
	handled map[int]bool
	deleted map[int]bool
	marked  map[string]bool
	plan    *Plan
}

func (s *diffState) rec(i int) provider.Record {
	return s.part.Records[i]
}

func (s *diffState) warn(name string, typ provider.RecordType, format string, args ...any) {
	s.plan.Warnings = append(s.plan.Warnings, Warning{
		Zone:    s.zc.Zone.Name,
		Name:    name,
		Type:    typ,
		Message: fmt.Sprintf(format, args...),
	})
}

func (s *diffState) add(c provider.Change) {
	s.plan.Changes = append(s.plan.Changes, c)
}

func (s *diffState) remove(i int) {
	s.deleted[i] = true
	s.add(provider.Delete(s.zc.Zone, s.rec(i)))
}

// Diff returns the plan for zc. Names in excluded are never touched.
// Only records whose name carries this installation's marker are updated
// or deleted.
func (d *Differ) Diff(zc *provider.ZoneConfig, want []desired.Record, actual []provider.Record, excluded map[string]struct{}) *Plan {
	s := &diffState{
		zc:      zc,
		part:    d.tracker.Split(actual),
		byKey:   make(map[provider.Key][]int),
		byName:  make(map[string][]int),
		handled: make(map[int]bool),
		deleted: make(map[int]bool),
		marked:  make(map[string]bool),
		plan:    &Plan{Zone: zc.Zone},
	}
	for i, r := range s.part.Records {
		s.byKey[r.Key()] = append(s.byKey[r.Key()], i)
		s.byName[r.Name] = append(s.byName[r.Name], i)
	}

	isExcluded := func(name string) bool {
		_, ok := excluded[name]
		return ok
	}

	wantKeys := make(map[provider.Key]struct{}, len(want))
	wantNames := make(map[string]struct{}, len(want))
	for _, w := range want {
		wantKeys[w.Key()] = struct{}{}
		wantNames[w.Name] = struct{}{}
	}

	for _, w := range want {
		if isExcluded(w.Name) {
			continue
		}
		if idx := s.byKey[w.Key()]; len(idx) > 0 {
			d.reconcileExisting(s, w.Record, idx)
			continue
		}
		d.reconcileMissing(s, w.Record, wantKeys)
	}

	// Owned records nobody asks for anymore.
	for i, r := range s.part.Records {
		if s.handled[i] || isExcluded(r.Name) {
			continue
		}
		if !s.part.Owns(r.Name) {
			if d.looksOrphaned(r) {
				s.warn(r.Name, r.Type, "looks orphaned but unowned; left untouched")
			}
			continue
		}
		if !zc.Mode.AllowsDelete() {
			continue
		}
		s.remove(i)
	}

	// Markers whose siblings are all gone.
	for _, name := range sortedNames(s.part.Markers) {
		if isExcluded(name) {
			continue
		}
		if _, ok := wantNames[name]; ok {
			continue
		}
		remaining := false
		for _, i := range s.byName[name] {
			if !s.deleted[i] {
				remaining = true
				break
			}
		}
		if remaining {
			continue
		}
		c := provider.Delete(zc.Zone, s.part.Markers[name])
		c.Marker = true
		s.add(c)
	}

	sortChanges(s.plan.Changes)
	return s.plan
}

// reconcileExisting handles a desired record whose (name, type) already
// exists at the provider.
func (d *Differ) reconcileExisting(s *diffState, w provider.Record, idx []int) {
	for _, i := range idx {
		s.handled[i] = true
	}

	if !s.part.Owns(w.Name) {
		for _, i := range idx {
			if provider.Equal(w, s.rec(i)) {
				s.plan.Unchanged++
				return
			}
		}
		s.warn(w.Name, w.Type, "record exists but is not owned; left untouched")
		return
	}

	keep := -1
	for _, i := range idx {
		if provider.Equal(w, s.rec(i)) {
			keep = i
			break
		}
	}
	if keep >= 0 {
		s.plan.Unchanged++
	} else {
		keep = idx[0]
		s.add(provider.Update(s.zc.Zone, s.rec(keep), w))
	}

	for _, i := range idx {
		if i != keep && s.zc.Mode.AllowsDelete() {
			s.remove(i)
		}
	}
}

// reconcileMissing handles a desired record with no actual record of its
// (name, type).
func (d *Differ) reconcileMissing(s *diffState, w provider.Record, wantKeys map[provider.Key]struct{}) {
	owned := s.part.Owns(w.Name)

	var others, clashes []int
	for _, i := range s.byName[w.Name] {
		if s.handled[i] {
			continue
		}
		others = append(others, i)
		if w.Type == provider.RecordTypeCNAME || s.rec(i).Type == provider.RecordTypeCNAME {
			clashes = append(clashes, i)
		}
	}

	if len(clashes) > 0 {
		if owned && s.zc.Mode.AllowsDelete() && !anyWanted(s, clashes, wantKeys) {
			// The type changes: rewrite the first clashing record in place
			// rather than deleting and recreating it.
			for _, i := range clashes {
				s.handled[i] = true
			}
			s.add(provider.Update(s.zc.Zone, s.rec(clashes[0]), w))
			for _, i := range clashes[1:] {
				s.remove(i)
			}
			return
		}
		s.warn(w.Name, w.Type, "blocked by existing %s record; left untouched", s.rec(clashes[0]).Type)
		return
	}

	if owned || s.marked[w.Name] {
		s.add(provider.Create(s.zc.Zone, w))
		return
	}
	if s.part.Claimed(w.Name) {
		s.warn(w.Name, w.Type, "name is claimed by another installation's marker; left untouched")
		return
	}
	if len(others) > 0 {
		s.warn(w.Name, w.Type, "name holds %s records this installation does not own; left untouched", s.rec(others[0]).Type)
		return
	}

	marker := provider.Create(s.zc.Zone, d.tracker.MarkerFor(w.Name, w.TTL))
	marker.Marker = true
	s.add(marker)
	s.marked[w.Name] = true
	s.add(provider.Create(s.zc.Zone, w))
}

func anyWanted(s *diffState, idx []int, wantKeys map[provider.Key]struct{}) bool {
	for _, i := range idx {
		if _, ok := wantKeys[s.rec(i).Key()]; ok {
			return true
		}
	}
	return false
}

func (d *Differ) looksOrphaned(r provider.Record) bool {
	if d.zones == nil {
		return false
	}
	for _, v := range r.Values {
		if d.zones.IsConfiguredTarget(r.Type, v) {
			return true
		}
	}
	return false
}

func sortChanges(changes []provider.Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if pa, pb := PhaseOf(a), PhaseOf(b); pa != pb {
			return pa < pb
		}
		if a.Zone.Name != b.Zone.Name {
			return a.Zone.Name < b.Zone.Name
		}
		if a.Name() != b.Name() {
			return a.Name() < b.Name()
		}
		return a.Record().Type < b.Record().Type
	})
}

func sortedNames(m map[string]provider.Record) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

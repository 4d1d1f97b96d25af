package plan

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gitlab.bluewillows.net/root/traefik-dns/internal/desired"
	"gitlab.bluewillows.net/root/traefik-dns/internal/ownership"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

var zone = provider.Zone{Name: "example.com", Provider: "p"}

type fixture struct {
	t       *testing.T
	tracker *ownership.Tracker
	zc      *provider.ZoneConfig
	differ  *Differ
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tracker, err := ownership.New("", "test")
	if err != nil {
		t.Fatalf("ownership.New: %v", err)
	}
	zc := &provider.ZoneConfig{Zone: zone, Target: "1.2.3.4", RecordType: provider.RecordTypeA, TTL: 300}
	zones, err := provider.NewZoneSet([]*provider.ZoneConfig{zc})
	if err != nil {
		t.Fatalf("NewZoneSet: %v", err)
	}
	return &fixture{t: t, tracker: tracker, zc: zc, differ: NewDiffer(tracker, zones)}
}

func (f *fixture) want(records ...provider.Record) []desired.Record {
	out := make([]desired.Record, len(records))
	for i, r := range records {
		out[i] = desired.Record{Record: r, Zone: f.zc}
	}
	return out
}

func (f *fixture) marker(name string) provider.Record {
	return f.tracker.MarkerFor(name, 300)
}

func a(name, value string) provider.Record {
	return provider.NewRecord(name, provider.RecordTypeA, value, 300)
}

func cname(name, value string) provider.Record {
	return provider.NewRecord(name, provider.RecordTypeCNAME, value, 300)
}

func summarize(changes []provider.Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		switch {
		case c.Marker:
			out[i] = fmt.Sprintf("%s marker %s", c.Action, c.Name())
		case c.Action == provider.ActionUpdate:
			out[i] = fmt.Sprintf("update %s %s->%s", c.Current.Key(), strings.Join(c.Current.Values, ","), c.Desired.Value())
		default:
			out[i] = fmt.Sprintf("%s %s %s", c.Action, c.Record().Key(), c.Record().Value())
		}
	}
	return out
}

func TestDiff_CreatePairsMarkerFirst(t *testing.T) {
	f := newFixture(t)
	p := f.differ.Diff(f.zc, f.want(a("svc.example.com", "1.2.3.4")), nil, nil)

	want := []string{
		"create marker _traefik-dns.svc.example.com",
		"create svc.example.com/A 1.2.3.4",
	}
	if diff := cmp.Diff(want, summarize(p.Changes)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if p.Changes[0].Record().Value() != f.tracker.Token() {
		t.Errorf("expected marker token, got %q", p.Changes[0].Record().Value())
	}
	if p.Count(provider.ActionCreate) != 1 {
		t.Errorf("expected 1 record create, got %d", p.Count(provider.ActionCreate))
	}
}

func TestDiff_NoOpWhenIdentical(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{a("svc.example.com", "1.2.3.4"), f.marker("svc.example.com")}

	p := f.differ.Diff(f.zc, f.want(a("svc.example.com", "1.2.3.4")), actual, nil)
	if !p.Empty() {
		t.Errorf("expected empty plan, got %v", summarize(p.Changes))
	}
	if p.Unchanged != 1 {
		t.Errorf("expected 1 unchanged, got %d", p.Unchanged)
	}
}

func TestDiff_TTLUnsetIsDontCare(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{a("svc.example.com", "1.2.3.4"), f.marker("svc.example.com")}
	want := provider.NewRecord("svc.example.com", provider.RecordTypeA, "1.2.3.4", 0)

	if p := f.differ.Diff(f.zc, f.want(want), actual, nil); !p.Empty() {
		t.Errorf("expected TTL to be ignored, got %v", summarize(p.Changes))
	}

	want.TTL = 60
	p := f.differ.Diff(f.zc, f.want(want), actual, nil)
	if diff := cmp.Diff([]string{"update svc.example.com/A 1.2.3.4->1.2.3.4"}, summarize(p.Changes)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_ProviderManagedTTL(t *testing.T) {
	f := newFixture(t)
	// Providers report TTL 0 when they choose it themselves (Cloudflare proxied records).
	actual := []provider.Record{provider.NewRecord("svc.example.com", provider.RecordTypeA, "1.2.3.4", 0), f.marker("svc.example.com")}
	want := provider.NewRecord("svc.example.com", provider.RecordTypeA, "1.2.3.4", 600)

	if p := f.differ.Diff(f.zc, f.want(want), actual, nil); !p.Empty() {
		t.Errorf("expected no changes, got %v", summarize(p.Changes))
	}
}

func TestDiff_UpdateOwned(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{a("svc.example.com", "9.9.9.9"), f.marker("svc.example.com")}

	p := f.differ.Diff(f.zc, f.want(a("svc.example.com", "1.2.3.4")), actual, nil)
	if diff := cmp.Diff([]string{"update svc.example.com/A 9.9.9.9->1.2.3.4"}, summarize(p.Changes)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_UnownedNeverMutated(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{
		a("equal.example.com", "1.2.3.4"),
		a("differs.example.com", "9.9.9.9"),
		a("orphan.example.com", "1.2.3.4"),
		a("foreign.example.com", "5.5.5.5"),
	}

	p := f.differ.Diff(f.zc, f.want(
		a("equal.example.com", "1.2.3.4"),
		a("differs.example.com", "1.2.3.4"),
	), actual, nil)

	if !p.Empty() {
		t.Errorf("expected no changes for unowned records, got %v", summarize(p.Changes))
	}
	if p.Unchanged != 1 {
		t.Errorf("expected equal unowned record to count as unchanged, got %d", p.Unchanged)
	}

	var msgs []string
	for _, w := range p.Warnings {
		msgs = append(msgs, w.Name+": "+w.Message)
	}
	want := []string{
		"differs.example.com: record exists but is not owned; left untouched",
		"orphan.example.com: looks orphaned but unowned; left untouched",
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_MarkerRemovedManually(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{a("old.example.com", "1.2.3.4")}

	p := f.differ.Diff(f.zc, nil, actual, nil)
	if !p.Empty() {
		t.Errorf("expected record left untouched, got %v", summarize(p.Changes))
	}
	if len(p.Warnings) != 1 || p.Warnings[0].Name != "old.example.com" {
		t.Errorf("expected one warning for old.example.com, got %v", p.Warnings)
	}
}

func TestDiff_RenameOrdersCreateBeforeDelete(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{a("old.example.com", "1.2.3.4"), f.marker("old.example.com")}

	p := f.differ.Diff(f.zc, f.want(a("new.example.com", "1.2.3.4")), actual, nil)

	want := []string{
		"create marker _traefik-dns.new.example.com",
		"create new.example.com/A 1.2.3.4",
		"delete old.example.com/A 1.2.3.4",
		"delete marker _traefik-dns.old.example.com",
	}
	if diff := cmp.Diff(want, summarize(p.Changes)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_AdditiveModeNeverDeletes(t *testing.T) {
	f := newFixture(t)
	f.zc.Mode = provider.ModeAdditive
	actual := []provider.Record{a("old.example.com", "1.2.3.4"), f.marker("old.example.com")}

	p := f.differ.Diff(f.zc, nil, actual, nil)
	if !p.Empty() {
		t.Errorf("expected no deletes in additive mode, got %v", summarize(p.Changes))
	}
}

func TestDiff_ExcludedNamesUntouched(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{a("app.example.com", "9.9.9.9"), f.marker("app.example.com")}
	excluded := map[string]struct{}{"app.example.com": {}}

	p := f.differ.Diff(f.zc, nil, actual, excluded)
	if !p.Empty() {
		t.Errorf("expected excluded name untouched, got %v", summarize(p.Changes))
	}
}

func TestDiff_DuplicateActualEntries(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{
		a("svc.example.com", "9.9.9.9"),
		a("svc.example.com", "1.2.3.4"),
		a("svc.example.com", "8.8.8.8"),
		f.marker("svc.example.com"),
	}

	p := f.differ.Diff(f.zc, f.want(a("svc.example.com", "1.2.3.4")), actual, nil)
	want := []string{
		"delete svc.example.com/A 9.9.9.9",
		"delete svc.example.com/A 8.8.8.8",
	}
	got := summarize(p.Changes)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}

	actual[1] = a("svc.example.com", "7.7.7.7")
	p = f.differ.Diff(f.zc, f.want(a("svc.example.com", "1.2.3.4")), actual, nil)
	want = []string{
		"update svc.example.com/A 9.9.9.9->1.2.3.4",
		"delete svc.example.com/A 7.7.7.7",
		"delete svc.example.com/A 8.8.8.8",
	}
	if diff := cmp.Diff(want, summarize(p.Changes)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_TypeChangeBecomesUpdate(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{a("svc.example.com", "1.2.3.4"), f.marker("svc.example.com")}

	p := f.differ.Diff(f.zc, f.want(cname("svc.example.com", "lb.example.net")), actual, nil)
	if len(p.Changes) != 1 {
		t.Fatalf("expected a single change, got %v", summarize(p.Changes))
	}
	c := p.Changes[0]
	if c.Action != provider.ActionUpdate || c.Current.Type != provider.RecordTypeA || c.Desired.Type != provider.RecordTypeCNAME {
		t.Errorf("expected A->CNAME update, got %s", c)
	}
}

func TestDiff_ForeignBlocksCreate(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{
		cname("cname.example.com", "elsewhere.example.net"),
		provider.NewRecord("txt.example.com", provider.RecordTypeTXT, "v=spf1 -all", 300),
		provider.NewRecord("_traefik-dns.claimed.example.com", provider.RecordTypeTXT, "heritage=traefik-dns,traefik-dns/owner=lab", 300),
	}

	p := f.differ.Diff(f.zc, f.want(
		a("cname.example.com", "1.2.3.4"),
		a("txt.example.com", "1.2.3.4"),
		a("claimed.example.com", "1.2.3.4"),
	), actual, nil)

	if !p.Empty() {
		t.Errorf("expected all creates blocked, got %v", summarize(p.Changes))
	}
	if len(p.Warnings) != 3 {
		t.Errorf("expected 3 warnings, got %v", p.Warnings)
	}
}

func TestDiff_OwnedMarkerWithoutRecordRecreatesRecord(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{f.marker("svc.example.com")}

	p := f.differ.Diff(f.zc, f.want(a("svc.example.com", "1.2.3.4")), actual, nil)
	if diff := cmp.Diff([]string{"create svc.example.com/A 1.2.3.4"}, summarize(p.Changes)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_StrayMarkerDeleted(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{f.marker("gone.example.com")}

	p := f.differ.Diff(f.zc, nil, actual, nil)
	if diff := cmp.Diff([]string{"delete marker _traefik-dns.gone.example.com"}, summarize(p.Changes)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_OneMarkerForSeveralTypes(t *testing.T) {
	f := newFixture(t)
	p := f.differ.Diff(f.zc, f.want(
		a("svc.example.com", "1.2.3.4"),
		provider.NewRecord("svc.example.com", provider.RecordTypeAAAA, "2001:db8::1", 300),
	), nil, nil)

	want := []string{
		"create marker _traefik-dns.svc.example.com",
		"create svc.example.com/A 1.2.3.4",
		"create svc.example.com/AAAA 2001:db8::1",
	}
	if diff := cmp.Diff(want, summarize(p.Changes)); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_Idempotent(t *testing.T) {
	f := newFixture(t)
	want := f.want(a("svc.example.com", "1.2.3.4"), a("web.example.com", "1.2.3.4"))

	first := f.differ.Diff(f.zc, want, nil, nil)

	// Simulate applying the first plan.
	var actual []provider.Record
	for _, c := range first.Changes {
		actual = append(actual, c.Desired)
	}

	second := f.differ.Diff(f.zc, want, actual, nil)
	if !second.Empty() {
		t.Errorf("expected empty second plan, got %v", summarize(second.Changes))
	}
}

func TestDiff_ForeignMarkerRecordsNeverData(t *testing.T) {
	f := newFixture(t)
	actual := []provider.Record{
		provider.NewRecord("_traefik-dns.x.example.com", provider.RecordTypeTXT, "heritage=traefik-dns,traefik-dns/owner=lab", 300),
	}
	p := f.differ.Diff(f.zc, nil, actual, nil)
	if !p.Empty() || len(p.Warnings) != 0 {
		t.Errorf("expected foreign marker ignored, got %v / %v", summarize(p.Changes), p.Warnings)
	}
}

func TestPhaseOf(t *testing.T) {
	marker := provider.Create(zone, a("x", "1"))
	marker.Marker = true
	markerDelete := provider.Delete(zone, a("x", "1"))
	markerDelete.Marker = true

	tests := []struct {
		change provider.Change
		want   Phase
	}{
		{marker, PhaseMarkerCreate},
		{provider.Create(zone, a("x", "1")), PhaseUpsert},
		{provider.Update(zone, a("x", "1"), a("x", "2")), PhaseUpsert},
		{provider.Delete(zone, a("x", "1")), PhaseDelete},
		{markerDelete, PhaseMarkerDelete},
	}
	for _, tt := range tests {
		if got := PhaseOf(tt.change); got != tt.want {
			t.Errorf("PhaseOf(%s): expected %s, got %s", tt.change, tt.want, got)
		}
	}
}

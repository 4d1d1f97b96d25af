package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/traefik-dns/internal/applier"
	"gitlab.bluewillows.net/root/traefik-dns/internal/ownership"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
)

// testSource implements source.Source for testing.
type testSource struct {
	name string

	mu      sync.Mutex
	rules   []source.HostRule
	err     error
	fetches int

	// When set, Fetch signals started and waits for release or ctx.
	started chan struct{}
	release chan struct{}
}

func newTestSource(name string, rules ...string) *testSource {
	s := &testSource{name: name}
	for i, r := range rules {
		s.rules = append(s.rules, source.HostRule{
			Source: name,
			Router: "router" + string(rune('a'+i)),
			Rule:   r,
		})
	}
	return s
}

func (s *testSource) Name() string { return s.name }

func (s *testSource) block() {
	s.started = make(chan struct{}, 16)
	s.release = make(chan struct{})
}

func (s *testSource) Fetch(ctx context.Context) ([]source.HostRule, error) {
	s.mu.Lock()
	s.fetches++
	started, release := s.started, s.release
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, source.NewFetchError(s.name, source.Unreachable, ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]source.HostRule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

func (s *testSource) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// testProvider is an in-memory provider that records every call.
type testProvider struct {
	name string

	mu       sync.Mutex
	records  []provider.Record
	calls    []string
	listErr  []error
	resolved map[string]string
	onCall   func(ctx context.Context, call string)
}

func newTestProvider(name string, records ...provider.Record) *testProvider {
	return &testProvider{name: name, records: records}
}

func (p *testProvider) Name() string { return p.name }
func (p *testProvider) Type() string { return "mock" }

func (p *testProvider) enter(ctx context.Context, call string) {
	if p.onCall != nil {
		p.onCall(ctx, call)
	}
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *testProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *testProvider) Records() []provider.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]provider.Record, len(p.records))
	copy(out, p.records)
	return out
}

func (p *testProvider) ListRecords(ctx context.Context, _ provider.Zone) ([]provider.Record, error) {
	p.enter(ctx, "list")
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.listErr) > 0 {
		err := p.listErr[0]
		p.listErr = p.listErr[1:]
		return nil, err
	}
	out := make([]provider.Record, len(p.records))
	copy(out, p.records)
	return out, nil
}

func (p *testProvider) CreateRecord(ctx context.Context, _ provider.Zone, r provider.Record) (provider.Record, error) {
	p.enter(ctx, "create "+r.String())
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r)
	return r, nil
}

func (p *testProvider) UpdateRecord(ctx context.Context, _ provider.Zone, current, desired provider.Record) (provider.Record, error) {
	p.enter(ctx, "update "+current.String()+" -> "+desired.String())
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.records {
		if r.Key() == current.Key() {
			p.records[i] = desired
		}
	}
	return desired, nil
}

func (p *testProvider) DeleteRecord(ctx context.Context, _ provider.Zone, r provider.Record) error {
	p.enter(ctx, "delete "+r.String())
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.records[:0]
	for _, existing := range p.records {
		if existing.Key() != r.Key() {
			kept = append(kept, existing)
		}
	}
	p.records = kept
	return nil
}

func (p *testProvider) ResolveZoneID(_ context.Context, zoneName string) (string, error) {
	if id, ok := p.resolved[zoneName]; ok {
		return id, nil
	}
	return "", provider.NewError(p.name, "resolve_zone", provider.KindNotFound, provider.ErrNotFound)
}

type providerMap map[string]provider.Provider

func (m providerMap) Get(name string) (provider.Provider, bool) {
	p, ok := m[name]
	return p, ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func noSleep(context.Context, time.Duration) error { return nil }

func testTracker() *ownership.Tracker {
	t, err := ownership.New("", "test")
	if err != nil {
		panic(err)
	}
	return t
}

func testZones(zones ...*provider.ZoneConfig) *provider.ZoneSet {
	set, err := provider.NewZoneSet(zones)
	if err != nil {
		panic(err)
	}
	return set
}

func exampleZone(providerName string) *provider.ZoneConfig {
	return &provider.ZoneConfig{
		Zone:       provider.Zone{Name: "example.com", Provider: providerName},
		Target:     "1.2.3.4",
		RecordType: provider.RecordTypeA,
		TTL:        300,
	}
}

type testEnv struct {
	source     *testSource
	provider   *testProvider
	registry   *source.Registry
	applier    *applier.Applier
	reconciler *Reconciler
}

func newTestEnv(src *testSource, p *testProvider, opts ...Option) *testEnv {
	return newTestEnvWith(src, p, nil, opts...)
}

func newTestEnvWith(src *testSource, p *testProvider, applierOpts []applier.Option, opts ...Option) *testEnv {
	registry := source.NewRegistry(discardLogger())
	if err := registry.Register(src); err != nil {
		panic(err)
	}
	tracker := testTracker()
	providers := providerMap{p.Name(): p}
	applierOpts = append([]applier.Option{
		applier.WithLogger(discardLogger()),
		applier.WithSleep(noSleep),
	}, applierOpts...)
	apply := applier.New(providers, tracker, applierOpts...)

	opts = append([]Option{WithLogger(discardLogger()), WithSleep(noSleep)}, opts...)
	r := New(registry, providers, testZones(exampleZone(p.Name())), tracker, apply, opts...)
	return &testEnv{source: src, provider: p, registry: registry, applier: apply, reconciler: r}
}

func aRecord(name, value string) provider.Record {
	return provider.NewRecord(name, provider.RecordTypeA, value, 300)
}

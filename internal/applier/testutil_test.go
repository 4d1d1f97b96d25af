package applier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/traefik-dns/internal/ownership"
	"gitlab.bluewillows.net/root/traefik-dns/internal/plan"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// providerMap implements Providers for tests.
type providerMap map[string]provider.Provider

func (m providerMap) Get(name string) (provider.Provider, bool) {
	p, ok := m[name]
	return p, ok
}

// mockProvider is an in-memory provider. It records every call and can be
// told to fail specific calls.
type mockProvider struct {
	name string

	mu       sync.Mutex
	records  []provider.Record
	calls    []string
	failures map[string][]error
	onCall   func(ctx context.Context, call string)
}

func newMockProvider(name string, records ...provider.Record) *mockProvider {
	return &mockProvider{
		name:     name,
		records:  records,
		failures: make(map[string][]error),
	}
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Type() string { return "mock" }

// failNext queues err for the next calls matching call, e.g. "create a.example.com/A".
func (m *mockProvider) failNext(call string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[call] = append(m.failures[call], errs...)
}

func (m *mockProvider) enter(ctx context.Context, call string) error {
	if m.onCall != nil {
		m.onCall(ctx, call)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if q := m.failures[call]; len(q) > 0 {
		m.failures[call] = q[1:]
		return q[0]
	}
	return nil
}

func (m *mockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockProvider) ListRecords(ctx context.Context, _ provider.Zone) ([]provider.Record, error) {
	if err := m.enter(ctx, "list"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *mockProvider) CreateRecord(ctx context.Context, _ provider.Zone, r provider.Record) (provider.Record, error) {
	if err := m.enter(ctx, "create "+r.Key().String()); err != nil {
		return provider.Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return r, nil
}

func (m *mockProvider) UpdateRecord(ctx context.Context, _ provider.Zone, current, desired provider.Record) (provider.Record, error) {
	if err := m.enter(ctx, "update "+current.Key().String()); err != nil {
		return provider.Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.Key() == current.Key() {
			m.records[i] = desired
		}
	}
	return desired, nil
}

func (m *mockProvider) DeleteRecord(ctx context.Context, _ provider.Zone, r provider.Record) error {
	if err := m.enter(ctx, "delete "+r.Key().String()); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, existing := range m.records {
		if existing.Key() != r.Key() {
			kept = append(kept, existing)
		}
	}
	m.records = kept
	return nil
}

// mockBatcher adds batch support to mockProvider.
type mockBatcher struct {
	*mockProvider

	batchMu sync.Mutex
	batches [][]provider.Change
}

func newMockBatcher(name string) *mockBatcher {
	return &mockBatcher{mockProvider: newMockProvider(name)}
}

func (m *mockBatcher) ApplyChanges(ctx context.Context, _ provider.Zone, changes []provider.Change) error {
	if err := m.enter(ctx, "batch"); err != nil {
		return err
	}
	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	m.batches = append(m.batches, append([]provider.Change(nil), changes...))
	return nil
}

func (m *mockBatcher) Batches() [][]provider.Change {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	return m.batches
}

func noSleep(context.Context, time.Duration) error { return nil }

func testTracker() *ownership.Tracker {
	t, err := ownership.New("", "test")
	if err != nil {
		panic(err)
	}
	return t
}

func newTestApplier(providers Providers, opts ...Option) *Applier {
	opts = append([]Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithSleep(noSleep),
	}, opts...)
	return New(providers, testTracker(), opts...)
}

func zoneOf(name, providerName string) provider.Zone {
	return provider.Zone{Name: name, Provider: providerName}
}

func rec(name, value string) provider.Record {
	return provider.NewRecord(name, provider.RecordTypeA, value, 300)
}

func markerCreate(zone provider.Zone, name string) provider.Change {
	c := provider.Create(zone, testTracker().MarkerFor(name, 300))
	c.Marker = true
	return c
}

func markerDelete(zone provider.Zone, name string) provider.Change {
	c := provider.Delete(zone, testTracker().MarkerFor(name, 300))
	c.Marker = true
	return c
}

func planOf(zone provider.Zone, changes ...provider.Change) *plan.Plan {
	return &plan.Plan{Zone: zone, Changes: changes}
}

func statuses(outcomes []Outcome) []string {
	out := make([]string, len(outcomes))
	for i, o := range outcomes {
		out[i] = string(o.Status) + " " + string(o.Change.Action) + " " + o.Change.Name()
	}
	return out
}

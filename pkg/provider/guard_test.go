package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type slowProvider struct {
	mockProvider
	delay time.Duration
}

func (s *slowProvider) CreateRecord(ctx context.Context, zone Zone, r Record) (Record, error) {
	select {
	case <-time.After(s.delay):
		return r, nil
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

type batchingProvider struct {
	mockProvider
	batches [][]Change
}

func (b *batchingProvider) ApplyChanges(ctx context.Context, zone Zone, changes []Change) error {
	b.batches = append(b.batches, changes)
	return nil
}

func TestGuard_TimeoutIsTransient(t *testing.T) {
	p := Guard(&slowProvider{mockProvider: mockProvider{name: "slow"}, delay: time.Second}, GuardOptions{Timeout: 10 * time.Millisecond})

	_, err := p.CreateRecord(context.Background(), Zone{Name: "example.com"}, NewRecord("a.example.com", RecordTypeA, "10.0.0.1", 0))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsRetryable(err) {
		t.Errorf("expected timeout to be retryable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded in chain, got %v", err)
	}
}

func TestGuard_PreservesBatcher(t *testing.T) {
	inner := &batchingProvider{mockProvider: mockProvider{name: "r53"}}
	p := Guard(inner, GuardOptions{})

	b, ok := p.(Batcher)
	if !ok {
		t.Fatal("expected guarded batching provider to implement Batcher")
	}
	if err := b.ApplyChanges(context.Background(), Zone{Name: "example.com"}, []Change{{Action: ActionCreate}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.batches) != 1 {
		t.Errorf("expected 1 batch, got %d", len(inner.batches))
	}

	if _, ok := Guard(&mockProvider{name: "cf"}, GuardOptions{}).(Batcher); ok {
		t.Error("expected non-batching provider to stay non-batching")
	}
}

func TestGuard_RateLimits(t *testing.T) {
	inner := &mockProvider{name: "cf"}
	p := Guard(inner, GuardOptions{Limiter: rate.NewLimiter(rate.Every(20*time.Millisecond), 1)})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := p.ListRecords(context.Background(), Zone{Name: "example.com"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("expected limiter to space calls, took %s", elapsed)
	}
}

func TestGuard_ObserverAndClassification(t *testing.T) {
	inner := &mockProvider{name: "cf", listErr: errors.New("connection reset")}

	var mu sync.Mutex
	var ops []string
	p := Guard(inner, GuardOptions{Observer: func(provider, op string, d time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		ops = append(ops, provider+":"+op)
	}})

	_, err := p.ListRecords(context.Background(), Zone{Name: "example.com"})
	if kind, ok := KindOf(err); !ok || kind != KindTransient {
		t.Errorf("expected transient classification, got %v", err)
	}
	if len(ops) != 1 || ops[0] != "cf:list" {
		t.Errorf("expected observer call cf:list, got %v", ops)
	}
}

func TestGuard_ResolveZoneIDUnsupported(t *testing.T) {
	p := Guard(&mockProvider{name: "r53"}, GuardOptions{})
	r, ok := p.(ZoneResolver)
	if !ok {
		t.Fatal("expected guard to expose ResolveZoneID")
	}
	_, err := r.ResolveZoneID(context.Background(), "example.com")
	if !errors.Is(err, ErrZoneResolutionUnsupported) {
		t.Errorf("expected ErrZoneResolutionUnsupported, got %v", err)
	}
}

func TestNewLimiter(t *testing.T) {
	if NewLimiter(0, 5) != nil {
		t.Error("expected nil limiter for zero rate")
	}
	l := NewLimiter(4, 0)
	if l == nil || l.Burst() != 1 {
		t.Errorf("expected burst clamped to 1, got %v", l)
	}
}

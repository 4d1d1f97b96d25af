package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

func deterministic() Policy {
	p := DefaultPolicy()
	p.Jitter = 0
	return p
}

type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func transient() error {
	return provider.NewError("p", "create", provider.KindTransient, errors.New("boom"))
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	rec := &recorder{}
	calls := 0
	attempts, err := deterministic().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return transient()
		}
		return nil
	}, WithSleep(rec.sleep))

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if diff := cmp.Diff([]time.Duration{time.Second, 2 * time.Second}, rec.waits); diff != "" {
		t.Errorf("waits mismatch (-want +got):\n%s", diff)
	}
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	rec := &recorder{}
	p := deterministic()
	p.MaxAttempts = 3

	calls := 0
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return transient()
	}, WithSleep(rec.sleep))

	if calls != 3 || attempts != 3 {
		t.Errorf("expected 3 calls, got %d (attempts %d)", calls, attempts)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if ex.Waited != 3*time.Second {
		t.Errorf("expected 3s waited, got %s", ex.Waited)
	}
	if !provider.IsRetryable(err) {
		t.Error("expected the provider error to stay reachable through Unwrap")
	}
}

func TestDo_CapsTotalWait(t *testing.T) {
	rec := &recorder{}
	p := deterministic()
	p.MaxAttempts = 100
	p.MaxElapsed = 10 * time.Second

	_, err := p.Do(context.Background(), func(context.Context) error {
		return transient()
	}, WithSleep(rec.sleep))

	var total time.Duration
	for _, w := range rec.waits {
		total += w
	}
	if total > p.MaxElapsed {
		t.Errorf("expected total wait <= %s, got %s", p.MaxElapsed, total)
	}
	// 1s + 2s + 4s = 7s; the next 8s wait would exceed the cap.
	if diff := cmp.Diff([]time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.waits); diff != "" {
		t.Errorf("waits mismatch (-want +got):\n%s", diff)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) || ex.Attempts != 4 {
		t.Errorf("expected exhaustion after 4 attempts, got %v", err)
	}
}

func TestDo_HonorsRetryAfterExactly(t *testing.T) {
	rec := &recorder{}
	calls := 0
	_, err := deterministic().Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return provider.NewRateLimited("p", "create", 7*time.Second, errors.New("429"))
		}
		return nil
	}, WithSleep(rec.sleep))

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if diff := cmp.Diff([]time.Duration{7 * time.Second}, rec.waits); diff != "" {
		t.Errorf("waits mismatch (-want +got):\n%s", diff)
	}
}

func TestDo_PermanentErrorsNotRetried(t *testing.T) {
	kinds := []provider.ErrorKind{provider.KindConflict, provider.KindInvalid, provider.KindUnauthorized, provider.KindNotFound}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			rec := &recorder{}
			attempts, err := deterministic().Do(context.Background(), func(context.Context) error {
				return provider.NewError("p", "create", kind, errors.New("no"))
			}, WithSleep(rec.sleep))

			if attempts != 1 || len(rec.waits) != 0 {
				t.Errorf("expected a single attempt, got %d attempts and %d waits", attempts, len(rec.waits))
			}
			if got, _ := provider.KindOf(err); got != kind {
				t.Errorf("expected kind %s, got %v", kind, err)
			}
		})
	}
}

func TestDo_Draining(t *testing.T) {
	rec := &recorder{}
	calls := 0
	_, err := deterministic().Do(context.Background(), func(context.Context) error {
		calls++
		return transient()
	}, WithSleep(rec.sleep), WithDraining(func() bool { return true }))

	if calls != 1 {
		t.Errorf("expected no retry while draining, got %d calls", calls)
	}
	if !errors.Is(err, ErrDraining) {
		t.Errorf("expected ErrDraining, got %v", err)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := deterministic().Do(ctx, func(context.Context) error {
		return transient()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDo_Notify(t *testing.T) {
	var attempts []int
	calls := 0
	_, _ = deterministic().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return transient()
		}
		return nil
	}, WithSleep((&recorder{}).sleep), WithNotify(func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	}))

	if diff := cmp.Diff([]int{1, 2}, attempts); diff != "" {
		t.Errorf("notified attempts mismatch (-want +got):\n%s", diff)
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("expected default policy valid, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"zero attempts", func(p *Policy) { p.MaxAttempts = 0 }},
		{"zero interval", func(p *Policy) { p.InitialInterval = 0 }},
		{"max below initial", func(p *Policy) { p.MaxInterval = time.Millisecond }},
		{"negative elapsed", func(p *Policy) { p.MaxElapsed = -time.Second }},
		{"shrinking multiplier", func(p *Policy) { p.Multiplier = 0.5 }},
		{"jitter too large", func(p *Policy) { p.Jitter = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

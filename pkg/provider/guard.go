package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Observer is notified after every guarded provider call.
type Observer func(provider, operation string, duration time.Duration, err error)

// GuardOptions configures the guard placed around a provider.
type GuardOptions struct {
	// Limiter throttles calls to the provider. Nil disables rate limiting.
	Limiter *rate.Limiter

	// Timeout bounds each individual call. Zero disables the per-call timeout.
	Timeout time.Duration

	// Observer, when set, receives the outcome of every call.
	Observer Observer
}

// NewLimiter returns a token bucket limiter for requestsPerSecond, or nil
// when requestsPerSecond is not positive.
func NewLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Guard wraps p so that every call waits for the rate limiter, runs under
// the per-call timeout and returns a classified *Error. If p implements
// Batcher the returned provider does too.
func Guard(p Provider, opts GuardOptions) Provider {
	g := &guarded{inner: p, opts: opts}
	if b, ok := p.(Batcher); ok {
		return &guardedBatcher{guarded: g, batcher: b}
	}
	return g
}

type guarded struct {
	inner Provider
	opts  GuardOptions
}

func (g *guarded) Name() string { return g.inner.Name() }
func (g *guarded) Type() string { return g.inner.Type() }

// Unwrap returns the provider behind the guard.
func (g *guarded) Unwrap() Provider { return g.inner }

func (g *guarded) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := g.do(ctx, op, fn)
	if g.opts.Observer != nil {
		g.opts.Observer(g.inner.Name(), op, time.Since(start), err)
	}
	return err
}

func (g *guarded) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if g.opts.Limiter != nil {
		if err := g.opts.Limiter.Wait(ctx); err != nil {
			return Classify(g.inner.Name(), op, err)
		}
	}
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	return Classify(g.inner.Name(), op, fn(ctx))
}

func (g *guarded) ListRecords(ctx context.Context, zone Zone) ([]Record, error) {
	var records []Record
	err := g.call(ctx, "list", func(ctx context.Context) error {
		var err error
		records, err = g.inner.ListRecords(ctx, zone)
		return err
	})
	return records, err
}

func (g *guarded) CreateRecord(ctx context.Context, zone Zone, record Record) (Record, error) {
	var out Record
	err := g.call(ctx, "create", func(ctx context.Context) error {
		var err error
		out, err = g.inner.CreateRecord(ctx, zone, record)
		return err
	})
	return out, err
}

func (g *guarded) UpdateRecord(ctx context.Context, zone Zone, current, desired Record) (Record, error) {
	var out Record
	err := g.call(ctx, "update", func(ctx context.Context) error {
		var err error
		out, err = g.inner.UpdateRecord(ctx, zone, current, desired)
		return err
	})
	return out, err
}

func (g *guarded) DeleteRecord(ctx context.Context, zone Zone, record Record) error {
	return g.call(ctx, "delete", func(ctx context.Context) error {
		return g.inner.DeleteRecord(ctx, zone, record)
	})
}

type guardedBatcher struct {
	*guarded
	batcher Batcher
}

func (g *guardedBatcher) ApplyChanges(ctx context.Context, zone Zone, changes []Change) error {
	return g.call(ctx, "batch", func(ctx context.Context) error {
		return g.batcher.ApplyChanges(ctx, zone, changes)
	})
}

// ResolveZoneID forwards to the wrapped provider when it can resolve zones.
func (g *guarded) ResolveZoneID(ctx context.Context, zoneName string) (string, error) {
	r, ok := g.inner.(ZoneResolver)
	if !ok {
		return "", NewError(g.inner.Name(), "resolve_zone", KindInvalid, ErrZoneResolutionUnsupported)
	}
	var id string
	err := g.call(ctx, "resolve_zone", func(ctx context.Context) error {
		var err error
		id, err = r.ResolveZoneID(ctx, zoneName)
		return err
	})
	return id, err
}

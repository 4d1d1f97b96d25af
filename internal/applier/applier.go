// Package applier executes plans against providers.
//
// Plans for different zones run concurrently up to a limit. The changes of
// one zone run one at a time, in plan order, so a zone never sees two
// concurrent writes from this process.
package applier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"gitlab.bluewillows.net/root/traefik-dns/internal/ownership"
	"gitlab.bluewillows.net/root/traefik-dns/internal/plan"
	"gitlab.bluewillows.net/root/traefik-dns/internal/retry"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// Defaults.
const (
	DefaultConcurrency = 4
	DefaultBatchSize   = 100
)

// ErrUnknownProvider is reported for plans whose provider is not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Skip reasons.
const (
	ReasonShuttingDown  = "shutting down"
	ReasonMarkerFailed  = "ownership marker was not created"
	ReasonSiblingFailed = "a sibling record could not be deleted"
)

// Status is the outcome of one change.
type Status string

const (
	// StatusSuccess means the provider accepted the change.
	StatusSuccess Status = "success"
	// StatusNoop means the change turned out to be in place already.
	StatusNoop Status = "noop"
	// StatusFailed means the change was rejected or retries ran out.
	StatusFailed Status = "failed"
	// StatusSkipped means the change was never sent.
	StatusSkipped Status = "skipped"
	// StatusDryRun means the change was only logged.
	StatusDryRun Status = "dry-run"
)

// Outcome reports what happened to one change.
type Outcome struct {
	Change   provider.Change
	Status   Status
	Attempts int

	// Err is set for StatusFailed.
	Err error

	// Reason explains StatusSkipped.
	Reason string
}

func (o Outcome) String() string {
	switch {
	case o.Err != nil:
		return fmt.Sprintf("[%s] %s: %v", o.Status, o.Change, o.Err)
	case o.Reason != "":
		return fmt.Sprintf("[%s] %s: %s", o.Status, o.Change, o.Reason)
	default:
		return fmt.Sprintf("[%s] %s", o.Status, o.Change)
	}
}

// Providers looks up provider instances by name. *provider.Registry
// implements it.
type Providers interface {
	Get(name string) (provider.Provider, bool)
}

// Applier runs plans with retries.
type Applier struct {
	providers   Providers
	tracker     *ownership.Tracker
	policy      retry.Policy
	concurrency int
	batchSizes  map[string]int
	dryRun      bool
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error

	draining atomic.Bool
}

// Option configures an Applier.
type Option func(*Applier)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Applier) { a.logger = logger }
}

// WithPolicy sets the retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(a *Applier) { a.policy = p }
}

// WithConcurrency limits how many zones are applied at once.
func WithConcurrency(n int) Option {
	return func(a *Applier) { a.concurrency = n }
}

// WithBatchSizes sets the maximum changes per batch for each provider
// instance. Providers not listed use DefaultBatchSize.
func WithBatchSizes(sizes map[string]int) Option {
	return func(a *Applier) { a.batchSizes = sizes }
}

// WithDryRun logs changes instead of applying them.
func WithDryRun(dryRun bool) Option {
	return func(a *Applier) { a.dryRun = dryRun }
}

// WithSleep replaces the wait between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Applier) { a.sleep = fn }
}

// New returns an Applier. tracker is used to decide whether an existing
// record found after a create conflict may be overwritten.
func New(providers Providers, tracker *ownership.Tracker, opts ...Option) *Applier {
	a := &Applier{
		providers:   providers,
		tracker:     tracker,
		policy:      retry.DefaultPolicy(),
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.concurrency < 1 {
		a.concurrency = 1
	}
	return a
}

// Drain stops the applier from starting new changes or retries. Calls
// already sent to a provider run to completion.
func (a *Applier) Drain() {
	a.draining.Store(true)
}

// Draining reports whether Drain was called.
func (a *Applier) Draining() bool {
	return a.draining.Load()
}

// DryRun reports whether changes are only logged.
func (a *Applier) DryRun() bool {
	return a.dryRun
}

func (a *Applier) stopping(ctx context.Context) func() bool {
	return func() bool {
		return a.draining.Load() || ctx.Err() != nil
	}
}

// Apply runs every plan and returns one outcome per change, in plan order.
// It never fails as a whole.
func (a *Applier) Apply(ctx context.Context, plans []*plan.Plan) []Outcome {
	results := make([][]Outcome, len(plans))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, p := range plans {
		if p.Empty() {
			continue
		}
		g.Go(func() error {
			results[i] = a.applyPlan(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	var out []Outcome
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (a *Applier) applyPlan(ctx context.Context, p *plan.Plan) []Outcome {
	logger := a.logger.With(
		slog.String("zone", p.Zone.Name),
		slog.String("provider", p.Zone.Provider),
	)

	if a.dryRun {
		out := make([]Outcome, len(p.Changes))
		for i, c := range p.Changes {
			logger.Info("would apply change (dry-run)", changeAttrs(c)...)
			out[i] = Outcome{Change: c, Status: StatusDryRun}
		}
		return out
	}

	prov, ok := a.providers.Get(p.Zone.Provider)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownProvider, p.Zone.Provider)
		out := make([]Outcome, len(p.Changes))
		for i, c := range p.Changes {
			out[i] = a.failed(logger, Outcome{Change: c, Err: err})
		}
		return out
	}

	if b, ok := prov.(provider.Batcher); ok {
		return a.applyBatches(ctx, logger, b, p)
	}
	return a.applyEach(ctx, logger, prov, p)
}

// guard tracks failures that make later changes of the same zone unsafe.
type guard struct {
	tracker      *ownership.Tracker
	markerFailed map[string]bool
	deleteFailed map[string]bool
}

func newGuard(tracker *ownership.Tracker) *guard {
	return &guard{
		tracker:      tracker,
		markerFailed: make(map[string]bool),
		deleteFailed: make(map[string]bool),
	}
}

// blocked returns why c must not be sent, or "".
func (g *guard) blocked(c provider.Change) string {
	switch {
	case !c.Marker && c.Action == provider.ActionCreate && g.markerFailed[c.Name()]:
		return ReasonMarkerFailed
	case c.Marker && c.Action == provider.ActionDelete && g.deleteFailed[g.sibling(c.Name())]:
		return ReasonSiblingFailed
	}
	return ""
}

func (g *guard) record(o Outcome) {
	if o.Status != StatusFailed && o.Status != StatusSkipped {
		return
	}
	c := o.Change
	switch {
	case c.Marker && c.Action == provider.ActionCreate:
		g.markerFailed[g.sibling(c.Name())] = true
	case !c.Marker && c.Action == provider.ActionDelete:
		g.deleteFailed[c.Name()] = true
	}
}

func (g *guard) sibling(markerName string) string {
	if g.tracker == nil {
		return markerName
	}
	if name, ok := g.tracker.SiblingName(markerName); ok {
		return name
	}
	return markerName
}

// applyEach sends changes one request at a time.
func (a *Applier) applyEach(ctx context.Context, logger *slog.Logger, prov provider.Provider, p *plan.Plan) []Outcome {
	g := newGuard(a.tracker)
	out := make([]Outcome, 0, len(p.Changes))
	stopping := a.stopping(ctx)

	for _, c := range p.Changes {
		var o Outcome
		switch {
		case stopping():
			o = Outcome{Change: c, Status: StatusSkipped, Reason: ReasonShuttingDown}
		case g.blocked(c) != "":
			o = Outcome{Change: c, Status: StatusSkipped, Reason: g.blocked(c)}
			logger.Warn("skipping change", append(changeAttrs(c), slog.String("reason", o.Reason))...)
		default:
			o = a.runOne(ctx, logger, prov, c)
		}
		g.record(o)
		out = append(out, o)
	}
	return out
}

func (a *Applier) runOne(ctx context.Context, logger *slog.Logger, prov provider.Provider, c provider.Change) Outcome {
	// Provider calls outlive cancellation of ctx so that a request already
	// on the wire is never abandoned. The guard's per-call timeout bounds them.
	callCtx := context.WithoutCancel(ctx)

	status := StatusSuccess
	attempts, err := a.policy.Do(ctx, func(context.Context) error {
		var err error
		status, err = a.send(callCtx, prov, c)
		return err
	}, a.retryOptions(ctx, logger, c)...)

	o := Outcome{Change: c, Status: status, Attempts: attempts}
	if err != nil {
		o.Err = err
		return a.failed(logger, o)
	}
	logger.Info("applied change", append(changeAttrs(c), slog.String("status", string(status)), slog.Int("attempts", attempts))...)
	return o
}

func (a *Applier) send(ctx context.Context, prov provider.Provider, c provider.Change) (Status, error) {
	switch c.Action {
	case provider.ActionCreate:
		_, err := prov.CreateRecord(ctx, c.Zone, c.Desired)
		if provider.IsConflict(err) {
			return a.resolveCreateConflict(ctx, prov, c, err)
		}
		return StatusSuccess, err
	case provider.ActionUpdate:
		_, err := prov.UpdateRecord(ctx, c.Zone, c.Current, c.Desired)
		return StatusSuccess, err
	case provider.ActionDelete:
		err := prov.DeleteRecord(ctx, c.Zone, c.Current)
		if provider.IsNotFound(err) {
			return StatusNoop, nil
		}
		return StatusSuccess, err
	default:
		return StatusFailed, provider.NewError(prov.Name(), string(c.Action), provider.KindInvalid, fmt.Errorf("unknown action %q", c.Action))
	}
}

// resolveCreateConflict re-reads the zone after a create was refused
// because the record exists. An identical record makes the create a no-op;
// an owned record with another value is updated in place.
func (a *Applier) resolveCreateConflict(ctx context.Context, prov provider.Provider, c provider.Change, conflict error) (Status, error) {
	records, err := prov.ListRecords(ctx, c.Zone)
	if err != nil {
		return StatusFailed, conflict
	}

	var existing []provider.Record
	for _, r := range records {
		if r.Key() == c.Desired.Key() {
			existing = append(existing, r)
		}
	}
	for _, r := range existing {
		if provider.Equal(c.Desired, r) {
			return StatusNoop, nil
		}
	}
	if len(existing) == 0 || c.Marker || a.tracker == nil || !a.tracker.IsOwned(c.Desired.Name, records) {
		return StatusFailed, conflict
	}

	if _, err := prov.UpdateRecord(ctx, c.Zone, existing[0], c.Desired); err != nil {
		return StatusFailed, err
	}
	return StatusSuccess, nil
}

// applyBatches sends each phase of the plan as batches of at most the
// provider's batch size. A batch succeeds or fails as a whole.
func (a *Applier) applyBatches(ctx context.Context, logger *slog.Logger, b provider.Batcher, p *plan.Plan) []Outcome {
	size := DefaultBatchSize
	if n, ok := a.batchSizes[p.Zone.Provider]; ok && n > 0 {
		size = n
	}

	g := newGuard(a.tracker)
	out := make([]Outcome, 0, len(p.Changes))
	stopping := a.stopping(ctx)

	for _, phase := range splitPhases(p.Changes) {
		for start := 0; start < len(phase); start += size {
			chunk := phase[start:min(start+size, len(phase))]

			var send []provider.Change
			for _, c := range chunk {
				switch {
				case stopping():
					o := Outcome{Change: c, Status: StatusSkipped, Reason: ReasonShuttingDown}
					g.record(o)
					out = append(out, o)
				case g.blocked(c) != "":
					o := Outcome{Change: c, Status: StatusSkipped, Reason: g.blocked(c)}
					logger.Warn("skipping change", append(changeAttrs(c), slog.String("reason", o.Reason))...)
					g.record(o)
					out = append(out, o)
				default:
					send = append(send, c)
				}
			}
			if len(send) == 0 {
				continue
			}

			for _, o := range a.runBatch(ctx, logger, b, p.Zone, send) {
				g.record(o)
				out = append(out, o)
			}
		}
	}
	return out
}

func (a *Applier) runBatch(ctx context.Context, logger *slog.Logger, b provider.Batcher, zone provider.Zone, changes []provider.Change) []Outcome {
	callCtx := context.WithoutCancel(ctx)

	attempts, err := a.policy.Do(ctx, func(context.Context) error {
		return b.ApplyChanges(callCtx, zone, changes)
	}, a.retryOptions(ctx, logger, changes[0])...)

	out := make([]Outcome, len(changes))
	for i, c := range changes {
		out[i] = Outcome{Change: c, Status: StatusSuccess, Attempts: attempts}
		if err != nil {
			out[i].Err = err
			out[i] = a.failed(logger, out[i])
		}
	}
	if err == nil {
		logger.Info("applied batch",
			slog.Int("changes", len(changes)),
			slog.Int("attempts", attempts),
		)
	}
	return out
}

func (a *Applier) retryOptions(ctx context.Context, logger *slog.Logger, c provider.Change) []retry.Option {
	opts := []retry.Option{
		retry.WithDraining(a.stopping(ctx)),
		retry.WithNotify(func(attempt int, err error, wait time.Duration) {
			logger.Warn("provider call failed, retrying",
				append(changeAttrs(c),
					slog.Int("attempt", attempt),
					slog.Duration("wait", wait),
					slog.String("error", err.Error()),
				)...,
			)
		}),
	}
	if a.sleep != nil {
		opts = append(opts, retry.WithSleep(a.sleep))
	}
	return opts
}

func (a *Applier) failed(logger *slog.Logger, o Outcome) Outcome {
	o.Status = StatusFailed
	logger.Error("change failed",
		append(changeAttrs(o.Change),
			slog.Int("attempts", o.Attempts),
			slog.String("error", o.Err.Error()),
		)...,
	)
	return o
}

// splitPhases separates writes from deletes. Marker creates stay ahead of
// their records and marker deletes behind theirs, as ordered by the plan.
func splitPhases(changes []provider.Change) [][]provider.Change {
	var upserts, deletes []provider.Change
	for _, c := range changes {
		if c.Action == provider.ActionDelete {
			deletes = append(deletes, c)
		} else {
			upserts = append(upserts, c)
		}
	}
	return [][]provider.Change{upserts, deletes}
}

func changeAttrs(c provider.Change) []any {
	r := c.Record()
	return []any{
		slog.String("action", string(c.Action)),
		slog.String("name", r.Name),
		slog.String("type", string(r.Type)),
		slog.Any("values", r.Values),
		slog.Bool("marker", c.Marker),
	}
}

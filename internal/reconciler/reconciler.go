// Package reconciler drives the poll, build, diff and apply cycle that keeps
// provider zones in line with the proxy's router rules.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gitlab.bluewillows.net/root/traefik-dns/internal/applier"
	"gitlab.bluewillows.net/root/traefik-dns/internal/desired"
	"gitlab.bluewillows.net/root/traefik-dns/internal/metrics"
	"gitlab.bluewillows.net/root/traefik-dns/internal/ownership"
	"gitlab.bluewillows.net/root/traefik-dns/internal/plan"
	"gitlab.bluewillows.net/root/traefik-dns/internal/retry"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
)

// Defaults.
const (
	DefaultInterval    = 60 * time.Second
	DefaultConcurrency = 4
)

// ErrCycleInProgress is returned by RunOnce when another cycle is running.
var ErrCycleInProgress = errors.New("reconciliation cycle already in progress")

// State is the position of the loop in its cycle.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateDiffing
	StateApplying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDiffing:
		return "diffing"
	case StateApplying:
		return "applying"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds reconciler configuration options.
type Config struct {
	// Interval is the time between cycle starts.
	Interval time.Duration

	// CycleTimeout bounds one cycle. Zero uses Interval.
	CycleTimeout time.Duration

	// Concurrency bounds how many zones are listed at once.
	Concurrency int

	// ListPolicy retries zone listings that fail transiently.
	ListPolicy retry.Policy
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		Concurrency: DefaultConcurrency,
		ListPolicy:  retry.DefaultPolicy(),
	}
}

func (c Config) cycleTimeout() time.Duration {
	if c.CycleTimeout > 0 {
		return c.CycleTimeout
	}
	return c.Interval
}

// Fetcher returns every router rule the proxy currently serves.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]source.HostRule, error)
}

// Pusher publishes metrics after a cycle.
type Pusher interface {
	Push(ctx context.Context) error
}

// Reconciler coordinates DNS record synchronization between the proxy and
// the configured provider zones. At most one cycle runs at a time.
type Reconciler struct {
	sources   Fetcher
	providers applier.Providers
	zones     *provider.ZoneSet
	builder   *desired.Builder
	differ    *plan.Differ
	applier   *applier.Applier
	pusher    Pusher
	config    Config
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	state atomic.Int32

	mu      sync.Mutex
	cycleID string
}

// Option is a functional option for configuring the Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger for the reconciler.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithConfig sets the reconciler configuration.
func WithConfig(cfg Config) Option {
	return func(r *Reconciler) {
		r.config = cfg
	}
}

// WithPusher pushes metrics after every cycle.
func WithPusher(p Pusher) Option {
	return func(r *Reconciler) {
		r.pusher = p
	}
}

// WithSleep replaces the wait between list retries. Used by tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Reconciler) {
		r.sleep = fn
	}
}

// New creates a Reconciler. The tracker must be the one the applier uses.
func New(
	sources Fetcher,
	providers applier.Providers,
	zones *provider.ZoneSet,
	tracker *ownership.Tracker,
	apply *applier.Applier,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		sources:   sources,
		providers: providers,
		zones:     zones,
		applier:   apply,
		config:    DefaultConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.config.Concurrency < 1 {
		r.config.Concurrency = DefaultConcurrency
	}
	if r.config.ListPolicy.MaxAttempts == 0 {
		r.config.ListPolicy = retry.DefaultPolicy()
	}

	r.builder = desired.NewBuilder(zones, tracker, desired.WithLogger(r.logger))
	r.differ = plan.NewDiffer(tracker, zones)
	return r
}

// State returns the current loop state.
func (r *Reconciler) State() State {
	return State(r.state.Load())
}

// TryStart moves the loop from Idle to Polling. It returns false when a
// cycle is already running.
func (r *Reconciler) TryStart() bool {
	return r.state.CompareAndSwap(int32(StateIdle), int32(StatePolling))
}

func (r *Reconciler) setState(s State) {
	r.state.Store(int32(s))
}

// CurrentCycle returns the id of the running cycle, or "".
func (r *Reconciler) CurrentCycle() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cycleID
}

func (r *Reconciler) setCycle(id string) {
	r.mu.Lock()
	r.cycleID = id
	r.mu.Unlock()
}

// ResolveZones looks up missing provider zone IDs. Providers that address
// zones by name are left alone. Any other failure is returned, since a zone
// that cannot be addressed is a configuration error.
func (r *Reconciler) ResolveZones(ctx context.Context) error {
	for _, zc := range r.zones.All() {
		if zc.Zone.ID != "" {
			continue
		}
		p, ok := r.providers.Get(zc.Zone.Provider)
		if !ok {
			return fmt.Errorf("zone %s: %w: %s", zc.Zone.Name, applier.ErrUnknownProvider, zc.Zone.Provider)
		}
		resolver, ok := p.(provider.ZoneResolver)
		if !ok {
			continue
		}

		id, err := resolver.ResolveZoneID(ctx, zc.Zone.Name)
		if errors.Is(err, provider.ErrZoneResolutionUnsupported) {
			continue
		}
		if err != nil {
			return fmt.Errorf("resolving zone %s: %w", zc.Zone.Name, err)
		}
		zc.Zone.ID = id
		r.logger.Info("resolved zone",
			slog.String("zone", zc.Zone.Name),
			slog.String("provider", zc.Zone.Provider),
			slog.String("id", id),
		)
	}
	return nil
}

// Run starts a cycle immediately and then once per interval until ctx is
// cancelled. Ticks that arrive while a cycle is running are dropped. On
// shutdown the applier is drained and Run waits for the in-flight cycle.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.config.Interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive, got %s", r.config.Interval)
	}

	r.logger.Info("starting reconciliation loop",
		slog.Duration("interval", r.config.Interval),
		slog.Duration("cycle_timeout", r.config.cycleTimeout()),
		slog.Bool("dry_run", r.applier.DryRun()),
	)

	var wg sync.WaitGroup
	r.tick(ctx, &wg)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.applier.Drain()
			if id := r.CurrentCycle(); id != "" {
				r.logger.Info("shutdown requested, waiting for in-flight cycle", slog.String("cycle_id", id))
			}
			wg.Wait()
			r.logger.Info("reconciliation loop stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx, &wg)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context, wg *sync.WaitGroup) {
	if ctx.Err() != nil {
		return
	}
	if !r.TryStart() {
		metrics.DroppedTicksTotal.Inc()
		r.logger.Warn("previous cycle still running, dropping tick",
			slog.String("cycle_id", r.CurrentCycle()),
			slog.String("state", r.State().String()),
		)
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.cycle(ctx)
	}()
}

// RunOnce runs a single cycle and returns its result. Reconciliation errors
// are reported in the result, not as an error.
func (r *Reconciler) RunOnce(ctx context.Context) (*Result, error) {
	if !r.TryStart() {
		return nil, ErrCycleInProgress
	}
	return r.cycle(ctx), nil
}

// cycle runs one poll, diff and apply pass. The caller must have moved the
// state out of Idle.
func (r *Reconciler) cycle(ctx context.Context) *Result {
	defer r.setState(StateIdle)

	id := uuid.NewString()
	r.setCycle(id)
	defer r.setCycle("")

	logger := r.logger.With(slog.String("cycle_id", id))
	result := NewResult(id, r.applier.DryRun())

	ctx, cancel := context.WithTimeout(ctx, r.config.cycleTimeout())
	defer cancel()

	logger.Debug("starting reconciliation")

	r.setState(StatePolling)
	rules, err := r.sources.FetchAll(ctx)
	if err != nil {
		result.SourceError = err
		logger.Error("proxy source failed, no changes applied", slog.String("error", err.Error()))
		r.finish(ctx, logger, result)
		return result
	}
	result.RulesFetched = len(rules)

	r.setState(StateDiffing)
	set := r.builder.Build(rules)
	result.RecordsDesired = len(set.Records)
	result.HostnamesUnmanaged = set.Unmanaged
	result.RuleErrors = set.Errors
	result.Conflicts = set.Conflicts

	plans := r.plan(ctx, logger, set, result)
	for _, p := range plans {
		result.Warnings = append(result.Warnings, p.Warnings...)
		result.Unchanged += p.Unchanged
		for _, w := range p.Warnings {
			logger.Warn("record left untouched",
				slog.String("zone", w.Zone),
				slog.String("name", w.Name),
				slog.String("type", string(w.Type)),
				slog.String("reason", w.Message),
			)
		}
	}

	r.setState(StateApplying)
	result.Outcomes = r.applier.Apply(ctx, plans)

	r.finish(ctx, logger, result)
	return result
}

// plan lists every zone and diffs it against the desired records. A zone
// that cannot be listed is reported and left out of the cycle.
func (r *Reconciler) plan(ctx context.Context, logger *slog.Logger, set *desired.Set, result *Result) []*plan.Plan {
	zones := r.zones.All()
	plans := make([]*plan.Plan, len(zones))
	errs := make([]*ZoneError, len(zones))

	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)
	for i, zc := range zones {
		g.Go(func() error {
			actual, err := r.list(ctx, logger, zc.Zone)
			if err != nil {
				errs[i] = &ZoneError{Zone: zc.Zone, Err: err}
				logger.Error("listing zone failed, zone skipped this cycle",
					slog.String("zone", zc.Zone.Name),
					slog.String("provider", zc.Zone.Provider),
					slog.String("error", err.Error()),
				)
				return nil
			}
			plans[i] = r.differ.Diff(zc, set.ForZone(zc.Zone.Name), actual, set.Excluded)
			return nil
		})
	}
	_ = g.Wait()

	var out []*plan.Plan
	for i := range zones {
		if errs[i] != nil {
			result.ZoneErrors = append(result.ZoneErrors, errs[i])
			continue
		}
		out = append(out, plans[i])
	}
	return out
}

func (r *Reconciler) list(ctx context.Context, logger *slog.Logger, zone provider.Zone) ([]provider.Record, error) {
	p, ok := r.providers.Get(zone.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", applier.ErrUnknownProvider, zone.Provider)
	}

	opts := []retry.Option{
		retry.WithNotify(func(attempt int, err error, wait time.Duration) {
			logger.Warn("listing zone failed, retrying",
				slog.String("zone", zone.Name),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()),
			)
		}),
	}
	if r.sleep != nil {
		opts = append(opts, retry.WithSleep(r.sleep))
	}

	var records []provider.Record
	_, err := r.config.ListPolicy.Do(ctx, func(ctx context.Context) error {
		var err error
		records, err = p.ListRecords(ctx, zone)
		return err
	}, opts...)
	return records, err
}

func (r *Reconciler) finish(ctx context.Context, logger *slog.Logger, result *Result) {
	result.Complete()
	r.recordMetrics(result)

	logger.Info("reconciliation complete",
		slog.Int("created", result.CreatedCount()),
		slog.Int("updated", result.UpdatedCount()),
		slog.Int("deleted", result.DeletedCount()),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("skipped", result.SkippedCount()),
		slog.Int("failed", result.FailedCount()),
		slog.Int("warnings", len(result.Warnings)),
		slog.Int("errors", len(result.Errors())),
		slog.Bool("dry_run", result.DryRun),
		slog.Duration("duration", result.Duration()),
	)

	if r.pusher != nil {
		// The cycle context may already be spent.
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := r.pusher.Push(pushCtx); err != nil {
			logger.Warn("failed to push metrics", slog.String("error", err.Error()))
		}
	}
}

// recordMetrics records Prometheus metrics from a cycle result.
func (r *Reconciler) recordMetrics(result *Result) {
	outcome := result.Outcome()
	metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	metrics.CycleDuration.Observe(result.Duration().Seconds())
	if outcome == metrics.OutcomeSuccess {
		metrics.LastSuccessTimestamp.Set(float64(result.EndTime.Unix()))
	}
	if result.SourceError != nil {
		return
	}

	metrics.DesiredRecords.Set(float64(result.RecordsDesired))
	metrics.ConflictsTotal.Add(float64(len(result.Conflicts)))
	for _, o := range result.Outcomes {
		metrics.OperationsTotal.WithLabelValues(o.Change.Zone.Provider, string(o.Change.Action), string(o.Status)).Inc()
	}
}

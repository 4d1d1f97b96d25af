package reconciler

import (
	"fmt"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/traefik-dns/internal/applier"
	"gitlab.bluewillows.net/root/traefik-dns/internal/desired"
	"gitlab.bluewillows.net/root/traefik-dns/internal/metrics"
	"gitlab.bluewillows.net/root/traefik-dns/internal/plan"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// ZoneError reports a zone that could not be planned this cycle.
type ZoneError struct {
	Zone provider.Zone
	Err  error
}

func (e *ZoneError) Error() string {
	return fmt.Sprintf("zone %s: %v", e.Zone, e.Err)
}

func (e *ZoneError) Unwrap() error {
	return e.Err
}

// Result holds the complete result of a reconciliation cycle.
type Result struct {
	// CycleID identifies the cycle in logs.
	CycleID string

	StartTime time.Time
	EndTime   time.Time

	// DryRun indicates no changes were sent to providers.
	DryRun bool

	// RulesFetched is the number of router rules read from all sources.
	RulesFetched int

	// RecordsDesired is the number of records derived from the rules.
	RecordsDesired int

	// HostnamesUnmanaged counts hostnames outside every configured zone.
	HostnamesUnmanaged int

	// Unchanged is the number of records already in their desired state.
	Unchanged int

	// SourceError is set when the proxy could not be read. No changes are
	// planned or applied in that case.
	SourceError error

	RuleErrors []error
	Conflicts  []*desired.ConflictError
	ZoneErrors []*ZoneError
	Warnings   []plan.Warning

	// Outcomes has one entry per planned change.
	Outcomes []applier.Outcome
}

// NewResult creates a new Result with the start time set to now.
func NewResult(cycleID string, dryRun bool) *Result {
	return &Result{
		CycleID:   cycleID,
		StartTime: time.Now(),
		DryRun:    dryRun,
	}
}

// Complete marks the result as complete with the end time set to now.
func (r *Result) Complete() {
	r.EndTime = time.Now()
}

// Duration returns the total cycle duration.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// count returns record (not marker) outcomes of action that took effect.
// In dry-run the planned changes count.
func (r *Result) count(action provider.Action) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Change.Marker || o.Change.Action != action {
			continue
		}
		if o.Status == applier.StatusSuccess || o.Status == applier.StatusDryRun {
			n++
		}
	}
	return n
}

func (r *Result) countStatus(status applier.Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// CreatedCount returns the number of records created (or would be in dry-run).
func (r *Result) CreatedCount() int {
	return r.count(provider.ActionCreate)
}

// UpdatedCount returns the number of records updated.
func (r *Result) UpdatedCount() int {
	return r.count(provider.ActionUpdate)
}

// DeletedCount returns the number of records deleted.
func (r *Result) DeletedCount() int {
	return r.count(provider.ActionDelete)
}

// SkippedCount returns the number of changes that were not attempted.
func (r *Result) SkippedCount() int {
	return r.countStatus(applier.StatusSkipped)
}

// FailedCount returns the number of failed changes.
func (r *Result) FailedCount() int {
	return r.countStatus(applier.StatusFailed)
}

// Failed returns all failed outcomes.
func (r *Result) Failed() []applier.Outcome {
	var failed []applier.Outcome
	for _, o := range r.Outcomes {
		if o.Status == applier.StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// Errors returns every error the cycle encountered.
func (r *Result) Errors() []error {
	var errs []error
	if r.SourceError != nil {
		errs = append(errs, r.SourceError)
	}
	for _, e := range r.RuleErrors {
		errs = append(errs, e)
	}
	for _, e := range r.Conflicts {
		errs = append(errs, e)
	}
	for _, e := range r.ZoneErrors {
		errs = append(errs, e)
	}
	for _, o := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", o.Change, o.Err))
	}
	return errs
}

// HasErrors returns true if anything in the cycle failed.
func (r *Result) HasErrors() bool {
	return r.SourceError != nil ||
		len(r.RuleErrors) > 0 ||
		len(r.Conflicts) > 0 ||
		len(r.ZoneErrors) > 0 ||
		r.FailedCount() > 0
}

// Outcome classifies the cycle for metrics.
func (r *Result) Outcome() string {
	switch {
	case r.SourceError != nil:
		return metrics.OutcomeSourceError
	case r.HasErrors():
		return metrics.OutcomePartial
	default:
		return metrics.OutcomeSuccess
	}
}

// Summary returns a human-readable summary of the cycle.
func (r *Result) Summary() string {
	var sb strings.Builder

	mode := "applied"
	if r.DryRun {
		mode = "dry-run"
	}

	fmt.Fprintf(&sb, "Reconciliation complete (%s) in %s\n", mode, r.Duration().Round(time.Millisecond))
	if r.SourceError != nil {
		fmt.Fprintf(&sb, "  Source error: %v\n", r.SourceError)
		return sb.String()
	}
	fmt.Fprintf(&sb, "  Router rules: %d\n", r.RulesFetched)
	fmt.Fprintf(&sb, "  Desired records: %d\n", r.RecordsDesired)
	fmt.Fprintf(&sb, "  Records created: %d\n", r.CreatedCount())
	fmt.Fprintf(&sb, "  Records updated: %d\n", r.UpdatedCount())
	fmt.Fprintf(&sb, "  Records deleted: %d\n", r.DeletedCount())
	fmt.Fprintf(&sb, "  Unchanged: %d\n", r.Unchanged)
	fmt.Fprintf(&sb, "  Skipped: %d\n", r.SkippedCount())

	if len(r.Warnings) > 0 {
		fmt.Fprintf(&sb, "  Warnings: %d\n", len(r.Warnings))
		for _, w := range r.Warnings {
			fmt.Fprintf(&sb, "    - %s\n", w)
		}
	}
	if errs := r.Errors(); len(errs) > 0 {
		fmt.Fprintf(&sb, "  Errors: %d\n", len(errs))
		for _, err := range errs {
			fmt.Fprintf(&sb, "    - %v\n", err)
		}
	}

	return sb.String()
}

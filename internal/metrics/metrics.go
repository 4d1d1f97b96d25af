// Package metrics provides Prometheus metrics for traefik-dns.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// Namespace prefixes every metric name.
const Namespace = "traefik_dns"

// Cycle outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomePartial     = "partial"
	OutcomeSourceError = "source_error"
)

var (
	// BuildInfo exposes the running version as labels on a constant 1.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "go_version"},
	)

	// CyclesTotal counts reconciliation cycles by outcome.
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cycles_total",
			Help:      "Total reconciliation cycles by outcome",
		},
		[]string{"outcome"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of reconciliation cycles",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// DroppedTicksTotal counts interval ticks skipped because a cycle was
	// still running.
	DroppedTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dropped_ticks_total",
			Help:      "Interval ticks dropped while a cycle was in flight",
		},
	)

	LastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that completed without errors",
		},
	)

	DesiredRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "desired_records",
			Help:      "Records derived from router rules in the last cycle",
		},
	)

	ConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "conflicts_total",
			Help:      "Names excluded from a cycle because router rules disagreed",
		},
	)

	// OperationsTotal counts record changes by provider, action and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Record changes by provider, action and status",
		},
		[]string{"provider", "action", "status"},
	)

	// ProviderRequestsTotal counts provider API calls by result.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "provider_requests_total",
			Help:      "Provider API calls by operation and result",
		},
		[]string{"provider", "operation", "result"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Provider API call latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)
)

// SetBuildInfo records the running version.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// ObserveProviderCall records one provider API call. It satisfies
// provider.Observer.
func ObserveProviderCall(providerName, operation string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
		if kind, ok := provider.KindOf(err); ok {
			result = kind.String()
		}
	}
	ProviderRequestsTotal.WithLabelValues(providerName, operation, result).Inc()
	ProviderRequestDuration.WithLabelValues(providerName, operation).Observe(d.Seconds())
}

var _ provider.Observer = ObserveProviderCall

// Package metrics holds the Prometheus collectors of the agent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels feed fetches that returned records.
	OutcomeSuccess = "success"
	// OutcomeSkipped labels feeds that were not configured or had no credentials.
	OutcomeSkipped = "skipped"
	// OutcomeError labels feed fetches that failed upstream.
	OutcomeError = "error"
)

var (
	feedFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsstatus",
			Name:      "feed_fetches_total",
			Help:      "Total number of feed fetches, partitioned by feed and outcome.",
		},
		[]string{"feed", "outcome"},
	)

	feedFetchSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "opsstatus",
			Name:      "feed_fetch_seconds",
			Help:      "Feed fetch latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"feed"},
	)

	vendorProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsstatus",
			Name:      "vendor_probes_total",
			Help:      "Total number of vendor probes, partitioned by verdict.",
		},
		[]string{"status"},
	)

	dateFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsstatus",
			Name:      "date_fallbacks_total",
			Help:      "Malformed upstream dates replaced with the current time.",
		},
		[]string{"kind", "field"},
	)

	refreshCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsstatus",
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles, partitioned by whether their result was kept or discarded as stale.",
		},
		[]string{"result"},
	)
)

// Register attaches the collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		feedFetchesTotal,
		feedFetchSeconds,
		vendorProbesTotal,
		dateFallbacksTotal,
		refreshCyclesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveFeedFetch records one feed fetch.
func ObserveFeedFetch(feed string, duration time.Duration, outcome string) {
	feedFetchesTotal.WithLabelValues(feed, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	feedFetchSeconds.WithLabelValues(feed).Observe(duration.Seconds())
}

// ObserveVendorProbe counts one probe verdict.
func ObserveVendorProbe(status string) {
	vendorProbesTotal.WithLabelValues(status).Inc()
}

// ObserveDateFallback counts one substituted date.
func ObserveDateFallback(kind, field string) {
	dateFallbacksTotal.WithLabelValues(kind, field).Inc()
}

// ObserveRefresh counts a finished refresh cycle.
func ObserveRefresh(stale bool) {
	result := "stored"
	if stale {
		result = "stale"
	}
	refreshCyclesTotal.WithLabelValues(result).Inc()
}

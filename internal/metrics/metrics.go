// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scheme_service"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Calls made to upstream endpoints.",
		},
		[]string{"endpoint", "outcome"},
	)

	catalogLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "lookups_total",
			Help:      "Catalog cache lookups by result.",
		},
		[]string{"result"},
	)

	limitSources = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "limits",
			Name:      "resolved_total",
			Help:      "Amount limit resolutions by winning source.",
		},
		[]string{"source"},
	)
)

func init() {
	Registry.MustRegister(httpRequests, httpDuration, upstreamCalls, catalogLookups, limitSources)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, path, status string, d time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordUpstreamCall counts a call to an upstream endpoint.
func RecordUpstreamCall(endpoint string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamCalls.WithLabelValues(endpoint, outcome).Inc()
}

// RecordCatalogLookup counts a catalog cache lookup ("hit", "miss", "stale").
func RecordCatalogLookup(result string) {
	catalogLookups.WithLabelValues(result).Inc()
}

// RecordLimitSource counts which source answered an amount limit resolution.
func RecordLimitSource(source string) {
	limitSources.WithLabelValues(source).Inc()
}

// UpstreamCallCounts returns the cumulative upstream call count per endpoint.
func UpstreamCallCounts() (map[string]float64, error) {
	families, err := Registry.Gather()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != namespace+"_upstream_calls_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "endpoint" {
					counts[lp.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	return counts, nil
}

package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ModuleMetricsRegistry records JSON-RPC module activity.
type ModuleMetricsRegistry struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *ModuleMetricsRegistry
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *ModuleMetricsRegistry {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &ModuleMetricsRegistry{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rosca",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "rosca",
				Subsystem: "module",
				Name:      "request_latency_seconds",
				Help:      "JSON-RPC module request latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(moduleRegistry.requests, moduleRegistry.latency)
	})
	return moduleRegistry
}

// Observe records one completed module request.
func (m *ModuleMetricsRegistry) Observe(module, method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	module = normalizeLabel(module)
	method = normalizeLabel(method)
	outcome = normalizeLabel(outcome)
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

package inbox

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	operations      *prometheus.CounterVec
	partialFailures *prometheus.CounterVec
	staleResponses  prometheus.Counter
	broadcasts      *prometheus.CounterVec
	sessions        prometheus.Gauge
}

var (
	metricsInstance *metrics
	metricsOnce     sync.Once
	defaultRegistry = prometheus.DefaultRegisterer
)

func newMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInstance = &metrics{
			operations: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "portal_inbox_operations_total",
				Help: "Inbox operations by name and outcome",
			}, []string{"operation", "outcome"}),
			partialFailures: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "portal_inbox_partial_failures_total",
				Help: "Bulk mutations that left requested notifications in place",
			}, []string{"operation"}),
			staleResponses: promauto.With(defaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "portal_inbox_stale_responses_total",
				Help: "Fetch responses discarded because a newer one was already applied",
			}),
			broadcasts: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "portal_inbox_broadcasts_total",
				Help: "Notifications-changed signals emitted by phase",
			}, []string{"phase"}),
			sessions: promauto.With(defaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "portal_inbox_sessions",
				Help: "Live inbox sessions",
			}),
		}
	})
	return metricsInstance
}

// For testing purposes - reset metrics
func resetMetricsForTesting() {
	defaultRegistry = prometheus.NewRegistry()
	metricsInstance = nil
	metricsOnce = sync.Once{}
}

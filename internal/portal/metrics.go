package portal

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
	fallbacks       prometheus.Counter
}

var (
	metricsInstance *metrics
	metricsOnce     sync.Once
	defaultRegistry = prometheus.DefaultRegisterer
)

func newMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInstance = &metrics{
			requestDuration: promauto.With(defaultRegistry).NewHistogramVec(prometheus.HistogramOpts{
				Name:    "portal_store_request_duration_seconds",
				Help:    "Latency of document store requests",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}, []string{"operation", "status"}),
			requestErrors: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "portal_store_request_errors_total",
				Help: "Failed document store requests by operation and failure kind",
			}, []string{"operation", "kind"}),
			fallbacks: promauto.With(defaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "portal_payment_history_fallbacks_total",
				Help: "Payment history reads served from the admin listing",
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

// Package metrics exposes Prometheus collectors for the HTTP surface and the
// worker pool.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clmercier/urlcollector/internal/crawler"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the HTTP metrics collectors. It is safe to call more than
// once.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "urlcollector_http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "urlcollector_http_request_duration_seconds",
				Help:    "HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// RegisterPoolGauges exports live worker pool state. snapshot is called at
// scrape time, so the gauges never go stale.
func RegisterPoolGauges(reg prometheus.Registerer, snapshot func() crawler.PoolSnapshot) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "urlcollector_active_workers",
		Help: "Workers currently running in the pool.",
	}, func() float64 {
		return float64(snapshot().AliveWorkers)
	})
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "urlcollector_pool_paused",
		Help: "1 when the pool is paused, 0 otherwise.",
	}, func() float64 {
		if snapshot().Paused {
			return 1
		}
		return 0
	})
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "urlcollector_processed_pages",
		Help: "Pages counted against the configured page budget.",
	}, func() float64 {
		return float64(snapshot().ProcessedPages)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

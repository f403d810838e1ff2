package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clmercier/urlcollector/internal/progress"
)

// PrometheusSink exports crawl progress metrics. It owns the collectors for
// discovered links and per-host fetch counters.
type PrometheusSink struct {
	urlsDiscovered prometheus.Counter
	pagesCrawled   *prometheus.CounterVec
	pageFailures   prometheus.Counter
	fetchBytes     *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	crawlDepth     prometheus.Histogram
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		urlsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urlcollector_urls_discovered_total",
			Help: "Total new URLs enqueued into the frontier.",
		}),
		pagesCrawled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "urlcollector_pages_crawled_total",
			Help: "Pages that received an HTTP response, partitioned by status class.",
		}, []string{"status_class"}),
		pageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urlcollector_page_failures_total",
			Help: "Pages that produced no HTTP response at all.",
		}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "urlcollector_fetch_bytes_total",
			Help: "Bytes downloaded per host.",
		}, []string{"host"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "urlcollector_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"status_class"}),
		crawlDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "urlcollector_crawl_depth",
			Help:    "Link depth of crawled pages.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 13, 21},
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.urlsDiscovered,
		s.pagesCrawled,
		s.pageFailures,
		s.fetchBytes,
		s.fetchDuration,
		s.crawlDepth,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the provided batch. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageURLDiscovered:
		s.urlsDiscovered.Inc()
	case progress.StagePageCrawled:
		class := evt.StatusClass()
		s.pagesCrawled.WithLabelValues(class).Inc()
		s.crawlDepth.Observe(float64(evt.Depth))
		if evt.Bytes > 0 {
			host := evt.Host
			if host == "" {
				host = "unknown"
			}
			s.fetchBytes.WithLabelValues(host).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(class).Observe(evt.Dur.Seconds())
		}
	case progress.StagePageFailed:
		s.pageFailures.Inc()
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(evt.StatusClass()).Observe(evt.Dur.Seconds())
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

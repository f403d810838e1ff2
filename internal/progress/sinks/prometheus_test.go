package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/clmercier/urlcollector/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now().UTC()
	batch := []progress.Event{
		{
			TS:       now,
			Stage:    progress.StageURLDiscovered,
			WorkerID: 1,
			URL:      "https://example.com/a",
			Host:     "example.com",
			Depth:    1,
		},
		{
			TS:         now,
			Stage:      progress.StagePageCrawled,
			WorkerID:   1,
			URL:        "https://example.com/a",
			Host:       "example.com",
			Depth:      1,
			HTTPStatus: 200,
			Bytes:      1024,
			Dur:        200 * time.Millisecond,
		},
		{
			TS:       now,
			Stage:    progress.StagePageFailed,
			WorkerID: 2,
			URL:      "https://example.com/b",
			Host:     "example.com",
			Depth:    2,
			Note:     "connection refused",
		},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.urlsDiscovered))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesCrawled.WithLabelValues("2xx")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.pagesCrawled.WithLabelValues("4xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pageFailures))
	require.InDelta(t, 1024.0, testutil.ToFloat64(sink.fetchBytes.WithLabelValues("example.com")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.fetchDuration, "urlcollector_fetch_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.crawlDepth, "urlcollector_crawl_depth"))
}

// TestPrometheusSinkDoubleRegister ensures a shared registry rejects duplicates.
func TestPrometheusSinkDoubleRegister(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

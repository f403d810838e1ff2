package crawler

import (
	"fmt"
	"sort"
	"time"
)

// Status classes reported by the HTTP status histogram, in display order.
var statusClasses = []string{"2xx", "3xx", "4xx", "5xx", "other"}

// ClassifyStatus groups an HTTP status code into its coarse class label.
func ClassifyStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}

// DepthBuckets shapes raw per-depth counts into the fixed histogram form:
// one bucket per depth 0..maxDepth plus a single ">maxDepth" overflow bucket
// that only appears when it is non-empty.
func DepthBuckets(counts map[int]int64, maxDepth int) []Bucket {
	if maxDepth < 0 {
		maxDepth = 0
	}
	buckets := make([]Bucket, 0, maxDepth+2)
	var overflow int64
	for depth, count := range counts {
		if depth > maxDepth {
			overflow += count
		}
	}
	for depth := 0; depth <= maxDepth; depth++ {
		buckets = append(buckets, Bucket{Label: fmt.Sprintf("%d", depth), Count: counts[depth]})
	}
	if overflow > 0 {
		buckets = append(buckets, Bucket{Label: fmt.Sprintf(">%d", maxDepth), Count: overflow})
	}
	return buckets
}

// StatusClassBuckets orders per-class counts into the fixed 2xx..other form,
// including zero-valued classes.
func StatusClassBuckets(counts map[string]int64) []Bucket {
	buckets := make([]Bucket, 0, len(statusClasses))
	for _, class := range statusClasses {
		buckets = append(buckets, Bucket{Label: class, Count: counts[class]})
	}
	return buckets
}

// DomainBuckets returns the top-limit hosts by count, highest first with the
// host name breaking ties.
func DomainBuckets(counts map[string]int64, limit int) []Bucket {
	if limit < 1 {
		return []Bucket{}
	}
	buckets := make([]Bucket, 0, len(counts))
	for host, count := range counts {
		buckets = append(buckets, Bucket{Label: host, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Label < buckets[j].Label
	})
	if len(buckets) > limit {
		buckets = buckets[:limit]
	}
	return buckets
}

// HourlySeries builds the discovered-vs-crawled activity series ending at the
// hour containing now. The maps are keyed by hour-truncated timestamps.
func HourlySeries(now time.Time, hours int, discovered, crawled map[time.Time]int64) []ActivityPoint {
	if hours < 1 {
		return []ActivityPoint{}
	}
	nowHour := now.UTC().Truncate(time.Hour)
	start := nowHour.Add(-time.Duration(hours-1) * time.Hour)

	series := make([]ActivityPoint, 0, hours)
	for i := 0; i < hours; i++ {
		bucket := start.Add(time.Duration(i) * time.Hour)
		series = append(series, ActivityPoint{
			Label:      bucket.Format("15:04"),
			Discovered: discovered[bucket],
			Crawled:    crawled[bucket],
		})
	}
	return series
}

// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces that workers use to report crawl milestones. Events are
// batched on a background goroutine and fanned out to pluggable sinks such as
// Prometheus metrics or structured logs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/clmercier/urlcollector/internal/crawler"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	// StageURLDiscovered fires when a link is enqueued for the first time.
	StageURLDiscovered Stage = "URL_DISCOVERED"
	// StagePageCrawled fires when a claimed page received an HTTP response.
	StagePageCrawled Stage = "PAGE_CRAWLED"
	// StagePageFailed fires when a claimed page produced no response at all.
	StagePageFailed Stage = "PAGE_FAILED"
)

// Event captures a single crawl milestone.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// WorkerID identifies the emitting worker.
	WorkerID int
	// URL is the page URL; it should not contain credentials.
	URL string
	// Host is the lowercased host of URL, precomputed for metric labels.
	Host string
	// Depth is the link distance from the seed.
	Depth int
	// HTTPStatus is the response status code for PAGE_CRAWLED events.
	HTTPStatus int
	// Bytes carries the response body size for PAGE_CRAWLED events.
	Bytes int64
	// Dur captures fetch latency for PAGE_CRAWLED and PAGE_FAILED events.
	Dur time.Duration
	// Note carries low-volume context such as truncated error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.URL == "" {
		return errors.New("url is required")
	}
	switch e.Stage {
	case StageURLDiscovered:
	case StagePageCrawled:
		if e.HTTPStatus == 0 {
			return errors.New("page crawled requires an http status")
		}
	case StagePageFailed:
		if e.Note == "" {
			return errors.New("page failed requires error text")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Depth < 0 {
		return errors.New("depth must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// StatusClass groups the event's HTTP status code for metric labels.
func (e Event) StatusClass() string {
	return crawler.ClassifyStatus(e.HTTPStatus)
}

package crawler

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a frontier record.
type Status string

// Status values persisted in the frontier store. Transitions only flow
// queued -> crawling -> {crawled, error}; a resolved record never goes back.
const (
	StatusQueued   Status = "queued"
	StatusCrawling Status = "crawling"
	StatusCrawled  Status = "crawled"
	StatusError    Status = "error"
)

// Valid reports whether s is one of the persisted status values.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusCrawling, StatusCrawled, StatusError:
		return true
	}
	return false
}

// MaxErrorLen bounds the error message stored per record.
const MaxErrorLen = 2000

// TruncateError bounds a failure description to MaxErrorLen characters.
func TruncateError(message string) string {
	runes := []rune(message)
	if len(runes) <= MaxErrorLen {
		return message
	}
	return string(runes[:MaxErrorLen])
}

// URLRecord is one row of the frontier: a distinct normalized URL and
// everything known about its crawl lifecycle.
type URLRecord struct {
	ID             int64      `json:"id"`
	URL            string     `json:"url"`
	Status         Status     `json:"status"`
	Depth          int        `json:"depth"`
	DiscoveredFrom *string    `json:"discovered_from,omitempty"`
	HTTPStatus     *int       `json:"http_status,omitempty"`
	Error          *string    `json:"error,omitempty"`
	FirstSeen      time.Time  `json:"first_seen"`
	LastCrawled    *time.Time `json:"last_crawled,omitempty"`
}

// ClaimedURL is the slice of a record handed to exactly one worker by
// Frontier.ClaimNext.
type ClaimedURL struct {
	ID    int64
	URL   string
	Depth int
}

// StatusCounts aggregates the frontier by lifecycle state.
type StatusCounts struct {
	Total    int64 `json:"total"`
	Queued   int64 `json:"queued"`
	Crawling int64 `json:"crawling"`
	Crawled  int64 `json:"crawled"`
	Errored  int64 `json:"error"`
}

// ListFilter selects a page of frontier records. An empty Status means all
// statuses.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Bucket is one labeled count in a histogram-style aggregate (depth buckets,
// HTTP status classes, top domains).
type Bucket struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// ActivityPoint is one hour of discovered-vs-crawled activity.
type ActivityPoint struct {
	Label      string `json:"label"`
	Discovered int64  `json:"discovered"`
	Crawled    int64  `json:"crawled"`
}

// FetchResponse is the result returned by a Fetcher implementation.
// FinalURL is the post-redirect URL and is the base that discovered links
// must be resolved against.
type FetchResponse struct {
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// IsHTML reports whether the response should be parsed for links.
func (r FetchResponse) IsHTML() bool {
	return containsFold(r.ContentType, "text/html")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// PoolSnapshot is the supervisor's control/observability surface, consumed by
// the status endpoint. MaxPages of 0 means the crawl is unbounded.
type PoolSnapshot struct {
	Paused            bool    `json:"paused"`
	StopRequested     bool    `json:"stop_requested"`
	DelaySeconds      float64 `json:"delay_seconds"`
	ConfiguredWorkers int     `json:"configured_workers"`
	AliveWorkers      int     `json:"alive_workers"`
	WorkerIDs         []int   `json:"worker_ids"`
	ProcessedPages    int64   `json:"processed_pages"`
	MaxPages          int64   `json:"max_pages"`
}

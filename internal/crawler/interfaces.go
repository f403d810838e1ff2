package crawler

import (
	"context"
	"time"
)

// Frontier is the write side of the URL store shared by all workers.
type Frontier interface {
	// Seed inserts the seed URL at depth 0 with no parent. It is a no-op if
	// the URL is already present, so a restarted run resumes where it left off.
	Seed(ctx context.Context, url string) error

	// AddDiscovered inserts a queued record unless the URL is already known.
	// Duplicates are routine and report isNew=false, never an error.
	AddDiscovered(ctx context.Context, url string, depth int, discoveredFrom string) (isNew bool, err error)

	// ClaimNext atomically transitions the oldest queued record to crawling
	// and hands it to the caller. Under concurrent callers each record is
	// returned at most once. ok is false when no queued record exists.
	ClaimNext(ctx context.Context) (claimed ClaimedURL, ok bool, err error)

	// MarkCrawled resolves a claimed record: status crawled, http_status set,
	// error cleared, last_crawled stamped.
	MarkCrawled(ctx context.Context, id int64, httpStatus int) error

	// MarkError resolves a claimed record with a failure description,
	// truncated to MaxErrorLen.
	MarkError(ctx context.Context, id int64, message string) error
}

// FrontierReader is the read-only surface consumed by the dashboard
// collaborator. Results reflect committed state only.
type FrontierReader interface {
	StatusCounts(ctx context.Context) (StatusCounts, error)
	ListURLs(ctx context.Context, filter ListFilter) ([]URLRecord, error)
	DepthHistogram(ctx context.Context, maxDepth int) ([]Bucket, error)
	StatusClassHistogram(ctx context.Context) ([]Bucket, error)
	TopDomains(ctx context.Context, limit int) ([]Bucket, error)
	Activity(ctx context.Context, hours int) ([]ActivityPoint, error)
}

// Fetcher retrieves a single URL, following redirects, within a bounded
// timeout. Implementations are owned by one worker and must not be shared.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

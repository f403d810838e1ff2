// Package memory provides an in-memory frontier for development and testing.
// It honors the same claim and uniqueness semantics as the Postgres store but
// offers no durability; a restarted process starts from an empty frontier.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clmercier/urlcollector/internal/crawler"
)

// FrontierStore implements crawler.Frontier and crawler.FrontierReader with a
// single mutex standing in for the database's claim transaction.
type FrontierStore struct {
	mu      sync.Mutex
	records []*crawler.URLRecord // append-only, ordered by ID
	byURL   map[string]*crawler.URLRecord
	byID    map[int64]*crawler.URLRecord
	nextID  int64
	clock   crawler.Clock
}

// NewFrontierStore constructs an empty store. clock may be nil, in which case
// wall time is used.
func NewFrontierStore(clock crawler.Clock) *FrontierStore {
	return &FrontierStore{
		byURL: make(map[string]*crawler.URLRecord),
		byID:  make(map[int64]*crawler.URLRecord),
		clock: clock,
	}
}

func (s *FrontierStore) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}

// Seed inserts the seed URL at depth 0 with no parent; a no-op when the URL
// is already present.
func (s *FrontierStore) Seed(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(url, 0, "")
	return nil
}

// AddDiscovered inserts a queued record unless the URL is already known.
func (s *FrontierStore) AddDiscovered(_ context.Context, url string, depth int, discoveredFrom string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(url, depth, discoveredFrom), nil
}

func (s *FrontierStore) insertLocked(url string, depth int, discoveredFrom string) bool {
	if _, exists := s.byURL[url]; exists {
		return false
	}
	s.nextID++
	rec := &crawler.URLRecord{
		ID:        s.nextID,
		URL:       url,
		Status:    crawler.StatusQueued,
		Depth:     depth,
		FirstSeen: s.now(),
	}
	if discoveredFrom != "" {
		from := discoveredFrom
		rec.DiscoveredFrom = &from
	}
	s.records = append(s.records, rec)
	s.byURL[url] = rec
	s.byID[rec.ID] = rec
	return true
}

// ClaimNext hands the oldest queued record to the caller, transitioning it to
// crawling under the store lock so no two callers can claim the same record.
func (s *FrontierStore) ClaimNext(context.Context) (crawler.ClaimedURL, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Status == crawler.StatusQueued {
			rec.Status = crawler.StatusCrawling
			return crawler.ClaimedURL{ID: rec.ID, URL: rec.URL, Depth: rec.Depth}, true, nil
		}
	}
	return crawler.ClaimedURL{}, false, nil
}

// MarkCrawled resolves a record as successfully fetched.
func (s *FrontierStore) MarkCrawled(_ context.Context, id int64, httpStatus int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("url record %d not found", id)
	}
	status := httpStatus
	now := s.now()
	rec.Status = crawler.StatusCrawled
	rec.HTTPStatus = &status
	rec.Error = nil
	rec.LastCrawled = &now
	return nil
}

// MarkError resolves a record as failed, truncating the message.
func (s *FrontierStore) MarkError(_ context.Context, id int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("url record %d not found", id)
	}
	message = crawler.TruncateError(message)
	now := s.now()
	rec.Status = crawler.StatusError
	rec.Error = &message
	rec.LastCrawled = &now
	return nil
}

// StatusCounts aggregates the frontier by lifecycle state.
func (s *FrontierStore) StatusCounts(context.Context) (crawler.StatusCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts crawler.StatusCounts
	for _, rec := range s.records {
		counts.Total++
		switch rec.Status {
		case crawler.StatusQueued:
			counts.Queued++
		case crawler.StatusCrawling:
			counts.Crawling++
		case crawler.StatusCrawled:
			counts.Crawled++
		case crawler.StatusError:
			counts.Errored++
		}
	}
	return counts, nil
}

// ListURLs returns a page of records newest-first, optionally filtered by
// status.
func (s *FrontierStore) ListURLs(_ context.Context, filter crawler.ListFilter) ([]crawler.URLRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]crawler.URLRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		matched = append(matched, *rec)
	}

	offset := filter.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// DepthHistogram buckets all records by depth.
func (s *FrontierStore) DepthHistogram(_ context.Context, maxDepth int) ([]crawler.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[int]int64)
	for _, rec := range s.records {
		counts[rec.Depth]++
	}
	return crawler.DepthBuckets(counts, maxDepth), nil
}

// StatusClassHistogram buckets fetched records by HTTP status class.
func (s *FrontierStore) StatusClassHistogram(context.Context) ([]crawler.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, rec := range s.records {
		if rec.HTTPStatus != nil {
			counts[crawler.ClassifyStatus(*rec.HTTPStatus)]++
		}
	}
	return crawler.StatusClassBuckets(counts), nil
}

// TopDomains counts records per host across the whole frontier.
func (s *FrontierStore) TopDomains(_ context.Context, limit int) ([]crawler.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, rec := range s.records {
		if host := crawler.HostOf(rec.URL); host != "" {
			counts[host]++
		}
	}
	return crawler.DomainBuckets(counts, limit), nil
}

// Activity reports hourly discovered-vs-crawled counts over the window.
func (s *FrontierStore) Activity(_ context.Context, hours int) ([]crawler.ActivityPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	discovered := make(map[time.Time]int64)
	crawled := make(map[time.Time]int64)
	for _, rec := range s.records {
		discovered[rec.FirstSeen.UTC().Truncate(time.Hour)]++
		if rec.LastCrawled != nil {
			crawled[rec.LastCrawled.UTC().Truncate(time.Hour)]++
		}
	}
	return crawler.HourlySeries(s.now(), hours, discovered, crawled), nil
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clmercier/urlcollector/internal/crawler"
	"github.com/clmercier/urlcollector/internal/progress"
	"github.com/clmercier/urlcollector/internal/storage/memory"
)

// fakeControls is a permissive Controls with togglable pause/limit behavior.
type fakeControls struct {
	mu           sync.Mutex
	paused       bool
	limitReached bool
	processed    int
	stopCalls    int
	stop         func()
}

func (c *fakeControls) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *fakeControls) Delay() time.Duration { return 0 }

func (c *fakeControls) LimitReached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limitReached
}

func (c *fakeControls) NoteProcessed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed++
}

func (c *fakeControls) Stop() {
	c.mu.Lock()
	c.stopCalls++
	stop := c.stop
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (c *fakeControls) processedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed
}

func (c *fakeControls) setPaused(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = v
}

// fakeFetcher serves canned responses keyed by URL.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]crawler.FetchResponse
	errs      map[string]error
	fetched   []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]crawler.FetchResponse),
		errs:      make(map[string]error),
	}
}

func (f *fakeFetcher) page(url, contentType, body string) {
	f.responses[url] = crawler.FetchResponse{
		FinalURL:    url,
		StatusCode:  200,
		ContentType: contentType,
		Body:        []byte(body),
		Duration:    10 * time.Millisecond,
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (crawler.FetchResponse, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return crawler.FetchResponse{}, err
	}
	if resp, ok := f.responses[url]; ok {
		return resp, nil
	}
	return crawler.FetchResponse{FinalURL: url, StatusCode: 404}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) byStage(stage progress.Stage) []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []progress.Event
	for _, evt := range e.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func newTestWorker(t *testing.T, store crawler.Frontier, fetcher crawler.Fetcher, ctrl Controls, emitter progress.Emitter, cfg Config) *Worker {
	t.Helper()
	if cfg.PausePoll == 0 {
		cfg.PausePoll = 5 * time.Millisecond
	}
	if cfg.IdleWait == 0 {
		cfg.IdleWait = 5 * time.Millisecond
	}
	return New(1, store, fetcher, ctrl, emitter, nil, cfg, nil)
}

// runUntil runs the worker until cond holds, then cancels and waits for exit.
func runUntil(t *testing.T, w *Worker, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after cancel")
	}
}

func TestWorkerCrawlsAndDiscoversLinks(t *testing.T) {
	t.Parallel()

	store := memory.NewFrontierStore(nil)
	require.NoError(t, store.Seed(context.Background(), "https://example.com"))

	fetcher := newFakeFetcher()
	fetcher.page("https://example.com", "text/html; charset=utf-8",
		`<html><body>
			<a href="/a">a</a>
			<a href="https://example.com/b">b</a>
			<a href="https://other.example/c">offsite</a>
			<a href="mailto:someone@example.com">mail</a>
		</body></html>`)
	fetcher.page("https://example.com/a", "text/html", `<html></html>`)
	fetcher.page("https://example.com/b", "text/html", `<html></html>`)

	ctrl := &fakeControls{}
	emitter := &recordingEmitter{}
	w := newTestWorker(t, store, fetcher, ctrl, emitter, Config{
		SeedHost:     "example.com",
		SameHostOnly: true,
	})

	runUntil(t, w, func() bool { return ctrl.processedCount() >= 3 })

	counts, err := store.StatusCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), counts.Crawled)
	require.Equal(t, int64(0), counts.Queued)
	require.Equal(t, int64(0), counts.Errored)

	// The offsite and mailto links never entered the frontier.
	records, err := store.ListURLs(context.Background(), crawler.ListFilter{Limit: 10})
	require.NoError(t, err)
	urls := make([]string, 0, len(records))
	for _, rec := range records {
		urls = append(urls, rec.URL)
	}
	require.ElementsMatch(t, []string{
		"https://example.com",
		"https://example.com/a",
		"https://example.com/b",
	}, urls)

	discovered := emitter.byStage(progress.StageURLDiscovered)
	require.Len(t, discovered, 2)
	crawled := emitter.byStage(progress.StagePageCrawled)
	require.Len(t, crawled, 3)
}

func TestWorkerPropagatesDepthAndParent(t *testing.T) {
	t.Parallel()

	store := memory.NewFrontierStore(nil)
	require.NoError(t, store.Seed(context.Background(), "https://example.com"))

	fetcher := newFakeFetcher()
	fetcher.page("https://example.com", "text/html", `<a href="/child">c</a>`)
	fetcher.page("https://example.com/child", "text/html", `<a href="/grandchild">g</a>`)
	fetcher.page("https://example.com/grandchild", "text/html", ``)

	ctrl := &fakeControls{}
	w := newTestWorker(t, store, fetcher, ctrl, nil, Config{SeedHost: "example.com", SameHostOnly: true})

	runUntil(t, w, func() bool { return ctrl.processedCount() >= 3 })

	records, err := store.ListURLs(context.Background(), crawler.ListFilter{Limit: 10})
	require.NoError(t, err)
	byURL := make(map[string]crawler.URLRecord, len(records))
	for _, rec := range records {
		byURL[rec.URL] = rec
	}

	require.Equal(t, 0, byURL["https://example.com"].Depth)
	require.Equal(t, 1, byURL["https://example.com/child"].Depth)
	require.Equal(t, 2, byURL["https://example.com/grandchild"].Depth)
	require.Equal(t, "https://example.com/child", *byURL["https://example.com/grandchild"].DiscoveredFrom)
}

func TestWorkerSkipsNonHTMLBodies(t *testing.T) {
	t.Parallel()

	store := memory.NewFrontierStore(nil)
	require.NoError(t, store.Seed(context.Background(), "https://example.com/data.json"))

	fetcher := newFakeFetcher()
	fetcher.page("https://example.com/data.json", "application/json",
		`{"link": "<a href=\"/never\">x</a>"}`)

	ctrl := &fakeControls{}
	w := newTestWorker(t, store, fetcher, ctrl, nil, Config{})

	runUntil(t, w, func() bool { return ctrl.processedCount() >= 1 })

	counts, err := store.StatusCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), counts.Total)
	require.Equal(t, int64(1), counts.Crawled)
}

func TestWorkerMarksTransportFailures(t *testing.T) {
	t.Parallel()

	store := memory.NewFrontierStore(nil)
	require.NoError(t, store.Seed(context.Background(), "https://down.example"))

	fetcher := newFakeFetcher()
	fetcher.errs["https://down.example"] = errors.New("dial tcp: connection refused")

	ctrl := &fakeControls{}
	emitter := &recordingEmitter{}
	w := newTestWorker(t, store, fetcher, ctrl, emitter, Config{})

	runUntil(t, w, func() bool { return ctrl.processedCount() >= 1 })

	records, err := store.ListURLs(context.Background(), crawler.ListFilter{Status: crawler.StatusError, Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Contains(t, *records[0].Error, "connection refused")
	require.Nil(t, records[0].HTTPStatus)

	require.Len(t, emitter.byStage(progress.StagePageFailed), 1)
}

func TestWorkerRecordsNon2xxAsCrawled(t *testing.T) {
	t.Parallel()

	store := memory.NewFrontierStore(nil)
	require.NoError(t, store.Seed(context.Background(), "https://example.com/missing"))

	ctrl := &fakeControls{}
	w := newTestWorker(t, store, newFakeFetcher(), ctrl, nil, Config{})

	runUntil(t, w, func() bool { return ctrl.processedCount() >= 1 })

	records, err := store.ListURLs(context.Background(), crawler.ListFilter{Status: crawler.StatusCrawled, Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 404, *records[0].HTTPStatus)
}

func TestWorkerHonorsPause(t *testing.T) {
	t.Parallel()

	store := memory.NewFrontierStore(nil)
	require.NoError(t, store.Seed(context.Background(), "https://example.com"))

	fetcher := newFakeFetcher()
	fetcher.page("https://example.com", "text/html", ``)

	ctrl := &fakeControls{paused: true}
	w := newTestWorker(t, store, fetcher, ctrl, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	// Paused: nothing may be claimed.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, ctrl.processedCount())

	ctrl.setPaused(false)
	require.Eventually(t, func() bool { return ctrl.processedCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestWorkerStopsWhenLimitReached(t *testing.T) {
	t.Parallel()

	store := memory.NewFrontierStore(nil)
	require.NoError(t, store.Seed(context.Background(), "https://example.com"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl := &fakeControls{limitReached: true, stop: cancel}
	w := newTestWorker(t, store, newFakeFetcher(), ctrl, nil, Config{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on reached limit")
	}
	require.Equal(t, 1, ctrl.stopCalls)
	require.Equal(t, 0, ctrl.processedCount())
}

func TestWorkerExitsOnCanceledContext(t *testing.T) {
	t.Parallel()

	store := memory.NewFrontierStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := newTestWorker(t, store, newFakeFetcher(), &fakeControls{}, nil, Config{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit on canceled context")
	}
}

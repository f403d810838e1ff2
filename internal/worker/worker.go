// Package worker implements the crawl loop: claim a URL, fetch it, harvest
// in-scope links, and resolve the record.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clmercier/urlcollector/internal/crawler"
	"github.com/clmercier/urlcollector/internal/progress"
)

// Controls is the narrow supervisor surface a worker needs. The dispatcher
// satisfies it; workers never see the pool itself.
type Controls interface {
	// Paused reports whether claiming is currently suspended.
	Paused() bool
	// Delay returns the politeness pause applied after each processed page.
	Delay() time.Duration
	// LimitReached reports whether the page budget has been exhausted.
	LimitReached() bool
	// NoteProcessed records one processed page against the budget.
	NoteProcessed()
	// Stop requests a pool-wide shutdown.
	Stop()
}

// Config controls Worker behavior.
type Config struct {
	// SeedHost scopes discovered links when SameHostOnly is set.
	SeedHost string
	// SameHostOnly drops links that resolve outside SeedHost.
	SameHostOnly bool
	// PausePoll is how often a paused worker rechecks the flag.
	PausePoll time.Duration
	// IdleWait is how long to sleep when the queue is empty.
	IdleWait time.Duration
}

const (
	defaultPausePoll = 200 * time.Millisecond
	defaultIdleWait  = 300 * time.Millisecond
)

// Worker drains the frontier until its context is canceled.
type Worker struct {
	id       int
	frontier crawler.Frontier
	fetcher  crawler.Fetcher
	ctrl     Controls
	emitter  progress.Emitter
	clock    crawler.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. The fetcher must not be shared with other workers.
func New(
	id int,
	frontier crawler.Frontier,
	fetcher crawler.Fetcher,
	ctrl Controls,
	emitter progress.Emitter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.PausePoll <= 0 {
		cfg.PausePoll = defaultPausePoll
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = defaultIdleWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:       id,
		frontier: frontier,
		fetcher:  fetcher,
		ctrl:     ctrl,
		emitter:  emitter,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.With(zap.Int("worker_id", id)),
	}
}

// ID returns the worker's pool identifier.
func (w *Worker) ID() int {
	return w.id
}

// Run blocks, processing queued URLs until ctx is canceled. The context covers
// both the pool-wide stop and this worker's individual stop signal.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if w.ctrl.LimitReached() {
			// The budget may have been hit by another worker while
			// this one slept. Stop is idempotent.
			w.ctrl.Stop()
			return
		}
		if w.ctrl.Paused() {
			if !w.sleep(ctx, w.cfg.PausePoll) {
				return
			}
			continue
		}

		claimed, ok, err := w.frontier.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("claim failed", zap.Error(err))
			if !w.sleep(ctx, w.cfg.IdleWait) {
				return
			}
			continue
		}
		if !ok {
			if !w.sleep(ctx, w.cfg.IdleWait) {
				return
			}
			continue
		}

		w.process(ctx, claimed)

		// Delay is re-read each cycle so an operator change takes
		// effect without restarting workers.
		if !w.sleep(ctx, w.ctrl.Delay()) {
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, claimed crawler.ClaimedURL) {
	resp, err := w.fetcher.Fetch(ctx, claimed.URL)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown interrupted the fetch. Leave the record in
			// crawling; a restarted run will report it as stale.
			return
		}
		w.markFailed(ctx, claimed, err)
		return
	}

	if resp.IsHTML() {
		w.discoverLinks(ctx, claimed, resp)
	}

	if err := w.frontier.MarkCrawled(ctx, claimed.ID, resp.StatusCode); err != nil {
		w.logger.Error("mark crawled failed", zap.Int64("id", claimed.ID), zap.Error(err))
	}
	w.emit(progress.Event{
		TS:         w.now(),
		Stage:      progress.StagePageCrawled,
		WorkerID:   w.id,
		URL:        claimed.URL,
		Host:       crawler.HostOf(claimed.URL),
		Depth:      claimed.Depth,
		HTTPStatus: resp.StatusCode,
		Bytes:      int64(len(resp.Body)),
		Dur:        resp.Duration,
	})
	w.ctrl.NoteProcessed()
}

func (w *Worker) markFailed(ctx context.Context, claimed crawler.ClaimedURL, fetchErr error) {
	w.logger.Warn("fetch failed", zap.String("url", claimed.URL), zap.Error(fetchErr))
	if err := w.frontier.MarkError(ctx, claimed.ID, fetchErr.Error()); err != nil {
		w.logger.Error("mark error failed", zap.Int64("id", claimed.ID), zap.Error(err))
	}
	w.emit(progress.Event{
		TS:       w.now(),
		Stage:    progress.StagePageFailed,
		WorkerID: w.id,
		URL:      claimed.URL,
		Host:     crawler.HostOf(claimed.URL),
		Depth:    claimed.Depth,
		Note:     crawler.TruncateError(fetchErr.Error()),
	})
	w.ctrl.NoteProcessed()
}

// discoverLinks extracts anchors from the fetched document and enqueues the
// in-scope ones one level deeper. Links resolve against the final URL so
// redirected pages discover relative links correctly.
func (w *Worker) discoverLinks(ctx context.Context, claimed crawler.ClaimedURL, resp crawler.FetchResponse) {
	base := resp.FinalURL
	if base == "" {
		base = claimed.URL
	}
	hrefs, err := crawler.ExtractLinks(resp.Body)
	if err != nil {
		w.logger.Warn("parse document failed", zap.String("url", claimed.URL), zap.Error(err))
		return
	}
	for _, href := range hrefs {
		normalized, err := crawler.Normalize(base, href)
		if err != nil {
			continue
		}
		if w.cfg.SameHostOnly && !crawler.SameHost(normalized, w.cfg.SeedHost) {
			continue
		}
		isNew, err := w.frontier.AddDiscovered(ctx, normalized, claimed.Depth+1, claimed.URL)
		if err != nil {
			w.logger.Error("enqueue link failed", zap.String("url", normalized), zap.Error(err))
			continue
		}
		if isNew {
			w.emit(progress.Event{
				TS:       w.now(),
				Stage:    progress.StageURLDiscovered,
				WorkerID: w.id,
				URL:      normalized,
				Host:     crawler.HostOf(normalized),
				Depth:    claimed.Depth + 1,
			})
		}
	}
}

// sleep waits for d or until ctx is canceled. It reports false on cancel.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	w.emitter.Emit(evt)
}

func (w *Worker) now() time.Time {
	if w.clock != nil {
		return w.clock.Now()
	}
	return time.Now().UTC()
}

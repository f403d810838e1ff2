// Package dispatcher supervises the crawl worker pool: scaling, pausing,
// politeness delay, the page budget, and coordinated shutdown.
package dispatcher

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/clmercier/urlcollector/internal/crawler"
	"github.com/clmercier/urlcollector/internal/worker"
)

// Runner is the part of a worker the dispatcher drives. *worker.Worker
// satisfies it; tests substitute fakes.
type Runner interface {
	ID() int
	Run(ctx context.Context)
}

// Factory builds a worker for a pool slot. The dispatcher passes itself as
// the worker's Controls.
type Factory func(id int, ctrl worker.Controls) Runner

// Config controls pool limits and defaults.
type Config struct {
	// MaxPages stops the whole pool once this many pages have been
	// processed. Zero disables the budget.
	MaxPages int64
	// DelaySeconds is the initial politeness delay between pages.
	DelaySeconds float64
	// Logger is used for lifecycle logging; nil disables it.
	Logger *zap.Logger
}

// handle tracks a single worker goroutine. signaled marks workers already
// told to stop individually so a scale-down never double-counts them.
type handle struct {
	id       int
	cancel   context.CancelFunc
	done     chan struct{}
	signaled bool
}

func (h *handle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Dispatcher owns the worker pool. All methods are safe for concurrent use;
// the HTTP control surface and the workers themselves call in at once.
type Dispatcher struct {
	factory  Factory
	maxPages int64
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	paused atomic.Bool
	delay  atomic.Uint64 // float64 seconds, bit-packed

	mu        sync.Mutex
	handles   map[int]*handle
	nextID    int
	processed int64

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Dispatcher with no running workers. ctx is the parent of
// every worker context; canceling it is equivalent to Stop.
func New(ctx context.Context, factory Factory, cfg Config) *Dispatcher {
	poolCtx, cancel := context.WithCancel(ctx)
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		factory:  factory,
		maxPages: cfg.MaxPages,
		logger:   logger,
		ctx:      poolCtx,
		cancel:   cancel,
		handles:  make(map[int]*handle),
	}
	d.setDelay(cfg.DelaySeconds)
	return d
}

// ScaleUp starts n workers and returns how many actually started. Dead
// handles are pruned first so worker IDs keep climbing instead of piling up.
func (d *Dispatcher) ScaleUp(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n < 1 || d.ctx.Err() != nil {
		return 0
	}
	d.pruneLocked()

	for i := 0; i < n; i++ {
		id := d.nextID
		d.nextID++

		workerCtx, cancel := context.WithCancel(d.ctx)
		h := &handle{id: id, cancel: cancel, done: make(chan struct{})}
		d.handles[id] = h

		w := d.factory(id, d)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer close(h.done)
			w.Run(workerCtx)
		}()
	}
	d.logger.Info("scaled up", zap.Int("added", n), zap.Int("pool_size", len(d.handles)))
	return n
}

// ScaleDown signals up to n workers to stop, newest first, and returns how
// many were signaled. Workers finish their current page before exiting.
func (d *Dispatcher) ScaleDown(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n < 1 {
		return 0
	}

	candidates := make([]*handle, 0, len(d.handles))
	for _, h := range d.handles {
		if h.alive() && !h.signaled {
			candidates = append(candidates, h)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].id > candidates[j].id })

	signaled := 0
	for _, h := range candidates {
		if signaled == n {
			break
		}
		h.cancel()
		h.signaled = true
		signaled++
	}
	if signaled > 0 {
		d.logger.Info("scaled down", zap.Int("removed", signaled))
	}
	return signaled
}

// Pause suspends claiming on all workers. In-flight pages complete.
func (d *Dispatcher) Pause() {
	d.paused.Store(true)
	d.logger.Info("pool paused")
}

// Resume lifts a pause.
func (d *Dispatcher) Resume() {
	d.paused.Store(false)
	d.logger.Info("pool resumed")
}

// Paused implements worker.Controls.
func (d *Dispatcher) Paused() bool {
	return d.paused.Load()
}

// Stop requests a pool-wide shutdown. It is idempotent and returns without
// waiting; use Wait to block until workers exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("pool stop requested")
		d.cancel()
	})
}

// StopRequested reports whether Stop has been called or the parent context
// canceled.
func (d *Dispatcher) StopRequested() bool {
	return d.ctx.Err() != nil
}

// Wait blocks until every worker goroutine has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// SetDelay updates the politeness delay and returns the applied value.
// Negative input clamps to zero. Workers pick it up on their next page.
func (d *Dispatcher) SetDelay(seconds float64) float64 {
	applied := d.setDelay(seconds)
	d.logger.Info("delay updated", zap.Float64("seconds", applied))
	return applied
}

func (d *Dispatcher) setDelay(seconds float64) float64 {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	d.delay.Store(math.Float64bits(seconds))
	return seconds
}

// DelaySeconds returns the current politeness delay in seconds.
func (d *Dispatcher) DelaySeconds() float64 {
	return math.Float64frombits(d.delay.Load())
}

// Delay implements worker.Controls.
func (d *Dispatcher) Delay() time.Duration {
	return time.Duration(d.DelaySeconds() * float64(time.Second))
}

// NoteProcessed implements worker.Controls. The count only advances when a
// page budget is configured, and the budget fires Stop exactly once.
func (d *Dispatcher) NoteProcessed() {
	if d.maxPages <= 0 {
		return
	}
	d.mu.Lock()
	d.processed++
	fire := d.processed >= d.maxPages
	d.mu.Unlock()

	if fire {
		d.Stop()
	}
}

// LimitReached implements worker.Controls.
func (d *Dispatcher) LimitReached() bool {
	if d.maxPages <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.processed >= d.maxPages
}

// Snapshot reports the pool state for the control API.
func (d *Dispatcher) Snapshot() crawler.PoolSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]int, 0, len(d.handles))
	alive := 0
	for _, h := range d.handles {
		if h.alive() {
			alive++
			ids = append(ids, h.id)
		}
	}
	sort.Ints(ids)

	return crawler.PoolSnapshot{
		Paused:            d.paused.Load(),
		StopRequested:     d.ctx.Err() != nil,
		DelaySeconds:      d.DelaySeconds(),
		ConfiguredWorkers: len(d.handles),
		AliveWorkers:      alive,
		WorkerIDs:         ids,
		ProcessedPages:    d.processed,
		MaxPages:          d.maxPages,
	}
}

// pruneLocked drops handles whose goroutines have exited. Callers hold mu.
func (d *Dispatcher) pruneLocked() {
	for id, h := range d.handles {
		if !h.alive() {
			delete(d.handles, id)
		}
	}
}

package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cragr/opsstatus-agent/internal/metrics"
)

// ErrSuperseded is returned by Refresh when a newer cycle started before the
// awaited one finished.
var ErrSuperseded = errors.New("refresh superseded by a newer cycle")

// Snapshotter produces one snapshot per call.
type Snapshotter interface {
	Snapshot(ctx context.Context) Snapshot
}

// cycle is one in-flight refresh.
type cycle struct {
	id     string
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	snap   Snapshot
	stale  bool
}

// Refresher keeps the latest snapshot. Starting a cycle cancels the one in
// flight, and a cycle that is no longer current never replaces the stored
// snapshot.
type Refresher struct {
	source   Snapshotter
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	base    context.Context
	gen     uint64
	current *cycle
	latest  *Snapshot
}

// NewRefresher creates a Refresher. An interval of zero disables the
// periodic loop in Run; cycles then only start on demand.
func NewRefresher(source Snapshotter, interval time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		source:   source,
		interval: interval,
		logger:   logger,
		base:     context.Background(),
	}
}

// Run starts a cycle immediately and then on every tick until ctx is done.
// A tick that finds a cycle still in flight lets it finish instead of
// replacing it. Cycles started through Trigger or Refresh are bound to ctx
// as well.
func (r *Refresher) Run(ctx context.Context) {
	r.mu.Lock()
	r.base = ctx
	r.mu.Unlock()

	r.Trigger()
	if r.interval <= 0 {
		<-ctx.Done()
		r.stop()
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.stop()
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// Trigger starts a new cycle, cancelling the previous one, and returns its id.
func (r *Refresher) Trigger() string {
	return r.start().id
}

// Refresh starts a new cycle and waits for it. It returns ErrSuperseded if
// another cycle replaced it before it finished.
func (r *Refresher) Refresh(ctx context.Context) (Snapshot, error) {
	c := r.start()
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-c.done:
	}
	if c.stale {
		return Snapshot{}, ErrSuperseded
	}
	return c.snap, nil
}

// Latest returns the most recent stored snapshot.
func (r *Refresher) Latest() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return Snapshot{}, false
	}
	return *r.latest, true
}

// tick starts a periodic cycle unless one is still running.
func (r *Refresher) tick() {
	r.mu.Lock()
	if r.current != nil {
		id := r.current.id
		r.mu.Unlock()
		r.logger.Debug("refresh cycle still running, skipping tick", "cycle_id", id)
		return
	}
	ctx, c := r.beginLocked()
	r.mu.Unlock()

	go r.run(ctx, c)
}

func (r *Refresher) start() *cycle {
	r.mu.Lock()
	if r.current != nil {
		r.current.cancel()
	}
	ctx, c := r.beginLocked()
	r.mu.Unlock()

	go r.run(ctx, c)
	return c
}

// beginLocked registers a new current cycle. r.mu must be held.
func (r *Refresher) beginLocked() (context.Context, *cycle) {
	r.gen++
	ctx, cancel := context.WithCancel(r.base)
	c := &cycle{
		id:     uuid.NewString(),
		gen:    r.gen,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.current = c
	return ctx, c
}

func (r *Refresher) run(ctx context.Context, c *cycle) {
	defer close(c.done)
	defer c.cancel()

	started := time.Now()
	snap := r.source.Snapshot(ctx)
	snap.CycleID = c.id

	r.mu.Lock()
	defer r.mu.Unlock()
	if c.gen != r.gen || ctx.Err() != nil {
		c.stale = true
		if r.current == c {
			r.current = nil
		}
		metrics.ObserveRefresh(true)
		r.logger.Debug("discarding stale refresh cycle", "cycle_id", c.id)
		return
	}
	c.snap = snap
	r.latest = &snap
	r.current = nil
	metrics.ObserveRefresh(false)
	r.logger.Info("refresh cycle complete",
		"cycle_id", c.id,
		"duration", time.Since(started),
		"feed_errors", len(snap.Errors),
	)
}

func (r *Refresher) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.cancel()
	}
}

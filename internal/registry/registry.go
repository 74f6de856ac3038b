// Package registry implements SourceRegistry: the refcounted map from
// SourceKey to the single CaptureWorker that serves it, with a two-phase
// drop so a quick remove-then-add of the same key reuses the worker instead
// of tearing it down. All register/release/reconcile state transitions are
// serialized behind a single registry-wide mutex, the same coarse-lock
// discipline as api/pkg/desktop/shared_video_source.go's
// SharedVideoSourceRegistry.GetOrCreate/Remove: that is what lets Reconcile
// decide "still reclaimable, still the same record" and act on it without
// a second party reviving or replacing the record in between. The backing
// map is still a puzpuzpuz/xsync.MapOf, as pkg/runner/controller.go uses
// for its model-instance table, so Lookup/Keys/Size stay lock-free reads;
// only the mutating paths take the mutex.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/evision-ai/evision-lib/internal/capture"
	"github.com/evision-ai/evision-lib/internal/clock"
	"github.com/evision-ai/evision-lib/internal/framebuffer"
	"github.com/evision-ai/evision-lib/internal/model"
)

// ErrSourceGone is returned by Lookup once a record has been reclaimed by the
// reconciliation sweep (or was never registered).
var ErrSourceGone = errors.New("registry: source no longer registered")

// Record is one source's live state: its worker, its buffer, and the
// refcount/reclaimable bookkeeping the registry alone is allowed to mutate.
type Record struct {
	Key    model.SourceKey
	Worker *capture.Worker
	Buffer framebuffer.Store

	mu          sync.Mutex
	refcount    int
	reclaimable bool
}

// Refcount returns the record's current reference count.
func (r *Record) Refcount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refcount
}

// Reclaimable reports whether the reconciliation sweep is free to remove
// this record.
func (r *Record) Reclaimable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reclaimable
}

// BufferFactory builds the Store a new record's worker pushes into; the
// default is framebuffer.NewRing, overridden in tests or for the injected
// Redis backend.
type BufferFactory func(cfg model.SourceConfig) framebuffer.Store

// Registry maps SourceKey to Record. mu serializes every state transition
// (create, revive, mark-reclaimable, sweep) so Register can never revive a
// record that Reconcile has just decided to drop, and Reconcile can never
// drop a record that Register just revived or replaced: the two code paths
// never interleave their check-then-act steps.
type Registry struct {
	clk           clock.Clock
	bufferFactory BufferFactory

	mu      sync.Mutex
	records *xsync.MapOf[model.SourceKey, *Record]
}

// New constructs an empty Registry. bufferFactory may be nil to use the
// in-process Ring with the source's configured frame queue size as capacity.
func New(clk clock.Clock, bufferFactory BufferFactory) *Registry {
	if bufferFactory == nil {
		bufferFactory = func(cfg model.SourceConfig) framebuffer.Store {
			return framebuffer.NewRing(cfg.Normalized().FrameQueueSize)
		}
	}
	return &Registry{
		clk:           clk,
		bufferFactory: bufferFactory,
		records:       xsync.NewMapOf[model.SourceKey, *Record](),
	}
}

// Register implements register(cfg): if the key is absent, build and start a
// CaptureWorker+buffer pair for it; if a record for the key already exists
// (live or merely reclaimable, not yet swept), revive it in place and
// increment its refcount instead of starting a second worker. This is what
// lets a burst remove(key)/register(cfg) on the same key reuse the worker —
// USB sources in particular are often slow or flaky to reopen, so avoiding a
// teardown/reopen for a record that hasn't been reconciled away yet matters.
func (r *Registry) Register(ctx context.Context, cfg model.SourceConfig) (*Record, error) {
	key, err := cfg.Key()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrConfig, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records.Load(key); ok {
		rec.revive()
		return rec, nil
	}

	buf := r.bufferFactory(cfg)
	worker, err := capture.New(key, cfg, buf, r.clk)
	if err != nil {
		return nil, err
	}
	if err := worker.Start(ctx); err != nil {
		return nil, err
	}

	rec := &Record{Key: key, Worker: worker, Buffer: buf, refcount: 1}
	r.records.Store(key, rec)
	log.Info().Str("source", key.String()).Msg("source registered")
	return rec, nil
}

// revive clears reclaimable and bumps refcount on a record the registry has
// decided (under r.mu) to hand back out instead of replacing. Callers must
// hold r.mu.
func (rec *Record) revive() {
	rec.mu.Lock()
	rec.reclaimable = false
	rec.refcount++
	rec.mu.Unlock()
}

// Release implements release(key): decrement refcount; at zero, mark the
// record reclaimable for the next Reconcile pass rather than tearing it
// down immediately.
func (r *Registry) Release(key model.SourceKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records.Load(key)
	if !ok {
		return
	}
	rec.mu.Lock()
	if rec.refcount > 0 {
		rec.refcount--
	}
	if rec.refcount <= 0 {
		rec.reclaimable = true
	}
	rec.mu.Unlock()
}

// Lookup implements lookup(key): a snapshot read, returning ErrSourceGone if
// the key has never been registered or has already been swept.
func (r *Registry) Lookup(key model.SourceKey) (*Record, error) {
	rec, ok := r.records.Load(key)
	if !ok {
		return nil, ErrSourceGone
	}
	return rec, nil
}

// Keys implements keys(): a snapshot of every currently tracked SourceKey.
func (r *Registry) Keys() []model.SourceKey {
	keys := make([]model.SourceKey, 0, r.records.Size())
	r.records.Range(func(k model.SourceKey, _ *Record) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Reconcile sweeps every still-reclaimable record, removing it from the map
// and stopping its worker. It is the only code path allowed to remove a
// record, matching the two-phase-drop invariant. The decision to delete a
// key and the removal itself happen in the same r.mu critical section, so a
// Register that revives the record (or replaces it outright after a prior
// sweep already dropped it) can never race with this sweep dropping it out
// from under a live caller: Register and Reconcile simply never run at the
// same time. Worker.Stop is deliberately called after r.mu is released, so
// a slow teardown doesn't block unrelated Register/Release calls.
func (r *Registry) Reconcile(ctx context.Context) {
	toStop := r.sweepReclaimable()
	for _, rec := range toStop {
		rec.Worker.Stop(ctx)
		log.Info().Str("source", rec.Key.String()).Msg("source reclaimed")
	}
}

func (r *Registry) sweepReclaimable() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var toStop []*Record
	r.records.Range(func(key model.SourceKey, rec *Record) bool {
		rec.mu.Lock()
		reclaim := rec.reclaimable && rec.refcount <= 0
		rec.mu.Unlock()
		if !reclaim {
			return true
		}
		r.records.Delete(key)
		toStop = append(toStop, rec)
		return true
	})
	return toStop
}

// RemoveAll implements remove_all(): stop every worker and clear the map,
// regardless of refcount.
func (r *Registry) RemoveAll(ctx context.Context) {
	r.mu.Lock()
	var all []*Record
	r.records.Range(func(key model.SourceKey, rec *Record) bool {
		r.records.Delete(key)
		all = append(all, rec)
		return true
	})
	r.mu.Unlock()

	for _, rec := range all {
		rec.Worker.Stop(ctx)
	}
}

// Size returns the number of tracked records (reclaimable or not), used for
// the n_sources metric.
func (r *Registry) Size() int {
	return r.records.Size()
}

package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/evision-ai/evision-lib/internal/appworker"
	"github.com/evision-ai/evision-lib/internal/capture"
	"github.com/evision-ai/evision-lib/internal/clock"
	"github.com/evision-ai/evision-lib/internal/consumer"
	"github.com/evision-ai/evision-lib/internal/model"
	"github.com/evision-ai/evision-lib/internal/registry"
)

// reconcileInterval is the "runs every ~10s" cadence the design notes name
// for dropping dead AppWorkers and releasing orphaned sources.
const reconcileInterval = 10 * time.Second

// Handle identifies one app registered with the coordinator.
type Handle string

type dispatchEntry struct {
	sourceKey model.SourceKey
	worker    *appworker.Worker
	name      string
}

// Coordinator is the engine's single public façade: add/remove apps, run
// the background reconciliation sweep, expose n_sources/n_apps.
type Coordinator struct {
	clk      clock.Clock
	registry *registry.Registry
	metrics  *metrics

	mu    sync.Mutex
	index map[Handle]*dispatchEntry

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Coordinator. reg is a Prometheus registerer (may be nil
// to skip metric registration, e.g. in unit tests that construct several
// coordinators in the same process). bufferFactory may be nil to default
// every source to an in-process framebuffer.Ring; pass
// framebuffer.NewRedisBufferFactory's result to back sources with the
// external store instead.
func New(clk clock.Clock, reg prometheus.Registerer, bufferFactory registry.BufferFactory) *Coordinator {
	return &Coordinator{
		clk:      clk,
		registry: registry.New(clk, bufferFactory),
		metrics:  newMetrics(reg),
		index:    make(map[Handle]*dispatchEntry),
	}
}

// Add implements add(app_spec): register the source, build a ConsumerView
// over its buffer, start an AppWorker, and index the resulting handle.
func (c *Coordinator) Add(ctx context.Context, spec model.AppSpec) (Handle, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", capture.ErrConfig, err)
	}

	rec, err := c.registry.Register(ctx, spec.Source)
	if err != nil {
		return "", err
	}

	params := consumer.Params{
		SourceID:       rec.Key.String(),
		TargetShape:    spec.TargetShape,
		Zone:           spec.Zone,
		ProcessRateFPS: spec.EffectiveProcessRate(),
		BatchSize:      spec.EffectiveBatchSize(),
		Dedupe:         spec.DedupeEnabled(),
	}
	view := consumer.New(params, rec.Buffer, c.clk)

	worker := appworker.New(
		spec.Name,
		view,
		appworker.Callback(spec.Callback),
		spec.EffectiveBatchSize(),
		spec.EffectiveProcessRate(),
		spec.FailOnError,
		c.clk,
	)

	if err := worker.Start(ctx, rec.Worker.State()); err != nil {
		c.registry.Release(rec.Key)
		return "", err
	}

	handle := Handle(uuid.NewString())

	c.mu.Lock()
	c.index[handle] = &dispatchEntry{sourceKey: rec.Key, worker: worker, name: spec.Name}
	c.mu.Unlock()

	c.updateMetrics()
	log.Info().Str("app", spec.Name).Str("handle", string(handle)).Msg("app added")
	return handle, nil
}

// Remove implements remove(handle): stop the AppWorker, release the source
// reference, drop the index entry.
func (c *Coordinator) Remove(handle Handle) error {
	c.mu.Lock()
	entry, ok := c.index[handle]
	if ok {
		delete(c.index, handle)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}

	entry.worker.Stop()
	c.registry.Release(entry.sourceKey)
	c.updateMetrics()
	return nil
}

// Start begins the background reconciliation loop.
func (c *Coordinator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.reconcileLoop(runCtx)
}

func (c *Coordinator) reconcileLoop(ctx context.Context) {
	defer close(c.done)

	ticker := c.clk.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.reconcile(ctx)
		}
	}
}

// reconcile implements the three-step sweep: drop dead AppWorkers, compute
// orphaned sources, release them down to the point the registry's own sweep
// can terminate their workers.
func (c *Coordinator) reconcile(ctx context.Context) {
	c.mu.Lock()
	dead := make([]Handle, 0)
	live := make(map[model.SourceKey]struct{})
	for h, entry := range c.index {
		if entry.worker.State() != appworker.StateRunning {
			dead = append(dead, h)
			continue
		}
		live[entry.sourceKey] = struct{}{}
	}
	for _, h := range dead {
		entry := c.index[h]
		delete(c.index, h)
		entry.worker.Stop()
		c.registry.Release(entry.sourceKey)
	}
	c.mu.Unlock()

	for _, key := range c.registry.Keys() {
		if _, ok := live[key]; ok {
			continue
		}
		rec, err := c.registry.Lookup(key)
		if err != nil {
			continue
		}
		for rec.Refcount() > 0 {
			c.registry.Release(key)
		}
	}

	c.registry.Reconcile(ctx)
	c.updateMetrics()
}

// Stop implements stop(): stop every AppWorker, then remove_all sources.
func (c *Coordinator) Stop(ctx context.Context) {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	c.mu.Lock()
	entries := make([]*dispatchEntry, 0, len(c.index))
	for h, entry := range c.index {
		entries = append(entries, entry)
		delete(c.index, h)
	}
	c.mu.Unlock()

	for _, entry := range entries {
		entry.worker.Stop()
	}

	c.registry.RemoveAll(ctx)
	c.updateMetrics()
}

func (c *Coordinator) updateMetrics() {
	c.mu.Lock()
	apps := len(c.index)
	c.mu.Unlock()

	c.metrics.apps.Set(float64(apps))
	c.metrics.sources.Set(float64(c.registry.Size()))
}

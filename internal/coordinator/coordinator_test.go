package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evision-ai/evision-lib/internal/clock"
	"github.com/evision-ai/evision-lib/internal/grabber"
	"github.com/evision-ai/evision-lib/internal/model"
	"github.com/evision-ai/evision-lib/internal/registry"
)

// fakeGrabber is an in-memory FrameGrabber standing in for go-gst so these
// tests exercise the coordinator's wiring without an actual camera or file.
type fakeGrabber struct {
	mu       sync.Mutex
	released bool
}

func (g *fakeGrabber) Open(ctx context.Context, key model.SourceKey) error { return nil }

func (g *fakeGrabber) Read(ctx context.Context) (model.RawFrame, error) {
	return model.RawFrame{Width: 8, Height: 8, PixelFormat: "RGB", Data: make([]byte, 8*8*3)}, nil
}

func (g *fakeGrabber) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = true
	return nil
}

func registerFakeHandler(t *testing.T, name model.HandlerName) {
	t.Helper()
	grabber.Register(name, func(cfg model.SourceConfig) (grabber.FrameGrabber, error) {
		return &fakeGrabber{}, nil
	})
}

func newSpec(t *testing.T, name string, handler model.HandlerName, uri string, cb func(batch []model.ImageFrame) error) model.AppSpec {
	t.Helper()
	return model.AppSpec{
		Name: name,
		Source: model.SourceConfig{
			URI:       uri,
			Type:      model.SourceIPCamera,
			Handler:   handler,
			Endless:   true,
			NativeFPS: 1000,
		},
		ProcessRateFPS: 1000,
		BatchSize:      1,
		Callback:       cb,
	}
}

func TestCoordinator_AddStartsWorkerAndDispatchesCallback(t *testing.T) {
	const handler = model.HandlerName("COORD_TEST_ADD")
	registerFakeHandler(t, handler)

	clk := clock.NewFake(time.Unix(0, 0))
	c := New(clk, nil, nil)

	var calls sync.WaitGroup
	calls.Add(1)
	var once sync.Once
	spec := newSpec(t, "app-a", handler, "cam-a", func(batch []model.ImageFrame) error {
		once.Do(calls.Done)
		return nil
	})

	ctx := context.Background()
	handle, err := c.Add(ctx, spec)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			clk.Advance(10 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}()

	calls.Wait()
	<-done

	assert.NoError(t, c.Remove(handle))
}

func TestCoordinator_TwoAppsOnSameSourceShareOneWorker(t *testing.T) {
	const handler = model.HandlerName("COORD_TEST_SHARE")
	registerFakeHandler(t, handler)

	clk := clock.NewFake(time.Unix(0, 0))
	c := New(clk, nil, nil)
	ctx := context.Background()

	specA := newSpec(t, "app-a", handler, "cam-shared", func(batch []model.ImageFrame) error { return nil })
	specB := newSpec(t, "app-b", handler, "cam-shared", func(batch []model.ImageFrame) error { return nil })

	handleA, err := c.Add(ctx, specA)
	require.NoError(t, err)
	handleB, err := c.Add(ctx, specB)
	require.NoError(t, err)

	assert.Equal(t, 1, c.registry.Size(), "both apps must dedupe onto a single tracked source")

	require.NoError(t, c.Remove(handleA))
	assert.Equal(t, 1, c.registry.Size(), "source must stay alive while app-b still references it")

	require.NoError(t, c.Remove(handleB))
	c.reconcile(ctx)
	assert.Equal(t, 0, c.registry.Size(), "source must be reclaimed once every app has released it")
}

func TestCoordinator_ReconcileDropsDeadAppWorkerAndReleasesItsSource(t *testing.T) {
	const handler = model.HandlerName("COORD_TEST_RECONCILE")
	registerFakeHandler(t, handler)

	clk := clock.NewFake(time.Unix(0, 0))
	c := New(clk, nil, nil)
	ctx := context.Background()

	cfg := model.SourceConfig{
		URI:       "cam-reconcile",
		Type:      model.SourceIPCamera,
		Handler:   handler,
		Endless:   true,
		NativeFPS: 1000,
	}
	spec := model.AppSpec{
		Name:           "app-reconcile",
		Source:         cfg,
		ProcessRateFPS: 1000,
		BatchSize:      1,
		Callback:       func(batch []model.ImageFrame) error { return nil },
	}

	handle, err := c.Add(ctx, spec)
	require.NoError(t, err)

	key, err := cfg.Key()
	require.NoError(t, err)
	assert.Equal(t, 1, c.registry.Size())

	// Simulate the app's callback loop dying on its own (e.g. fail_on_error)
	// without ever going through Coordinator.Remove.
	c.mu.Lock()
	entry := c.index[handle]
	c.mu.Unlock()
	entry.worker.Stop()

	c.reconcile(ctx)

	c.mu.Lock()
	_, stillIndexed := c.index[handle]
	c.mu.Unlock()
	assert.False(t, stillIndexed, "reconcile must drop an app whose worker is no longer RUNNING")

	_, lookupErr := c.registry.Lookup(key)
	assert.ErrorIs(t, lookupErr, registry.ErrSourceGone, "reconcile must release the orphaned source's last reference")
}

func TestCoordinator_StopTearsDownEverything(t *testing.T) {
	const handler = model.HandlerName("COORD_TEST_STOP")
	registerFakeHandler(t, handler)

	clk := clock.NewFake(time.Unix(0, 0))
	c := New(clk, nil, nil)
	ctx := context.Background()

	spec := newSpec(t, "app-stop", handler, "cam-stop", func(batch []model.ImageFrame) error { return nil })
	_, err := c.Add(ctx, spec)
	require.NoError(t, err)

	c.Stop(ctx)

	assert.Equal(t, 0, c.registry.Size())
	c.mu.Lock()
	assert.Empty(t, c.index)
	c.mu.Unlock()
}

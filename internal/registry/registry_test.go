package registry

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evision-ai/evision-lib/internal/clock"
	"github.com/evision-ai/evision-lib/internal/grabber"
	"github.com/evision-ai/evision-lib/internal/model"
)

type foreverGrabber struct {
	mu     sync.Mutex
	opened bool
}

func (g *foreverGrabber) Open(ctx context.Context, key model.SourceKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opened = true
	return nil
}

func (g *foreverGrabber) Read(ctx context.Context) (model.RawFrame, error) {
	return model.RawFrame{}, io.EOF
}

func (g *foreverGrabber) Release() error { return nil }

func registerForever(t *testing.T, name model.HandlerName) {
	t.Helper()
	grabber.Register(name, func(cfg model.SourceConfig) (grabber.FrameGrabber, error) {
		return &foreverGrabber{}, nil
	})
}

func TestRegistry_RegisterDedupesSameKey(t *testing.T) {
	const handler = model.HandlerName("REG_TEST_1")
	registerForever(t, handler)

	clk := clock.NewFake(time.Unix(0, 0))
	r := New(clk, nil)
	ctx := context.Background()

	cfg := model.SourceConfig{URI: "rtsp://dup", Type: model.SourceIPCamera, Handler: handler, Endless: true, NativeFPS: 1000}

	rec1, err := r.Register(ctx, cfg)
	require.NoError(t, err)
	rec2, err := r.Register(ctx, cfg)
	require.NoError(t, err)

	assert.Same(t, rec1, rec2, "registering the same key twice must return the same record")
	assert.Equal(t, 2, rec1.Refcount())
}

func TestRegistry_ReleaseMarksReclaimableAtZero(t *testing.T) {
	const handler = model.HandlerName("REG_TEST_2")
	registerForever(t, handler)

	clk := clock.NewFake(time.Unix(0, 0))
	r := New(clk, nil)
	ctx := context.Background()

	cfg := model.SourceConfig{URI: "rtsp://release", Type: model.SourceIPCamera, Handler: handler, Endless: true, NativeFPS: 1000}
	rec, err := r.Register(ctx, cfg)
	require.NoError(t, err)

	r.Release(rec.Key)
	assert.True(t, rec.Reclaimable())
	assert.Equal(t, 0, rec.Refcount())
}

func TestRegistry_ReconcileRemovesOnlyReclaimable(t *testing.T) {
	const handler = model.HandlerName("REG_TEST_3")
	registerForever(t, handler)

	clk := clock.NewFake(time.Unix(0, 0))
	r := New(clk, nil)
	ctx := context.Background()

	keptCfg := model.SourceConfig{URI: "rtsp://kept", Type: model.SourceIPCamera, Handler: handler, Endless: true, NativeFPS: 1000}
	droppedCfg := model.SourceConfig{URI: "rtsp://dropped", Type: model.SourceIPCamera, Handler: handler, Endless: true, NativeFPS: 1000}

	kept, err := r.Register(ctx, keptCfg)
	require.NoError(t, err)
	dropped, err := r.Register(ctx, droppedCfg)
	require.NoError(t, err)

	r.Release(dropped.Key)
	r.Reconcile(ctx)

	_, err = r.Lookup(dropped.Key)
	assert.ErrorIs(t, err, ErrSourceGone)

	_, err = r.Lookup(kept.Key)
	assert.NoError(t, err)
}

func TestRegistry_RegisterRevivesReclaimableRecordInsteadOfReplacing(t *testing.T) {
	const handler = model.HandlerName("REG_TEST_REVIVE")
	registerForever(t, handler)

	clk := clock.NewFake(time.Unix(0, 0))
	r := New(clk, nil)
	ctx := context.Background()

	cfg := model.SourceConfig{URI: 0, Type: model.SourceUSBCamera, Handler: handler, Endless: true, NativeFPS: 1000}

	rec, err := r.Register(ctx, cfg)
	require.NoError(t, err)

	r.Release(rec.Key)
	require.True(t, rec.Reclaimable())
	require.Equal(t, 0, rec.Refcount())

	revived, err := r.Register(ctx, cfg)
	require.NoError(t, err)

	assert.Same(t, rec, revived, "a burst register on a reclaimable-but-not-yet-swept key must reuse the worker")
	assert.False(t, revived.Reclaimable())
	assert.Equal(t, 1, revived.Refcount())

	r.Reconcile(ctx)
	_, err = r.Lookup(rec.Key)
	assert.NoError(t, err, "the revived record must survive a reconcile pass run after the revival")
}

type countingGrabber struct {
	counts *grabberCounts
}

type grabberCounts struct {
	mu       sync.Mutex
	opens    int
	releases int
}

func (g *countingGrabber) Open(ctx context.Context, key model.SourceKey) error {
	g.counts.mu.Lock()
	g.counts.opens++
	g.counts.mu.Unlock()
	return nil
}

func (g *countingGrabber) Read(ctx context.Context) (model.RawFrame, error) {
	return model.RawFrame{Width: 2, Height: 2, PixelFormat: "RGB", Data: make([]byte, 12)}, nil
}

func (g *countingGrabber) Release() error {
	g.counts.mu.Lock()
	g.counts.releases++
	g.counts.mu.Unlock()
	return nil
}

// TestRegistry_ConcurrentRegisterReleaseNoWorkerLeak drives 100 concurrent
// register(cfg)/release(key) pairs against the same key and checks that the
// registry converges to a clean, leak-free state: every worker that was ever
// opened by the run is also released, and a final Reconcile leaves nothing
// behind.
func TestRegistry_ConcurrentRegisterReleaseNoWorkerLeak(t *testing.T) {
	const handler = model.HandlerName("REG_TEST_CONCURRENT")
	counts := &grabberCounts{}
	grabber.Register(handler, func(cfg model.SourceConfig) (grabber.FrameGrabber, error) {
		return &countingGrabber{counts: counts}, nil
	})

	clk := clock.NewFake(time.Unix(0, 0))
	r := New(clk, nil)
	ctx := context.Background()

	cfg := model.SourceConfig{URI: "rtsp://contended", Type: model.SourceIPCamera, Handler: handler, Endless: true, NativeFPS: 1000}

	const pairs = 100
	var wg sync.WaitGroup
	wg.Add(pairs)
	for i := 0; i < pairs; i++ {
		go func() {
			defer wg.Done()
			rec, err := r.Register(ctx, cfg)
			if err != nil {
				return
			}
			r.Release(rec.Key)
			r.Reconcile(ctx)
		}()
	}
	wg.Wait()

	// Drain whatever is left reclaimable after the race.
	r.Reconcile(ctx)

	counts.mu.Lock()
	opens, releases := counts.opens, counts.releases
	counts.mu.Unlock()

	assert.Equal(t, opens, releases, "every worker opened across the run must also have been released")
	assert.Equal(t, 0, r.Size(), "no record should survive 100 balanced register/release pairs plus a final reconcile")
}

func TestRegistry_RemoveAllClearsEverything(t *testing.T) {
	const handler = model.HandlerName("REG_TEST_4")
	registerForever(t, handler)

	clk := clock.NewFake(time.Unix(0, 0))
	r := New(clk, nil)
	ctx := context.Background()

	cfg := model.SourceConfig{URI: "rtsp://all", Type: model.SourceIPCamera, Handler: handler, Endless: true, NativeFPS: 1000}
	_, err := r.Register(ctx, cfg)
	require.NoError(t, err)

	r.RemoveAll(ctx)
	assert.Equal(t, 0, r.Size())
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/evision-ai/evision-lib/internal/clock"
	"github.com/evision-ai/evision-lib/internal/framebuffer"
	"github.com/evision-ai/evision-lib/internal/grabber"
	"github.com/evision-ai/evision-lib/internal/model"
)

// State is a CaptureWorker's position in its lifecycle state machine.
type State int32

const (
	StateNew State = iota
	StateOpening
	StateRunning
	StateDegraded
	StateReloading
	StateFailed
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateOpening:
		return "OPENING"
	case StateRunning:
		return "RUNNING"
	case StateDegraded:
		return "DEGRADED"
	case StateReloading:
		return "RELOADING"
	case StateFailed:
		return "FAILED"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// maxReloadAttempts bounds reload_source's retry budget before a worker is
// declared permanently FAILED.
const maxReloadAttempts = 5

// Worker owns exactly one source: it opens a grabber, pulls frames at
// native_fps, and pushes them into a framebuffer.Store, reloading or failing
// over per the design notes' state machine. Grounded on
// api/pkg/desktop/video_forwarder.go's mutex-guarded monitor/restart loop,
// generalized from an external process to an in-process grabber.
type Worker struct {
	key model.SourceKey
	cfg model.SourceConfig
	clk clock.Clock

	grab   grabber.FrameGrabber
	buffer framebuffer.Store

	mu           sync.Mutex
	state        State
	failures     int
	nativeShape  model.Shape
	nativeFPS    float64
	lastPushedAt int64 // monotonic-ns, 0 before first push

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	log zerolog.Logger
}

// New constructs a Worker bound to a freshly-built grabber and buffer. It
// does not open the source; call Start to begin the OPENING transition.
func New(key model.SourceKey, cfg model.SourceConfig, buf framebuffer.Store, clk clock.Clock) (*Worker, error) {
	g, err := grabber.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return &Worker{
		key:       key,
		cfg:       cfg.Normalized(),
		clk:       clk,
		grab:      g,
		buffer:    buf,
		state:     StateNew,
		nativeFPS: cfg.Normalized().NativeFPS,
		log:       log.With().Str("component", "capture_worker").Str("source", key.String()).Logger(),
		done:      make(chan struct{}),
	}, nil
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// NativeShape returns the dimensions of the most recent captured frame that
// reported them; it is not set by Open, and stays zero until such a frame
// has been read.
func (w *Worker) NativeShape() model.Shape {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nativeShape
}

// LastPushedAt returns the monotonic-ns timestamp of the most recent push,
// or 0 if nothing has been pushed yet.
func (w *Worker) LastPushedAt() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastPushedAt
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Start transitions NEW -> OPENING -> RUNNING|FAILED and, on success, spawns
// the capture loop goroutine. It returns ErrSourceOpen if the first Open
// attempt fails.
func (w *Worker) Start(ctx context.Context) error {
	w.setState(StateOpening)

	if err := w.grab.Open(ctx, w.key); err != nil {
		w.setState(StateFailed)
		w.log.Error().Err(err).Msg("source failed to open")
		return fmt.Errorf("%w: %v", ErrSourceOpen, err)
	}

	w.setState(StateRunning)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(runCtx)

	w.log.Info().Msg("capture worker running")
	return nil
}

func (w *Worker) frameInterval() int64 {
	fps := w.cfg.NativeFPS
	if fps <= 0 {
		fps = 24
	}
	return int64(1e9 / fps)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := w.grab.Read(ctx)
		switch {
		case err == nil:
			w.onFrame(ctx, frame)
		case errors.Is(err, io.EOF):
			if w.onEmptyFrame(ctx) {
				return
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return
		default:
			w.log.Warn().Err(fmt.Errorf("%w: %v", ErrTransientRead, err)).Msg("transient read failure")
			if w.onEmptyFrame(ctx) {
				return
			}
		}

		w.sleepInterval(ctx)
	}
}

func (w *Worker) onFrame(ctx context.Context, raw model.RawFrame) {
	w.mu.Lock()
	w.failures = 0
	if raw.Width > 0 && raw.Height > 0 {
		w.nativeShape = model.Shape{Width: raw.Width, Height: raw.Height}
	}
	if w.state == StateDegraded {
		w.state = StateRunning
	}
	w.mu.Unlock()

	entry := model.FrameEntry{
		FrameID:    fmt.Sprintf("%s-%d", w.key.String(), w.clk.Monotonic()),
		Payload:    raw,
		CapturedAt: w.clk.Monotonic(),
	}
	if err := w.buffer.Push(ctx, entry); err != nil {
		w.log.Warn().Err(err).Msg("frame buffer push failed")
		return
	}

	w.mu.Lock()
	w.lastPushedAt = entry.CapturedAt
	w.mu.Unlock()
}

// onEmptyFrame handles a frame-less read: it increments the failure
// counter and, once it crosses MAX_CONSECUTIVE_FAILURES, triggers a reload.
// It returns true when the worker should exit its run loop (terminal file
// EOF or a reload that failed permanently).
func (w *Worker) onEmptyFrame(ctx context.Context) bool {
	w.mu.Lock()
	w.failures++
	failures := w.failures
	if w.state == StateRunning {
		w.state = StateDegraded
	}
	w.mu.Unlock()

	if !w.cfg.Endless && isTerminalEOFSource(w.key.Type()) {
		w.log.Info().Msg("end of stream on non-endless source")
		w.terminal(ctx)
		return true
	}

	if failures < maxConsecutiveFailures {
		return false
	}

	return !w.reload(ctx)
}

const maxConsecutiveFailures = 100

func isTerminalEOFSource(t model.SourceType) bool {
	switch t {
	case model.SourceVideoFile, model.SourceImageFile, model.SourceImageLink:
		return true
	default:
		return false
	}
}

// reload implements reload_source: for USB sources release before reopening
// since the device cannot be opened twice concurrently; for everything else
// open the replacement before releasing the old handle. Returns true on
// success (worker returned to RUNNING).
func (w *Worker) reload(ctx context.Context) bool {
	w.setState(StateReloading)
	w.log.Warn().Msg("reloading source after repeated failures")

	usb := w.key.Type() == model.SourceUSBCamera

	err := retry.Do(
		func() error {
			if usb {
				_ = w.grab.Release()
				g, err := grabber.New(w.cfg)
				if err != nil {
					return err
				}
				w.grab = g
				return w.grab.Open(ctx, w.key)
			}

			g, err := grabber.New(w.cfg)
			if err != nil {
				return err
			}
			if err := g.Open(ctx, w.key); err != nil {
				return err
			}
			old := w.grab
			w.grab = g
			_ = old.Release()
			return nil
		},
		retry.Attempts(maxReloadAttempts),
		retry.Context(ctx),
	)

	if err != nil {
		w.mu.Lock()
		w.state = StateFailed
		w.mu.Unlock()
		w.log.Error().Err(fmt.Errorf("%w: %v", ErrPermanentRead, err)).Msg("source reload exhausted retries")
		return false
	}

	w.mu.Lock()
	w.state = StateRunning
	w.failures = 0
	w.mu.Unlock()
	w.log.Info().Msg("source reload succeeded")
	return true
}

func (w *Worker) sleepInterval(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.clk.After(time.Duration(w.frameInterval())):
	}
}

// Stop transitions RUNNING/DEGRADED -> STOPPING -> STOPPED: it cancels the
// run loop, joins it, then releases the grabber and destroys the buffer.
// Safe to call from any goroutine other than the run loop itself.
func (w *Worker) Stop(ctx context.Context) {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return
	}
	w.state = StateStopping
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-w.done
	}

	w.terminal(ctx)
}

// terminal performs the one-time release/destroy/STOPPED transition. It
// must never be called from inside the run loop's own goroutine while
// expecting to join w.done first — run() calls this directly just before
// returning on a terminal condition (e.g. non-endless EOF), and Stop calls
// it after already joining the loop from outside.
func (w *Worker) terminal(ctx context.Context) {
	w.stopOnce.Do(func() {
		w.setState(StateStopping)
		_ = w.grab.Release()
		_ = w.buffer.Destroy(ctx)
		w.setState(StateStopped)
		w.log.Info().Msg("capture worker stopped")
	})
}

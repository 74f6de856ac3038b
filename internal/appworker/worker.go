package appworker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/evision-ai/evision-lib/internal/capture"
	"github.com/evision-ai/evision-lib/internal/clock"
	"github.com/evision-ai/evision-lib/internal/consumer"
	"github.com/evision-ai/evision-lib/internal/model"
)

// State is an AppWorker's lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateFailed:
		return "FAILED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Callback processes one delivered batch. Singleton batches are still passed
// as a length-1 slice; unwrapping is the caller's concern if desired.
type Callback func(batch []model.ImageFrame) error

// Worker runs one AppSpec's callback loop against a consumer.View.
type Worker struct {
	name        string
	view        *consumer.View
	callback    Callback
	batchSize   int
	cadence     time.Duration
	failOnError bool
	clk         clock.Clock

	mu    sync.Mutex
	state State

	cancel context.CancelFunc
	done   chan struct{}
	log    zerolog.Logger
}

// New constructs a Worker. cadence is derived from EffectiveProcessRate;
// callers compute it once at Coordinator.Add time.
func New(name string, view *consumer.View, callback Callback, batchSize int, processRateFPS float64, failOnError bool, clk clock.Clock) *Worker {
	if batchSize <= 0 {
		batchSize = 1
	}
	if processRateFPS <= 0 {
		processRateFPS = 24
	}
	return &Worker{
		name:        name,
		view:        view,
		callback:    callback,
		batchSize:   batchSize,
		cadence:     time.Duration(float64(time.Second) / processRateFPS),
		failOnError: failOnError,
		clk:         clk,
		state:       StateRunning,
		done:        make(chan struct{}),
		log:         log.With().Str("component", "app_worker").Str("app", name).Logger(),
	}
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// precondition implements on_start: the source must be RUNNING, DEGRADED or
// RELOADING (no time limit is applied to RELOADING); anything else (FAILED,
// STOPPED, still OPENING) fails the start.
func precondition(state capture.State) error {
	switch state {
	case capture.StateRunning, capture.StateReloading, capture.StateDegraded:
		return nil
	default:
		return fmt.Errorf("%w: source state is %s", ErrNotRunning, state)
	}
}

// Start checks on_start preconditions against the source's current state and,
// if they hold, spawns the callback loop goroutine.
func (w *Worker) Start(ctx context.Context, sourceState capture.State) error {
	if err := precondition(sourceState); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(runCtx)
	w.log.Info().Msg("app worker running")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	ticker := w.clk.NewTicker(w.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if w.tick(ctx) {
				return
			}
		}
	}
}

// tick runs one iteration of the per-tick algorithm in the design notes.
// Returns true if the worker should stop (fail_on_error triggered).
func (w *Worker) tick(ctx context.Context) bool {
	batch, ok, err := w.view.Provide(ctx, w.batchSize, true, time.Second)
	if err != nil {
		w.log.Warn().Err(err).Msg("provide failed")
		return false
	}
	if !ok {
		return false
	}

	if err := w.invoke(batch); err != nil {
		w.log.Error().Err(fmt.Errorf("%w: %v", ErrCallback, err)).Msg("callback error")
		if w.failOnError {
			w.mu.Lock()
			w.state = StateFailed
			w.mu.Unlock()
			return true
		}
	}
	return false
}

func (w *Worker) invoke(batch []model.ImageFrame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.callback(batch)
}

// Stop cancels the callback loop and joins it.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-w.done
	}

	w.mu.Lock()
	w.state = StateStopped
	w.mu.Unlock()
	w.log.Info().Msg("app worker stopped")
}

// Package clock provides an injectable time source so capture cadence and
// reconciliation timers can be driven deterministically in tests instead of
// sleeping real wall-clock time.
package clock

import "time"

// Clock is the time source used throughout the coordinator, capture workers
// and consumer views. Real uses the standard library; tests substitute Fake.
type Clock interface {
	Now() time.Time
	// Monotonic returns a monotonically increasing nanosecond counter, used
	// to build frame_id values ("<source_id>-<monotonic-ns>").
	Monotonic() int64
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker so Fake can hand out a controllable channel.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type real struct{}

// Real is the production Clock backed by the standard library.
var Real Clock = real{}

func (real) Now() time.Time { return time.Now() }

// realStart anchors Real.Monotonic; time.Since uses the monotonic clock
// reading, so the result never goes backwards with wall-clock adjustments.
var realStart = time.Now()

func (real) Monotonic() int64 { return int64(time.Since(realStart)) }

func (real) Sleep(d time.Duration) { time.Sleep(d) }

func (real) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (real) NewTicker(d time.Duration) Ticker { return &realTicker{t: time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Package capture drives one CaptureWorker per source: open the grabber,
// pull frames at native_fps, push them into a framebuffer.Store, and reload
// or fail over according to the state machine in the design notes. Grounded
// on api/pkg/desktop/video_forwarder.go's restart/backoff monitor loop.
package capture

import "errors"

// Sentinel errors classify capture-path failures so callers can dispatch
// with errors.Is instead of string matching, matching the pattern in
// pkg/scheduler/errors.go.
var (
	// ErrConfig marks a caller-supplied configuration as invalid: bad
	// shape/zone/uri combinations. Surfaced from Coordinator.Add; no
	// worker is started and no state changes.
	ErrConfig = errors.New("capture: invalid configuration")

	// ErrSourceOpen marks a grabber's first Open call failing. The worker
	// transitions to Failed and Coordinator.Add surfaces this to the
	// caller.
	ErrSourceOpen = errors.New("capture: source failed to open")

	// ErrTransientRead marks an empty frame or decode hiccup. Absorbed by
	// the consecutive-failure counter; a reload is attempted once the
	// threshold is crossed.
	ErrTransientRead = errors.New("capture: transient read failure")

	// ErrPermanentRead marks a reload that failed after exhausting its
	// retry budget. The worker transitions to Failed and stops pushing
	// frames; consumer views are not notified and simply receive no new
	// frames from that source.
	ErrPermanentRead = errors.New("capture: source unrecoverable")

	// ErrCallback marks a user callback panic/error. Nothing in this
	// package raises it; AppWorker logs callback failures with
	// appworker.ErrCallback.
	ErrCallback = errors.New("capture: callback error")
)

// Package appworker runs the single-threaded callback loop described in the
// design notes: at process_rate_fps cadence, pull a batch from a
// consumer.View and invoke the app's callback, failing over to a terminal
// state only when the app opted into fail_on_error. Grounded on
// pkg/runner/model_instance.go's task-pull-then-invoke loop.
package appworker

import "errors"

// ErrNotRunning is returned by on_start preconditions when the backing
// source is not in a state that can yield frames soon.
var ErrNotRunning = errors.New("appworker: source is not running")

// ErrCallback wraps a panic or error raised by the app's callback; logged
// unconditionally, and also the trigger for a FAILED transition when
// fail_on_error is set.
var ErrCallback = errors.New("appworker: callback error")

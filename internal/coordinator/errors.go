// Package coordinator ties SourceRegistry, ConsumerView and AppWorker
// together behind the public add/remove/stop surface, running a periodic
// reconciliation sweep that drops dead AppWorkers and releases orphaned
// sources. Grounded directly on api/pkg/desktop's
// SharedVideoSourceRegistry/SharedVideoSource pairing, generalized from a
// single-pipeline-per-node model to one CaptureWorker per SourceKey serving
// many independently-configured AppWorkers.
package coordinator

import "errors"

// ErrUnknownHandle is returned by Remove for a handle that was never issued
// or has already been removed.
var ErrUnknownHandle = errors.New("coordinator: unknown app handle")

// Package grabber adapts raw video origins (RTSP/USB cameras, video files,
// still images) to the single FrameGrabber contract CaptureWorker drives. It
// is grounded on api/pkg/desktop/gst_pipeline.go's appsink wrapper, cut down
// to the minimal pull-based surface the capture loop needs instead of
// gst_pipeline.go's own push-to-channel style.
package grabber

import (
	"context"
	"fmt"
	"io"

	"github.com/evision-ai/evision-lib/internal/model"
)

// FrameGrabber is the decoder seam: open a source, pull frames from it one at
// a time, release it. Read returns io.EOF once the source is exhausted (a
// finite file) or has nothing new yet for an endless source that reports it
// explicitly; CaptureWorker stops on context cancellation errors and treats
// every other error as a transient read failure.
type FrameGrabber interface {
	Open(ctx context.Context, key model.SourceKey) error
	Read(ctx context.Context) (model.RawFrame, error)
	Release() error
}

// Factory builds a FrameGrabber for a source config. Registered per
// model.HandlerName in the catalogue below.
type Factory func(cfg model.SourceConfig) (FrameGrabber, error)

var catalogue = map[model.HandlerName]Factory{
	model.HandlerVideoCapture: newLivePipelineGrabber,
	model.HandlerVideoFile:    newFileGrabber,
}

// ErrUnknownHandler is returned by New when cfg.Handler has no registered
// Factory.
var ErrUnknownHandler = fmt.Errorf("grabber: unknown handler")

// New looks up cfg.Handler in the catalogue (the built-in entries plus any
// added through Register) and constructs a grabber for it.
func New(cfg model.SourceConfig) (FrameGrabber, error) {
	factory, ok := catalogue[cfg.Handler]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, cfg.Handler)
	}
	return factory(cfg)
}

// Register adds or overrides a handler's factory. Exposed so tests (and
// embedding applications) can install a fake grabber without touching the
// production catalogue entries.
func Register(name model.HandlerName, factory Factory) {
	catalogue[name] = factory
}

// errEOF is returned by implementations at end-of-stream so callers can use
// errors.Is(err, io.EOF) uniformly regardless of backend.
var errEOF = io.EOF

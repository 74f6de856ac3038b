package model

import "fmt"

// Shape is a positive width/height pair.
type Shape struct {
	Width, Height int
}

// Valid reports whether both dimensions are strictly positive.
func (s Shape) Valid() bool { return s.Width > 0 && s.Height > 0 }

// Zone is a rectangular crop expressed in the post-resize coordinate frame.
type Zone struct {
	StartX, StartY int
	Width, Height  int
}

// Validate checks a Zone against the shape it will be cut from: the zone
// must sit entirely within [0, frameWidth) x [0, frameHeight).
func (z Zone) Validate(frame Shape) error {
	if z.Width <= 0 || z.Height <= 0 {
		return fmt.Errorf("model: zone width/height must be positive, got %dx%d", z.Width, z.Height)
	}
	if z.StartX < 0 || z.StartY < 0 {
		return fmt.Errorf("model: zone start must be non-negative, got (%d,%d)", z.StartX, z.StartY)
	}
	if z.StartX+z.Width > frame.Width || z.StartY+z.Height > frame.Height {
		return fmt.Errorf("model: zone %+v exceeds target shape %+v", z, frame)
	}
	return nil
}

// RawFrame is the opaque image payload yielded by a FrameGrabber.
type RawFrame struct {
	Data        []byte
	Width       int
	Height      int
	PixelFormat string
}

// FrameEntry is what FrameBuffer stores: a raw frame plus its identity and
// capture time.
type FrameEntry struct {
	FrameID    string
	Payload    RawFrame
	CapturedAt int64 // monotonic-ns
}

// ImageFrame is what a ConsumerView hands to an AppWorker: a FrameEntry
// annotated with the view's transform parameters so the callback knows how
// to interpret the payload.
type ImageFrame struct {
	SourceID string
	FrameID  string
	Payload  RawFrame
	Zoom     float64
	Zone     *Zone // nil when the view applies no crop
}

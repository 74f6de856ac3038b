package model

import "fmt"

// HandlerName selects which FrameGrabber implementation a source uses.
type HandlerName string

const (
	HandlerVideoCapture HandlerName = "VIDEO_CAPTURE"
	HandlerVideoFile    HandlerName = "VIDEO_FILE"
)

// SourceConfig is the portion of AppSpec that identifies and configures the
// underlying source; it is what SourceRegistry.register consumes.
type SourceConfig struct {
	URI             any
	Type            SourceType
	Handler         HandlerName
	Endless         bool
	FrameQueueSize  int
	NativeFPS       float64
}

// Key derives the SourceKey this config dedupes against.
func (c SourceConfig) Key() (SourceKey, error) {
	return NewSourceKey(c.URI, c.Type)
}

// normalized returns a copy with defaults applied.
func (c SourceConfig) normalized() SourceConfig {
	if c.FrameQueueSize <= 0 {
		c.FrameQueueSize = 24
	}
	if c.NativeFPS <= 0 {
		c.NativeFPS = 24
	}
	return c
}

// Normalized returns c with the package's default values applied.
func (c SourceConfig) Normalized() SourceConfig { return c.normalized() }

// AppSpec is the consumer configuration passed to Coordinator.Add.
type AppSpec struct {
	Name            string
	Description     string
	Source          SourceConfig
	TargetShape     *Shape
	Zone            *Zone
	ProcessRateFPS  float64
	BatchSize       int
	Dedupe          *bool // nil means "use default (true)"
	FailOnError     bool
	Callback        func(batch []ImageFrame) error
}

// DedupeEnabled returns the effective dedupe setting, defaulting to true.
func (a AppSpec) DedupeEnabled() bool {
	if a.Dedupe == nil {
		return true
	}
	return *a.Dedupe
}

// EffectiveBatchSize returns BatchSize with the default of 1 applied.
func (a AppSpec) EffectiveBatchSize() int {
	if a.BatchSize <= 0 {
		return 1
	}
	return a.BatchSize
}

// EffectiveProcessRate returns ProcessRateFPS, defaulting to the source's
// native fps when unset.
func (a AppSpec) EffectiveProcessRate() float64 {
	if a.ProcessRateFPS > 0 {
		return a.ProcessRateFPS
	}
	return a.Source.Normalized().NativeFPS
}

// Validate rejects malformed shapes and out-of-bounds zones before any
// worker is started.
func (a AppSpec) Validate() error {
	if a.Callback == nil {
		return fmt.Errorf("model: app spec requires a callback")
	}
	if _, err := a.Source.Key(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if a.TargetShape != nil && !a.TargetShape.Valid() {
		return fmt.Errorf("model: target_shape must have positive width and height, got %+v", *a.TargetShape)
	}
	// A zone is only checked against an explicit target shape. Without one,
	// the zone is not validated against the native shape here or later; the
	// consumer's crop clips it to the frame bounds instead.
	if a.Zone != nil && a.TargetShape != nil {
		if err := a.Zone.Validate(*a.TargetShape); err != nil {
			return fmt.Errorf("model: %w", err)
		}
	}
	if a.ProcessRateFPS < 0 {
		return fmt.Errorf("model: process_rate_fps must be non-negative")
	}
	if a.BatchSize < 0 {
		return fmt.Errorf("model: batch_size must be non-negative")
	}
	return nil
}

// ZoomRatio computes the resize ratio: target_width / native_width, falling
// back to height, else 1.0.
func ZoomRatio(target *Shape, native Shape) float64 {
	if target == nil || native.Width == 0 {
		return 1.0
	}
	if target.Width > 0 {
		return float64(target.Width) / float64(native.Width)
	}
	if target.Height > 0 && native.Height > 0 {
		return float64(target.Height) / float64(native.Height)
	}
	return 1.0
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func noopCallback(batch []ImageFrame) error { return nil }

func validSpec() AppSpec {
	return AppSpec{
		Name:     "test-app",
		Source:   SourceConfig{URI: "rtsp://cam1", Type: SourceIPCamera, Handler: HandlerVideoCapture},
		Callback: noopCallback,
	}
}

func TestAppSpec_ValidateRequiresCallback(t *testing.T) {
	spec := validSpec()
	spec.Callback = nil
	assert.Error(t, spec.Validate())
}

func TestAppSpec_ValidateRejectsBadZoneAgainstTargetShape(t *testing.T) {
	spec := validSpec()
	spec.TargetShape = &Shape{Width: 100, Height: 100}
	spec.Zone = &Zone{StartX: 0, StartY: 0, Width: 50, Height: 200}
	assert.Error(t, spec.Validate())
}

func TestAppSpec_ValidateAcceptsFittingZone(t *testing.T) {
	spec := validSpec()
	spec.TargetShape = &Shape{Width: 100, Height: 100}
	spec.Zone = &Zone{StartX: 0, StartY: 0, Width: 50, Height: 50}
	assert.NoError(t, spec.Validate())
}

func TestAppSpec_DedupeEnabledDefaultsTrue(t *testing.T) {
	spec := validSpec()
	assert.True(t, spec.DedupeEnabled())

	f := false
	spec.Dedupe = &f
	assert.False(t, spec.DedupeEnabled())
}

func TestAppSpec_EffectiveBatchSizeDefaultsToOne(t *testing.T) {
	spec := validSpec()
	assert.Equal(t, 1, spec.EffectiveBatchSize())

	spec.BatchSize = 5
	assert.Equal(t, 5, spec.EffectiveBatchSize())
}

func TestAppSpec_EffectiveProcessRateFallsBackToNativeFPS(t *testing.T) {
	spec := validSpec()
	spec.Source.NativeFPS = 15
	assert.Equal(t, 15.0, spec.EffectiveProcessRate())

	spec.ProcessRateFPS = 30
	assert.Equal(t, 30.0, spec.EffectiveProcessRate())
}

func TestZoomRatio(t *testing.T) {
	assert.Equal(t, 1.0, ZoomRatio(nil, Shape{Width: 100, Height: 100}))
	assert.Equal(t, 0.5, ZoomRatio(&Shape{Width: 50}, Shape{Width: 100, Height: 100}))
	assert.Equal(t, 2.0, ZoomRatio(&Shape{Height: 200}, Shape{Width: 100, Height: 100}))
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSourceKey_IPCamera(t *testing.T) {
	key, err := NewSourceKey("rtsp://cam1/stream", SourceIPCamera)
	require.NoError(t, err)
	assert.Equal(t, "rtsp://cam1/stream", key.URI)
	assert.Equal(t, SourceIPCamera, key.Type())
}

func TestNewSourceKey_USBCanonicalizesStringAndInt(t *testing.T) {
	fromInt, err := NewSourceKey(2, SourceUSBCamera)
	require.NoError(t, err)

	fromString, err := NewSourceKey("2", SourceUSBCamera)
	require.NoError(t, err)

	assert.Equal(t, fromInt, fromString, "usb uri 2 (int) and \"2\" (string) must collapse to the same key")
}

func TestNewSourceKey_RejectsUnknownType(t *testing.T) {
	_, err := NewSourceKey("foo", SourceType("BOGUS"))
	assert.Error(t, err)
}

func TestNewSourceKey_RejectsEmptyURI(t *testing.T) {
	_, err := NewSourceKey("", SourceVideoFile)
	assert.Error(t, err)
}

func TestNewSourceKey_RejectsNegativeUSBIndex(t *testing.T) {
	_, err := NewSourceKey(-1, SourceUSBCamera)
	assert.Error(t, err)
}

func TestSourceKey_StringIsStable(t *testing.T) {
	a, err := NewSourceKey("http://x/img.jpg", SourceImageLink)
	require.NoError(t, err)
	b, err := NewSourceKey("http://x/img.jpg", SourceImageLink)
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())
}

func TestZone_ValidateRejectsOutOfBounds(t *testing.T) {
	z := Zone{StartX: 90, StartY: 0, Width: 50, Height: 50}
	err := z.Validate(Shape{Width: 100, Height: 100})
	assert.Error(t, err)
}

func TestZone_ValidateAcceptsFittingZone(t *testing.T) {
	z := Zone{StartX: 0, StartY: 0, Width: 50, Height: 50}
	err := z.Validate(Shape{Width: 100, Height: 100})
	assert.NoError(t, err)
}

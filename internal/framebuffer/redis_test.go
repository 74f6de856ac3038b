package framebuffer

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/evision-ai/evision-lib/internal/model"
)

// These exercise the gob round-trip at RedisStore's one serialization
// boundary directly, with no live Redis connection: encodeEntry/decodeEntry
// are pure functions of a model.FrameEntry. gotest.tools/v3 gives the
// golden-style deep-equal assertion this byte-payload round-trip wants.
func TestEncodeDecodeEntry_RoundTripsPayload(t *testing.T) {
	want := model.FrameEntry{
		FrameID: "cam-1-12345",
		Payload: model.RawFrame{
			Data:        []byte{0x01, 0x02, 0x03, 0xff, 0x00},
			Width:       4,
			Height:      2,
			PixelFormat: "RGBA",
		},
		CapturedAt: 987654321,
	}

	raw, err := encodeEntry(want)
	assert.NilError(t, err)

	got, err := decodeEntry(raw)
	assert.NilError(t, err)
	assert.DeepEqual(t, want, got)
}

func TestEncodeDecodeEntry_RoundTripsZeroValue(t *testing.T) {
	var want model.FrameEntry

	raw, err := encodeEntry(want)
	assert.NilError(t, err)

	got, err := decodeEntry(raw)
	assert.NilError(t, err)
	assert.DeepEqual(t, want, got)
}

func TestEncodeDecodeEntry_RoundTripsEmptyPayloadBytes(t *testing.T) {
	want := model.FrameEntry{
		FrameID:    "cam-2-1",
		Payload:    model.RawFrame{Width: 0, Height: 0, PixelFormat: ""},
		CapturedAt: 1,
	}

	raw, err := encodeEntry(want)
	assert.NilError(t, err)

	got, err := decodeEntry(raw)
	assert.NilError(t, err)
	assert.DeepEqual(t, want, got)
}

func TestDecodeEntry_RejectsGarbageInput(t *testing.T) {
	_, err := decodeEntry("not a gob stream")
	assert.ErrorContains(t, err, "")
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAppSpecYAML = `
apps:
  - name: front-door
    source_uri: rtsp://cam.local/stream1
    source_type: IP_CAMERA
    handler_name: VIDEO_CAPTURE
    endless: true
    native_fps: 15
    target_shape:
      width: 640
      height: 480
    zone:
      start_x: 0
      start_y: 0
      width: 320
      height: 240
    process_rate_fps: 5
    batch_size: 2
    fail_on_error: true
  - name: loading-dock
    source_uri: "2"
    source_type: USB_CAMERA
    handler_name: VIDEO_CAPTURE
`

func writeAppSpecFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppSpecFile_ParsesEntries(t *testing.T) {
	path := writeAppSpecFile(t, sampleAppSpecYAML)

	file, err := LoadAppSpecFile(path)
	require.NoError(t, err)
	require.Len(t, file.Apps, 2)

	first := file.Apps[0]
	assert.Equal(t, "front-door", first.Name)
	assert.Equal(t, "IP_CAMERA", first.SourceType)
	require.NotNil(t, first.TargetShape)
	assert.Equal(t, 640, first.TargetShape.Width)
	require.NotNil(t, first.Zone)
	assert.Equal(t, 320, first.Zone.Width)
	assert.True(t, first.FailOnError)
}

func TestLoadAppSpecFile_MissingFileErrors(t *testing.T) {
	_, err := LoadAppSpecFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAppSpecEntry_ToModelConvertsShapeAndZone(t *testing.T) {
	path := writeAppSpecFile(t, sampleAppSpecYAML)
	file, err := LoadAppSpecFile(path)
	require.NoError(t, err)

	spec, err := file.Apps[0].ToModel()
	require.NoError(t, err)

	assert.Equal(t, "front-door", spec.Name)
	assert.Equal(t, "rtsp://cam.local/stream1", spec.Source.URI)
	require.NotNil(t, spec.TargetShape)
	assert.Equal(t, 480, spec.TargetShape.Height)
	require.NotNil(t, spec.Zone)
	assert.Equal(t, 240, spec.Zone.Height)

	key, err := spec.Source.Key()
	require.NoError(t, err)
	assert.Equal(t, "rtsp://cam.local/stream1", key.URI)
}

func TestAppSpecEntry_ToModelWithoutShapeOrZone(t *testing.T) {
	path := writeAppSpecFile(t, sampleAppSpecYAML)
	file, err := LoadAppSpecFile(path)
	require.NoError(t, err)

	spec, err := file.Apps[1].ToModel()
	require.NoError(t, err)

	assert.Nil(t, spec.TargetShape)
	assert.Nil(t, spec.Zone)

	key, err := spec.Source.Key()
	require.NoError(t, err)
	assert.Equal(t, 2, key.Num)
}

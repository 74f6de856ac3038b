package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/evision-ai/evision-lib/internal/model"
)

// AppSpecFile is the on-disk shape of a static app-spec list, minus Callback
// (wired up by the caller after loading, since a function value has no YAML
// representation).
type AppSpecFile struct {
	Apps []AppSpecEntry `yaml:"apps"`
}

// AppSpecEntry mirrors model.AppSpec/model.SourceConfig field-for-field in
// YAML-friendly primitive types.
type AppSpecEntry struct {
	Name           string      `yaml:"name"`
	Description    string      `yaml:"description"`
	SourceURI      string      `yaml:"source_uri"`
	SourceType     string      `yaml:"source_type"`
	HandlerName    string      `yaml:"handler_name"`
	Endless        bool        `yaml:"endless"`
	FrameQueueSize int         `yaml:"frame_queue_size"`
	NativeFPS      float64     `yaml:"native_fps"`
	TargetShape    *ShapeEntry `yaml:"target_shape"`
	Zone           *ZoneEntry  `yaml:"zone"`
	ProcessRateFPS float64     `yaml:"process_rate_fps"`
	BatchSize      int         `yaml:"batch_size"`
	Dedupe         *bool       `yaml:"dedupe"`
	FailOnError    bool        `yaml:"fail_on_error"`
}

// ShapeEntry is model.Shape's YAML twin.
type ShapeEntry struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ZoneEntry is model.Zone's YAML twin.
type ZoneEntry struct {
	StartX int `yaml:"start_x"`
	StartY int `yaml:"start_y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LoadAppSpecFile reads and parses a YAML app-spec list from path.
func LoadAppSpecFile(path string) (AppSpecFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AppSpecFile{}, fmt.Errorf("config: read app spec file: %w", err)
	}
	var file AppSpecFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return AppSpecFile{}, fmt.Errorf("config: parse app spec file: %w", err)
	}
	return file, nil
}

// ToModel converts one entry into a model.AppSpec, leaving Callback nil for
// the caller to attach.
func (e AppSpecEntry) ToModel() (model.AppSpec, error) {
	var uri any = e.SourceURI
	spec := model.AppSpec{
		Name:        e.Name,
		Description: e.Description,
		Source: model.SourceConfig{
			URI:            uri,
			Type:           model.SourceType(e.SourceType),
			Handler:        model.HandlerName(e.HandlerName),
			Endless:        e.Endless,
			FrameQueueSize: e.FrameQueueSize,
			NativeFPS:      e.NativeFPS,
		},
		ProcessRateFPS: e.ProcessRateFPS,
		BatchSize:      e.BatchSize,
		Dedupe:         e.Dedupe,
		FailOnError:    e.FailOnError,
	}
	if e.TargetShape != nil {
		spec.TargetShape = &model.Shape{Width: e.TargetShape.Width, Height: e.TargetShape.Height}
	}
	if e.Zone != nil {
		spec.Zone = &model.Zone{
			StartX: e.Zone.StartX,
			StartY: e.Zone.StartY,
			Width:  e.Zone.Width,
			Height: e.Zone.Height,
		}
	}
	return spec, nil
}

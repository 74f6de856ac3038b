// Package model holds the data types shared across the ingestion engine:
// source identity, frame payloads, and the consumer-facing AppSpec.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SourceType enumerates the kinds of video origin the registry can dedupe.
type SourceType string

const (
	SourceIPCamera   SourceType = "IP_CAMERA"
	SourceUSBCamera  SourceType = "USB_CAMERA"
	SourceVideoFile  SourceType = "VIDEO_FILE"
	SourceVideoLink  SourceType = "VIDEO_LINK"
	SourceImageLink  SourceType = "IMAGE_LINK"
	SourceImageFile  SourceType = "IMAGE_FILE"
)

func (t SourceType) valid() bool {
	switch t {
	case SourceIPCamera, SourceUSBCamera, SourceVideoFile, SourceVideoLink, SourceImageLink, SourceImageFile:
		return true
	default:
		return false
	}
}

// SourceKey identifies a single video origin. Equality is structural, so it
// is usable as a map key directly. USB uris are canonicalised to an int so
// that "2" (string) and 2 (int) collapse to the same key.
type SourceKey struct {
	URI  string
	Num  int
	kind SourceType
}

// Type returns the source's kind.
func (k SourceKey) Type() SourceType { return k.kind }

// String renders a stable, human-readable identifier for logging and for
// frame_id / Redis key generation.
func (k SourceKey) String() string {
	if k.kind == SourceUSBCamera {
		return fmt.Sprintf("usb:%d", k.Num)
	}
	return fmt.Sprintf("%s:%s", strings.ToLower(string(k.kind)), k.URI)
}

// NewSourceKey validates and canonicalises a (uri, type) pair into a SourceKey.
// uri must be a string or an int; USB uris are stored as Num, everything else
// is stored as URI.
func NewSourceKey(uri any, kind SourceType) (SourceKey, error) {
	if !kind.valid() {
		return SourceKey{}, fmt.Errorf("model: unknown source type %q", kind)
	}

	switch kind {
	case SourceUSBCamera:
		n, err := canonicalUSB(uri)
		if err != nil {
			return SourceKey{}, fmt.Errorf("model: usb source: %w", err)
		}
		return SourceKey{Num: n, kind: kind}, nil
	default:
		s, ok := uri.(string)
		if !ok {
			return SourceKey{}, fmt.Errorf("model: source type %s requires a string uri, got %T", kind, uri)
		}
		if s == "" {
			return SourceKey{}, fmt.Errorf("model: source type %s requires a non-empty uri", kind)
		}
		return SourceKey{URI: s, kind: kind}, nil
	}
}

func canonicalUSB(uri any) (int, error) {
	switch v := uri.(type) {
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative usb device index %d", v)
		}
		return v, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("usb device index must be a non-negative integer, got %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("usb uri must be string or int, got %T", uri)
	}
}

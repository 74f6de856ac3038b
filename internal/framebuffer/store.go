// Package framebuffer implements a bounded, newest-first per-source ring,
// plus the pluggable FrameStore contract that lets an external,
// eventually-consistent append-trim log (e.g. Redis) stand in for it.
package framebuffer

import (
	"context"

	"github.com/evision-ai/evision-lib/internal/model"
)

// Store is the contract one source's FrameBuffer satisfies, whether backed by
// the in-process Ring or an external list-like store.
//
// Implementations must guarantee: after Push, 1 <= size <= capacity; Peek
// equals the first element of Range(1) whenever size > 0; Range returns
// entries newest-first; Push and readers may run concurrently and every
// reader observes either the pre- or post-push state atomically.
type Store interface {
	// Push prepends entry, evicting the oldest entry if over capacity. Never
	// fails for the in-process ring; the external-store implementation can
	// still surface I/O errors, which callers treat as transient.
	Push(ctx context.Context, entry model.FrameEntry) error

	// Peek returns the newest entry, or ok=false if the buffer is empty.
	Peek(ctx context.Context) (entry model.FrameEntry, ok bool, err error)

	// Get returns the newest k entries only if at least k are present;
	// otherwise ok=false ("not ready").
	Get(ctx context.Context, k int) (entries []model.FrameEntry, ok bool, err error)

	// Range returns the current size and up to k newest entries (fewer if
	// the buffer holds less than k).
	Range(ctx context.Context, k int) (size int, entries []model.FrameEntry, err error)

	// Destroy drops all contents.
	Destroy(ctx context.Context) error
}

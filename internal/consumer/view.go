// Package consumer implements ConsumerView: a pure transform-plus-poll layer
// over a framebuffer.Store. It holds no worker of its own — every call reads
// through to the buffer, resizes/crops per its configured target shape and
// zone, and deduplicates frame ids across successive provide calls.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/evision-ai/evision-lib/internal/clock"
	"github.com/evision-ai/evision-lib/internal/framebuffer"
	"github.com/evision-ai/evision-lib/internal/model"
)

// Params configures one ConsumerView; it is the subset of model.AppSpec that
// governs frame delivery rather than source acquisition.
type Params struct {
	SourceID       string
	TargetShape    *model.Shape
	Zone           *model.Zone
	ProcessRateFPS float64
	BatchSize      int
	Dedupe         bool
}

func (p Params) pollInterval() time.Duration {
	fps := p.ProcessRateFPS
	if fps <= 0 {
		fps = 1
	}
	interval := 1.0 / fps
	if interval < 0.02 {
		interval = 0.02
	}
	return time.Duration(interval * float64(time.Second))
}

// View reads frames out of a single source's buffer for one consumer,
// applying resize/crop and newest-batch dedup.
type View struct {
	params Params
	buffer framebuffer.Store
	clk    clock.Clock

	lastDelivered map[string]struct{}
}

// New constructs a View over buffer with the given params.
func New(params Params, buffer framebuffer.Store, clk clock.Clock) *View {
	if params.BatchSize <= 0 {
		params.BatchSize = 1
	}
	return &View{params: params, buffer: buffer, clk: clk, lastDelivered: make(map[string]struct{})}
}

// Provide implements provide(n, block, timeout_s). n<=0 uses the view's
// configured batch size. Returns ok=false ("none") when no sufficiently
// fresh batch could be assembled within the rules below.
func (v *View) Provide(ctx context.Context, n int, block bool, timeout time.Duration) ([]model.ImageFrame, bool, error) {
	if n <= 0 {
		n = v.params.BatchSize
	}

	if !block {
		return v.provideNonBlocking(ctx, n)
	}
	return v.provideBlocking(ctx, n, timeout)
}

func (v *View) provideNonBlocking(ctx context.Context, n int) ([]model.ImageFrame, bool, error) {
	entries, ok, err := v.buffer.Get(ctx, n)
	if err != nil {
		return nil, false, fmt.Errorf("consumer: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	filtered := v.filterDedupe(entries)
	if v.params.Dedupe && len(filtered) < len(entries) {
		return nil, false, nil
	}
	return v.deliver(filtered), true, nil
}

func (v *View) provideBlocking(ctx context.Context, n int, timeout time.Duration) ([]model.ImageFrame, bool, error) {
	now := v.clk.Now()
	deadline := now.Add(timeout)
	mustBeAfter := now.Add(-50 * time.Millisecond)

	for {
		_, entries, err := v.buffer.Range(ctx, n)
		if err != nil {
			return nil, false, fmt.Errorf("consumer: %w", err)
		}

		filtered := entries
		if v.params.Dedupe {
			filtered = v.filterDedupe(entries)
		}

		if len(filtered) >= n {
			return v.deliver(filtered[:n]), true, nil
		}

		now = v.clk.Now()
		if !now.Before(deadline) || !now.After(mustBeAfter) {
			return nil, false, nil
		}

		sleep := minDuration(100*time.Millisecond, v.params.pollInterval()/3) * time.Duration(n-len(filtered))
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-v.clk.After(sleep):
		}
	}
}

// filterDedupe drops entries whose FrameID is in last_delivered_ids.
func (v *View) filterDedupe(entries []model.FrameEntry) []model.FrameEntry {
	if !v.params.Dedupe || len(v.lastDelivered) == 0 {
		return entries
	}
	out := make([]model.FrameEntry, 0, len(entries))
	for _, e := range entries {
		if _, seen := v.lastDelivered[e.FrameID]; !seen {
			out = append(out, e)
		}
	}
	return out
}

// deliver builds the ImageFrame batch and, when dedupe is enabled, updates
// last_delivered_ids to the ids just returned.
func (v *View) deliver(entries []model.FrameEntry) []model.ImageFrame {
	zoom := 1.0
	if v.params.TargetShape != nil {
		native := model.Shape{}
		if len(entries) > 0 {
			native = model.Shape{Width: entries[0].Payload.Width, Height: entries[0].Payload.Height}
		}
		zoom = model.ZoomRatio(v.params.TargetShape, native)
	}

	batch := make([]model.ImageFrame, 0, len(entries))
	for _, e := range entries {
		payload := e.Payload
		if v.params.TargetShape != nil {
			payload = resize(payload, *v.params.TargetShape)
		}
		if v.params.Zone != nil {
			payload = crop(payload, *v.params.Zone)
		}
		batch = append(batch, model.ImageFrame{
			SourceID: v.params.SourceID,
			FrameID:  e.FrameID,
			Payload:  payload,
			Zoom:     zoom,
			Zone:     v.params.Zone,
		})
	}

	if v.params.Dedupe {
		v.lastDelivered = make(map[string]struct{}, len(entries))
		for _, e := range entries {
			v.lastDelivered[e.FrameID] = struct{}{}
		}
	}

	return batch
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

package rig

import (
	"context"
	"errors"

	blendshape "github.com/JoaoVitorSantiagoNogueira/facecapture/blend_shape"
)

var (
	// ErrReplayExhausted is returned once every recorded frame has been played and looping is off.
	ErrReplayExhausted = errors.New("replay has no more frames")

	// ErrReplayClosed is returned when a closed replay is read.
	ErrReplayClosed = errors.New("replay is closed")
)

// Replay plays back recorded landmark frames, one per call.
type Replay struct {
	frames []blendshape.Pose
	loop   bool
	next   int
	closed bool
}

// NewReplay creates a replay over frames. With loop set it restarts after the last frame.
func NewReplay(frames []blendshape.Pose, loop bool) *Replay {
	return &Replay{frames: frames, loop: loop}
}

// NextFrame returns the next recorded frame. A frame recorded without a face yields no poses.
// Recordings have no preview window, so the closed signal is never raised.
func (r *Replay) NextFrame(ctx context.Context, showPreview bool) ([]blendshape.Pose, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if r.closed {
		return nil, false, ErrReplayClosed
	}
	if r.next >= len(r.frames) {
		if !r.loop || len(r.frames) == 0 {
			return nil, false, ErrReplayExhausted
		}
		r.next = 0
	}
	frame := r.frames[r.next]
	r.next++
	if frame == nil {
		return nil, false, nil
	}
	return []blendshape.Pose{frame.Clone()}, false, nil
}

// Close releases the replay.
func (r *Replay) Close() error {
	r.closed = true
	return nil
}

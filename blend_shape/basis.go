package blendshape

import (
	"fmt"
	"sync"

	"github.com/golang/geo/r3"
)

// DeltaBasis holds a neutral pose and the offsets of every authored key from it.
// Deltas are only ever appended so that weight indices stay stable for the life of the basis.
type DeltaBasis struct {
	mu      sync.RWMutex
	neutral Pose
	deltas  []Pose
}

// NewDeltaBasis builds a basis from poses, where poses[0] is the neutral pose.
func NewDeltaBasis(poses []Pose) (*DeltaBasis, error) {
	if len(poses) == 0 {
		return nil, ErrNoNeutralPose
	}
	neutral := poses[0]
	if len(neutral) == 0 {
		return nil, fmt.Errorf("%w: neutral pose has no points", ErrDimensionMismatch)
	}

	b := &DeltaBasis{
		neutral: neutral.Clone(),
		deltas:  make([]Pose, 0, len(poses)-1),
	}
	for i, p := range poses[1:] {
		if len(p) != len(neutral) {
			return nil, fmt.Errorf("%w: key %d has %d points, neutral has %d", ErrDimensionMismatch, i+1, len(p), len(neutral))
		}
		b.deltas = append(b.deltas, subtractPose(p, neutral, nil))
	}
	return b, nil
}

// Len returns the number of deltas in the basis.
func (b *DeltaBasis) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.deltas)
}

// PointCount returns the number of points in every pose of the basis.
func (b *DeltaBasis) PointCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.neutral)
}

// Neutral returns a copy of the neutral pose.
func (b *DeltaBasis) Neutral() Pose {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.neutral.Clone()
}

// Delta returns a copy of delta i.
func (b *DeltaBasis) Delta(i int) Pose {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.deltas[i].Clone()
}

// Reconstruct returns neutral + sum(w[i] * delta[i]).
func (b *DeltaBasis) Reconstruct(w Weights) (Pose, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(w) != len(b.deltas) {
		return nil, fmt.Errorf("%w: got %d weights for %d deltas", ErrDimensionMismatch, len(w), len(b.deltas))
	}
	out := b.neutral.Clone()
	for i, d := range b.deltas {
		if w[i] == 0 {
			continue
		}
		for j, v := range d {
			out[j] = out[j].Add(v.Mul(w[i]))
		}
	}
	return out, nil
}

// Append adds pose - neutral as a new delta and returns its index.
func (b *DeltaBasis) Append(pose Pose) (int, error) {
	return b.AppendRegion(pose, nil)
}

// AppendRegion adds a delta that moves only the points in region. A nil region spans the whole mesh.
func (b *DeltaBasis) AppendRegion(pose Pose, region PointSet) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(pose) != len(b.neutral) {
		return 0, fmt.Errorf("%w: pose has %d points, basis has %d", ErrDimensionMismatch, len(pose), len(b.neutral))
	}
	b.deltas = append(b.deltas, subtractPose(pose, b.neutral, region))
	return len(b.deltas) - 1, nil
}

// subtractPose returns a - b, zeroing points outside region when region is non-nil.
func subtractPose(a, b Pose, region PointSet) Pose {
	out := make(Pose, len(a))
	for i := range a {
		if region != nil && !region.Contains(i) {
			out[i] = r3.Vector{}
			continue
		}
		out[i] = a[i].Sub(b[i])
	}
	return out
}

// squaredDistance returns the sum of squared per-axis differences between two poses of equal length.
func squaredDistance(a, b Pose) float64 {
	var sum float64
	for i := range a {
		d := a[i].Sub(b[i])
		sum += d.Dot(d)
	}
	return sum
}

package blendshape

import (
	"sort"

	"github.com/golang/geo/r3"
)

// Pose is an ordered set of mesh points. Point i of every pose refers to the same location on the face.
type Pose []r3.Vector

// Clone returns a copy of the pose.
func (p Pose) Clone() Pose {
	if p == nil {
		return nil
	}
	out := make(Pose, len(p))
	copy(out, p)
	return out
}

// KeyID identifies a shape key by its position in a rig. The neutral pose is always key 0.
type KeyID int

// NeutralKey is the rest pose every other key is relative to.
const NeutralKey KeyID = 0

// DeltaKey returns the key backing basis delta i.
func DeltaKey(i int) KeyID { return KeyID(i + 1) }

// DeltaIndex returns the basis delta index driven by the key.
func (k KeyID) DeltaIndex() int { return int(k) - 1 }

// Weights is a blend vector with one entry per basis delta.
type Weights []float64

// KeyWeights holds weights keyed by key identity.
type KeyWeights map[KeyID]float64

// Keys returns the keys in ascending order.
func (kw KeyWeights) Keys() []KeyID {
	keys := make([]KeyID, 0, len(kw))
	for k := range kw {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ToKeyWeights maps a blend vector onto the keys that back each delta.
func (w Weights) ToKeyWeights() KeyWeights {
	kw := make(KeyWeights, len(w))
	for i, v := range w {
		kw[DeltaKey(i)] = v
	}
	return kw
}

// PointSet is a set of point indices.
type PointSet map[int]struct{}

// NewPointSet builds a set from point indices.
func NewPointSet(idx ...int) PointSet {
	s := make(PointSet, len(idx))
	for _, i := range idx {
		s[i] = struct{}{}
	}
	return s
}

// Contains reports whether i is in the set.
func (s PointSet) Contains(i int) bool {
	_, ok := s[i]
	return ok
}

// Sorted returns the indices in ascending order.
func (s PointSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Region is a named group of mesh points. Learned keys are scoped to regions when a mesh defines any.
type Region struct {
	Name   string
	Points PointSet
}

// FitResult holds the output of a weight solve.
type FitResult struct {
	Weights Weights
	// Residual is the sum of squared per-axis differences between the reconstruction and the frame.
	Residual float64
	Rank     int
	// RankDeficient is set when deltas were linearly dependent and a minimum-norm solution was used.
	RankDeficient bool
}

// GrowthState is the state of the basis growth policy.
type GrowthState int

const (
	// StateFitting is the steady state: frames are being fit with the current basis.
	StateFitting GrowthState = iota
	// StateExtending means a key is being appended because the last fit exceeded the tolerance.
	StateExtending
)

func (s GrowthState) String() string {
	switch s {
	case StateFitting:
		return "fitting"
	case StateExtending:
		return "extending"
	default:
		return "unknown"
	}
}

// Mapping is one calibrated (target key, scale) pair.
type Mapping struct {
	Target KeyID
	Scale  float64
}

// Sweep is the readout of both rigs while a single source key is active.
type Sweep struct {
	Source        KeyID
	SourceWeights KeyWeights
	TargetWeights KeyWeights
}

package rig

import (
	"errors"
	"fmt"

	blendshape "github.com/JoaoVitorSantiagoNogueira/facecapture/blend_shape"
)

var (
	// ErrUnknownKey is returned when a key id or name does not exist on the rig.
	ErrUnknownKey = errors.New("unknown shape key")

	// ErrUnknownRegion is returned when a key references a region the rig does not define.
	ErrUnknownRegion = errors.New("unknown region")
)

// Rig is an in-memory shape-key mesh. It also carries the live landmark mesh that capture writes into,
// which is what learned keys are taken from.
type Rig struct {
	name      string
	neutral   blendshape.Pose
	keys      []shapeKey
	regions   []blendshape.Region
	live      blendshape.Pose
	keyframes []Keyframe
}

type shapeKey struct {
	name   string
	pose   blendshape.Pose // already limited to its region
	region string
	value  float64
}

// Keyframe is a recorded set of key values.
type Keyframe struct {
	Frame   int
	Weights blendshape.KeyWeights
}

// New creates a rig with only a neutral pose.
func New(name string, neutral blendshape.Pose, regions ...blendshape.Region) *Rig {
	return &Rig{
		name:    name,
		neutral: neutral.Clone(),
		regions: regions,
	}
}

// FromFile builds a rig from its file form.
func FromFile(f *File) (*Rig, error) {
	if len(f.Keys) == 0 {
		return nil, fmt.Errorf("rig %q: %w", f.Name, blendshape.ErrNoNeutralPose)
	}
	regions := make([]blendshape.Region, 0, len(f.Regions))
	for _, rf := range f.Regions {
		regions = append(regions, blendshape.Region{Name: rf.Name, Points: blendshape.NewPointSet(rf.Points...)})
	}
	r := New(f.Name, toPose(f.Keys[0].Points), regions...)

	for _, kf := range f.Keys[1:] {
		var region *blendshape.Region
		if kf.Region != "" {
			region = r.region(kf.Region)
			if region == nil {
				return nil, fmt.Errorf("key %q: %w %q", kf.Name, ErrUnknownRegion, kf.Region)
			}
		}
		id, err := r.AddKey(kf.Name, toPose(kf.Points), region)
		if err != nil {
			return nil, err
		}
		r.keys[id.DeltaIndex()].value = kf.Value
	}
	return r, nil
}

// File returns a snapshot of the rig in file form.
func (r *Rig) File() *File {
	f := &File{Name: r.name}
	f.Keys = append(f.Keys, KeyFile{Name: "Basis", Points: fromPose(r.neutral)})
	for _, k := range r.keys {
		f.Keys = append(f.Keys, KeyFile{Name: k.name, Points: fromPose(k.pose), Region: k.region, Value: k.value})
	}
	for _, reg := range r.regions {
		f.Regions = append(f.Regions, RegionFile{Name: reg.Name, Points: reg.Points.Sorted()})
	}
	return f
}

// Name returns the rig name.
func (r *Rig) Name() string { return r.name }

// AddKey authors a named key. Points outside region keep their neutral position.
func (r *Rig) AddKey(name string, pose blendshape.Pose, region *blendshape.Region) (blendshape.KeyID, error) {
	if len(pose) != len(r.neutral) {
		return 0, fmt.Errorf("%w: key %q has %d points, rig has %d", blendshape.ErrDimensionMismatch, name, len(pose), len(r.neutral))
	}
	k := shapeKey{name: r.uniqueName(name), pose: pose.Clone()}
	if region != nil {
		k.region = region.Name
		for i := range k.pose {
			if !region.Points.Contains(i) {
				k.pose[i] = r.neutral[i]
			}
		}
	}
	r.keys = append(r.keys, k)
	return blendshape.DeltaKey(len(r.keys) - 1), nil
}

// AppendKey stores a learned key, named after its region.
func (r *Rig) AppendKey(pose blendshape.Pose, region *blendshape.Region) (blendshape.KeyID, error) {
	name := "key"
	if region != nil {
		name = "key_" + region.Name
	}
	return r.AddKey(name, pose, region)
}

// Regions returns the rig's point groups.
func (r *Rig) Regions() []blendshape.Region { return r.regions }

// KeyCount returns the number of keys including the neutral.
func (r *Rig) KeyCount() int { return len(r.keys) + 1 }

// Keys returns the ids of every non-neutral key.
func (r *Rig) Keys() []blendshape.KeyID {
	ids := make([]blendshape.KeyID, len(r.keys))
	for i := range r.keys {
		ids[i] = blendshape.DeltaKey(i)
	}
	return ids
}

// KeyID resolves a key name. "Basis" names the neutral.
func (r *Rig) KeyID(name string) (blendshape.KeyID, bool) {
	if name == "Basis" {
		return blendshape.NeutralKey, true
	}
	for i, k := range r.keys {
		if k.name == name {
			return blendshape.DeltaKey(i), true
		}
	}
	return 0, false
}

// KeyName returns the name of a key, or "" when it does not exist.
func (r *Rig) KeyName(id blendshape.KeyID) string {
	if id == blendshape.NeutralKey {
		return "Basis"
	}
	if i := id.DeltaIndex(); i >= 0 && i < len(r.keys) {
		return r.keys[i].name
	}
	return ""
}

// ReadKeyPoses returns the neutral followed by every key pose.
func (r *Rig) ReadKeyPoses() ([]blendshape.Pose, error) {
	poses := make([]blendshape.Pose, 0, len(r.keys)+1)
	poses = append(poses, r.neutral.Clone())
	for _, k := range r.keys {
		poses = append(poses, k.pose.Clone())
	}
	return poses, nil
}

// ReadWeights returns the value of every non-neutral key.
func (r *Rig) ReadWeights() (blendshape.KeyWeights, error) {
	kw := make(blendshape.KeyWeights, len(r.keys))
	for i, k := range r.keys {
		kw[blendshape.DeltaKey(i)] = k.value
	}
	return kw, nil
}

// WriteWeights sets key values. The write is rejected as a whole if any key is unknown.
func (r *Rig) WriteWeights(kw blendshape.KeyWeights) error {
	for id := range kw {
		if i := id.DeltaIndex(); i < 0 || i >= len(r.keys) {
			return fmt.Errorf("%w: %d", ErrUnknownKey, id)
		}
	}
	for id, v := range kw {
		r.keys[id.DeltaIndex()].value = v
	}
	return nil
}

// SetWeight sets a single key value.
func (r *Rig) SetWeight(id blendshape.KeyID, v float64) error {
	return r.WriteWeights(blendshape.KeyWeights{id: v})
}

// WriteLivePose replaces the live landmark mesh.
func (r *Rig) WriteLivePose(p blendshape.Pose) error {
	if len(p) != len(r.neutral) {
		return fmt.Errorf("%w: live pose has %d points, rig has %d", blendshape.ErrDimensionMismatch, len(p), len(r.neutral))
	}
	r.live = p.Clone()
	return nil
}

// ReadCurrentPose returns the live landmark mesh, or the blended key poses when nothing was captured yet.
func (r *Rig) ReadCurrentPose() (blendshape.Pose, error) {
	if r.live != nil {
		return r.live.Clone(), nil
	}
	return r.Blend(), nil
}

// Blend returns neutral + sum(value * (key - neutral)) over every key.
func (r *Rig) Blend() blendshape.Pose {
	out := r.neutral.Clone()
	for _, k := range r.keys {
		if k.value == 0 {
			continue
		}
		for i := range out {
			out[i] = out[i].Add(k.pose[i].Sub(r.neutral[i]).Mul(k.value))
		}
	}
	return out
}

// InsertKeyframe records the current key values at frame.
func (r *Rig) InsertKeyframe(frame int) error {
	kw, err := r.ReadWeights()
	if err != nil {
		return err
	}
	r.keyframes = append(r.keyframes, Keyframe{Frame: frame, Weights: kw})
	return nil
}

// Keyframes returns the recorded keyframes.
func (r *Rig) Keyframes() []Keyframe { return r.keyframes }

func (r *Rig) region(name string) *blendshape.Region {
	for i := range r.regions {
		if r.regions[i].Name == name {
			return &r.regions[i]
		}
	}
	return nil
}

// uniqueName suffixes name with .001, .002, ... until it is not taken.
func (r *Rig) uniqueName(name string) string {
	if _, taken := r.KeyID(name); !taken {
		return name
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%03d", name, n)
		if _, taken := r.KeyID(candidate); !taken {
			return candidate
		}
	}
}

package rig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/r3"

	blendshape "github.com/JoaoVitorSantiagoNogueira/facecapture/blend_shape"
)

// File is the on-disk form of a rig. Keys[0] is the neutral pose.
type File struct {
	Name    string       `json:"name"`
	Keys    []KeyFile    `json:"keys"`
	Regions []RegionFile `json:"regions,omitempty"`
}

// KeyFile is one shape key of a rig file.
type KeyFile struct {
	Name   string       `json:"name"`
	Points [][3]float64 `json:"points"`
	Region string       `json:"region,omitempty"`
	Value  float64      `json:"value,omitempty"`
}

// RegionFile is a named point group of a rig file.
type RegionFile struct {
	Name   string `json:"name"`
	Points []int  `json:"points"`
}

// Load reads and parses a rig file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rig file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rig file: %w", err)
	}
	return &f, nil
}

// Save writes the rig file as indented JSON.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding rig file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing rig file: %w", err)
	}
	return nil
}

// LoadFrames reads a recorded capture: a JSON array with one point list per frame.
// A null frame means no face was found in it.
func LoadFrames(path string) ([]blendshape.Pose, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading frames file: %w", err)
	}
	var raw [][][3]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing frames file: %w", err)
	}
	frames := make([]blendshape.Pose, len(raw))
	for i, pts := range raw {
		if pts == nil {
			continue
		}
		frames[i] = toPose(pts)
	}
	return frames, nil
}

func toPose(pts [][3]float64) blendshape.Pose {
	p := make(blendshape.Pose, len(pts))
	for i, v := range pts {
		p[i] = r3.Vector{X: v[0], Y: v[1], Z: v[2]}
	}
	return p
}

func fromPose(p blendshape.Pose) [][3]float64 {
	out := make([][3]float64, len(p))
	for i, v := range p {
		out[i] = [3]float64{v.X, v.Y, v.Z}
	}
	return out
}

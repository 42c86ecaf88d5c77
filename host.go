package facecapture

import (
	"context"

	blendshape "github.com/JoaoVitorSantiagoNogueira/facecapture/blend_shape"
)

// LandmarkSource produces normalized landmark frames, one call per tick.
type LandmarkSource interface {
	// NextFrame returns one pose per detected face. closed reports that the preview window was closed.
	NextFrame(ctx context.Context, showPreview bool) (frames []blendshape.Pose, closed bool, err error)
	// Close releases the capture device.
	Close() error
}

// WeightReader reads the current value of every non-neutral key.
type WeightReader interface {
	ReadWeights() (blendshape.KeyWeights, error)
}

// WeightWriter sets key values.
type WeightWriter interface {
	WriteWeights(blendshape.KeyWeights) error
}

// MeshHost is the mesh-authoring side of a session.
type MeshHost interface {
	blendshape.KeyAuthor
	WeightReader
	WeightWriter
	// KeyCount returns the number of keys including the neutral.
	KeyCount() int
	// ReadKeyPoses returns the neutral followed by every key pose, in key order.
	ReadKeyPoses() ([]blendshape.Pose, error)
}

// LivePoseWriter is implemented by hosts that mirror each captured frame onto a landmark mesh.
type LivePoseWriter interface {
	WriteLivePose(blendshape.Pose) error
}

// Keyframer is implemented by hosts that can record key values on a timeline.
type Keyframer interface {
	InsertKeyframe(frame int) error
}

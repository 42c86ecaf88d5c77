package facecapture

import (
	blendshape "github.com/JoaoVitorSantiagoNogueira/facecapture/blend_shape"
)

// Calibrate records one sweep for key: the source and target rigs are read as they currently stand,
// with key being the only active source key.
func Calibrate(source, target WeightReader, key blendshape.KeyID, table *blendshape.CalibrationTable, builder *blendshape.CalibrationBuilder) ([]blendshape.Mapping, error) {
	sw, err := source.ReadWeights()
	if err != nil {
		return nil, err
	}
	tw, err := target.ReadWeights()
	if err != nil {
		return nil, err
	}
	return builder.Apply(table, blendshape.Sweep{Source: key, SourceWeights: sw, TargetWeights: tw})
}

// ApplyRetarget drives target from the current source weights and returns what was written.
func ApplyRetarget(source WeightReader, target WeightWriter, r *blendshape.Retargeter) (blendshape.KeyWeights, error) {
	sw, err := source.ReadWeights()
	if err != nil {
		return nil, err
	}
	out := r.Apply(sw)
	if err := target.WriteWeights(out); err != nil {
		return nil, err
	}
	return out, nil
}

package blendshape

// Retargeter drives a target rig's keys from a source rig's weights through a calibration table.
type Retargeter struct {
	table   *CalibrationTable
	targets []KeyID
}

// NewRetargeter creates a Retargeter writing the given target keys.
func NewRetargeter(table *CalibrationTable, targets []KeyID) *Retargeter {
	t := make([]KeyID, len(targets))
	copy(t, targets)
	return &Retargeter{table: table, targets: t}
}

// Table returns the calibration table in use.
func (r *Retargeter) Table() *CalibrationTable {
	return r.table
}

// Apply returns the target weights for the given source weights. Every target starts at zero, so keys
// that are no longer active stop contributing. Contributions add up without normalization.
func (r *Retargeter) Apply(source KeyWeights) KeyWeights {
	out := make(KeyWeights, len(r.targets))
	for _, t := range r.targets {
		out[t] = 0
	}

	for _, k := range source.Keys() {
		w := source[k]
		if w == 0 {
			continue
		}
		for _, m := range r.table.Targets(k) {
			if _, ok := out[m.Target]; !ok {
				continue
			}
			out[m.Target] += w * m.Scale
		}
	}
	return out
}

package blendshape

import (
	"fmt"
	"math"
	"sort"

	"go.viam.com/rdk/logging"
)

// CalibrationTable maps each source key to the target keys it drives and the scale it drives them with.
type CalibrationTable struct {
	entries map[KeyID]map[KeyID]float64
}

// NewCalibrationTable returns an empty table.
func NewCalibrationTable() *CalibrationTable {
	return &CalibrationTable{entries: make(map[KeyID]map[KeyID]float64)}
}

// Set stores the scale for a (source, target) pair, replacing any previous value.
func (t *CalibrationTable) Set(source, target KeyID, scale float64) {
	row, ok := t.entries[source]
	if !ok {
		row = make(map[KeyID]float64)
		t.entries[source] = row
	}
	row[target] = scale
}

// Scale returns the scale for a pair and whether it has been calibrated.
func (t *CalibrationTable) Scale(source, target KeyID) (float64, bool) {
	s, ok := t.entries[source][target]
	return s, ok
}

// Sources returns the calibrated source keys in ascending order.
func (t *CalibrationTable) Sources() []KeyID {
	keys := make([]KeyID, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Targets returns the mappings of a source key ordered by target key.
func (t *CalibrationTable) Targets(source KeyID) []Mapping {
	row := t.entries[source]
	out := make([]Mapping, 0, len(row))
	for k, s := range row {
		out = append(out, Mapping{Target: k, Scale: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Len returns the number of calibrated pairs.
func (t *CalibrationTable) Len() int {
	n := 0
	for _, row := range t.entries {
		n += len(row)
	}
	return n
}

// CalibrationBuilder fills a CalibrationTable from single-key activation sweeps.
type CalibrationBuilder struct {
	cfg    CalibrationConfig
	logger logging.Logger
}

// NewCalibrationBuilder creates a CalibrationBuilder.
func NewCalibrationBuilder(cfg CalibrationConfig, logger logging.Logger) *CalibrationBuilder {
	return &CalibrationBuilder{cfg: cfg, logger: logger}
}

// Apply records scale = target reading / source reading for every active target key of the sweep.
// A source reading of exactly zero is treated as 1. The table is only written once the whole sweep validates.
//
// Every source key other than sweep.Source is expected to be inactive. Violations are logged, and rejected
// with ErrSweepNotIsolated when the builder is strict.
func (c *CalibrationBuilder) Apply(table *CalibrationTable, sweep Sweep) ([]Mapping, error) {
	if sweep.SourceWeights == nil || sweep.TargetWeights == nil {
		return nil, fmt.Errorf("%w: missing source or target readout", ErrIncompleteCalibrationSample)
	}
	if sweep.Source == NeutralKey {
		return nil, fmt.Errorf("%w: neutral key cannot be calibrated", ErrIncompleteCalibrationSample)
	}
	divider, ok := sweep.SourceWeights[sweep.Source]
	if !ok {
		return nil, fmt.Errorf("%w: source key %d has no reading", ErrIncompleteCalibrationSample, sweep.Source)
	}
	if !finite(divider) {
		return nil, fmt.Errorf("%w: source key %d reading is %v", ErrIncompleteCalibrationSample, sweep.Source, divider)
	}
	if divider == 0 {
		divider = 1
	}

	for _, k := range sweep.SourceWeights.Keys() {
		if k == sweep.Source || k == NeutralKey {
			continue
		}
		if math.Abs(sweep.SourceWeights[k]) <= c.cfg.IsolationEpsilon {
			continue
		}
		if c.cfg.Strict {
			return nil, fmt.Errorf("%w: key %d reads %.4f while sweeping key %d", ErrSweepNotIsolated, k, sweep.SourceWeights[k], sweep.Source)
		}
		c.logger.Warnf("Source key %d reads %.4f while sweeping key %d", k, sweep.SourceWeights[k], sweep.Source)
	}

	var mappings []Mapping
	for _, k := range sweep.TargetWeights.Keys() {
		v := sweep.TargetWeights[k]
		if !finite(v) {
			return nil, fmt.Errorf("%w: target key %d reading is %v", ErrIncompleteCalibrationSample, k, v)
		}
		if k == NeutralKey || v == 0 {
			continue
		}
		mappings = append(mappings, Mapping{Target: k, Scale: v / divider})
	}

	for _, m := range mappings {
		table.Set(sweep.Source, m.Target, m.Scale)
	}
	c.logger.Debugf("Calibrated source key %d onto %d target key(s)", sweep.Source, len(mappings))
	return mappings, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package blendshape

import (
	"fmt"

	"go.viam.com/rdk/logging"
)

// KeyAuthor is the mesh-authoring side the growth policy commits learned keys to.
type KeyAuthor interface {
	// ReadCurrentPose returns the mesh as it currently looks.
	ReadCurrentPose() (Pose, error)
	// AppendKey stores pose as a new shape key, scoped to region when region is non-nil.
	AppendKey(pose Pose, region *Region) (KeyID, error)
	// Regions lists the named point groups of the mesh, if any.
	Regions() []Region
}

// GrowthDecision reports what the growth policy did after a fit.
type GrowthDecision struct {
	Extended bool
	Keys     []KeyID
	Pose     Pose
	Err      error
}

// GrowthPolicy appends keys to a basis when it cannot reconstruct a frame within tolerance.
type GrowthPolicy struct {
	cfg    GrowthConfig
	logger logging.Logger
	state  GrowthState
}

// NewGrowthPolicy creates a GrowthPolicy in the fitting state.
func NewGrowthPolicy(cfg GrowthConfig, logger logging.Logger) *GrowthPolicy {
	return &GrowthPolicy{cfg: cfg, logger: logger, state: StateFitting}
}

// State returns the current policy state.
func (g *GrowthPolicy) State() GrowthState {
	return g.state
}

// Observe inspects a fit and, when its residual exceeds the tolerance, commits the author's current pose
// as new keys: one per non-empty region, or a single full-mesh key when no region has points.
// Failures are reported in the decision and never leave the policy outside the fitting state.
func (g *GrowthPolicy) Observe(fit *FitResult, basis *DeltaBasis, author KeyAuthor) GrowthDecision {
	if g.cfg.Disabled || fit == nil || fit.Residual <= g.cfg.Tolerance {
		return GrowthDecision{}
	}
	if g.cfg.MaxKeys > 0 && basis.Len() >= g.cfg.MaxKeys {
		g.logger.Debugf("Residual %.4f above tolerance but basis is full (%d keys)", fit.Residual, basis.Len())
		return GrowthDecision{}
	}

	g.state = StateExtending
	defer func() { g.state = StateFitting }()

	pose, err := author.ReadCurrentPose()
	if err != nil {
		g.logger.Warnf("Failed to read current pose for new key: %v", err)
		return GrowthDecision{Err: fmt.Errorf("read current pose: %w", err)}
	}
	if len(pose) != basis.PointCount() {
		err := fmt.Errorf("%w: current pose has %d points, basis has %d", ErrDimensionMismatch, len(pose), basis.PointCount())
		g.logger.Warnf("Not learning key: %v", err)
		return GrowthDecision{Err: err}
	}

	var regions []Region
	for _, r := range author.Regions() {
		if len(r.Points) > 0 {
			regions = append(regions, r)
		}
	}

	decision := GrowthDecision{Pose: pose}
	if len(regions) == 0 {
		id, err := author.AppendKey(pose, nil)
		if err != nil {
			g.logger.Warnf("Failed to append key: %v", err)
			decision.Err = fmt.Errorf("append key: %w", err)
			return decision
		}
		if _, err := basis.Append(pose); err != nil {
			decision.Err = err
			return decision
		}
		decision.Keys = append(decision.Keys, id)
	} else {
		for i := range regions {
			id, err := author.AppendKey(pose, &regions[i])
			if err != nil {
				g.logger.Warnf("Failed to append key for region %q: %v", regions[i].Name, err)
				decision.Err = fmt.Errorf("append key for region %q: %w", regions[i].Name, err)
				break
			}
			if _, err := basis.AppendRegion(pose, regions[i].Points); err != nil {
				decision.Err = err
				break
			}
			decision.Keys = append(decision.Keys, id)
		}
	}

	decision.Extended = len(decision.Keys) > 0
	if decision.Extended {
		g.logger.Infof("Residual %.4f > %.4f; learned %d key(s), basis now has %d", fit.Residual, g.cfg.Tolerance, len(decision.Keys), basis.Len())
	}
	return decision
}

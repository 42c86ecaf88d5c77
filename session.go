package facecapture

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/golang/geo/r3"

	blendshape "github.com/JoaoVitorSantiagoNogueira/facecapture/blend_shape"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
)

// SessionState is the lifecycle state of a capture session.
type SessionState int

const (
	// SessionRunning means the session accepts ticks.
	SessionRunning SessionState = iota
	// SessionStopped means the capture device was released and no further tick will run.
	SessionStopped
)

func (s SessionState) String() string {
	switch s {
	case SessionRunning:
		return "running"
	case SessionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session holds everything one capture session owns: the collaborators, the basis being fit
// and the per-tick pipeline state. It is created when capture starts, passed to every tick and
// discarded after Stop. A Session is not safe for concurrent use.
type Session struct {
	logger logging.Logger
	cfg    SessionConfig

	source LandmarkSource
	host   MeshHost

	// Optional retargeting onto a second rig.
	target     MeshHost
	retargeter *blendshape.Retargeter

	basis  *blendshape.DeltaBasis
	solver *blendshape.Solver
	growth *blendshape.GrowthPolicy

	armed bool
	state SessionState
	ticks int
}

// TickResult describes one pass of the capture pipeline.
type TickResult struct {
	Tick       int
	Captured   bool
	Fit        *blendshape.FitResult
	Growth     blendshape.GrowthDecision
	Retargeted blendshape.KeyWeights

	CaptureTime time.Duration
	SolveTime   time.Duration
	TotalTime   time.Duration
}

// Option configures optional parts of a Session.
type Option func(*Session) error

// WithRetarget drives every key of target from the session's weights through table.
// The target's keys are resolved once, when the session is created.
func WithRetarget(target MeshHost, table *blendshape.CalibrationTable) Option {
	return func(s *Session) error {
		kw, err := target.ReadWeights()
		if err != nil {
			return fmt.Errorf("read target keys: %w", err)
		}
		s.target = target
		s.retargeter = blendshape.NewRetargeter(table, kw.Keys())
		return nil
	}
}

// NewSession arms a capture session over host and source.
func NewSession(host MeshHost, source LandmarkSource, cfg SessionConfig, logger logging.Logger, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	poses, err := host.ReadKeyPoses()
	if err != nil {
		return nil, fmt.Errorf("read key poses: %w", err)
	}
	basis, err := blendshape.NewDeltaBasis(poses)
	if err != nil {
		return nil, fmt.Errorf("build basis: %w", err)
	}

	s := &Session{
		logger: logger,
		cfg:    cfg,
		source: source,
		host:   host,
		basis:  basis,
		solver: blendshape.NewSolver(cfg.Solver),
		growth: blendshape.NewGrowthPolicy(cfg.Growth, logger),
		armed:  true,
		state:  SessionRunning,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	logger.Infof("Session armed: %d points, %d keys, tolerance %.4f", basis.PointCount(), basis.Len(), cfg.Growth.Tolerance)
	return s, nil
}

// Armed reports whether the session will accept another tick.
func (s *Session) Armed() bool { return s.armed }

// State returns the session lifecycle state.
func (s *Session) State() SessionState { return s.state }

// Basis returns the basis being fit.
func (s *Session) Basis() *blendshape.DeltaBasis { return s.basis }

// Ticks returns the number of ticks run so far.
func (s *Session) Ticks() int { return s.ticks }

// Stop disarms the session and releases the landmark source. Only the first call has any effect.
func (s *Session) Stop() {
	if s.state == SessionStopped {
		return
	}
	s.armed = false
	s.state = SessionStopped
	if err := s.source.Close(); err != nil {
		s.logger.Warnf("Failed to release capture: %v", err)
	}
	s.logger.Infof("Session stopped after %d ticks, basis has %d keys", s.ticks, s.basis.Len())
}

// syncBasis rebuilds the basis when the host's keys were changed outside the session.
func (s *Session) syncBasis() error {
	if s.host.KeyCount() == s.basis.Len()+1 {
		return nil
	}
	poses, err := s.host.ReadKeyPoses()
	if err != nil {
		return fmt.Errorf("read key poses: %w", err)
	}
	basis, err := blendshape.NewDeltaBasis(poses)
	if err != nil {
		return fmt.Errorf("rebuild basis: %w", err)
	}
	s.logger.Infof("Host keys changed; rebuilt basis with %d keys", basis.Len())
	s.basis = basis
	return nil
}

// exportKeys writes the given host keys as PCD files into the export directory.
func (s *Session) exportKeys(keys []blendshape.KeyID) {
	poses, err := s.host.ReadKeyPoses()
	if err != nil {
		s.logger.Warnf("Failed to read learned keys for export: %v", err)
		return
	}
	var offset spatialmath.Pose
	if o := s.cfg.ExportOffset; o != [3]float64{} {
		offset = spatialmath.NewPoseFromPoint(r3.Vector{X: o[0], Y: o[1], Z: o[2]})
	}
	for _, id := range keys {
		if int(id) < 0 || int(id) >= len(poses) {
			continue
		}
		path := filepath.Join(s.cfg.ExportDir, fmt.Sprintf("key_%d.pcd", id))
		if err := ExportPose(poses[id], path, offset); err != nil {
			s.logger.Warnf("Failed to export key %d: %v", id, err)
			continue
		}
		s.logger.Debugf("Saved learned key %d to %s", id, path)
	}
}

func clampWeights(w blendshape.Weights) blendshape.Weights {
	out := make(blendshape.Weights, len(w))
	for i, v := range w {
		out[i] = min(max(v, 0), 1)
	}
	return out
}

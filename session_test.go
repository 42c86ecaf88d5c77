package facecapture

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	blendshape "github.com/JoaoVitorSantiagoNogueira/facecapture/blend_shape"
	"github.com/JoaoVitorSantiagoNogueira/facecapture/internal/rig"
	"go.viam.com/rdk/logging"
)

// scriptedSource plays back a fixed list of frame batches and counts how it is used.
type scriptedSource struct {
	batches  [][]blendshape.Pose
	closedAt int // 1-based call that raises the closed signal; 0 = never
	err      error
	calls    int
	closes   int
}

func (s *scriptedSource) NextFrame(ctx context.Context, showPreview bool) ([]blendshape.Pose, bool, error) {
	s.calls++
	if s.err != nil && s.calls > len(s.batches) {
		return nil, false, s.err
	}
	var frames []blendshape.Pose
	if i := s.calls - 1; i < len(s.batches) {
		frames = s.batches[i]
	}
	return frames, s.calls == s.closedAt, nil
}

func (s *scriptedSource) Close() error {
	s.closes++
	return nil
}

func frames(poses ...blendshape.Pose) [][]blendshape.Pose {
	out := make([][]blendshape.Pose, len(poses))
	for i, p := range poses {
		out[i] = []blendshape.Pose{p}
	}
	return out
}

// exampleRig has one point with keys moving it to (2,0,0) and (0,2,0).
func exampleRig(t *testing.T, regions ...blendshape.Region) *rig.Rig {
	t.Helper()
	r := rig.New("face", blendshape.Pose{{}}, regions...)
	if _, err := r.AddKey("x", blendshape.Pose{{X: 2}}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddKey("y", blendshape.Pose{{Y: 2}}, nil); err != nil {
		t.Fatal(err)
	}
	return r
}

func newTestSession(t *testing.T, host MeshHost, source LandmarkSource, cfg SessionConfig, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(host, source, cfg, logging.NewTestLogger(t), opts...)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func TestTick_FitsFrame(t *testing.T) {
	host := exampleRig(t)
	source := &scriptedSource{batches: frames(blendshape.Pose{{X: 1, Y: 1}})}
	s := newTestSession(t, host, source, DefaultSessionConfig())

	res, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if !res.Captured || res.Fit == nil {
		t.Fatalf("expected a captured fit, got %+v", res)
	}
	if res.Growth.Extended {
		t.Error("exact fit should not grow the basis")
	}

	kw, _ := host.ReadWeights()
	if math.Abs(kw[1]-0.5) > 1e-9 || math.Abs(kw[2]-0.5) > 1e-9 {
		t.Errorf("expected host weights 0.5/0.5, got %v", kw)
	}
	live, _ := host.ReadCurrentPose()
	if live[0].X != 1 || live[0].Y != 1 {
		t.Errorf("live pose not written: %v", live)
	}
}

func TestTick_LearnsUnexplainedExpression(t *testing.T) {
	host := exampleRig(t)
	frame := blendshape.Pose{{Z: 3}}
	source := &scriptedSource{batches: frames(frame, frame)}
	s := newTestSession(t, host, source, DefaultSessionConfig())

	res, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if !res.Growth.Extended || host.KeyCount() != 4 || s.Basis().Len() != 3 {
		t.Fatalf("expected a learned key, got growth=%+v keys=%d", res.Growth, host.KeyCount())
	}

	res, err = s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Fit.Residual > 1e-12 || res.Growth.Extended {
		t.Errorf("learned key should explain the frame, residual %g", res.Fit.Residual)
	}
	kw, _ := host.ReadWeights()
	if math.Abs(kw[3]-1) > 1e-9 {
		t.Errorf("expected learned key weight 1, got %v", kw[3])
	}
}

func TestTick_LearnsPerRegion(t *testing.T) {
	host := rig.New("face", blendshape.Pose{{}, {}},
		blendshape.Region{Name: "left", Points: blendshape.NewPointSet(0)},
		blendshape.Region{Name: "right", Points: blendshape.NewPointSet(1)},
	)
	source := &scriptedSource{batches: frames(blendshape.Pose{{X: 1}, {X: -1}})}
	s := newTestSession(t, host, source, DefaultSessionConfig())

	res, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(res.Growth.Keys) != 2 {
		t.Fatalf("expected one key per region, got %v", res.Growth.Keys)
	}
	if host.KeyName(1) != "key_left" || host.KeyName(2) != "key_right" {
		t.Errorf("unexpected key names %q, %q", host.KeyName(1), host.KeyName(2))
	}
}

func TestTick_NoFaceIsNoop(t *testing.T) {
	host := exampleRig(t)
	source := &scriptedSource{batches: [][]blendshape.Pose{nil}}
	s := newTestSession(t, host, source, DefaultSessionConfig())

	res, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Captured || res.Fit != nil {
		t.Errorf("expected a no-op tick, got %+v", res)
	}
	if !s.Armed() {
		t.Error("no-op tick disarmed the session")
	}
}

func TestTick_CaptureFailureStopsOnce(t *testing.T) {
	source := &scriptedSource{err: errors.New("camera unplugged")}
	s := newTestSession(t, exampleRig(t), source, DefaultSessionConfig())

	_, err := s.Tick(context.Background())
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
	}
	if s.Armed() || s.State() != SessionStopped {
		t.Errorf("session should be stopped, state %v", s.State())
	}

	if _, err := s.Tick(context.Background()); !errors.Is(err, ErrSessionStopped) {
		t.Errorf("expected ErrSessionStopped, got %v", err)
	}
	s.Stop()
	if source.calls != 1 {
		t.Errorf("source read %d times after stop", source.calls)
	}
	if source.closes != 1 {
		t.Errorf("capture released %d times, want 1", source.closes)
	}
}

func TestTick_ClosedPreviewStops(t *testing.T) {
	source := &scriptedSource{batches: frames(blendshape.Pose{{X: 1}}), closedAt: 1}
	s := newTestSession(t, exampleRig(t), source, DefaultSessionConfig())

	res, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if !res.Captured {
		t.Error("closing tick should still process its frame")
	}
	if s.Armed() || source.closes != 1 {
		t.Errorf("expected stopped session with one release, armed=%v closes=%d", s.Armed(), source.closes)
	}
}

func TestTick_SolveErrorIsLocal(t *testing.T) {
	source := &scriptedSource{batches: frames(blendshape.Pose{{}, {}}, blendshape.Pose{{X: 2}})}
	s := newTestSession(t, exampleRig(t), source, DefaultSessionConfig())

	if _, err := s.Tick(context.Background()); !errors.Is(err, blendshape.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if !s.Armed() {
		t.Fatal("a bad frame should not stop the session")
	}
	if _, err := s.Tick(context.Background()); err != nil {
		t.Errorf("next tick failed: %v", err)
	}
}

func TestTick_RebuildsBasisWhenHostChanges(t *testing.T) {
	host := exampleRig(t)
	source := &scriptedSource{batches: frames(blendshape.Pose{{Z: 1}})}
	s := newTestSession(t, host, source, DefaultSessionConfig())

	if _, err := host.AddKey("z", blendshape.Pose{{Z: 2}}, nil); err != nil {
		t.Fatal(err)
	}
	res, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if s.Basis().Len() != 3 {
		t.Errorf("expected rebuilt basis of 3, got %d", s.Basis().Len())
	}
	if math.Abs(res.Fit.Weights[2]-0.5) > 1e-9 {
		t.Errorf("expected weight 0.5 on the new key, got %v", res.Fit.Weights)
	}
}

func TestTick_Retargets(t *testing.T) {
	host := exampleRig(t)
	target := rig.New("other", blendshape.Pose{{}, {}})
	for _, name := range []string{"a", "b"} {
		if _, err := target.AddKey(name, blendshape.Pose{{X: 1}, {X: 1}}, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := target.SetWeight(2, 0.9); err != nil {
		t.Fatal(err)
	}

	table := blendshape.NewCalibrationTable()
	table.Set(1, 1, 2)
	table.Set(2, 1, 1)

	source := &scriptedSource{batches: frames(blendshape.Pose{{X: 1, Y: 1}})}
	s := newTestSession(t, host, source, DefaultSessionConfig(), WithRetarget(target, table))

	res, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	kw, _ := target.ReadWeights()
	if math.Abs(kw[1]-1.5) > 1e-9 {
		t.Errorf("expected target key 1 at 1.5, got %v", kw[1])
	}
	if kw[2] != 0 {
		t.Errorf("unmapped target key should be reset to 0, got %v", kw[2])
	}
	if len(res.Retargeted) != 2 {
		t.Errorf("expected both target keys written, got %v", res.Retargeted)
	}
}

func TestTick_ClampAndKeyframe(t *testing.T) {
	host := exampleRig(t)
	source := &scriptedSource{batches: frames(blendshape.Pose{{X: 3, Y: -1}})}
	cfg := DefaultSessionConfig()
	cfg.ClampWeights = true
	cfg.AutoKeyframe = true
	cfg.Growth.Disabled = true
	s := newTestSession(t, host, source, cfg)

	res, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if math.Abs(res.Fit.Weights[0]-1.5) > 1e-9 {
		t.Errorf("fit itself should stay unclamped, got %v", res.Fit.Weights)
	}
	kw, _ := host.ReadWeights()
	if kw[1] != 1 || kw[2] != 0 {
		t.Errorf("expected clamped host weights 1/0, got %v", kw)
	}
	kfs := host.Keyframes()
	if len(kfs) != 1 || kfs[0].Frame != 1 {
		t.Errorf("expected one keyframe at tick 1, got %+v", kfs)
	}
}

func TestTick_ExportsLearnedKeys(t *testing.T) {
	dir := t.TempDir()
	host := exampleRig(t)
	source := &scriptedSource{batches: frames(blendshape.Pose{{Z: 3}})}
	cfg := DefaultSessionConfig()
	cfg.ExportDir = dir
	s := newTestSession(t, host, source, cfg)

	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "key_3.pcd")); err != nil {
		t.Errorf("learned key not exported: %v", err)
	}
}

func TestRun_StopsWhenCaptureFails(t *testing.T) {
	source := &scriptedSource{
		batches: frames(blendshape.Pose{{X: 1}}, blendshape.Pose{{Y: 1}}),
		err:     errors.New("stream ended"),
	}
	cfg := DefaultSessionConfig()
	cfg.FPS = 1000
	s := newTestSession(t, exampleRig(t), source, cfg)

	err := Run(context.Background(), s)
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
	}
	if source.calls != 3 || source.closes != 1 {
		t.Errorf("expected 3 reads and 1 release, got %d and %d", source.calls, source.closes)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	replay := rig.NewReplay([]blendshape.Pose{{{X: 1}}, nil}, true)
	cfg := DefaultSessionConfig()
	cfg.FPS = 500
	s := newTestSession(t, exampleRig(t), replay, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := Run(ctx, s); err != nil {
		t.Fatalf("Run returned %v on cancellation", err)
	}
	if s.State() != SessionStopped {
		t.Errorf("expected stopped session, got %v", s.State())
	}
	if s.Ticks() == 0 {
		t.Error("expected at least one tick before cancellation")
	}
}

func TestRun_StopsOnClosedPreview(t *testing.T) {
	source := &scriptedSource{batches: frames(blendshape.Pose{{X: 1}}, blendshape.Pose{{X: 1}}), closedAt: 2}
	cfg := DefaultSessionConfig()
	cfg.FPS = 1000
	s := newTestSession(t, exampleRig(t), source, cfg)

	if err := Run(context.Background(), s); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if source.calls != 2 || source.closes != 1 {
		t.Errorf("expected 2 reads and 1 release, got %d and %d", source.calls, source.closes)
	}
}

func TestCalibrateAndApply(t *testing.T) {
	source := exampleRig(t)
	target := rig.New("other", blendshape.Pose{{}})
	if _, err := target.AddKey("jaw", blendshape.Pose{{X: 1}}, nil); err != nil {
		t.Fatal(err)
	}
	table := blendshape.NewCalibrationTable()
	builder := blendshape.NewCalibrationBuilder(DefaultSessionConfig().Calibration, logging.NewTestLogger(t))

	// Sweep key 1 at 0.5 with the target jaw posed at 0.25.
	if err := source.SetWeight(1, 0.5); err != nil {
		t.Fatal(err)
	}
	if err := target.SetWeight(1, 0.25); err != nil {
		t.Fatal(err)
	}
	if _, err := Calibrate(source, target, 1, table, builder); err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if s, _ := table.Scale(1, 1); s != 0.5 {
		t.Errorf("expected scale 0.5, got %v", s)
	}

	if err := source.SetWeight(1, 1); err != nil {
		t.Fatal(err)
	}
	out, err := ApplyRetarget(source, target, blendshape.NewRetargeter(table, target.Keys()))
	if err != nil {
		t.Fatalf("ApplyRetarget failed: %v", err)
	}
	if out[1] != 0.5 {
		t.Errorf("expected jaw at 0.5, got %v", out[1])
	}
}

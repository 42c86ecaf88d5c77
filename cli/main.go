package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JoaoVitorSantiagoNogueira/facecapture"
	blendshape "github.com/JoaoVitorSantiagoNogueira/facecapture/blend_shape"
	"github.com/JoaoVitorSantiagoNogueira/facecapture/internal/rig"

	"go.viam.com/rdk/logging"
)

// env carries everything a step needs.
type env struct {
	logger          logging.Logger
	cfg             facecapture.SessionConfig
	source          *rig.Rig
	targetPath      string
	framesPath      string
	key             string
	calibrationPath string
	outPath         string
}

var steps = map[string]func(context.Context, *env) error{
	"fit":       runFit,
	"calibrate": runCalibrate,
	"retarget":  runRetarget,
}

const validSteps = "fit, calibrate, retarget"

func main() {
	rigPath := flag.String("rig", "", "path to the source rig JSON file")
	step := flag.String("step", "", "step to run: "+validSteps)
	configPath := flag.String("config", "", "path to session attributes JSON file (optional)")
	targetPath := flag.String("target", "", "path to the target rig JSON file (calibrate, retarget)")
	framesPath := flag.String("frames", "", "path to landmark frames JSON file (fit)")
	key := flag.String("key", "", "source shape key being swept (calibrate)")
	calibrationPath := flag.String("calibration", "calibration.json", "calibration table file (calibrate, retarget)")
	outPath := flag.String("out", "", "write the updated target rig here (retarget, optional)")
	flag.Parse()

	logger := logging.NewLogger("facecapture-cli")

	if *rigPath == "" {
		logger.Fatal("-rig flag is required")
	}
	if *step == "" {
		logger.Fatal("-step flag is required; valid steps: " + validSteps)
	}
	run, ok := steps[*step]
	if !ok {
		logger.Fatalf("unknown step %q; valid steps: %s", *step, validSteps)
	}

	cfg := facecapture.DefaultSessionConfig()
	if *configPath != "" {
		var err error
		if cfg, err = facecapture.LoadSessionConfig(*configPath); err != nil {
			logger.Fatal(err)
		}
	}

	source, err := loadRig(*rigPath)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	e := &env{
		logger:          logger,
		cfg:             cfg,
		source:          source,
		targetPath:      *targetPath,
		framesPath:      *framesPath,
		key:             *key,
		calibrationPath: *calibrationPath,
		outPath:         *outPath,
	}

	logger.Infof("=== Running step: %s ===", *step)
	if err := run(ctx, e); err != nil {
		logger.Fatal(err)
	}
	logger.Infof("Step %s completed successfully", *step)
}

// runFit solves the first face of the frames file against the source rig and prints the weights.
func runFit(ctx context.Context, e *env) error {
	if e.framesPath == "" {
		return errors.New("-frames flag is required for fit")
	}
	frames, err := rig.LoadFrames(e.framesPath)
	if err != nil {
		return err
	}
	poses, err := e.source.ReadKeyPoses()
	if err != nil {
		return err
	}
	basis, err := blendshape.NewDeltaBasis(poses)
	if err != nil {
		return err
	}
	solver := blendshape.NewSolver(e.cfg.Solver)

	for i, frame := range frames {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if frame == nil {
			e.logger.Infof("Frame %d: no face", i)
			continue
		}
		fit, err := solver.Solve(basis, frame)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		e.logger.Infof("Frame %d: residual=%.6f rank=%d/%d over tolerance=%v",
			i, fit.Residual, fit.Rank, basis.Len(), fit.Residual > e.cfg.Growth.Tolerance)
		for j, w := range fit.Weights {
			e.logger.Infof("  %s: %.4f", e.source.KeyName(blendshape.DeltaKey(j)), w)
		}
	}
	return nil
}

// runCalibrate records one sweep of -key from the rigs' stored values into the calibration file.
func runCalibrate(ctx context.Context, e *env) error {
	if e.targetPath == "" || e.key == "" {
		return errors.New("-target and -key flags are required for calibrate")
	}
	target, err := loadRig(e.targetPath)
	if err != nil {
		return err
	}
	id, ok := e.source.KeyID(e.key)
	if !ok {
		return fmt.Errorf("%w: %q", rig.ErrUnknownKey, e.key)
	}

	table, err := facecapture.LoadCalibration(e.calibrationPath)
	if errors.Is(err, os.ErrNotExist) {
		table, err = blendshape.NewCalibrationTable(), nil
	}
	if err != nil {
		return err
	}

	builder := blendshape.NewCalibrationBuilder(e.cfg.Calibration, e.logger)
	mappings, err := facecapture.Calibrate(e.source, target, id, table, builder)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		e.logger.Infof("  %s -> %s: %.4f", e.key, target.KeyName(m.Target), m.Scale)
	}
	if err := facecapture.SaveCalibration(e.calibrationPath, table); err != nil {
		return err
	}
	e.logger.Infof("Saved %d calibrated pairs to %s", table.Len(), e.calibrationPath)
	return nil
}

// runRetarget drives the target rig from the source rig's stored values.
func runRetarget(ctx context.Context, e *env) error {
	if e.targetPath == "" {
		return errors.New("-target flag is required for retarget")
	}
	target, err := loadRig(e.targetPath)
	if err != nil {
		return err
	}
	table, err := facecapture.LoadCalibration(e.calibrationPath)
	if err != nil {
		return err
	}

	out, err := facecapture.ApplyRetarget(e.source, target, blendshape.NewRetargeter(table, target.Keys()))
	if err != nil {
		return err
	}
	for _, k := range out.Keys() {
		e.logger.Infof("  %s: %.4f", target.KeyName(k), out[k])
	}
	if e.outPath != "" {
		if err := target.File().Save(e.outPath); err != nil {
			return err
		}
		e.logger.Infof("Saved target rig to %s", e.outPath)
	}
	return nil
}

func loadRig(path string) (*rig.Rig, error) {
	f, err := rig.Load(path)
	if err != nil {
		return nil, err
	}
	return rig.FromFile(f)
}

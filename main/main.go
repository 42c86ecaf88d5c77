package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/JoaoVitorSantiagoNogueira/facecapture"
	"github.com/JoaoVitorSantiagoNogueira/facecapture/internal/rig"

	"go.viam.com/rdk/logging"
)

func main() {
	rigPath := flag.String("rig", "", "path to the shape-key rig JSON file")
	framesPath := flag.String("frames", "", "path to recorded landmark frames JSON file")
	configPath := flag.String("config", "", "path to session attributes JSON file (optional)")
	targetPath := flag.String("target", "", "path to a second rig to retarget onto (optional)")
	calibrationPath := flag.String("calibration", "", "calibration table used with -target")
	loop := flag.Bool("loop", false, "replay the frames until interrupted")
	outPath := flag.String("out", "", "write the rig with learned keys here when capture ends (optional)")
	flag.Parse()

	logger := logging.NewDebugLogger("facecapture")

	if *rigPath == "" || *framesPath == "" {
		logger.Fatal("-rig and -frames flags are required")
	}

	cfg := facecapture.DefaultSessionConfig()
	if *configPath != "" {
		var err error
		if cfg, err = facecapture.LoadSessionConfig(*configPath); err != nil {
			logger.Fatal(err)
		}
	}

	host := loadRig(logger, *rigPath)
	frames, err := rig.LoadFrames(*framesPath)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Infof("Loaded rig %q (%d keys) and %d frames", host.Name(), host.KeyCount(), len(frames))

	var opts []facecapture.Option
	var target *rig.Rig
	if *targetPath != "" {
		if *calibrationPath == "" {
			logger.Fatal("-calibration is required with -target")
		}
		target = loadRig(logger, *targetPath)
		table, err := facecapture.LoadCalibration(*calibrationPath)
		if err != nil {
			logger.Fatal(err)
		}
		logger.Infof("Retargeting onto %q with %d calibrated pairs", target.Name(), table.Len())
		opts = append(opts, facecapture.WithRetarget(target, table))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	session, err := facecapture.NewSession(host, rig.NewReplay(frames, *loop), cfg, logger, opts...)
	if err != nil {
		logger.Fatal(err)
	}

	runErr := facecapture.Run(ctx, session)

	if *outPath != "" {
		if err := host.File().Save(*outPath); err != nil {
			logger.Errorf("Failed to save rig: %v", err)
		} else {
			logger.Infof("Saved rig with %d keys to %s", host.KeyCount(), *outPath)
		}
	}

	// A recording that simply ran out is a normal end of capture.
	if errors.Is(runErr, rig.ErrReplayExhausted) {
		logger.Info("Replay finished")
		return
	}
	if runErr != nil {
		logger.Fatal(runErr)
	}
}

func loadRig(logger logging.Logger, path string) *rig.Rig {
	f, err := rig.Load(path)
	if err != nil {
		logger.Fatal(err)
	}
	r, err := rig.FromFile(f)
	if err != nil {
		logger.Fatal(err)
	}
	return r
}

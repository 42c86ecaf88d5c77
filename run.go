package facecapture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Run ticks the session at its configured frame rate until the context is cancelled, the preview is
// closed or capture fails. Only a capture failure is returned as an error; any other tick failure is
// logged and the next tick proceeds.
func Run(ctx context.Context, s *Session) error {
	period := time.Duration(float64(time.Second) / s.cfg.FPS)
	s.logger.Infof("Starting capture loop at %.1f fps", s.cfg.FPS)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	defer s.Stop()

	for s.Armed() {
		select {
		case <-ctx.Done():
			s.logger.Info("Shutting down")
			return nil
		case <-ticker.C:
		}

		res, err := s.Tick(ctx)
		if err != nil {
			if errors.Is(err, ErrCaptureUnavailable) {
				if ctx.Err() != nil {
					s.logger.Info("Shutting down")
					return nil
				}
				s.logger.Errorf("Capture failed: %v", err)
				return err
			}
			if errors.Is(err, ErrSessionStopped) {
				break
			}
			s.logger.Warnf("Tick %d skipped: %v", res.Tick, err)
			continue
		}
		if res.Captured && res.TotalTime > 0 {
			s.logger.Debugf("Tick %d: capture %v, solve %v, total %v (%.1f fps), residual %.4f",
				res.Tick, res.CaptureTime, res.SolveTime, res.TotalTime, 1/res.TotalTime.Seconds(), res.Fit.Residual)
		}
	}

	s.logger.Info("Capture loop finished")
	return nil
}

// Tick runs one capture, solve and apply pass. Errors other than ErrCaptureUnavailable and
// ErrSessionStopped leave the session running.
func (s *Session) Tick(ctx context.Context) (*TickResult, error) {
	if !s.armed {
		return nil, ErrSessionStopped
	}
	s.ticks++
	res := &TickResult{Tick: s.ticks}
	start := time.Now()
	defer func() { res.TotalTime = time.Since(start) }()

	frames, closed, err := s.source.NextFrame(ctx, s.cfg.ShowPreview)
	res.CaptureTime = time.Since(start)
	if err != nil {
		s.Stop()
		return res, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	if closed {
		s.logger.Info("Preview closed; stopping capture")
		defer s.Stop()
	}
	if len(frames) == 0 {
		return res, nil
	}
	res.Captured = true

	// Only the first face is tracked.
	frame := frames[0]
	if w, ok := s.host.(LivePoseWriter); ok {
		if err := w.WriteLivePose(frame); err != nil {
			return res, fmt.Errorf("write live pose: %w", err)
		}
	}
	if err := s.syncBasis(); err != nil {
		return res, err
	}

	solveStart := time.Now()
	fit, err := s.solver.Solve(s.basis, frame)
	res.SolveTime = time.Since(solveStart)
	if err != nil {
		return res, fmt.Errorf("solve: %w", err)
	}
	res.Fit = fit
	if fit.RankDeficient {
		s.logger.Debugf("Basis is rank deficient (rank %d of %d); using minimum-norm weights", fit.Rank, len(fit.Weights))
	}

	weights := fit.Weights
	if s.cfg.ClampWeights {
		weights = clampWeights(weights)
	}
	if err := s.host.WriteWeights(weights.ToKeyWeights()); err != nil {
		return res, fmt.Errorf("write weights: %w", err)
	}

	res.Growth = s.growth.Observe(fit, s.basis, s.host)
	if res.Growth.Extended && s.cfg.ExportDir != "" {
		s.exportKeys(res.Growth.Keys)
	}

	if s.retargeter != nil {
		out, err := ApplyRetarget(s.host, s.target, s.retargeter)
		if err != nil {
			return res, fmt.Errorf("retarget: %w", err)
		}
		res.Retargeted = out
	}

	if s.cfg.AutoKeyframe {
		if k, ok := s.host.(Keyframer); ok {
			if err := k.InsertKeyframe(s.ticks); err != nil {
				return res, fmt.Errorf("insert keyframe: %w", err)
			}
		}
	}
	return res, nil
}

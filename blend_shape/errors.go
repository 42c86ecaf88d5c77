package blendshape

import "errors"

var (
	// ErrNoNeutralPose is returned when a basis is built from an empty pose set.
	ErrNoNeutralPose = errors.New("no neutral pose given")

	// ErrDimensionMismatch is returned when point counts or weight counts disagree with the basis.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrSolveFailed is returned when the least-squares factorization does not converge.
	ErrSolveFailed = errors.New("least-squares factorization failed")

	// ErrIncompleteCalibrationSample is returned when a calibration sweep lacks required readings.
	ErrIncompleteCalibrationSample = errors.New("incomplete calibration sample")

	// ErrSweepNotIsolated is returned in strict mode when a sweep has more than one active source key.
	ErrSweepNotIsolated = errors.New("calibration sweep has more than one active source key")
)

package blendshape

// Config holds all configuration for the shape-key fitting pipeline.
type Config struct {
	Solver      SolverConfig      `mapstructure:"solver"`
	Growth      GrowthConfig      `mapstructure:"growth"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
}

// SolverConfig holds parameters for the least-squares weight solve.
type SolverConfig struct {
	RCond float64 `mapstructure:"rcond"` // Relative singular value cutoff; 0 = machine epsilon * max(rows, cols)
}

// GrowthConfig holds parameters for automatic key insertion.
type GrowthConfig struct {
	Tolerance float64 `mapstructure:"tolerance"` // Fit residual above which a new key is learned
	MaxKeys   int     `mapstructure:"max_keys"`  // Upper bound on basis size; 0 = no limit
	Disabled  bool    `mapstructure:"disabled"`  // Never append keys
}

// CalibrationConfig holds parameters for building a calibration table.
type CalibrationConfig struct {
	IsolationEpsilon float64 `mapstructure:"isolation_epsilon"` // Readings at or below this count as inactive
	Strict           bool    `mapstructure:"strict"`            // Reject sweeps with more than one active source key
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Solver: SolverConfig{
			RCond: 0,
		},
		Growth: GrowthConfig{
			Tolerance: 0.5,
			MaxKeys:   0,
		},
		Calibration: CalibrationConfig{
			IsolationEpsilon: 1e-6,
		},
	}
}

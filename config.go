package facecapture

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"

	blendshape "github.com/JoaoVitorSantiagoNogueira/facecapture/blend_shape"
)

// SessionConfig holds the settings of one capture session.
type SessionConfig struct {
	FPS          float64    `mapstructure:"fps"`           // Ticks per second
	ShowPreview  bool       `mapstructure:"show_preview"`  // Ask the landmark source to display its feed
	AutoKeyframe bool       `mapstructure:"auto_keyframe"` // Record a keyframe on every captured tick
	ClampWeights bool       `mapstructure:"clamp_weights"` // Clamp fitted weights to [0, 1] before writing them
	ExportDir    string     `mapstructure:"export_dir"`    // Write learned keys as PCD files here; "" = off
	ExportOffset [3]float64 `mapstructure:"export_offset"` // Translation applied to exported keys

	blendshape.Config `mapstructure:",squash"`
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		FPS:    30,
		Config: blendshape.DefaultConfig(),
	}
}

// Validate checks that the configuration can drive a session.
func (c SessionConfig) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive, got %v", ErrInvalidConfig, c.FPS)
	}
	if c.Growth.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance must not be negative, got %v", ErrInvalidConfig, c.Growth.Tolerance)
	}
	if c.Solver.RCond < 0 {
		return fmt.Errorf("%w: rcond must not be negative, got %v", ErrInvalidConfig, c.Solver.RCond)
	}
	return nil
}

// SessionConfigFromAttributes decodes a loosely typed attribute map over the defaults.
// Unknown attributes are rejected.
func SessionConfigFromAttributes(attrs map[string]interface{}) (SessionConfig, error) {
	cfg := DefaultSessionConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return SessionConfig{}, err
	}
	if err := dec.Decode(attrs); err != nil {
		return SessionConfig{}, fmt.Errorf("decode session attributes: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return SessionConfig{}, err
	}
	return cfg, nil
}

// LoadSessionConfig reads a JSON attribute file and decodes it over the defaults.
func LoadSessionConfig(path string) (SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SessionConfig{}, fmt.Errorf("reading config file: %w", err)
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return SessionConfig{}, fmt.Errorf("parsing config file: %w", err)
	}
	return SessionConfigFromAttributes(attrs)
}

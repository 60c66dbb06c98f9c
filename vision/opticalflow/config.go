// Package opticalflow tracks sparse points between consecutive grayscale frames with the pyramidal
// Lucas-Kanade method, seeding them from a corner strength detector.
package opticalflow

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Config contains the parameters of corner detection and point tracking.
type Config struct {
	// MaxCorners bounds how many corners are detected in the previous frame.
	MaxCorners int `json:"max_corners"`
	// QualityLevel is the minimum corner strength relative to the strongest corner.
	QualityLevel float64 `json:"quality_level"`
	// MinDistance is the minimum separation between detected corners in pixels.
	MinDistance float64 `json:"min_distance_px"`
	// WindowSize is the side of the square search window at each pyramid level.
	WindowSize int `json:"window_size_px"`
	// PyramidLevels is the number of levels above the full resolution image.
	PyramidLevels int     `json:"pyramid_levels"`
	MaxIterations int     `json:"max_iterations"`
	Epsilon       float64 `json:"epsilon"`
}

// DefaultConfig returns the tracking parameters used for marker tracking.
func DefaultConfig() *Config {
	return &Config{
		MaxCorners:    100,
		QualityLevel:  0.3,
		MinDistance:   7,
		WindowSize:    21,
		PyramidLevels: 3,
		MaxIterations: 30,
		Epsilon:       0.01,
	}
}

// Validate ensures all parts of the Config are valid.
func (config *Config) Validate(path string) error {
	if config.MaxCorners < 1 {
		return utils.NewConfigValidationError(path, errors.New("max_corners should be >= 1"))
	}
	if config.QualityLevel <= 0 || config.QualityLevel > 1 {
		return utils.NewConfigValidationError(path, errors.New("quality_level should be in (0, 1]"))
	}
	if config.MinDistance < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_distance_px cannot be negative"))
	}
	if config.WindowSize < 3 {
		return utils.NewConfigValidationError(path, errors.New("window_size_px should be >= 3"))
	}
	if config.PyramidLevels < 0 {
		return utils.NewConfigValidationError(path, errors.New("pyramid_levels cannot be negative"))
	}
	if config.MaxIterations < 1 || config.Epsilon <= 0 {
		return utils.NewConfigValidationError(path, errors.New("termination criteria must be positive"))
	}
	return nil
}

// Package markertracking finds a single planar image target in a video stream and follows it
// frame to frame, recovering the target's pose relative to the camera.
//
// A Tracker alternates between two modes. While Searching it matches ORB features of each frame
// against the MarkerTemplate and fits a homography to locate the target. Once found it switches to
// Tracking, where the target outline is carried forward with optical flow and the pose is solved
// from it. Any failure on the tracking path drops back to Searching on the next frame.
package markertracking

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/viam-labs/imagetarget/rimage/transform"
	"github.com/viam-labs/imagetarget/vision/keypoints"
	"github.com/viam-labs/imagetarget/vision/opticalflow"
)

// Config contains the parameters of every stage of marker search and tracking.
type Config struct {
	ORB      *keypoints.ORBConfig      `json:"orb"`
	Matching *keypoints.MatchingConfig `json:"matching"`
	// MinMatches is the largest number of accepted matches that still means the marker is absent.
	MinMatches  int                    `json:"min_matches"`
	Homography  transform.RANSACConfig `json:"homography"`
	OpticalFlow *opticalflow.Config    `json:"optical_flow"`
	// MinTrackable is the fewest corners the previous frame must offer for tracking to go on.
	MinTrackable int `json:"min_trackable"`
	// MinTracked is the fewest corners that must be followed into the current frame.
	MinTracked int                 `json:"min_tracked"`
	PnP        transform.PnPConfig `json:"pnp"`

	// Intrinsics of the camera. When missing they are derived from the first frame's resolution.
	Intrinsics           *transform.PinholeCameraIntrinsics `json:"intrinsic_parameters,omitempty"`
	DistortionModel      transform.DistortionType           `json:"distortion_model,omitempty"`
	DistortionParameters []float64                          `json:"distortion_parameters,omitempty"`

	Overlay OverlayOptions `json:"overlay"`
}

// DefaultConfig returns the standard tracking parameters.
func DefaultConfig() *Config {
	return &Config{
		ORB:          keypoints.DefaultORBConfig(),
		Matching:     keypoints.DefaultMatchingConfig(),
		MinMatches:   5,
		Homography:   transform.DefaultHomographyRANSACConfig(),
		OpticalFlow:  opticalflow.DefaultConfig(),
		MinTrackable: 10,
		MinTracked:   5,
		PnP:          transform.DefaultPnPConfig(),
		Overlay:      OverlayOptions{Rect: true, Axis: true},
	}
}

// LoadConfig reads a JSON configuration file. Fields missing from the file keep their defaults.
func LoadConfig(file string) (*Config, error) {
	configFile, err := os.Open(filepath.Clean(file))
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)

	config := DefaultConfig()
	if err := json.NewDecoder(configFile).Decode(config); err != nil {
		return nil, errors.Wrapf(err, "cannot parse tracking config %q", file)
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) error {
	if config.ORB == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "orb")
	}
	if err := config.ORB.Validate(path + ".orb"); err != nil {
		return err
	}
	if config.Matching == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "matching")
	}
	if config.Matching.RatioThreshold <= 0 || config.Matching.RatioThreshold > 1 {
		return utils.NewConfigValidationError(path, errors.New("matching.ratio_threshold should be in (0, 1]"))
	}
	if config.MinMatches < 3 {
		return utils.NewConfigValidationError(path, errors.New("min_matches should be >= 3 so a homography can be fit"))
	}
	if err := config.Homography.CheckValid(); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "homography"))
	}
	if config.OpticalFlow == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "optical_flow")
	}
	if err := config.OpticalFlow.Validate(path + ".optical_flow"); err != nil {
		return err
	}
	if config.MinTracked < 4 {
		return utils.NewConfigValidationError(path, errors.New("min_tracked should be >= 4"))
	}
	if config.MinTrackable < config.MinTracked {
		return utils.NewConfigValidationError(path, errors.New("min_trackable cannot be smaller than min_tracked"))
	}
	if err := config.PnP.CheckValid(); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "pnp"))
	}
	if config.Intrinsics != nil {
		if err := config.Intrinsics.CheckValid(); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	if _, err := config.distorter(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// distorter builds the lens model, or nil for an ideal lens.
func (config *Config) distorter() (transform.Distorter, error) {
	if config.DistortionModel == "" && len(config.DistortionParameters) == 0 {
		return nil, nil
	}
	return transform.NewDistorter(config.DistortionModel, config.DistortionParameters)
}

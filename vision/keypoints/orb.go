package keypoints

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gocv.io/x/gocv"

	"github.com/viam-labs/imagetarget/rimage"
)

// ORBConfig contains the parameters / configs needed to compute ORB features.
type ORBConfig struct {
	MaxFeatures   int     `json:"max_features"`
	ScaleFactor   float64 `json:"scale_factor"`
	Layers        int     `json:"n_layers"`
	EdgeThreshold int     `json:"edge_threshold"`
	PatchSize     int     `json:"patch_size"`
	FastThreshold int     `json:"fast_threshold"`
}

// DefaultORBConfig returns the usual ORB settings with up to 500 features.
func DefaultORBConfig() *ORBConfig {
	return &ORBConfig{
		MaxFeatures:   500,
		ScaleFactor:   1.2,
		Layers:        8,
		EdgeThreshold: 31,
		PatchSize:     31,
		FastThreshold: 20,
	}
}

// LoadORBConfiguration loads a ORBConfig from a json file.
func LoadORBConfiguration(file string) (*ORBConfig, error) {
	filePath := filepath.Clean(file)
	configFile, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	config := DefaultORBConfig()
	if err := json.NewDecoder(configFile).Decode(config); err != nil {
		return nil, err
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate ensures all parts of the ORBConfig are valid.
func (config *ORBConfig) Validate(path string) error {
	if config.MaxFeatures < 1 {
		return utils.NewConfigValidationError(path, errors.New("max_features should be >= 1"))
	}
	if config.ScaleFactor <= 1 {
		return utils.NewConfigValidationError(path, errors.New("scale_factor should be greater than 1"))
	}
	if config.Layers < 1 {
		return utils.NewConfigValidationError(path, errors.New("n_layers should be >= 1"))
	}
	if config.PatchSize < 2 {
		return utils.NewConfigValidationError(path, errors.New("patch_size should be >= 2"))
	}
	if config.EdgeThreshold < 0 || config.FastThreshold < 0 {
		return utils.NewConfigValidationError(path, errors.New("thresholds cannot be negative"))
	}
	return nil
}

// ComputeORBKeypoints detects ORB keypoints on a gray image and computes their descriptors. An image
// without texture yields no keypoints and no error.
func ComputeORBKeypoints(im *image.Gray, cfg *ORBConfig) (Descriptors, KeyPoints, error) {
	if err := rimage.CheckImage(im); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate("orb"); err != nil {
		return nil, nil, err
	}
	mat, err := rimage.GrayToMat(im)
	if err != nil {
		return nil, nil, err
	}
	defer utils.UncheckedErrorFunc(mat.Close)

	orb := gocv.NewORBWithParams(
		cfg.MaxFeatures,
		float32(cfg.ScaleFactor),
		cfg.Layers,
		cfg.EdgeThreshold,
		0,
		2,
		gocv.ORBScoreTypeHarris,
		cfg.PatchSize,
		cfg.FastThreshold,
	)
	defer utils.UncheckedErrorFunc(orb.Close)

	mask := gocv.NewMat()
	defer utils.UncheckedErrorFunc(mask.Close)
	cvKps, descMat := orb.DetectAndCompute(mat, mask)
	defer utils.UncheckedErrorFunc(descMat.Close)

	if len(cvKps) == 0 || descMat.Empty() {
		return Descriptors{}, KeyPoints{}, nil
	}
	if descMat.Rows() != len(cvKps) {
		return nil, nil, errors.Errorf("orb returned %d descriptors for %d keypoints", descMat.Rows(), len(cvKps))
	}

	raw := descMat.ToBytes()
	width := descMat.Cols()
	descs := make(Descriptors, len(cvKps))
	kps := make(KeyPoints, len(cvKps))
	for i, kp := range cvKps {
		desc := make(Descriptor, width)
		copy(desc, raw[i*width:(i+1)*width])
		descs[i] = desc
		kps[i] = KeyPoint{
			Point:    r2.Point{X: kp.X, Y: kp.Y},
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
		}
	}
	return descs, kps, nil
}

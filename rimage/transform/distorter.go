package transform

import "github.com/pkg/errors"

// DistortionType names a lens distortion model in configuration.
type DistortionType string

const (
	// BrownConradyDistortionType is radial plus tangential distortion, suited to the narrow field
	// lenses of webcams and phones.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// InverseBrownConradyDistortionType is for coefficients calibrated in the undistorting
	// direction, as some calibration tools report them.
	InverseBrownConradyDistortionType = DistortionType("inverse_brown_conrady")
)

// Distorter moves points between the ideal pinhole image and the one a real lens produces. Both
// directions work on normalized image coordinates, i.e. before the focal length and principal
// point are applied.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	// Transform distorts an ideal point.
	Transform(x, y float64) (float64, float64)
	// Undistort is the inverse of Transform.
	Undistort(x, y float64) (float64, float64)
}

// ErrInvalidDistortion is wrapped by errors about malformed distortion parameters.
var ErrInvalidDistortion = errors.New("invalid distortion_parameters")

// InvalidDistortionError wraps ErrInvalidDistortion with msg.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(ErrInvalidDistortion, msg)
}

// NewDistorter builds the named model from its coefficients. An empty name means Brown-Conrady.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case BrownConradyDistortionType, "":
		return NewBrownConrady(parameters)
	case InverseBrownConradyDistortionType:
		return NewInverseBrownConrady(parameters)
	default:
		return nil, errors.Errorf("unknown distortion model %q", distortionType)
	}
}

package transform

import (
	"encoding/json"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is wrapped by every error about missing or unusable camera intrinsics.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError wraps ErrNoIntrinsics with msg.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics are the focal lengths and principal point, in pixels, of a camera at a
// given resolution.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// NewPinholeCameraIntrinsicsFromResolution guesses intrinsics for an uncalibrated camera: both focal
// lengths equal the larger image dimension, about a 53 degree field of view across it, and the
// principal point is the image center.
func NewPinholeCameraIntrinsicsFromResolution(width, height int) (*PinholeCameraIntrinsics, error) {
	f := float64(max(width, height))
	intrinsics := &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     f,
		Fy:     f,
		Ppx:    float64(width) / 2,
		Ppy:    float64(height) / 2,
	}
	return intrinsics, intrinsics.CheckValid()
}

// NewPinholeCameraIntrinsicsFromJSONFile reads intrinsics from a JSON file with the keys
// width_px, height_px, fx, fy, ppx and ppy.
func NewPinholeCameraIntrinsicsFromJSONFile(path string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read intrinsics")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(data, intrinsics); err != nil {
		return nil, errors.Wrapf(err, "cannot parse intrinsics in %s", path)
	}
	return intrinsics, intrinsics.CheckValid()
}

// CheckValid requires a positive size and focal lengths and a principal point that is not negative.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("no intrinsics given")
	}
	switch {
	case params.Width <= 0 || params.Height <= 0:
		return NewNoIntrinsicsError("image size must be positive")
	case params.Fx <= 0 || params.Fy <= 0:
		return NewNoIntrinsicsError("focal lengths must be positive")
	case params.Ppx < 0 || params.Ppy < 0:
		return NewNoIntrinsicsError("principal point must not be negative")
	}
	return nil
}

// FieldOfView returns the horizontal and vertical field of view in degrees.
func (params *PinholeCameraIntrinsics) FieldOfView() (float64, float64) {
	fov := func(size int, f float64) float64 {
		return 2 * math.Atan(float64(size)/(2*f)) * 180 / math.Pi
	}
	return fov(params.Width, params.Fx), fov(params.Height, params.Fy)
}

// Matrix returns the 3x3 camera matrix K.
func (params *PinholeCameraIntrinsics) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// PinholeCameraModel is a camera's intrinsics plus its lens distortion. A nil Distortion is an
// ideal lens.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// NewPinholeCameraModel validates both parts and combines them.
func NewPinholeCameraModel(intrinsics *PinholeCameraIntrinsics, distortion Distorter) (*PinholeCameraModel, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if distortion != nil {
		if err := distortion.CheckValid(); err != nil {
			return nil, err
		}
	}
	return &PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: distortion}, nil
}

// ProjectPoint maps a point in the camera frame to a distorted pixel. A point on the camera plane
// is treated as lying just in front of it.
func (params *PinholeCameraModel) ProjectPoint(pt r3.Vector) r2.Point {
	z := pt.Z
	if math.Abs(z) < 1e-12 {
		z = math.Copysign(1e-12, z)
	}
	x, y := pt.X/z, pt.Y/z
	if params.Distortion != nil {
		x, y = params.Distortion.Transform(x, y)
	}
	return r2.Point{X: params.Fx*x + params.Ppx, Y: params.Fy*y + params.Ppy}
}

// UndistortPixel maps a pixel to the normalized coordinates (x/z, y/z) of the ray through it.
func (params *PinholeCameraModel) UndistortPixel(px r2.Point) r2.Point {
	x, y := (px.X-params.Ppx)/params.Fx, (px.Y-params.Ppy)/params.Fy
	if params.Distortion != nil {
		x, y = params.Distortion.Undistort(x, y)
	}
	return r2.Point{X: x, Y: y}
}

package markertracking

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/viam-labs/imagetarget/rimage"
	"github.com/viam-labs/imagetarget/vision/keypoints"
)

// ErrMalformedTemplate is returned when a template's features are inconsistent.
var ErrMalformedTemplate = errors.New("malformed marker template")

// MarkerTemplate is the reference picture of the target with its features. It is built once and
// never modified.
type MarkerTemplate struct {
	img         *image.Gray
	width       float64
	height      float64
	keypoints   keypoints.KeyPoints
	descriptors keypoints.Descriptors
}

// NewMarkerTemplate converts img to grayscale and extracts its ORB features. The physical width of
// the printed target is width; its height follows from the image aspect ratio.
func NewMarkerTemplate(img image.Image, width float64, cfg *keypoints.ORBConfig) (*MarkerTemplate, error) {
	if err := rimage.CheckImage(img); err != nil {
		return nil, errors.Wrap(err, "marker template")
	}
	if cfg == nil {
		cfg = keypoints.DefaultORBConfig()
	}
	gray := rimage.CloneGray(rimage.MakeGray(img))
	descs, kps, err := keypoints.ComputeORBKeypoints(gray, cfg)
	if err != nil {
		return nil, err
	}
	height := width * float64(gray.Bounds().Dy()) / float64(gray.Bounds().Dx())
	return NewMarkerTemplateFromFeatures(gray, width, height, kps, descs)
}

// NewMarkerTemplateFromFile loads a template image from disk.
func NewMarkerTemplateFromFile(fn string, width float64, cfg *keypoints.ORBConfig) (*MarkerTemplate, error) {
	img, err := rimage.NewGrayFromFile(fn)
	if err != nil {
		return nil, err
	}
	return NewMarkerTemplate(img, width, cfg)
}

// NewMarkerTemplateFromFeatures assembles a template from precomputed features, which must be
// index aligned.
func NewMarkerTemplateFromFeatures(
	img *image.Gray,
	width, height float64,
	kps keypoints.KeyPoints,
	descs keypoints.Descriptors,
) (*MarkerTemplate, error) {
	if err := rimage.CheckImage(img); err != nil {
		return nil, errors.Wrap(err, "marker template")
	}
	if len(kps) != len(descs) {
		return nil, errors.Wrapf(ErrMalformedTemplate, "%d keypoints but %d descriptors", len(kps), len(descs))
	}
	if !(width > 0) || !(height > 0) {
		return nil, errors.Wrapf(ErrMalformedTemplate, "physical size must be positive, got %vx%v", width, height)
	}
	return &MarkerTemplate{
		img:         rimage.CloneGray(img),
		width:       width,
		height:      height,
		keypoints:   append(keypoints.KeyPoints{}, kps...),
		descriptors: append(keypoints.Descriptors{}, descs...),
	}, nil
}

// Image returns the grayscale template.
func (mt *MarkerTemplate) Image() *image.Gray {
	return mt.img
}

// PhysicalSize returns the width and height of the printed target.
func (mt *MarkerTemplate) PhysicalSize() (float64, float64) {
	return mt.width, mt.height
}

// KeyPoints returns the template keypoints.
func (mt *MarkerTemplate) KeyPoints() keypoints.KeyPoints {
	return mt.keypoints
}

// Descriptors returns the template descriptors, aligned with KeyPoints.
func (mt *MarkerTemplate) Descriptors() keypoints.Descriptors {
	return mt.descriptors
}

// Corners returns the template image corners in pixels, clockwise from the top left.
func (mt *MarkerTemplate) Corners() []r2.Point {
	w, h := float64(mt.img.Bounds().Dx()), float64(mt.img.Bounds().Dy())
	return []r2.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
}

// ObjectCorners returns the target corners in its own frame, in the same order as Corners. The
// target lies on z = 0 centered at the origin with x to the right and y down.
func (mt *MarkerTemplate) ObjectCorners() []r3.Vector {
	hw, hh := mt.width/2, mt.height/2
	return []r3.Vector{{X: -hw, Y: -hh}, {X: hw, Y: -hh}, {X: hw, Y: hh}, {X: -hw, Y: hh}}
}

// Package keypoints contains the detection, description and matching of keypoints in an image:
// - ORB keypoints with binary descriptors
// - brute force Hamming matching with a nearest neighbor ratio test
package keypoints

import (
	"image"

	"github.com/golang/geo/r2"

	"github.com/viam-labs/imagetarget/rimage"
)

// KeyPoint is a detected feature location with the attributes of its detection.
type KeyPoint struct {
	Point    r2.Point
	Size     float64
	Angle    float64
	Response float64
	Octave   int
}

// KeyPoints is a set of keypoints.
type KeyPoints []KeyPoint

// Points returns the locations of the keypoints.
func (kps KeyPoints) Points() []r2.Point {
	pts := make([]r2.Point, len(kps))
	for i, kp := range kps {
		pts[i] = kp.Point
	}
	return pts
}

// PlotKeypoints plots keypoints on image.
func PlotKeypoints(img *image.Gray, kps KeyPoints, outName string) error {
	dc := rimage.NewContextFromGray(img)
	dc.SetRGBA(0, 0, 1, 0.5)
	for _, pt := range kps.Points() {
		dc.DrawCircle(pt.X, pt.Y, 3.0)
		dc.Fill()
	}
	return dc.SavePNG(outName)
}

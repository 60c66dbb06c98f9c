// Package rimage holds the grayscale image plumbing shared by the vision packages: loading,
// validation, conversion to and from OpenCV matrices, and drawing helpers.
package rimage

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ErrEmptyImage is returned when an image has no pixels.
var ErrEmptyImage = errors.New("image has zero width or height")

// CheckImage returns an error if the image is missing or has no pixels.
func CheckImage(img image.Image) error {
	if img == nil {
		return errors.Wrap(ErrEmptyImage, "image is nil")
	}
	if img.Bounds().Empty() {
		return ErrEmptyImage
	}
	return nil
}

// SameImgSize compares images to see if they're the same size.
func SameImgSize(g1, g2 image.Image) bool {
	return g1.Bounds().Dx() == g2.Bounds().Dx() && g1.Bounds().Dy() == g2.Bounds().Dy()
}

// MakeGray takes any image and makes it gray (image.Gray), with bounds shifted to start at the
// origin. Gray images already at the origin are returned as-is.
func MakeGray(pic image.Image) *image.Gray {
	if g, ok := pic.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := pic.Bounds()
	result := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(result, result.Bounds(), pic, b.Min, draw.Src)
	return result
}

// NewGrayFromFile decodes an image file (honoring EXIF orientation) and converts it to grayscale.
func NewGrayFromFile(fn string) (*image.Gray, error) {
	img, err := imaging.Open(fn, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open image %q", fn)
	}
	if err := CheckImage(img); err != nil {
		return nil, errors.Wrapf(err, "image %q", fn)
	}
	return MakeGray(img), nil
}

// ResizeGray scales a grayscale image to width pixels wide, keeping its aspect ratio. It is used
// to bring oversized frames down to a working resolution.
func ResizeGray(img *image.Gray, width int) *image.Gray {
	if width <= 0 || width == img.Bounds().Dx() {
		return img
	}
	return MakeGray(imaging.Resize(img, width, 0, imaging.Lanczos))
}

// WriteImageToFile writes an image to a file, picking the format from the extension.
func WriteImageToFile(fn string, img image.Image) error {
	return errors.Wrapf(imaging.Save(img, fn), "cannot write image %q", fn)
}

// CloneGray returns a copy of img that shares no pixels with it, with bounds starting at the origin.
func CloneGray(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return out
}

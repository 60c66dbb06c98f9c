package rimage

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// GrayToMat copies a grayscale image into a new single channel 8 bit OpenCV matrix.
// The caller owns the returned matrix and must Close it.
func GrayToMat(img *image.Gray) (gocv.Mat, error) {
	if err := CheckImage(img); err != nil {
		return gocv.NewMat(), err
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	pix := img.Pix
	if img.Stride != w || len(pix) != w*h {
		pix = make([]byte, 0, w*h)
		for y := 0; y < h; y++ {
			start := y * img.Stride
			pix = append(pix, img.Pix[start:start+w]...)
		}
	}
	m, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, pix)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "cannot build matrix from gray image")
	}
	// detach from the go owned pixel buffer
	out := m.Clone()
	if err := m.Close(); err != nil {
		out.Close()
		return gocv.NewMat(), err
	}
	return out, nil
}

// MatToGray converts an OpenCV matrix to a grayscale image, converting color matrices first.
func MatToGray(m gocv.Mat) (*image.Gray, error) {
	if m.Empty() {
		return nil, ErrEmptyImage
	}
	gray := m
	if m.Channels() != 1 {
		gray = gocv.NewMat()
		defer gray.Close()
		var code gocv.ColorConversionCode
		switch m.Channels() {
		case 3:
			code = gocv.ColorBGRToGray
		case 4:
			code = gocv.ColorBGRAToGray
		default:
			return nil, errors.Errorf("unsupported channel count %d", m.Channels())
		}
		if err := gocv.CvtColor(m, &gray, code); err != nil {
			return nil, errors.Wrap(err, "cannot convert matrix to gray")
		}
	}
	img, err := gray.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "cannot convert matrix to image")
	}
	return MakeGray(img), nil
}

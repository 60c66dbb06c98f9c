// Package testutils provides synthetic imagery for exercising the vision packages in tests.
package testutils

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/disintegration/imaging"

	"github.com/viam-labs/imagetarget/rimage"
)

// TexturedGray returns a deterministic, strongly cornered pattern: random filled rectangles of
// random intensity over a diagonal gradient.
func TexturedGray(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(64 + (x+y)*64/(w+h))})
		}
	}
	for i := 0; i < w*h/1000; i++ {
		rw, rh := 6+rng.Intn(w/6), 6+rng.Intn(h/6)
		x0, y0 := rng.Intn(w-rw), rng.Intn(h-rh)
		c := color.Gray{Y: uint8(rng.Intn(256))}
		for y := y0; y < y0+rh; y++ {
			for x := x0; x < x0+rw; x++ {
				img.SetGray(x, y, c)
			}
		}
	}
	return img
}

// Blank returns an image of a single intensity.
func Blank(w, h int, value uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = value
	}
	return img
}

// Embed scales img by an integer factor with nearest neighbor sampling and pastes it centered on
// a canvas of the given size filled with background.
func Embed(img *image.Gray, canvasW, canvasH, scale int, background uint8) *image.Gray {
	scaled := image.Image(img)
	if scale != 1 {
		scaled = imaging.Resize(img, img.Bounds().Dx()*scale, img.Bounds().Dy()*scale, imaging.NearestNeighbor)
	}
	return rimage.MakeGray(imaging.PasteCenter(Blank(canvasW, canvasH, background), scaled))
}

// PasteAt places img with its top left corner at pos on a canvas filled with background.
func PasteAt(img *image.Gray, canvasW, canvasH int, pos image.Point, background uint8) *image.Gray {
	return rimage.MakeGray(imaging.Paste(Blank(canvasW, canvasH, background), img, pos))
}

package rimage

import (
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r2"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	labelFontOnce sync.Once
	labelFont     *truetype.Font
)

// LabelFont returns the parsed Go Regular font used for annotations.
func LabelFont() *truetype.Font {
	labelFontOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			// the font is compiled in; failing to parse it is a build problem
			panic(err)
		}
		labelFont = f
	})
	return labelFont
}

// NewContextFromGray returns a drawing context whose background is the given grayscale image,
// so colored annotations can be drawn over a frame.
func NewContextFromGray(img *image.Gray) *gg.Context {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	return dc
}

// DrawString writes text with its top left corner at p, wrapping at the right edge.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(LabelFont(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()-p.X), 1, gg.AlignLeft)
}

// DrawSegment strokes a straight line from one point to another.
func DrawSegment(dc *gg.Context, from, to r2.Point, c color.Color, width float64) {
	strokePath(dc, []r2.Point{from, to}, false, c, width)
}

// DrawPolygonEmpty strokes the closed outline through pts. Fewer than two points draw nothing.
func DrawPolygonEmpty(dc *gg.Context, pts []r2.Point, c color.Color, width float64) {
	strokePath(dc, pts, true, c, width)
}

func strokePath(dc *gg.Context, pts []r2.Point, closed bool, c color.Color, width float64) {
	if len(pts) < 2 {
		return
	}
	dc.NewSubPath()
	for _, p := range pts {
		dc.LineTo(p.X, p.Y)
	}
	if closed {
		dc.ClosePath()
	}
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.Stroke()
}

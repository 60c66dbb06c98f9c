package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) used to transform a plane from the perspective of a 2D
// camera to the perspective of another 2D camera. Indices are [row][column].
type Homography [3][3]float64

// NewHomography creates a Homography from a slice of 9 values in row major order.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = vals[3*i+j]
		}
	}
	return &h, nil
}

// NewHomographyFromDense copies a 3x3 gonum matrix into a Homography scaled so the bottom right
// entry is 1.
func NewHomographyFromDense(m mat.Matrix) (*Homography, error) {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return nil, errors.Errorf("homography must be 3x3, got %dx%d", r, c)
	}
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = m.At(i, j)
		}
	}
	if err := h.normalize(); err != nil {
		return nil, err
	}
	return &h, nil
}

func (h *Homography) normalize() error {
	scale := h[2][2]
	if math.Abs(scale) < 1e-12 {
		// fall back to the spectral norm when the bottom right entry vanishes
		scale = mat.Norm(h.Dense(), 2)
		if scale == 0 {
			return ErrHomographyNotFound
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] /= scale
			if math.IsNaN(h[i][j]) || math.IsInf(h[i][j], 0) {
				return ErrHomographyNotFound
			}
		}
	}
	return nil
}

// At returns the value of the homography at the specified row and column.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Apply maps a point through the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// ApplyAll maps every point through the homography.
func (h *Homography) ApplyAll(pts []r2.Point) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = h.Apply(p)
	}
	return out
}

// Dense returns the homography as a gonum matrix.
func (h *Homography) Dense() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		m.SetRow(i, h[i][:])
	}
	return m
}

func (h *Homography) String() string {
	return fmt.Sprintf("%v", *h)
}

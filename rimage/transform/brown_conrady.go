package transform

import (
	"fmt"
	"math"
)

// BrownConrady is the radial and tangential lens distortion model. Parameters are ordered
// k1, k2, k3, p1, p2 as in OpenCV calibration output, minus k4 and beyond.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady reads up to five coefficients; missing trailing ones are zero.
func NewBrownConrady(coeffs []float64) (*BrownConrady, error) {
	if len(coeffs) > 5 {
		return nil, InvalidDistortionError(fmt.Sprintf("expected at most 5 brown_conrady coefficients, got %d", len(coeffs)))
	}
	var k [5]float64
	copy(k[:], coeffs)
	bc := &BrownConrady{RadialK1: k[0], RadialK2: k[1], RadialK3: k[2], TangentialP1: k[3], TangentialP2: k[4]}
	return bc, bc.CheckValid()
}

// CheckValid reports coefficients that are missing or not finite.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("brown_conrady coefficients not provided")
	}
	for _, p := range bc.Parameters() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return InvalidDistortionError("brown_conrady coefficients must be finite")
		}
	}
	return nil
}

// ModelType returns BrownConradyDistortionType.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the coefficients in constructor order.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.RadialK3, bc.TangentialP1, bc.TangentialP2}
}

// distort evaluates the model and its jacobian at (x, y).
func (bc *BrownConrady) distort(x, y float64) (xd, yd float64, jac [4]float64) {
	k1, k2, k3 := bc.RadialK1, bc.RadialK2, bc.RadialK3
	p1, p2 := bc.TangentialP1, bc.TangentialP2
	r2 := x*x + y*y
	radial := 1 + r2*(k1+r2*(k2+r2*k3))
	xd = x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd = y*radial + 2*p2*x*y + p1*(r2+2*y*y)

	// d(radial)/d(r2), times 2 for d/dx = 2x * d/d(r2)
	dRadial := 2 * (k1 + r2*(2*k2+3*k3*r2))
	jac = [4]float64{
		radial + x*x*dRadial + 2*p1*y + 6*p2*x,
		x*y*dRadial + 2*p1*x + 2*p2*y,
		x*y*dRadial + 2*p2*y + 2*p1*x,
		radial + y*y*dRadial + 2*p2*x + 6*p1*y,
	}
	return xd, yd, jac
}

// Transform distorts an ideal normalized point.
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	xd, yd, _ := bc.distort(x, y)
	return xd, yd
}

// Undistort inverts Transform with Newton steps starting from the distorted point itself, which
// converges in a handful of iterations for the moderate distortion of ordinary lenses.
func (bc *BrownConrady) Undistort(xd, yd float64) (float64, float64) {
	if bc == nil {
		return xd, yd
	}
	const (
		maxSteps = 20
		tol      = 1e-10
	)
	x, y := xd, yd
	for step := 0; step < maxSteps; step++ {
		fx, fy, j := bc.distort(x, y)
		ex, ey := fx-xd, fy-yd
		if ex*ex+ey*ey < tol*tol {
			break
		}
		det := j[0]*j[3] - j[1]*j[2]
		if det == 0 {
			break
		}
		x -= (j[3]*ex - j[1]*ey) / det
		y -= (j[0]*ey - j[2]*ex) / det
	}
	return x, y
}

// InverseBrownConrady holds Brown-Conrady coefficients fitted in the undistorting direction, so
// its Transform is BrownConrady.Undistort and the reverse.
type InverseBrownConrady struct {
	BrownConrady
}

// NewInverseBrownConrady reads coefficients like NewBrownConrady.
func NewInverseBrownConrady(coeffs []float64) (*InverseBrownConrady, error) {
	bc, err := NewBrownConrady(coeffs)
	if err != nil {
		return nil, err
	}
	return &InverseBrownConrady{*bc}, nil
}

// ModelType returns InverseBrownConradyDistortionType.
func (ibc *InverseBrownConrady) ModelType() DistortionType {
	return InverseBrownConradyDistortionType
}

// Transform distorts an ideal point.
func (ibc *InverseBrownConrady) Transform(x, y float64) (float64, float64) {
	if ibc == nil {
		return x, y
	}
	return ibc.BrownConrady.Undistort(x, y)
}

// Undistort maps a distorted point back to the ideal image.
func (ibc *InverseBrownConrady) Undistort(x, y float64) (float64, float64) {
	if ibc == nil {
		return x, y
	}
	return ibc.BrownConrady.Transform(x, y)
}

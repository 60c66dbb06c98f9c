package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RotationMatrix is a 3x3 matrix in row major order.
// m[3*r + c] is the element in the r'th row and c'th column.
type RotationMatrix struct {
	mat [9]float64
}

// NewIdentityRotationMatrix returns the identity rotation.
func NewIdentityRotationMatrix() *RotationMatrix {
	return &RotationMatrix{mat: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// NewRotationMatrix creates the rotation matrix from a slice of 9 values in row major order.
func NewRotationMatrix(m []float64) (*RotationMatrix, error) {
	if len(m) != 9 {
		return nil, errors.New("input slice has wrong length to be a valid rotation matrix")
	}
	var rm RotationMatrix
	copy(rm.mat[:], m)
	return &rm, nil
}

// NewRotationMatrixFromDense projects a 3x3 dense matrix onto the closest rotation, which
// makes it safe to use on estimates such as those recovered from a homography.
func NewRotationMatrixFromDense(m mat.Matrix) (*RotationMatrix, error) {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return nil, fmt.Errorf("rotation matrix must be 3x3, got %dx%d", r, c)
	}
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, errors.New("could not factorize rotation estimate")
	}
	var u, v, rot mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		// reflect the last singular direction to stay in SO(3)
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		rot.Mul(&u, v.T())
	}
	var rm RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rm.mat[3*i+j] = rot.At(i, j)
		}
	}
	return &rm, nil
}

// At returns the value of the rotation matrix at the specified row and column.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[3*row+col]
}

// Row returns the row of the rotation matrix as an r3.Vector.
func (rm *RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[3*row], Y: rm.mat[3*row+1], Z: rm.mat[3*row+2]}
}

// Col returns the column of the rotation matrix as an r3.Vector.
func (rm *RotationMatrix) Col(col int) r3.Vector {
	return r3.Vector{X: rm.mat[col], Y: rm.mat[3+col], Z: rm.mat[6+col]}
}

// Mul rotates the vector.
func (rm *RotationMatrix) Mul(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.Row(0).Dot(v),
		Y: rm.Row(1).Dot(v),
		Z: rm.Row(2).Dot(v),
	}
}

// Transpose returns the inverse rotation.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	var t RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t.mat[3*j+i] = rm.mat[3*i+j]
		}
	}
	return &t
}

// Dense returns a copy of the rotation as a gonum matrix.
func (rm *RotationMatrix) Dense() *mat.Dense {
	data := make([]float64, 9)
	copy(data, rm.mat[:])
	return mat.NewDense(3, 3, data)
}

// AxisAngle recovers the axis and angle of the rotation, with the angle in [0, pi].
func (rm *RotationMatrix) AxisAngle() AxisAngle {
	// R = cI + s[k]x + (1-c)kk^T, so the skew part gives 2s*k and the trace gives 1+2c
	skew := r3.Vector{
		X: rm.At(2, 1) - rm.At(1, 2),
		Y: rm.At(0, 2) - rm.At(2, 0),
		Z: rm.At(1, 0) - rm.At(0, 1),
	}
	sinTheta := skew.Norm() / 2
	cosTheta := (rm.mat[0] + rm.mat[4] + rm.mat[8] - 1) / 2
	theta := math.Atan2(sinTheta, cosTheta)
	if theta < 1e-12 {
		return NoRotation()
	}
	if cosTheta > -0.5 {
		return AxisAngle{Axis: skew.Mul(1 / skew.Norm()), Angle: theta}
	}

	// past 120 degrees the skew part shrinks toward zero. The symmetric part (R+R^T)/2 - cI is
	// (1-c)kk^T; its largest column is a multiple of k, and the skew part still fixes the sign.
	best, bestNorm := r3.Vector{}, -1.0
	for col := 0; col < 3; col++ {
		c := r3.Vector{
			X: (rm.At(0, col) + rm.At(col, 0)) / 2,
			Y: (rm.At(1, col) + rm.At(col, 1)) / 2,
			Z: (rm.At(2, col) + rm.At(col, 2)) / 2,
		}
		switch col {
		case 0:
			c.X -= cosTheta
		case 1:
			c.Y -= cosTheta
		default:
			c.Z -= cosTheta
		}
		if n := c.Norm(); n > bestNorm {
			best, bestNorm = c, n
		}
	}
	axis := best.Normalize()
	if axis.Dot(skew) < 0 {
		axis = axis.Mul(-1)
	}
	return AxisAngle{Axis: axis, Angle: theta}
}

// RotationVector returns the rotation as a Rodrigues vector, whose direction is the axis and
// whose length is the angle in radians.
func (rm *RotationMatrix) RotationVector() r3.Vector {
	return rm.AxisAngle().RotationVector()
}

// NewRotationMatrixFromRotationVector builds the rotation described by a Rodrigues vector.
func NewRotationMatrixFromRotationVector(v r3.Vector) *RotationMatrix {
	return AxisAngleFromRotationVector(v).RotationMatrix()
}

// RotationMatrixAlmostEqual returns whether every element of the two rotations is within tol.
func RotationMatrixAlmostEqual(a, b *RotationMatrix, tol float64) bool {
	for i := range a.mat {
		if math.Abs(a.mat[i]-b.mat[i]) > tol {
			return false
		}
	}
	return true
}

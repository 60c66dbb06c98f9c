package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2: the centroid
// moves to the origin and the mean distance to it becomes sqrt(2).
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, error) {
	if len(pts) == 0 {
		return nil, nil, ErrNotEnoughCorrespondences
	}
	n := float64(len(pts))
	var centroid r2.Point
	for _, pt := range pts {
		centroid = centroid.Add(pt.Mul(1 / n))
	}
	spread := 0.0
	for _, pt := range pts {
		spread += pt.Sub(centroid).Norm() / n
	}
	if spread < 1e-12 {
		return nil, nil, errors.New("points are coincident")
	}
	s := math.Sqrt2 / spread
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = pt.Sub(centroid).Mul(s)
	}
	return out, mat.NewDense(3, 3, []float64{
		s, 0, -s * centroid.X,
		0, s, -s * centroid.Y,
		0, 0, 1,
	}), nil
}

// nullVector returns the right singular vector of the smallest singular value, which is the least
// squares solution of A x = 0 with |x| = 1.
func nullVector(a *mat.Dense) ([]float64, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, errors.New("svd factorization failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	_, c := v.Dims()
	return mat.Col(nil, c-1, &v), nil
}

// dltHomography computes the homography taking src onto dst with the normalized direct linear
// transform. At least four correspondences are needed.
func dltHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.New("sets of points src and dst must have the same number of elements")
	}
	if len(src) < 4 {
		return nil, ErrNotEnoughCorrespondences
	}
	srcN, T1, err := normalizePoints(src)
	if err != nil {
		return nil, err
	}
	dstN, T2, err := normalizePoints(dst)
	if err != nil {
		return nil, err
	}

	rows := 2 * len(src)
	if rows < 9 {
		// pad so the SVD yields a full 9x9 V
		rows = 9
	}
	a := mat.NewDense(rows, 9, nil)
	for i := range srcN {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	h, err := nullVector(a)
	if err != nil {
		return nil, err
	}
	hn := mat.NewDense(3, 3, h)

	// denormalize: H = T2^-1 * Hn * T1
	var t2Inv, tmp, out mat.Dense
	if err := t2Inv.Inverse(T2); err != nil {
		return nil, err
	}
	tmp.Mul(&t2Inv, hn)
	out.Mul(&tmp, T1)
	return NewHomographyFromDense(&out)
}

package opticalflow

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"
	"gocv.io/x/gocv"

	"github.com/viam-labs/imagetarget/rimage"
)

// Flow is the result of tracking points from one frame into the next. The slices are parallel:
// Next[i] is only meaningful when Status[i] is set.
type Flow struct {
	Prev   []r2.Point
	Next   []r2.Point
	Status []bool
	Errors []float64
}

// NumTracked returns how many points were found in the next frame.
func (f *Flow) NumTracked() int {
	return lo.Count(f.Status, true)
}

// Tracked returns the point pairs that were found in the next frame.
func (f *Flow) Tracked() ([]r2.Point, []r2.Point) {
	prev := make([]r2.Point, 0, len(f.Prev))
	next := make([]r2.Point, 0, len(f.Prev))
	for i, ok := range f.Status {
		if ok {
			prev = append(prev, f.Prev[i])
			next = append(next, f.Next[i])
		}
	}
	return prev, next
}

// MedianDisplacement returns the per axis median motion of the tracked points.
func (f *Flow) MedianDisplacement() (r2.Point, error) {
	prev, next := f.Tracked()
	if len(prev) == 0 {
		return r2.Point{}, errors.New("no tracked points")
	}
	dx := make([]float64, len(prev))
	dy := make([]float64, len(prev))
	for i := range prev {
		d := next[i].Sub(prev[i])
		dx[i], dy[i] = d.X, d.Y
	}
	mx, err := stats.Median(dx)
	if err != nil {
		return r2.Point{}, err
	}
	my, err := stats.Median(dy)
	if err != nil {
		return r2.Point{}, err
	}
	return r2.Point{X: mx, Y: my}, nil
}

// GoodFeaturesToTrack finds the strongest corners of the image, strongest first. An image without
// corners yields an empty set.
func GoodFeaturesToTrack(img *image.Gray, cfg *Config) ([]r2.Point, error) {
	if err := cfg.Validate("optical_flow"); err != nil {
		return nil, err
	}
	return detectCorners(img, cfg)
}

func detectCorners(img *image.Gray, cfg *Config) ([]r2.Point, error) {
	mat, err := rimage.GrayToMat(img)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(mat.Close)

	corners := gocv.NewMat()
	defer utils.UncheckedErrorFunc(corners.Close)
	if err := gocv.GoodFeaturesToTrack(mat, &corners, cfg.MaxCorners, cfg.QualityLevel, cfg.MinDistance); err != nil {
		return nil, errors.Wrap(err, "corner detection failed")
	}
	return matToPoints(corners), nil
}

// TrackPoints follows pts from prev into next.
func TrackPoints(prev, next *image.Gray, pts []r2.Point, cfg *Config) (*Flow, error) {
	if err := cfg.Validate("optical_flow"); err != nil {
		return nil, err
	}
	return trackPoints(prev, next, pts, cfg)
}

func trackPoints(prev, next *image.Gray, pts []r2.Point, cfg *Config) (*Flow, error) {
	if err := rimage.CheckImage(prev); err != nil {
		return nil, errors.Wrap(err, "previous frame")
	}
	if err := rimage.CheckImage(next); err != nil {
		return nil, errors.Wrap(err, "next frame")
	}
	if !rimage.SameImgSize(prev, next) {
		return nil, errors.Errorf("frames differ in size: %v and %v", prev.Bounds().Size(), next.Bounds().Size())
	}
	flow := &Flow{
		Prev:   append([]r2.Point{}, pts...),
		Next:   make([]r2.Point, len(pts)),
		Status: make([]bool, len(pts)),
		Errors: make([]float64, len(pts)),
	}
	if len(pts) == 0 {
		return flow, nil
	}

	prevMat, err := rimage.GrayToMat(prev)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(prevMat.Close)
	nextMat, err := rimage.GrayToMat(next)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(nextMat.Close)

	prevPts := pointsToMat(pts)
	defer utils.UncheckedErrorFunc(prevPts.Close)
	nextPts := gocv.NewMat()
	defer utils.UncheckedErrorFunc(nextPts.Close)
	status := gocv.NewMat()
	defer utils.UncheckedErrorFunc(status.Close)
	errMat := gocv.NewMat()
	defer utils.UncheckedErrorFunc(errMat.Close)

	if err := gocv.CalcOpticalFlowPyrLKWithParams(
		prevMat, nextMat, prevPts, nextPts, &status, &errMat,
		image.Pt(cfg.WindowSize, cfg.WindowSize),
		cfg.PyramidLevels,
		gocv.NewTermCriteria(gocv.Count|gocv.EPS, cfg.MaxIterations, cfg.Epsilon),
		0,
		1e-4,
	); err != nil {
		return nil, errors.Wrap(err, "optical flow failed")
	}

	tracked := matToPoints(nextPts)
	if len(tracked) != len(pts) || status.Rows() != len(pts) {
		return nil, errors.Errorf("optical flow returned %d points and %d statuses for %d inputs",
			len(tracked), status.Rows(), len(pts))
	}
	bounds := next.Bounds()
	for i := range pts {
		flow.Next[i] = tracked[i]
		flow.Status[i] = status.GetUCharAt(i, 0) == 1 && inBounds(tracked[i], bounds)
		if errMat.Rows() == len(pts) {
			flow.Errors[i] = float64(errMat.GetFloatAt(i, 0))
		}
	}
	return flow, nil
}

func inBounds(p r2.Point, b image.Rectangle) bool {
	return p.X >= float64(b.Min.X) && p.Y >= float64(b.Min.Y) && p.X < float64(b.Max.X) && p.Y < float64(b.Max.Y)
}

// pointsToMat packs points into an Nx2 single precision matrix.
func pointsToMat(pts []r2.Point) gocv.Mat {
	m := gocv.NewMatWithSize(len(pts), 2, gocv.MatTypeCV32F)
	for i, p := range pts {
		m.SetFloatAt(i, 0, float32(p.X))
		m.SetFloatAt(i, 1, float32(p.Y))
	}
	return m
}

// matToPoints reads points stored either as Nx1 two channel or Nx2 single channel floats.
func matToPoints(m gocv.Mat) []r2.Point {
	if m.Empty() {
		return []r2.Point{}
	}
	pts := make([]r2.Point, m.Rows())
	for i := range pts {
		if m.Channels() == 2 {
			v := m.GetVecfAt(i, 0)
			pts[i] = r2.Point{X: float64(v[0]), Y: float64(v[1])}
		} else {
			pts[i] = r2.Point{X: float64(m.GetFloatAt(i, 0)), Y: float64(m.GetFloatAt(i, 1))}
		}
	}
	return pts
}

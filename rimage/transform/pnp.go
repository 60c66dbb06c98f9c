package transform

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/viam-labs/imagetarget/spatialmath"
)

var (
	// ErrPoseNotConverged is returned when no camera pose explains the correspondences.
	ErrPoseNotConverged = errors.New("pose estimation did not converge")
	// ErrNonPlanarObject is returned when planar pose estimation is given points off the z = 0 plane.
	ErrNonPlanarObject = errors.New("object points must lie on the z = 0 plane")
)

// PnPConfig tunes perspective-n-point pose estimation.
type PnPConfig struct {
	RANSACConfig
	RefineIterations int `json:"refine_iterations"`
}

// DefaultPnPConfig returns the settings used for marker pose estimation.
func DefaultPnPConfig() PnPConfig {
	return PnPConfig{
		RANSACConfig: RANSACConfig{
			ReprojectionThreshold: 8,
			MaxIterations:         100,
			Confidence:            0.99,
		},
		RefineIterations: 20,
	}
}

// CheckValid checks the fields of a PnPConfig.
func (cfg PnPConfig) CheckValid() error {
	if err := cfg.RANSACConfig.CheckValid(); err != nil {
		return err
	}
	if cfg.RefineIterations < 0 {
		return errors.Errorf("refine iterations cannot be negative, got %d", cfg.RefineIterations)
	}
	return nil
}

// PnPResult is a solved camera pose along with how well it explains the observations.
type PnPResult struct {
	// Pose takes points from the object frame into the camera frame.
	Pose       *spatialmath.Pose
	Inliers    []bool
	NumInliers int
	// RMSError is the root mean square reprojection error in pixels over the inliers.
	RMSError float64
}

// SolvePlanarPnPRansac estimates the pose of a planar object from its points (all with z = 0) and
// their observed pixels. Minimal samples are solved by decomposing the plane to image homography,
// the best one is refit on its inliers and polished with L-BFGS on reprojection error.
func SolvePlanarPnPRansac(
	model *PinholeCameraModel,
	object []r3.Vector,
	pixels []r2.Point,
	cfg PnPConfig,
) (*PnPResult, error) {
	if model == nil {
		return nil, NewNoIntrinsicsError("camera model is nil")
	}
	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}
	if len(object) != len(pixels) {
		return nil, errors.New("object points and pixels must have the same number of elements")
	}
	n := len(object)
	if n < homographySampleSize {
		return nil, errors.Wrapf(ErrNotEnoughCorrespondences, "need %d, have %d", homographySampleSize, n)
	}

	plane := make([]r2.Point, n)
	rays := make([]r2.Point, n)
	for i, pt := range object {
		if math.Abs(pt.Z) > 1e-9 {
			return nil, ErrNonPlanarObject
		}
		plane[i] = r2.Point{X: pt.X, Y: pt.Y}
		rays[i] = model.UndistortPixel(pixels[i])
	}

	thresholdSq := cfg.ReprojectionThreshold * cfg.ReprojectionThreshold
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec

	var best *PnPResult
	idx := make([]int, 0, homographySampleSize)
	samplePlane := make([]r2.Point, homographySampleSize)
	sampleRays := make([]r2.Point, homographySampleSize)
	maxIter := cfg.MaxIterations
	if n == homographySampleSize {
		maxIter = 1
	}
	for iter := 0; iter < maxIter; iter++ {
		if n == homographySampleSize {
			idx = append(idx[:0], 0, 1, 2, 3)
		} else {
			idx = sampleIndices(rng, n, homographySampleSize, idx)
		}
		for i, j := range idx {
			samplePlane[i] = plane[j]
			sampleRays[i] = rays[j]
		}
		if collinear(samplePlane) || collinear(sampleRays) {
			continue
		}
		pose, err := planarPose(samplePlane, sampleRays)
		if err != nil {
			continue
		}
		candidate := scorePose(model, pose, object, pixels, thresholdSq)
		if best == nil || candidate.NumInliers > best.NumInliers {
			best = candidate
			maxIter = ransacIterations(cfg.Confidence, float64(best.NumInliers)/float64(n), homographySampleSize, maxIter)
		}
	}
	if best == nil || best.NumInliers < homographySampleSize {
		return nil, ErrPoseNotConverged
	}

	inObject := make([]r3.Vector, 0, best.NumInliers)
	inPlane := make([]r2.Point, 0, best.NumInliers)
	inRays := make([]r2.Point, 0, best.NumInliers)
	inPixels := make([]r2.Point, 0, best.NumInliers)
	for i, in := range best.Inliers {
		if in {
			inObject = append(inObject, object[i])
			inPlane = append(inPlane, plane[i])
			inRays = append(inRays, rays[i])
			inPixels = append(inPixels, pixels[i])
		}
	}
	pose := best.Pose
	if len(inObject) > homographySampleSize {
		if refit, err := planarPose(inPlane, inRays); err == nil {
			pose = refit
		}
	}
	pose = refinePose(model, inObject, inPixels, pose, cfg.RefineIterations)

	result := scorePose(model, pose, object, pixels, thresholdSq)
	if result.NumInliers < homographySampleSize || math.IsNaN(result.RMSError) || result.Pose.Translation.Z <= 0 {
		return nil, ErrPoseNotConverged
	}
	return result, nil
}

// planarPose recovers the pose of the z = 0 plane from correspondences between plane coordinates
// and undistorted normalized image coordinates.
func planarPose(plane, rays []r2.Point) (*spatialmath.Pose, error) {
	h, err := dltHomography(plane, rays)
	if err != nil {
		return nil, err
	}
	h1 := r3.Vector{X: h[0][0], Y: h[1][0], Z: h[2][0]}
	h2 := r3.Vector{X: h[0][1], Y: h[1][1], Z: h[2][1]}
	h3 := r3.Vector{X: h[0][2], Y: h[1][2], Z: h[2][2]}
	norm := (h1.Norm() + h2.Norm()) / 2
	if norm < 1e-12 {
		return nil, ErrPoseNotConverged
	}
	r1, r2, t := h1.Mul(1/norm), h2.Mul(1/norm), h3.Mul(1/norm)
	if t.Z < 0 {
		r1, r2, t = r1.Mul(-1), r2.Mul(-1), t.Mul(-1)
	}
	r3v := r1.Cross(r2)
	rot, err := spatialmath.NewRotationMatrixFromDense(mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	}))
	if err != nil {
		return nil, err
	}
	return spatialmath.NewPose(t, rot), nil
}

func scorePose(
	model *PinholeCameraModel,
	pose *spatialmath.Pose,
	object []r3.Vector,
	pixels []r2.Point,
	thresholdSq float64,
) *PnPResult {
	res := &PnPResult{Pose: pose, Inliers: make([]bool, len(object))}
	sum := 0.0
	for i, pt := range object {
		cam := pose.Transform(pt)
		if cam.Z <= 0 {
			continue
		}
		d := model.ProjectPoint(cam).Sub(pixels[i])
		if errSq := d.Dot(d); errSq <= thresholdSq {
			res.Inliers[i] = true
			res.NumInliers++
			sum += errSq
		}
	}
	if res.NumInliers > 0 {
		res.RMSError = math.Sqrt(sum / float64(res.NumInliers))
	} else {
		res.RMSError = math.NaN()
	}
	return res
}

// poseParams packs a pose as a rotation vector followed by a translation.
func poseParams(pose *spatialmath.Pose) []float64 {
	rv := pose.RotationVector()
	return []float64{rv.X, rv.Y, rv.Z, pose.Translation.X, pose.Translation.Y, pose.Translation.Z}
}

func paramsPose(p []float64) *spatialmath.Pose {
	return spatialmath.NewPoseFromRotationVector(
		r3.Vector{X: p[0], Y: p[1], Z: p[2]},
		r3.Vector{X: p[3], Y: p[4], Z: p[5]},
	)
}

// reprojectionCost is the sum of squared pixel errors of the pose packed in p.
func reprojectionCost(model *PinholeCameraModel, object []r3.Vector, pixels []r2.Point, p []float64) float64 {
	pose := paramsPose(p)
	cost := 0.0
	for i, pt := range object {
		d := model.ProjectPoint(pose.Transform(pt)).Sub(pixels[i])
		cost += d.Dot(d)
	}
	return cost
}

// refinePose minimizes the squared reprojection error over the six pose parameters with L-BFGS
// and a central difference gradient. The starting pose is returned when the optimizer cannot
// improve on it.
func refinePose(
	model *PinholeCameraModel,
	object []r3.Vector,
	pixels []r2.Point,
	pose *spatialmath.Pose,
	iterations int,
) *spatialmath.Pose {
	if iterations == 0 {
		return pose
	}
	cost := func(x []float64) float64 {
		return reprojectionCost(model, object, pixels, x)
	}
	problem := optimize.Problem{
		Func: cost,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, cost, x, &fd.Settings{Formula: fd.Central, Step: 1e-7})
		},
	}
	start := poseParams(pose)
	startCost := cost(start)
	// a stalled line search is reported as an error but still carries the best point reached
	result, _ := optimize.Minimize(problem, start, &optimize.Settings{
		MajorIterations:   iterations,
		GradientThreshold: 1e-9,
	}, &optimize.LBFGS{})
	if result == nil || !(result.F < startCost) {
		return pose
	}
	return paramsPose(result.X)
}

// ProjectPoints maps points given in an object's frame through the object's pose and the camera
// model into pixel coordinates.
func ProjectPoints(model *PinholeCameraModel, pose *spatialmath.Pose, pts []r3.Vector) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = model.ProjectPoint(pose.Transform(pt))
	}
	return out
}

package transform

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/imagetarget/spatialmath"
)

var markerCorners = []r3.Vector{
	{X: -0.5, Y: -0.375}, {X: 0.5, Y: -0.375}, {X: 0.5, Y: 0.375}, {X: -0.5, Y: 0.375},
}

func testModel(t *testing.T, distortion Distorter) *PinholeCameraModel {
	t.Helper()
	intrinsics, err := NewPinholeCameraIntrinsicsFromResolution(640, 480)
	test.That(t, err, test.ShouldBeNil)
	model, err := NewPinholeCameraModel(intrinsics, distortion)
	test.That(t, err, test.ShouldBeNil)
	return model
}

func TestSolvePlanarPnPCorners(t *testing.T) {
	truth := spatialmath.NewPoseFromRotationVector(
		r3.Vector{X: 0.3, Y: -0.2, Z: 0.1},
		r3.Vector{X: 0.2, Y: -0.1, Z: 3},
	)
	bc, err := NewBrownConrady([]float64{-0.05, 0.01})
	test.That(t, err, test.ShouldBeNil)

	for _, model := range []*PinholeCameraModel{testModel(t, nil), testModel(t, bc)} {
		pixels := ProjectPoints(model, truth, markerCorners)
		res, err := SolvePlanarPnPRansac(model, markerCorners, pixels, DefaultPnPConfig())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.NumInliers, test.ShouldEqual, 4)
		test.That(t, res.RMSError, test.ShouldBeLessThan, 1e-6)
		test.That(t, spatialmath.PoseAlmostEqual(res.Pose, truth, 1e-6, 1e-6), test.ShouldBeTrue)
	}
}

func TestSolvePlanarPnPFrontoParallel(t *testing.T) {
	model := testModel(t, nil)
	// a unit wide marker filling 200 pixels with f = 640 sits at z = 3.2
	pixels := []r2.Point{{X: 220, Y: 165}, {X: 420, Y: 165}, {X: 420, Y: 315}, {X: 220, Y: 315}}
	res, err := SolvePlanarPnPRansac(model, markerCorners, pixels, DefaultPnPConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Pose.Translation.Z, test.ShouldAlmostEqual, 3.2, 1e-6)
	test.That(t, res.Pose.Translation.X, test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, res.Pose.Translation.Y, test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, res.Pose.RotationVector().Norm(), test.ShouldBeLessThan, 1e-6)
}

func TestSolvePlanarPnPOutliers(t *testing.T) {
	model := testModel(t, nil)
	truth := spatialmath.NewPoseFromRotationVector(r3.Vector{X: -0.2, Y: 0.25}, r3.Vector{X: -0.1, Y: 0.05, Z: 2.5})
	rng := rand.New(rand.NewSource(3))

	var object []r3.Vector
	for i := 0; i < 30; i++ {
		object = append(object, r3.Vector{X: rng.Float64() - 0.5, Y: rng.Float64()*0.75 - 0.375})
	}
	pixels := ProjectPoints(model, truth, object)
	for i := 0; i < 6; i++ {
		pixels[i] = pixels[i].Add(r2.Point{X: 40 + float64(i)*10, Y: -35})
	}

	res, err := SolvePlanarPnPRansac(model, object, pixels, DefaultPnPConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.NumInliers, test.ShouldEqual, 24)
	for i := 0; i < 6; i++ {
		test.That(t, res.Inliers[i], test.ShouldBeFalse)
	}
	test.That(t, spatialmath.PoseAlmostEqual(res.Pose, truth, 1e-5, 1e-5), test.ShouldBeTrue)
}

func TestSolvePlanarPnPFailures(t *testing.T) {
	model := testModel(t, nil)
	cfg := DefaultPnPConfig()

	_, err := SolvePlanarPnPRansac(model, markerCorners[:3], make([]r2.Point, 3), cfg)
	test.That(t, err, test.ShouldWrap, ErrNotEnoughCorrespondences)

	nonPlanar := append([]r3.Vector{}, markerCorners...)
	nonPlanar[2].Z = 0.5
	_, err = SolvePlanarPnPRansac(model, nonPlanar, make([]r2.Point, 4), cfg)
	test.That(t, err, test.ShouldBeError, ErrNonPlanarObject)

	// every observation collapsed onto one pixel
	same := []r2.Point{{X: 10, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 10}}
	_, err = SolvePlanarPnPRansac(model, markerCorners, same, cfg)
	test.That(t, err, test.ShouldBeError, ErrPoseNotConverged)

	_, err = SolvePlanarPnPRansac(nil, markerCorners, same, cfg)
	test.That(t, err, test.ShouldWrap, ErrNoIntrinsics)
}

func TestProjectPoints(t *testing.T) {
	model := testModel(t, nil)
	pose := spatialmath.NewPose(r3.Vector{Z: 2}, nil)
	axes := ProjectPoints(model, pose, []r3.Vector{{}, {X: 1}, {Y: 1}, {Z: 1}})
	test.That(t, axes[0], test.ShouldResemble, r2.Point{X: 320, Y: 240})
	test.That(t, axes[1].X, test.ShouldAlmostEqual, 640.)
	test.That(t, axes[2].Y, test.ShouldAlmostEqual, 560.)
	test.That(t, axes[3], test.ShouldResemble, r2.Point{X: 320, Y: 240})
}

func TestRefinePose(t *testing.T) {
	model := testModel(t, nil)
	truth := spatialmath.NewPoseFromRotationVector(r3.Vector{X: 0.15, Y: -0.3, Z: 0.05}, r3.Vector{X: 0.1, Y: 0.2, Z: 2.8})
	rng := rand.New(rand.NewSource(7))
	var object []r3.Vector
	for i := 0; i < 20; i++ {
		object = append(object, r3.Vector{X: rng.Float64() - 0.5, Y: rng.Float64()*0.75 - 0.375})
	}
	pixels := ProjectPoints(model, truth, object)

	start := spatialmath.NewPoseFromRotationVector(
		truth.RotationVector().Add(r3.Vector{X: 0.02, Y: -0.01}),
		truth.Translation.Add(r3.Vector{X: 0.03, Z: -0.05}),
	)
	startCost := reprojectionCost(model, object, pixels, poseParams(start))
	refined := refinePose(model, object, pixels, start, 100)
	test.That(t, reprojectionCost(model, object, pixels, poseParams(refined)), test.ShouldBeLessThan, startCost*1e-4)
	test.That(t, spatialmath.PoseAlmostEqual(refined, truth, 1e-3, 1e-3), test.ShouldBeTrue)

	// no iterations leaves the pose alone
	test.That(t, refinePose(model, object, pixels, start, 0), test.ShouldEqual, start)
}

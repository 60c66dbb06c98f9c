package markertracking

import (
	"image"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/imagetarget/logging"
	"github.com/viam-labs/imagetarget/rimage"
	"github.com/viam-labs/imagetarget/rimage/transform"
	"github.com/viam-labs/imagetarget/spatialmath"
	"github.com/viam-labs/imagetarget/testutils"
	"github.com/viam-labs/imagetarget/vision/opticalflow"
)

// fakePoints offers corners on a bent grid, no three of the first ones collinear, and reports the
// first tracked of them as followed in place, or through warp when it is set.
type fakePoints struct {
	corners int
	tracked int
	line    bool
	warp    *transform.Homography
}

func (f *fakePoints) GoodFeaturesToTrack(img *image.Gray) ([]r2.Point, error) {
	pts := make([]r2.Point, f.corners)
	for i := range pts {
		if f.line {
			pts[i] = r2.Point{X: float64(10 + 5*i), Y: 30}
		} else {
			col := i % 10
			pts[i] = r2.Point{X: float64(20 + 15*col), Y: float64(20 + 15*(i/10) + col*col)}
		}
	}
	return pts, nil
}

func (f *fakePoints) TrackPoints(prev, next *image.Gray, pts []r2.Point) (*opticalflow.Flow, error) {
	flow := &opticalflow.Flow{
		Prev:   pts,
		Next:   append([]r2.Point{}, pts...),
		Status: make([]bool, len(pts)),
		Errors: make([]float64, len(pts)),
	}
	if f.warp != nil {
		flow.Next = f.warp.ApplyAll(pts)
	}
	for i := 0; i < f.tracked && i < len(pts); i++ {
		flow.Status[i] = true
	}
	return flow, nil
}

func newTestTemplate(t *testing.T) *MarkerTemplate {
	t.Helper()
	tmpl, err := NewMarkerTemplate(testutils.TexturedGray(200, 200, 1), 1, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(tmpl.KeyPoints()), test.ShouldBeGreaterThan, 20)
	return tmpl
}

func newTestTracker(t *testing.T, tmpl *MarkerTemplate, opts ...Option) *Tracker {
	t.Helper()
	tracker, err := NewTracker(tmpl, nil, logging.NewTestLogger(t), opts...)
	test.That(t, err, test.ShouldBeNil)
	return tracker
}

func acquire(t *testing.T, tracker *Tracker, frame *image.Gray) *FrameResult {
	t.Helper()
	res, err := tracker.ProcessFrame(frame)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Outcome, test.ShouldEqual, Acquired)
	test.That(t, res.Mode, test.ShouldEqual, Tracking)
	return res
}

func TestIdentityFrameAcquires(t *testing.T) {
	tmpl := newTestTemplate(t)
	logger, logs := logging.NewObservedTestLogger(t)
	tracker, err := NewTracker(tmpl, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tracker.Mode(), test.ShouldEqual, Searching)

	res, err := tracker.ProcessFrame(tmpl.Image())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Outcome, test.ShouldEqual, Acquired)
	test.That(t, res.Mode, test.ShouldEqual, Tracking)
	test.That(t, res.Matches, test.ShouldBeGreaterThan, 5)
	test.That(t, res.Visible, test.ShouldBeFalse)
	test.That(t, res.Pose, test.ShouldBeNil)
	test.That(t, res.Homography, test.ShouldNotBeNil)

	test.That(t, res.Quad, test.ShouldHaveLength, 4)
	for i, c := range tmpl.Corners() {
		test.That(t, res.Quad[i].X, test.ShouldAlmostEqual, c.X, 0.5)
		test.That(t, res.Quad[i].Y, test.ShouldAlmostEqual, c.Y, 0.5)
	}

	state := tracker.State()
	test.That(t, state.Mode, test.ShouldEqual, Tracking)
	test.That(t, state.PrevQuad, test.ShouldResemble, res.Quad)
	test.That(t, state.PrevFrame.Pix, test.ShouldResemble, tmpl.Image().Pix)
	test.That(t, state.Pose, test.ShouldBeNil)
	test.That(t, tracker.Marker().Visible, test.ShouldBeFalse)

	test.That(t, logs.FilterMessage("marker acquired").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("marker acquired").All()[0].ContextMap()["session"], test.ShouldNotBeEmpty)
	test.That(t, logs.FilterMessage("processed frame").Len(), test.ShouldEqual, 1)
}

func TestStaticFrameGivesStablePose(t *testing.T) {
	tmpl := newTestTemplate(t)
	tracker := newTestTracker(t, tmpl)
	frame := testutils.Embed(tmpl.Image(), 640, 480, 1, 100)
	acquire(t, tracker, frame)

	first, err := tracker.ProcessFrame(frame)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Outcome, test.ShouldEqual, Tracked)
	test.That(t, first.Visible, test.ShouldBeTrue)
	test.That(t, first.Mode, test.ShouldEqual, Tracking)
	test.That(t, first.Trackable, test.ShouldBeGreaterThanOrEqualTo, 10)
	test.That(t, first.AxisPoints, test.ShouldHaveLength, 4)

	second, err := tracker.ProcessFrame(frame)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.Outcome, test.ShouldEqual, Tracked)
	test.That(t, spatialmath.PoseAlmostEqual(first.Pose, second.Pose, 1e-3, 1e-3), test.ShouldBeTrue)
	for i := range first.Quad {
		test.That(t, second.Quad[i].Sub(first.Quad[i]).Norm(), test.ShouldBeLessThan, 0.1)
	}

	// the axes start at the projected marker center, which sits at the principal point
	test.That(t, second.AxisPoints[0].X, test.ShouldAlmostEqual, 320, 2)
	test.That(t, second.AxisPoints[0].Y, test.ShouldAlmostEqual, 240, 2)
	test.That(t, second.AxisPoints[1].X, test.ShouldBeGreaterThan, second.AxisPoints[0].X+100)
	test.That(t, second.AxisPoints[2].Y, test.ShouldBeGreaterThan, second.AxisPoints[0].Y+100)
}

func TestScaledTemplateHalvesDepth(t *testing.T) {
	tmpl := newTestTemplate(t)
	depth := func(scale int) *spatialmath.Pose {
		tracker := newTestTracker(t, tmpl)
		frame := testutils.Embed(tmpl.Image(), 640, 480, scale, 100)
		acquire(t, tracker, frame)
		res, err := tracker.ProcessFrame(frame)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Outcome, test.ShouldEqual, Tracked)
		test.That(t, tracker.Camera().Fx, test.ShouldEqual, 640.0)
		return res.Pose
	}
	near := depth(2)
	far := depth(1)

	identity := spatialmath.NewIdentityRotationMatrix()
	test.That(t, spatialmath.RotationMatrixAlmostEqual(far.Rotation, identity, 0.05), test.ShouldBeTrue)
	test.That(t, spatialmath.RotationMatrixAlmostEqual(near.Rotation, identity, 0.05), test.ShouldBeTrue)
	test.That(t, far.Translation.Z, test.ShouldAlmostEqual, 3.2, 0.1)
	test.That(t, near.Translation.Z, test.ShouldAlmostEqual, 1.6, 0.05)
	test.That(t, near.Translation.Z/far.Translation.Z, test.ShouldAlmostEqual, 0.5, 0.02)
	test.That(t, far.Translation.X, test.ShouldAlmostEqual, 0, 0.05)
	test.That(t, far.Translation.Y, test.ShouldAlmostEqual, 0, 0.05)
}

func TestUntexturedFrameKeepsSearching(t *testing.T) {
	tracker := newTestTracker(t, newTestTemplate(t))
	for i := 0; i < 3; i++ {
		res, err := tracker.ProcessFrame(testutils.Blank(320, 240, 128))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Outcome, test.ShouldEqual, NoFeatures)
		test.That(t, res.Mode, test.ShouldEqual, Searching)
		test.That(t, res.Visible, test.ShouldBeFalse)
		test.That(t, res.Quad, test.ShouldBeEmpty)
	}
	test.That(t, tracker.State().PrevFrame, test.ShouldBeNil)
}

func TestTooFewTrackedLosesMarker(t *testing.T) {
	tmpl := newTestTemplate(t)
	logger, logs := logging.NewObservedTestLogger(t)
	points := &fakePoints{corners: 30, tracked: 4}
	tracker, err := NewTracker(tmpl, nil, logger, WithPointTracker(points))
	test.That(t, err, test.ShouldBeNil)
	acquire(t, tracker, tmpl.Image())

	res, err := tracker.ProcessFrame(tmpl.Image())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Outcome, test.ShouldEqual, TooFewTracked)
	test.That(t, res.Outcome.Lost(), test.ShouldBeTrue)
	test.That(t, res.Tracked, test.ShouldEqual, 4)
	test.That(t, res.Mode, test.ShouldEqual, Searching)
	test.That(t, res.Visible, test.ShouldBeFalse)
	test.That(t, res.Pose, test.ShouldBeNil)

	state := tracker.State()
	test.That(t, state.Mode, test.ShouldEqual, Searching)
	test.That(t, state.PrevQuad, test.ShouldBeEmpty)
	test.That(t, state.PrevFrame, test.ShouldBeNil)
	test.That(t, logs.FilterMessage("marker lost").Len(), test.ShouldEqual, 1)

	// five tracked points are enough
	points.tracked = 5
	acquire(t, tracker, tmpl.Image())
	res, err = tracker.ProcessFrame(tmpl.Image())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Outcome, test.ShouldEqual, Tracked)
}

func TestTrackingFailures(t *testing.T) {
	tmpl := newTestTemplate(t)
	for _, tc := range []struct {
		name    string
		points  *fakePoints
		outcome Outcome
	}{
		{"too few corners", &fakePoints{corners: 9, tracked: 9}, TooFewTrackable},
		{"collinear flow", &fakePoints{corners: 20, tracked: 20, line: true}, TrackHomographyFailed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tracker := newTestTracker(t, tmpl, WithPointTracker(tc.points))
			acquire(t, tracker, tmpl.Image())
			res, err := tracker.ProcessFrame(tmpl.Image())
			test.That(t, err, test.ShouldBeNil)
			test.That(t, res.Outcome, test.ShouldEqual, tc.outcome)
			test.That(t, res.Mode, test.ShouldEqual, Searching)
			test.That(t, res.Visible, test.ShouldBeFalse)
			test.That(t, tracker.State().PrevQuad, test.ShouldBeEmpty)
		})
	}
}

func TestBlankFramesLoseMarker(t *testing.T) {
	tmpl := newTestTemplate(t)
	tracker := newTestTracker(t, tmpl)
	frame := testutils.Embed(tmpl.Image(), 640, 480, 1, 100)
	acquire(t, tracker, frame)

	blank := testutils.Blank(640, 480, 100)
	var res *FrameResult
	var err error
	for i := 0; i < 2; i++ {
		res, err = tracker.ProcessFrame(blank)
		test.That(t, err, test.ShouldBeNil)
		if res.Mode == Searching {
			break
		}
	}
	test.That(t, res.Mode, test.ShouldEqual, Searching)
	test.That(t, res.Outcome.Lost(), test.ShouldBeTrue)
	test.That(t, res.Visible, test.ShouldBeFalse)
	test.That(t, tracker.Marker().Visible, test.ShouldBeFalse)

	// recovery happens from searching on the next good frame
	acquire(t, tracker, frame)
}

func TestMarkerContentVisibility(t *testing.T) {
	tmpl := newTestTemplate(t)
	points := &fakePoints{corners: 30, tracked: 30}
	tracker := newTestTracker(t, tmpl, WithPointTracker(points))
	marker := tracker.Marker()
	test.That(t, marker.Template, test.ShouldEqual, tmpl)
	cube := marker.Attach("cube", r3.Vector{Z: -0.5})

	acquire(t, tracker, tmpl.Image())
	test.That(t, cube.Visible, test.ShouldBeFalse)

	res, err := tracker.ProcessFrame(tmpl.Image())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Outcome, test.ShouldEqual, Tracked)
	test.That(t, marker.Visible, test.ShouldBeTrue)
	test.That(t, marker.Pose, test.ShouldEqual, res.Pose)
	test.That(t, cube.Visible, test.ShouldBeTrue)
	want := res.Pose.Transform(r3.Vector{Z: -0.5})
	test.That(t, cube.Pose.Translation.Sub(want).Norm(), test.ShouldBeLessThan, 1e-9)
	test.That(t, tracker.State().Pose, test.ShouldEqual, res.Pose)

	points.tracked = 0
	res, err = tracker.ProcessFrame(tmpl.Image())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Outcome, test.ShouldEqual, TooFewTracked)
	test.That(t, marker.Visible, test.ShouldBeFalse)
	test.That(t, cube.Visible, test.ShouldBeFalse)
	test.That(t, cube.Pose, test.ShouldBeNil)

	acquire(t, tracker, tmpl.Image())
	tracker.Reset()
	test.That(t, tracker.Mode(), test.ShouldEqual, Searching)
}

func TestPoseFailedWhenQuadWrapsBehindCamera(t *testing.T) {
	tmpl := newTestTemplate(t)
	logger, logs := logging.NewObservedTestLogger(t)
	// the vanishing line x = 180 lies right of every tracked corner but splits the marker, so the
	// right hand corners land on the far side of the camera
	points := &fakePoints{corners: 30, tracked: 30, warp: &transform.Homography{
		{1, 0, 0},
		{0, 1, 0},
		{-1. / 180, 0, 1},
	}}
	tracker, err := NewTracker(tmpl, nil, logger, WithPointTracker(points))
	test.That(t, err, test.ShouldBeNil)
	acquire(t, tracker, tmpl.Image())

	res, err := tracker.ProcessFrame(tmpl.Image())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Outcome, test.ShouldEqual, PoseFailed)
	test.That(t, res.Outcome.Lost(), test.ShouldBeTrue)
	test.That(t, res.Tracked, test.ShouldEqual, 30)
	test.That(t, res.Inliers, test.ShouldEqual, 30)
	test.That(t, res.Mode, test.ShouldEqual, Searching)
	test.That(t, res.Visible, test.ShouldBeFalse)
	test.That(t, res.Pose, test.ShouldBeNil)

	state := tracker.State()
	test.That(t, state.Mode, test.ShouldEqual, Searching)
	test.That(t, state.PrevQuad, test.ShouldBeEmpty)
	test.That(t, state.Pose, test.ShouldBeNil)
	test.That(t, logs.FilterMessage("pose not solved").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("marker lost").Len(), test.ShouldEqual, 1)
}

func TestFrameSizeChangeSearchesAgain(t *testing.T) {
	tmpl := newTestTemplate(t)
	logger, logs := logging.NewObservedTestLogger(t)
	tracker, err := NewTracker(tmpl, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	acquire(t, tracker, testutils.Embed(tmpl.Image(), 640, 480, 1, 100))
	test.That(t, tracker.Camera().Ppx, test.ShouldEqual, 320.)

	res, err := tracker.ProcessFrame(testutils.Blank(320, 240, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Outcome, test.ShouldEqual, NoFeatures)
	test.That(t, res.Mode, test.ShouldEqual, Searching)
	test.That(t, logs.FilterMessage("frame size changed, searching again").Len(), test.ShouldEqual, 1)

	// intrinsics guessed from the resolution follow the new frame size
	test.That(t, tracker.Camera().Width, test.ShouldEqual, 320)
	test.That(t, tracker.Camera().Height, test.ShouldEqual, 240)
	test.That(t, tracker.Camera().Fx, test.ShouldEqual, 320.)
	test.That(t, tracker.Camera().Ppx, test.ShouldEqual, 160.)
	test.That(t, tracker.Camera().Ppy, test.ShouldEqual, 120.)
}

func TestMalformedInput(t *testing.T) {
	tmpl := newTestTemplate(t)
	tracker := newTestTracker(t, tmpl)

	_, err := tracker.ProcessFrame(testutils.Blank(0, 0, 0))
	test.That(t, err, test.ShouldWrap, rimage.ErrEmptyImage)
	_, err = tracker.ProcessFrame(nil)
	test.That(t, err, test.ShouldWrap, rimage.ErrEmptyImage)
	test.That(t, tracker.Mode(), test.ShouldEqual, Searching)

	_, err = NewMarkerTemplateFromFeatures(tmpl.Image(), 1, 1, tmpl.KeyPoints(), tmpl.Descriptors()[1:])
	test.That(t, err, test.ShouldWrap, ErrMalformedTemplate)
	_, err = NewMarkerTemplateFromFeatures(tmpl.Image(), 0, 1, tmpl.KeyPoints(), tmpl.Descriptors())
	test.That(t, err, test.ShouldWrap, ErrMalformedTemplate)
	_, err = NewMarkerTemplate(testutils.Blank(0, 10, 0), 1, nil)
	test.That(t, err, test.ShouldWrap, rimage.ErrEmptyImage)
	_, err = NewTracker(nil, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldWrap, ErrMalformedTemplate)
}

func TestMarkerTemplate(t *testing.T) {
	img := testutils.TexturedGray(200, 100, 3)
	tmpl, err := NewMarkerTemplate(img.SubImage(image.Rect(0, 0, 200, 100)), 0.2, nil)
	test.That(t, err, test.ShouldBeNil)
	w, h := tmpl.PhysicalSize()
	test.That(t, w, test.ShouldEqual, 0.2)
	test.That(t, h, test.ShouldAlmostEqual, 0.1)
	test.That(t, tmpl.Descriptors(), test.ShouldHaveLength, len(tmpl.KeyPoints()))
	test.That(t, tmpl.Corners(), test.ShouldResemble, []r2.Point{{X: 0, Y: 0}, {X: 200, Y: 0}, {X: 200, Y: 100}, {X: 0, Y: 100}})
	want := []r3.Vector{{X: -0.1, Y: -0.05}, {X: 0.1, Y: -0.05}, {X: 0.1, Y: 0.05}, {X: -0.1, Y: 0.05}}
	for i, c := range tmpl.ObjectCorners() {
		test.That(t, c.Sub(want[i]).Norm(), test.ShouldBeLessThan, 1e-12)
	}

	// the template keeps its own pixels
	img.Pix[0] ^= 0xff
	test.That(t, tmpl.Image().Pix[0], test.ShouldNotEqual, img.Pix[0])
}

func TestOutcomeNames(t *testing.T) {
	test.That(t, Acquired.String(), test.ShouldEqual, "acquired")
	test.That(t, TrackHomographyFailed.String(), test.ShouldEqual, "track_homography_failed")
	test.That(t, Outcome(99).String(), test.ShouldEqual, "unknown")
	test.That(t, Tracked.Lost(), test.ShouldBeFalse)
	test.That(t, PoseFailed.Lost(), test.ShouldBeTrue)
	test.That(t, TooFewMatches.Lost(), test.ShouldBeFalse)
	test.That(t, Tracking.String(), test.ShouldEqual, "tracking")
}

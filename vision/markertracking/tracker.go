package markertracking

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/viam-labs/imagetarget/logging"
	"github.com/viam-labs/imagetarget/rimage"
	"github.com/viam-labs/imagetarget/rimage/transform"
	"github.com/viam-labs/imagetarget/spatialmath"
	"github.com/viam-labs/imagetarget/vision/keypoints"
	"github.com/viam-labs/imagetarget/vision/opticalflow"
)

// PointTracker finds corners in a frame and follows them into the next one.
type PointTracker interface {
	GoodFeaturesToTrack(img *image.Gray) ([]r2.Point, error)
	TrackPoints(prev, next *image.Gray, pts []r2.Point) (*opticalflow.Flow, error)
}

// FrameResult describes what the tracker found in one frame.
type FrameResult struct {
	// Visible is set only when the frame completed the tracking path with a pose.
	Visible bool
	Pose    *spatialmath.Pose
	// Quad is the marker outline in the frame, clockwise from the template's top left corner.
	Quad []r2.Point
	// AxisPoints are the projections of the marker origin and the ends of its x, y and z axes.
	AxisPoints []r2.Point
	// Homography maps template pixels into the frame. Only set on the frame the marker is acquired.
	Homography *transform.Homography
	// Mode is the tracker mode after the frame.
	Mode    Mode
	Outcome Outcome

	Matches   int
	Trackable int
	Tracked   int
	Inliers   int
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithPointTracker replaces the Lucas-Kanade point tracker.
func WithPointTracker(pt PointTracker) Option {
	return func(t *Tracker) {
		t.points = pt
	}
}

// Tracker locates one marker in successive frames of a single stream. It is not safe for
// concurrent use; run one Tracker per stream.
type Tracker struct {
	logger     logging.Logger
	cfg        Config
	marker     *Marker
	distortion transform.Distorter
	camera     *transform.PinholeCameraModel
	points     PointTracker
	state      TrackState
	session    uuid.UUID
	frames     int
}

// NewTracker returns a tracker for the template, starting out Searching.
func NewTracker(template *MarkerTemplate, cfg *Config, logger logging.Logger, opts ...Option) (*Tracker, error) {
	if template == nil {
		return nil, errors.Wrap(ErrMalformedTemplate, "template is nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate("marker_tracking"); err != nil {
		return nil, err
	}
	distortion, err := cfg.distorter()
	if err != nil {
		return nil, err
	}
	t := &Tracker{
		cfg:        *cfg,
		marker:     NewMarker(template),
		distortion: distortion,
		session:    uuid.New(),
	}
	if logger == nil {
		logger = logging.Global()
	}
	t.logger = logger.Sublogger("markertracking").WithFields("session", t.session.String())
	if cfg.Intrinsics != nil {
		if t.camera, err = transform.NewPinholeCameraModel(cfg.Intrinsics, distortion); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.points == nil {
		if t.points, err = opticalflow.NewLKTracker(cfg.OpticalFlow); err != nil {
			return nil, err
		}
	}
	t.state.reset()
	return t, nil
}

// Marker returns the marker driven by this tracker.
func (t *Tracker) Marker() *Marker {
	return t.marker
}

// Camera returns the camera model, nil until intrinsics are configured or a frame is processed.
func (t *Tracker) Camera() *transform.PinholeCameraModel {
	return t.camera
}

// State returns a copy of the tracking state.
func (t *Tracker) State() TrackState {
	return t.state.clone()
}

// Mode returns the current tracking mode.
func (t *Tracker) Mode() Mode {
	return t.state.Mode
}

// Reset forgets the marker so the next frame searches for it.
func (t *Tracker) Reset() {
	t.state.reset()
	t.marker.hide()
}

// ProcessFrame runs one step of the tracker on a grayscale frame. Failing to find or follow the
// marker is reported through the result's Outcome; an error means the frame itself is unusable.
func (t *Tracker) ProcessFrame(frame *image.Gray) (*FrameResult, error) {
	if frame == nil {
		return nil, errors.Wrap(rimage.ErrEmptyImage, "frame is nil")
	}
	if err := rimage.CheckImage(frame); err != nil {
		return nil, errors.Wrap(err, "cannot process frame")
	}
	t.frames++
	t.marker.hide()
	frame = rimage.CloneGray(frame)

	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
	derived := t.cfg.Intrinsics == nil
	if t.camera == nil || (derived && (t.camera.Width != w || t.camera.Height != h)) {
		intrinsics, err := transform.NewPinholeCameraIntrinsicsFromResolution(w, h)
		if err != nil {
			return nil, err
		}
		if t.camera, err = transform.NewPinholeCameraModel(intrinsics, t.distortion); err != nil {
			return nil, err
		}
		t.logger.Debugw("derived intrinsics from frame size", "width", w, "height", h, "fx", intrinsics.Fx, "ppx", intrinsics.Ppx, "ppy", intrinsics.Ppy)
	}
	if t.state.Mode == Tracking && !rimage.SameImgSize(frame, t.state.PrevFrame) {
		t.logger.Warnw("frame size changed, searching again",
			"previous", t.state.PrevFrame.Bounds().Size(), "current", frame.Bounds().Size())
		t.state.reset()
	}

	var (
		res *FrameResult
		err error
	)
	if t.state.Mode == Tracking {
		res, err = t.track(frame)
	} else {
		res, err = t.search(frame)
	}
	if err != nil {
		return nil, err
	}
	res.Mode = t.state.Mode
	t.logger.Debugw("processed frame",
		"frame", t.frames,
		"outcome", res.Outcome.String(),
		"mode", res.Mode.String(),
		"matches", res.Matches,
		"trackable", res.Trackable,
		"tracked", res.Tracked,
		"inliers", res.Inliers,
	)
	return res, nil
}

func (t *Tracker) search(frame *image.Gray) (*FrameResult, error) {
	res := &FrameResult{}
	descs, kps, err := keypoints.ComputeORBKeypoints(frame, t.cfg.ORB)
	if err != nil {
		return nil, err
	}
	if len(kps) == 0 {
		res.Outcome = NoFeatures
		return res, nil
	}

	template := t.marker.Template
	matches, err := keypoints.MatchDescriptors(template.Descriptors(), descs, t.cfg.Matching)
	if err != nil {
		return nil, err
	}
	res.Matches = len(matches.Indices)
	if res.Matches <= t.cfg.MinMatches {
		res.Outcome = TooFewMatches
		return res, nil
	}
	src, dst, err := keypoints.GetMatchingKeyPoints(matches, template.KeyPoints(), kps)
	if err != nil {
		return nil, err
	}
	est, err := transform.EstimateHomographyRANSAC(src, dst, t.cfg.Homography)
	if err != nil {
		t.logger.Debugw("no homography from matches", "error", err)
		res.Outcome = HomographyFailed
		return res, nil
	}
	res.Inliers = est.NumInliers
	res.Homography = est.H
	res.Quad = est.H.ApplyAll(template.Corners())
	res.Outcome = Acquired

	t.state.advance(frame, append([]r2.Point{}, res.Quad...))
	t.logger.Infow("marker acquired", "frame", t.frames,
		"matches", res.Matches, "inliers", res.Inliers)
	return res, nil
}

func (t *Tracker) track(frame *image.Gray) (*FrameResult, error) {
	res := &FrameResult{}
	corners, err := t.points.GoodFeaturesToTrack(t.state.PrevFrame)
	if err != nil {
		return nil, err
	}
	res.Trackable = len(corners)
	if res.Trackable < t.cfg.MinTrackable {
		return t.lose(res, TooFewTrackable), nil
	}

	flow, err := t.points.TrackPoints(t.state.PrevFrame, frame, corners)
	if err != nil {
		return nil, err
	}
	res.Tracked = flow.NumTracked()
	if res.Tracked < t.cfg.MinTracked {
		return t.lose(res, TooFewTracked), nil
	}
	if shift, err := flow.MedianDisplacement(); err == nil {
		t.logger.Debugw("flow", "tracked", res.Tracked, "median_dx", shift.X, "median_dy", shift.Y)
	}
	prevPts, nextPts := flow.Tracked()
	est, err := transform.EstimateHomographyRANSAC(prevPts, nextPts, t.cfg.Homography)
	if err != nil {
		t.logger.Debugw("no homography from flow", "error", err)
		return t.lose(res, TrackHomographyFailed), nil
	}
	res.Inliers = est.NumInliers
	quad := est.H.ApplyAll(t.state.PrevQuad)
	t.state.advance(frame, quad)

	solved, err := transform.SolvePlanarPnPRansac(t.camera, t.marker.Template.ObjectCorners(), quad, t.cfg.PnP)
	if err != nil {
		t.logger.Debugw("pose not solved", "error", err)
		return t.lose(res, PoseFailed), nil
	}
	t.state.Pose = solved.Pose

	res.Visible = true
	res.Pose = solved.Pose
	res.Quad = append([]r2.Point{}, quad...)
	res.AxisPoints = transform.ProjectPoints(t.camera, solved.Pose, t.axes())
	res.Outcome = Tracked
	t.marker.show(solved.Pose)
	return res, nil
}

// lose clears the state so the next frame searches again.
func (t *Tracker) lose(res *FrameResult, outcome Outcome) *FrameResult {
	t.state.reset()
	res.Outcome = outcome
	t.logger.Infow("marker lost", "frame", t.frames, "outcome", outcome.String())
	return res
}

// axes returns the origin and the ends of the marker axes, as long as the marker is wide.
func (t *Tracker) axes() []r3.Vector {
	l, _ := t.marker.Template.PhysicalSize()
	return []r3.Vector{{}, {X: l}, {Y: l}, {Z: l}}
}

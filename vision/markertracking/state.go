package markertracking

import (
	"image"

	"github.com/golang/geo/r2"

	"github.com/viam-labs/imagetarget/spatialmath"
)

// Mode is the phase of the tracker.
type Mode int

const (
	// Searching means the marker location is unknown and is looked for by feature matching.
	Searching Mode = iota
	// Tracking means the marker outline is known in the previous frame.
	Tracking
)

func (m Mode) String() string {
	switch m {
	case Searching:
		return "searching"
	case Tracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// TrackState is what a tracker remembers between frames. While Searching it holds nothing; while
// Tracking it holds the previous frame and the four corners of the marker in it.
type TrackState struct {
	Mode      Mode
	PrevFrame *image.Gray
	PrevQuad  []r2.Point
	// Pose is the last solved pose, nil until one is solved after acquisition.
	Pose *spatialmath.Pose
}

func (s *TrackState) reset() {
	*s = TrackState{Mode: Searching}
}

func (s *TrackState) advance(frame *image.Gray, quad []r2.Point) {
	s.Mode = Tracking
	s.PrevFrame = frame
	s.PrevQuad = quad
}

func (s *TrackState) clone() TrackState {
	out := *s
	if s.PrevQuad != nil {
		out.PrevQuad = append([]r2.Point{}, s.PrevQuad...)
	}
	return out
}

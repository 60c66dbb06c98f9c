package markertracking

// Outcome names how a frame ended.
type Outcome int

// Searching outcomes come first, then tracking ones.
const (
	NoFeatures Outcome = iota
	TooFewMatches
	HomographyFailed
	Acquired
	TooFewTrackable
	TooFewTracked
	TrackHomographyFailed
	PoseFailed
	Tracked
)

var outcomeNames = map[Outcome]string{
	NoFeatures:            "no_features",
	TooFewMatches:         "too_few_matches",
	HomographyFailed:      "homography_failed",
	Acquired:              "acquired",
	TooFewTrackable:       "too_few_trackable",
	TooFewTracked:         "too_few_tracked",
	TrackHomographyFailed: "track_homography_failed",
	PoseFailed:            "pose_failed",
	Tracked:               "tracked",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Lost reports whether the outcome ends tracking.
func (o Outcome) Lost() bool {
	switch o {
	case TooFewTrackable, TooFewTracked, TrackHomographyFailed, PoseFailed:
		return true
	default:
		return false
	}
}

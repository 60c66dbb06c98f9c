package opticalflow

import (
	"image"

	"github.com/golang/geo/r2"
)

// LKTracker detects corners and follows them with pyramidal Lucas-Kanade using a fixed Config.
type LKTracker struct {
	cfg Config
}

// NewLKTracker returns a tracker for a validated copy of cfg.
func NewLKTracker(cfg *Config) (*LKTracker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate("optical_flow"); err != nil {
		return nil, err
	}
	return &LKTracker{cfg: *cfg}, nil
}

// GoodFeaturesToTrack finds the strongest corners of img.
func (t *LKTracker) GoodFeaturesToTrack(img *image.Gray) ([]r2.Point, error) {
	return GoodFeaturesToTrack(img, &t.cfg)
}

// TrackPoints follows pts from prev into next.
func (t *LKTracker) TrackPoints(prev, next *image.Gray, pts []r2.Point) (*Flow, error) {
	return TrackPoints(prev, next, pts, &t.cfg)
}

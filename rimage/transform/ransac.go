package transform

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

var (
	// ErrNotEnoughCorrespondences is returned when too few point pairs are given to fit a model.
	ErrNotEnoughCorrespondences = errors.New("not enough point correspondences")
	// ErrHomographyNotFound is returned when no consistent homography explains the correspondences.
	ErrHomographyNotFound = errors.New("homography could not be estimated")
)

// RANSACConfig tunes the random sample consensus estimators.
type RANSACConfig struct {
	// ReprojectionThreshold is the largest distance in pixels at which a correspondence still counts as an inlier.
	ReprojectionThreshold float64 `json:"reprojection_threshold_px"`
	MaxIterations         int     `json:"max_iterations"`
	Confidence            float64 `json:"confidence"`
	Seed                  int64   `json:"seed"`
}

// DefaultHomographyRANSACConfig returns the settings used for homography fitting.
func DefaultHomographyRANSACConfig() RANSACConfig {
	return RANSACConfig{
		ReprojectionThreshold: 5,
		MaxIterations:         2000,
		Confidence:            0.995,
	}
}

// CheckValid checks the fields of a RANSACConfig.
func (cfg RANSACConfig) CheckValid() error {
	if cfg.ReprojectionThreshold <= 0 {
		return errors.Errorf("reprojection threshold must be positive, got %v", cfg.ReprojectionThreshold)
	}
	if cfg.MaxIterations <= 0 {
		return errors.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		return errors.Errorf("confidence must be in (0, 1), got %v", cfg.Confidence)
	}
	return nil
}

// ransacIterations returns how many samples are needed so that, with the given confidence, at
// least one of them is free of outliers.
func ransacIterations(confidence, inlierRatio float64, sampleSize, maxIterations int) int {
	if inlierRatio >= 1 {
		return 1
	}
	good := math.Pow(inlierRatio, float64(sampleSize))
	if good <= 0 {
		return maxIterations
	}
	n := math.Log(1-confidence) / math.Log(1-good)
	if math.IsNaN(n) || n >= float64(maxIterations) {
		return maxIterations
	}
	return int(math.Max(1, math.Ceil(n)))
}

// sampleIndices draws k distinct indices out of [0, n).
func sampleIndices(rng *rand.Rand, n, k int, out []int) []int {
	out = out[:0]
	for len(out) < k {
		idx := rng.Intn(n)
		dup := false
		for _, o := range out {
			if o == idx {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, idx)
		}
	}
	return out
}

// collinear reports whether any three of the points lie on a common line.
func collinear(pts []r2.Point) bool {
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				a := pts[j].Sub(pts[i])
				b := pts[k].Sub(pts[i])
				if math.Abs(a.Cross(b)) <= 1e-6*a.Norm()*b.Norm()+1e-12 {
					return true
				}
			}
		}
	}
	return false
}

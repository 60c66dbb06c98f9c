package transform

import (
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

const homographySampleSize = 4

// HomographyEstimate is a fitted homography and which correspondences agree with it.
type HomographyEstimate struct {
	H       *Homography
	Inliers []bool
	// NumInliers counts the true entries of Inliers.
	NumInliers int
}

// EstimateHomographyRANSAC robustly fits the homography mapping src onto dst. Correspondences whose
// forward reprojection error exceeds the configured threshold are treated as outliers; the result is
// refit on all inliers of the best sample.
func EstimateHomographyRANSAC(src, dst []r2.Point, cfg RANSACConfig) (*HomographyEstimate, error) {
	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}
	if len(src) != len(dst) {
		return nil, errors.New("sets of points src and dst must have the same number of elements")
	}
	n := len(src)
	if n < homographySampleSize {
		return nil, errors.Wrapf(ErrNotEnoughCorrespondences, "need %d, have %d", homographySampleSize, n)
	}

	thresholdSq := cfg.ReprojectionThreshold * cfg.ReprojectionThreshold
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec

	var best *HomographyEstimate
	idx := make([]int, 0, homographySampleSize)
	sampleSrc := make([]r2.Point, homographySampleSize)
	sampleDst := make([]r2.Point, homographySampleSize)
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
			sampleSrc[i] = src[j]
			sampleDst[i] = dst[j]
		}
		if collinear(sampleSrc) || collinear(sampleDst) {
			continue
		}
		h, err := dltHomography(sampleSrc, sampleDst)
		if err != nil {
			continue
		}
		candidate := scoreHomography(h, src, dst, thresholdSq)
		if best == nil || candidate.NumInliers > best.NumInliers {
			best = candidate
			maxIter = ransacIterations(cfg.Confidence, float64(best.NumInliers)/float64(n), homographySampleSize, maxIter)
		}
	}
	if best == nil || best.NumInliers < homographySampleSize {
		return nil, ErrHomographyNotFound
	}

	inSrc := make([]r2.Point, 0, best.NumInliers)
	inDst := make([]r2.Point, 0, best.NumInliers)
	for i, in := range best.Inliers {
		if in {
			inSrc = append(inSrc, src[i])
			inDst = append(inDst, dst[i])
		}
	}
	if refit, err := dltHomography(inSrc, inDst); err == nil {
		if refined := scoreHomography(refit, src, dst, thresholdSq); refined.NumInliers >= best.NumInliers {
			best = refined
		}
	}
	return best, nil
}

func scoreHomography(h *Homography, src, dst []r2.Point, thresholdSq float64) *HomographyEstimate {
	est := &HomographyEstimate{H: h, Inliers: make([]bool, len(src))}
	for i := range src {
		d := h.Apply(src[i]).Sub(dst[i])
		if d.Dot(d) <= thresholdSq {
			est.Inliers[i] = true
			est.NumInliers++
		}
	}
	return est
}

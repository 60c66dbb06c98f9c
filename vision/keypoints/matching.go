package keypoints

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// MatchingConfig contains the parameters for matching descriptors.
type MatchingConfig struct {
	// RatioThreshold accepts a match only when best/second best distance is strictly below it.
	RatioThreshold float64 `json:"ratio_threshold"`
	// MaxDist rejects matches at or beyond this Hamming distance when positive.
	MaxDist int `json:"max_dist"`
}

// DefaultMatchingConfig returns the ratio test settings used for marker search.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{RatioThreshold: 0.66}
}

// DescriptorMatch contains the index of a match in the first and second set of descriptors.
type DescriptorMatch struct {
	Idx1     int
	Idx2     int
	Distance int
}

// DescriptorMatches contains the descriptors and their matches.
type DescriptorMatches struct {
	Indices      []DescriptorMatch
	Descriptors1 Descriptors
	Descriptors2 Descriptors
}

// KnnMatch returns, for every descriptor of desc1, its k nearest descriptors of desc2 ordered by
// increasing distance. Fewer than k are returned when desc2 is smaller than k.
func KnnMatch(desc1, desc2 Descriptors, k int) ([][]DescriptorMatch, error) {
	distances, err := DescriptorsHammingDistance(desc1, desc2)
	if err != nil {
		return nil, err
	}
	out := make([][]DescriptorMatch, len(desc1))
	if len(desc2) == 0 {
		return out, nil
	}
	fDists := make([]float64, len(desc2))
	order := make([]int, len(desc2))
	for i, row := range distances {
		for j, d := range row {
			fDists[j] = float64(d)
		}
		floats.Argsort(fDists, order)
		n := k
		if n > len(order) {
			n = len(order)
		}
		out[i] = make([]DescriptorMatch, n)
		for r := 0; r < n; r++ {
			out[i][r] = DescriptorMatch{Idx1: i, Idx2: order[r], Distance: row[order[r]]}
		}
	}
	return out, nil
}

// RatioTest keeps the best candidate of every neighbor list whose distance ratio to the second best
// is strictly below threshold. Lists with a single candidate have nothing to disambiguate against
// and are rejected.
func RatioTest(knn [][]DescriptorMatch, threshold float64) []DescriptorMatch {
	good := make([]DescriptorMatch, 0, len(knn))
	for _, candidates := range knn {
		if len(candidates) < 2 {
			continue
		}
		best, second := candidates[0], candidates[1]
		if second.Distance == 0 {
			continue
		}
		if float64(best.Distance)/float64(second.Distance) < threshold {
			good = append(good, best)
		}
	}
	return good
}

// MatchDescriptors matches desc1 against desc2 with a 2 nearest neighbor search followed by the
// ratio test, returning the surviving matches sorted by distance.
func MatchDescriptors(desc1, desc2 Descriptors, cfg *MatchingConfig) (*DescriptorMatches, error) {
	if cfg == nil {
		cfg = DefaultMatchingConfig()
	}
	if cfg.RatioThreshold <= 0 || cfg.RatioThreshold > 1 {
		return nil, errors.Errorf("ratio threshold must be in (0, 1], got %v", cfg.RatioThreshold)
	}
	knn, err := KnnMatch(desc1, desc2, 2)
	if err != nil {
		return nil, err
	}
	good := RatioTest(knn, cfg.RatioThreshold)
	if cfg.MaxDist > 0 {
		kept := good[:0]
		for _, m := range good {
			if m.Distance < cfg.MaxDist {
				kept = append(kept, m)
			}
		}
		good = kept
	}
	dists := make([]float64, len(good))
	for i, m := range good {
		dists[i] = float64(m.Distance)
	}
	order := make([]int, len(good))
	floats.Argsort(dists, order)
	sorted := make([]DescriptorMatch, len(good))
	for i, idx := range order {
		sorted[i] = good[idx]
	}
	return &DescriptorMatches{sorted, desc1, desc2}, nil
}

// GetMatchingKeyPoints takes the matches and the keypoints and returns the locations of the matched
// pairs, in match order.
func GetMatchingKeyPoints(matches *DescriptorMatches, kps1, kps2 KeyPoints) ([]r2.Point, []r2.Point, error) {
	pts1 := make([]r2.Point, len(matches.Indices))
	pts2 := make([]r2.Point, len(matches.Indices))
	for i, match := range matches.Indices {
		if match.Idx1 < 0 || match.Idx1 >= len(kps1) {
			return nil, nil, errors.Errorf("match %d refers to keypoint %d of %d in first set", i, match.Idx1, len(kps1))
		}
		if match.Idx2 < 0 || match.Idx2 >= len(kps2) {
			return nil, nil, errors.Errorf("match %d refers to keypoint %d of %d in second set", i, match.Idx2, len(kps2))
		}
		pts1[i] = kps1[match.Idx1].Point
		pts2[i] = kps2[match.Idx2].Point
	}
	return pts1, pts2, nil
}

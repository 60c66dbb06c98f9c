package keypoints

import (
	"math/bits"

	"github.com/pkg/errors"
)

// Descriptor is a binary feature descriptor.
type Descriptor []byte

// Descriptors is a set of descriptors, usually one per keypoint.
type Descriptors []Descriptor

// HammingDistance returns the number of differing bits between two descriptors.
func HammingDistance(d1, d2 Descriptor) (int, error) {
	if len(d1) != len(d2) {
		return 0, errors.Errorf("descriptors must have same length, got %d and %d", len(d1), len(d2))
	}
	dist := 0
	for i := range d1 {
		dist += bits.OnesCount8(d1[i] ^ d2[i])
	}
	return dist, nil
}

// DescriptorsHammingDistance computes the pairwise distances between 2 descriptor arrays.
func DescriptorsHammingDistance(descs1, descs2 Descriptors) ([][]int, error) {
	distances := make([][]int, len(descs1))
	for i := range descs1 {
		distances[i] = make([]int, len(descs2))
		for j := range descs2 {
			d, err := HammingDistance(descs1[i], descs2[j])
			if err != nil {
				return nil, err
			}
			distances[i][j] = d
		}
	}
	return distances, nil
}

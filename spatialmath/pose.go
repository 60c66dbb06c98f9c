// Package spatialmath defines the rotations and rigid transforms used to describe where a
// tracked target sits relative to a camera.
package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid transform taking points from a target's frame into the camera frame:
// p_cam = Rotation * p_target + Translation.
type Pose struct {
	Rotation    *RotationMatrix
	Translation r3.Vector
}

// NewPose returns a pose from a translation and a rotation. A nil rotation is the identity.
func NewPose(translation r3.Vector, rotation *RotationMatrix) *Pose {
	if rotation == nil {
		rotation = NewIdentityRotationMatrix()
	}
	return &Pose{Rotation: rotation, Translation: translation}
}

// NewPoseFromRotationVector returns a pose from a Rodrigues rotation vector and translation.
func NewPoseFromRotationVector(rvec, tvec r3.Vector) *Pose {
	return NewPose(tvec, NewRotationMatrixFromRotationVector(rvec))
}

// RotationVector returns the rotation of the pose as a Rodrigues vector.
func (p *Pose) RotationVector() r3.Vector {
	return p.Rotation.RotationVector()
}

// Transform maps a point from the target frame into the camera frame.
func (p *Pose) Transform(pt r3.Vector) r3.Vector {
	return p.Rotation.Mul(pt).Add(p.Translation)
}

// Matrix returns the homogeneous 4x4 form of the pose.
func (p *Pose) Matrix() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, p.Rotation.At(i, j))
		}
	}
	m.Set(0, 3, p.Translation.X)
	m.Set(1, 3, p.Translation.Y)
	m.Set(2, 3, p.Translation.Z)
	m.Set(3, 3, 1)
	return m
}

// String returns a readable form of the pose.
func (p *Pose) String() string {
	rv := p.RotationVector()
	return fmt.Sprintf("{rvec: (%.4f, %.4f, %.4f), tvec: (%.4f, %.4f, %.4f)}",
		rv.X, rv.Y, rv.Z, p.Translation.X, p.Translation.Y, p.Translation.Z)
}

// PoseAlmostEqual returns whether two poses agree within a rotation and translation tolerance.
func PoseAlmostEqual(a, b *Pose, rotTol, transTol float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return RotationMatrixAlmostEqual(a.Rotation, b.Rotation, rotTol) &&
		a.Translation.Sub(b.Translation).Norm() <= transTol
}

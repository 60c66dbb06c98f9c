package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// AxisAngle is a rotation of Angle radians about the unit vector Axis, right handed.
// PnP solvers report rotations as the compact "rotation vector" Axis*Angle; see
// https://en.wikipedia.org/wiki/Axis%E2%80%93angle_representation.
type AxisAngle struct {
	Axis  r3.Vector `json:"axis"`
	Angle float64   `json:"angle"`
}

// NoRotation is the identity expressed as an axis angle about +z.
func NoRotation() AxisAngle {
	return AxisAngle{Axis: r3.Vector{Z: 1}}
}

// AxisAngleFromRotationVector splits a rotation vector into its axis and angle. The zero vector is
// NoRotation.
func AxisAngleFromRotationVector(v r3.Vector) AxisAngle {
	angle := v.Norm()
	if angle == 0 {
		return NoRotation()
	}
	return AxisAngle{Axis: v.Mul(1 / angle), Angle: angle}
}

// RotationVector returns Axis scaled by Angle.
func (aa AxisAngle) RotationVector() r3.Vector {
	return aa.Axis.Mul(aa.Angle)
}

// RotationMatrix applies Rodrigues' formula. The axis is renormalized first; a zero axis or angle
// gives the identity.
func (aa AxisAngle) RotationMatrix() *RotationMatrix {
	n := aa.Axis.Norm()
	if aa.Angle == 0 || n == 0 {
		return NewIdentityRotationMatrix()
	}
	k := aa.Axis.Mul(1 / n)
	s, c := math.Sincos(aa.Angle)
	v := 1 - c
	return &RotationMatrix{mat: [9]float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	}}
}

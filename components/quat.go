package components

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Identity is the rotation that leaves vectors unchanged.
var Identity = quat.Number{Real: 1}

// QuatFromWXYZ builds a unit quaternion from w, x, y, z. The zero quaternion maps to Identity.
func QuatFromWXYZ(v [4]float64) quat.Number {
	return Normalize(quat.Number{Real: v[0], Imag: v[1], Jmag: v[2], Kmag: v[3]})
}

// QuatFromAxisAngle returns the rotation of angle radians about axis.
func QuatFromAxisAngle(axis r3.Vec, angle float64) quat.Number {
	n := r3.Norm(axis)
	if n == 0 {
		return Identity
	}
	s := math.Sin(angle/2) / n
	return quat.Number{Real: math.Cos(angle / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// Normalize returns q scaled to unit length, or Identity for a zero or non-finite q.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// Rotate applies the unit quaternion q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// PureQuat lifts a vector into a quaternion with zero real part.
func PureQuat(v r3.Vec) quat.Number {
	return quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
}

// VecPart drops the real part of q.
func VecPart(q quat.Number) r3.Vec {
	return r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}

// RotationVector returns the axis*angle form of the unit quaternion q along the shortest arc.
func RotationVector(q quat.Number) r3.Vec {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := VecPart(q)
	s := r3.Norm(v)
	if s < 1e-12 {
		return r3.Scale(2, v)
	}
	angle := 2 * math.Atan2(s, q.Real)
	return r3.Scale(angle/s, v)
}

// IntegrateOrientation advances q by the angular velocity omega (pure quaternion, rad/s) over dt.
func IntegrateOrientation(q, omega quat.Number, dt float64) quat.Number {
	dq := quat.Scale(0.5*dt, quat.Mul(omega, q))
	return Normalize(quat.Add(q, dq))
}

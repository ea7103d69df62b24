package spatial

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Quaternion is a rotation quaternion stored vector part first: (x, y, z, w).
// This is the layout the capture system reports orientation in.
type Quaternion [4]float64

// Identity is the zero rotation.
var Identity = Quaternion{0, 0, 0, 1}

func (q Quaternion) X() float64 { return q[0] }
func (q Quaternion) Y() float64 { return q[1] }
func (q Quaternion) Z() float64 { return q[2] }
func (q Quaternion) W() float64 { return q[3] }

// Norm returns the Euclidean length of q
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.number())
}

// IsUnit reports whether q has unit length within tolerance
func (q Quaternion) IsUnit(tolerance float64) bool {
	n := q.Norm()
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	return math.Abs(n-1) <= tolerance
}

func (q Quaternion) number() quat.Number {
	return quat.Number{Real: q[3], Imag: q[0], Jmag: q[1], Kmag: q[2]}
}

func fromNumber(n quat.Number) Quaternion {
	return Quaternion{n.Imag, n.Jmag, n.Kmag, n.Real}
}

// Conjugate negates the vector part of q. For a unit quaternion this is its
// inverse; callers must not rely on it for non-unit input.
func Conjugate(q Quaternion) Quaternion {
	return fromNumber(quat.Conj(q.number()))
}

// Multiply returns the Hamilton product a*b, i.e. rotation a applied after
// rotation b. It is the same as multiplying b by the 4x4 left-multiplication
// matrix of a:
//
//	| w -z  y  x |
//	| z  w -x  y |
//	|-y  x  w  z |
//	|-x -y -z  w |
func Multiply(a, b Quaternion) Quaternion {
	return fromNumber(quat.Mul(a.number(), b.number()))
}

// ScalarFirst reorders q into (w, x, y, z), the order used on the wire.
func ScalarFirst(q Quaternion) [4]float64 {
	return [4]float64{q[3], q[0], q[1], q[2]}
}

// FlipFLUToFRD remaps an orientation expressed in forward-left-up axes to
// forward-right-down axes as [w, -z, y, -x]. The result is still read in
// vector-first order by the rest of the pipeline.
func FlipFLUToFRD(q Quaternion) Quaternion {
	return Quaternion{q[3], -q[2], q[1], -q[0]}
}

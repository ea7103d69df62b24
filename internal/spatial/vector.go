package spatial

import "math"

// Vector is a 3D vector. Units depend on the context it is used in.
type Vector struct {
	X, Y, Z float64
}

// Sub returns v - o
func (v Vector) Sub(o Vector) Vector {
	return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v multiplied by s
func (v Vector) Scale(s float64) Vector {
	return Vector{v.X * s, v.Y * s, v.Z * s}
}

// Norm returns the Euclidean length of v
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

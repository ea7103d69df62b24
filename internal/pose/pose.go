package pose

import (
	"github.com/roman-kulish/mocap-bridge/internal/mocap"
	"github.com/roman-kulish/mocap-bridge/internal/spatial"
)

const mmPerMeter = 1000.0

// Pose is a capture sample expressed in the output convention: position in
// meters in a local forward-right-down frame anchored at the origin, and
// orientation scalar part first, relative to the reference orientation.
type Pose struct {
	Position    spatial.Vector
	Orientation [4]float64 // w, x, y, z
}

// Velocity is a linear velocity in meters per second in the output frame.
type Velocity spatial.Vector

// Calibration holds the origin and reference orientation captured from the
// first usable samples. Each is written at most once.
type Calibration struct {
	origin    spatial.Vector
	originSet bool

	referenceInverse    spatial.Quaternion
	referenceInverseSet bool
}

// Origin returns the captured origin in millimeters
func (c *Calibration) Origin() (spatial.Vector, bool) {
	return c.origin, c.originSet
}

// ReferenceInverse returns the inverse of the flipped reference orientation
func (c *Calibration) ReferenceInverse() (spatial.Quaternion, bool) {
	return c.referenceInverse, c.referenceInverseSet
}

// IsComplete reports whether both the origin and the reference are set
func (c *Calibration) IsComplete() bool {
	return c.originSet && c.referenceInverseSet
}

// Latched tells which calibration latches fired while handling one sample.
type Latched struct {
	Origin      bool
	Orientation bool
}

// Any reports whether any latch fired
func (l Latched) Any() bool {
	return l.Origin || l.Orientation
}

// update captures the origin and the reference orientation from s if they
// are not set yet and s measured them.
func (c *Calibration) update(s mocap.Sample) Latched {
	var l Latched

	if !c.originSet && !s.PositionOccluded {
		c.origin = s.Position
		c.originSet = true
		l.Origin = true
	}

	if !c.referenceInverseSet && !s.OrientationOccluded {
		c.referenceInverse = spatial.Conjugate(spatial.FlipFLUToFRD(s.Orientation))
		c.referenceInverseSet = true
		l.Orientation = true
	}

	return l
}

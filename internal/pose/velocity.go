package pose

import (
	"time"

	"github.com/roman-kulish/mocap-bridge/internal/spatial"
)

// VelocityEstimator derives linear velocity from consecutive positions by
// first differences. There is no smoothing.
type VelocityEstimator struct {
	prev     spatial.Vector
	prevTime time.Time
	hasPrev  bool
}

// Estimate returns the velocity between the previous call and this one and
// remembers position and now for the next call. It returns zero on the first
// call and whenever no time has elapsed.
func (e *VelocityEstimator) Estimate(position spatial.Vector, now time.Time) Velocity {
	var v Velocity

	if e.hasPrev {
		if dt := now.Sub(e.prevTime).Seconds(); dt > 0 {
			v = Velocity(position.Sub(e.prev).Scale(1 / dt))
		}
	}

	e.prev = position
	e.prevTime = now
	e.hasPrev = true

	return v
}

package telemetry

import (
	"math"
	"time"
)

// Odometry is one published odometry sample as it is kept by the flight
// recorder
type Odometry struct {
	Timestamp           time.Time  `json:"timestamp"`           // Wall-clock time the message was built
	Frame               uint64     `json:"frame"`               // Capture frame number
	X                   float64    `json:"x"`                   // North in meters
	Y                   float64    `json:"y"`                   // East in meters
	Z                   float64    `json:"z"`                   // Down in meters
	Q                   [4]float64 `json:"q"`                   // Orientation, w, x, y, z
	VX                  float64    `json:"vx"`                  // North velocity in m/s
	VY                  float64    `json:"vy"`                  // East velocity in m/s
	VZ                  float64    `json:"vz"`                  // Down velocity in m/s
	PositionOccluded    bool       `json:"positionOccluded"`    // Capture lost the position
	OrientationOccluded bool       `json:"orientationOccluded"` // Capture lost the orientation
	Quality             int8       `json:"quality"`             // Quality sent with the message, 0 to 100
}

// Speed returns the horizontal speed in m/s
func (o *Odometry) Speed() float64 {
	return math.Hypot(o.VX, o.VY)
}

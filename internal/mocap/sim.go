package mocap

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/roman-kulish/mocap-bridge/internal/spatial"
)

const (
	defaultSimRate   = 100.0
	defaultSimRadius = 2000.0 // mm
	defaultSimPeriod = 20 * time.Second
	defaultSimHeight = 1000.0 // mm
)

// SimConfig describes the synthetic figure-8 trajectory
type SimConfig struct {
	Rate         float64        // Frames per second
	Radius       float64        // Loop radius in millimeters
	Period       time.Duration  // Time to fly one full figure-8
	Height       float64        // Height above the capture origin in millimeters
	Center       spatial.Vector // Center of the pattern in the capture world frame, millimeters
	OccludeEvery uint64         // Every n-th frame is reported as occluded; 0 disables
}

// WithSimClock sets the clock the simulated source reads time from
func WithSimClock(clk clock.Clock) func(s *SimSource) {
	return func(s *SimSource) {
		s.clock = clk
	}
}

// SimSource produces frames of a rigid body flying a lemniscate of Gerono at
// a fixed frame rate, heading along its path. It returns ErrPending when
// polled faster than the frame rate.
type SimSource struct {
	config SimConfig
	clock  clock.Clock

	interval time.Duration
	start    time.Time
	last     time.Time
	frame    uint64
}

// NewSimSource creates a simulated source, zero config values take defaults
func NewSimSource(config SimConfig, options ...func(s *SimSource)) *SimSource {
	if config.Rate <= 0 {
		config.Rate = defaultSimRate
	}
	if config.Radius <= 0 {
		config.Radius = defaultSimRadius
	}
	if config.Period <= 0 {
		config.Period = defaultSimPeriod
	}
	if config.Height == 0 {
		config.Height = defaultSimHeight
	}

	s := SimSource{
		config:   config,
		clock:    clock.New(),
		interval: time.Duration(float64(time.Second) / config.Rate),
	}

	for _, option := range options {
		option(&s)
	}

	s.start = s.clock.Now()
	return &s
}

// Poll returns the next frame once a frame interval has passed
func (s *SimSource) Poll() (Sample, error) {
	now := s.clock.Now()
	if s.frame > 0 && now.Sub(s.last) < s.interval {
		return Sample{}, ErrPending
	}

	s.last = now
	s.frame++

	if s.config.OccludeEvery > 0 && s.frame%s.config.OccludeEvery == 0 {
		return Sample{
			Frame:               s.frame,
			Orientation:         spatial.Quaternion{},
			PositionOccluded:    true,
			OrientationOccluded: true,
		}, nil
	}

	theta := 2 * math.Pi * now.Sub(s.start).Seconds() / s.config.Period.Seconds()
	a := s.config.Radius

	x := a * math.Sin(theta)
	y := a * math.Sin(theta) * math.Cos(theta)

	// heading follows the path tangent
	yaw := math.Atan2(a*math.Cos(2*theta), a*math.Cos(theta))

	return Sample{
		Frame: s.frame,
		Position: spatial.Vector{
			X: s.config.Center.X + x,
			Y: s.config.Center.Y + y,
			Z: s.config.Center.Z + s.config.Height,
		},
		Orientation: spatial.Quaternion{0, 0, math.Sin(yaw / 2), math.Cos(yaw / 2)},
	}, nil
}

package app

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

var ErrEmptyTrack = errors.New("no odometry records to plot")

// TrackPoint is one sample projected onto the horizontal plane
type TrackPoint struct {
	North, East float64 // Meters from the origin
	Speed       float64 // Horizontal speed in m/s
	Timestamp   time.Time
	Degraded    bool // Published with a degraded quality
}

// SpeedBounds bounds the color scale. Max is the 95th percentile so a single
// velocity spike after an occlusion does not wash out the rest of the track.
type SpeedBounds struct {
	Min, Max float64
	Mean     float64
	Peak     float64
}

type Track struct {
	Points                       []TrackPoint
	NorthMin, NorthMax           float64
	EastMin, EastMax             float64
	TimestampStart, TimestampEnd time.Time
	Distance                     float64 // Path length over measured samples, meters
	Degraded                     int
	Speed                        SpeedBounds
}

func NewTrack() *Track {
	return &Track{
		NorthMin: math.MaxFloat64,
		NorthMax: -math.MaxFloat64,
		EastMin:  math.MaxFloat64,
		EastMax:  -math.MaxFloat64,
	}
}

func (t *Track) Update(o *telemetry.Odometry) {
	p := TrackPoint{
		North:     o.X,
		East:      o.Y,
		Speed:     o.Speed(),
		Timestamp: o.Timestamp,
		Degraded:  o.PositionOccluded || o.OrientationOccluded,
	}

	t.NorthMin = min(t.NorthMin, p.North)
	t.NorthMax = max(t.NorthMax, p.North)
	t.EastMin = min(t.EastMin, p.East)
	t.EastMax = max(t.EastMax, p.East)

	if t.TimestampStart.IsZero() || t.TimestampStart.After(p.Timestamp) {
		t.TimestampStart = p.Timestamp
	}
	if t.TimestampEnd.IsZero() || t.TimestampEnd.Before(p.Timestamp) {
		t.TimestampEnd = p.Timestamp
	}

	if p.Degraded {
		t.Degraded++
	} else if n := len(t.Points); n > 0 && !t.Points[n-1].Degraded {
		prev := t.Points[n-1]
		t.Distance += math.Hypot(p.North-prev.North, p.East-prev.East)
	}

	t.Points = append(t.Points, p)
}

// Finalize computes the speed bounds once all points are in
func (t *Track) Finalize() error {
	if len(t.Points) == 0 {
		return ErrEmptyTrack
	}

	speeds := make(stats.Float64Data, 0, len(t.Points))
	for _, p := range t.Points {
		if !p.Degraded {
			speeds = append(speeds, p.Speed)
		}
	}
	if len(speeds) == 0 {
		// every sample degraded, scale over what there is
		for _, p := range t.Points {
			speeds = append(speeds, p.Speed)
		}
	}

	var err error
	if t.Speed.Min, err = speeds.Min(); err != nil {
		return fmt.Errorf("speed min: %w", err)
	}
	if t.Speed.Peak, err = speeds.Max(); err != nil {
		return fmt.Errorf("speed max: %w", err)
	}
	if t.Speed.Mean, err = speeds.Mean(); err != nil {
		return fmt.Errorf("speed mean: %w", err)
	}
	if len(speeds) == 1 {
		t.Speed.Max = speeds[0]
	} else if t.Speed.Max, err = speeds.Percentile(95); err != nil {
		return fmt.Errorf("speed percentile: %w", err)
	}

	if t.Speed.Max <= t.Speed.Min {
		t.Speed.Max = t.Speed.Min + 1
	}

	return nil
}

// Duration is the time covered by the track
func (t *Track) Duration() time.Duration {
	return t.TimestampEnd.Sub(t.TimestampStart)
}

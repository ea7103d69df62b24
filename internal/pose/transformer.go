package pose

import (
	"github.com/roman-kulish/mocap-bridge/internal/mocap"
	"github.com/roman-kulish/mocap-bridge/internal/spatial"
)

// Transformer converts capture samples into the output convention. It owns
// the calibration and is meant to be used by a single goroutine.
type Transformer struct {
	calibration Calibration
}

// NewTransformer creates a Transformer with an unset calibration
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Calibration returns the current calibration state
func (t *Transformer) Calibration() *Calibration {
	return &t.calibration
}

// Transform latches the calibration from s if needed and returns s in the
// output convention.
//
// Until the origin is known the position is zero. Until the reference
// orientation is known the raw orientation is passed through, only
// reordered. Occluded samples after calibration are not special-cased: the
// values the source reported are transformed as they are.
func (t *Transformer) Transform(s mocap.Sample) (Pose, Latched) {
	latched := t.calibration.update(s)

	var p Pose

	if origin, ok := t.calibration.Origin(); ok {
		d := s.Position.Sub(origin).Scale(1 / mmPerMeter)
		p.Position = spatial.Vector{X: d.X, Y: -d.Y, Z: -d.Z}
	}

	if ref, ok := t.calibration.ReferenceInverse(); ok {
		rel := spatial.Multiply(ref, spatial.FlipFLUToFRD(s.Orientation))
		p.Orientation = spatial.ScalarFirst(rel)
	} else {
		p.Orientation = spatial.ScalarFirst(s.Orientation)
	}

	return p, latched
}

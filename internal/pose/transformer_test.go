package pose

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/mocap-bridge/internal/mocap"
	"github.com/roman-kulish/mocap-bridge/internal/spatial"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func yaw(rad float64) spatial.Quaternion {
	return spatial.Quaternion{0, 0, math.Sin(rad / 2), math.Cos(rad / 2)}
}

func sample(x, y, z float64, q spatial.Quaternion, occPos, occRot bool) mocap.Sample {
	return mocap.Sample{
		Position:            spatial.Vector{X: x, Y: y, Z: z},
		Orientation:         q,
		PositionOccluded:    occPos,
		OrientationOccluded: occRot,
	}
}

func TestTransform_AxisConversion(t *testing.T) {
	tr := NewTransformer()

	_, latched := tr.Transform(sample(120, -340, 560, spatial.Identity, false, false))
	require.True(t, latched.Origin)
	require.True(t, latched.Orientation)

	p, latched := tr.Transform(sample(1120, 1660, 3560, spatial.Identity, false, false))
	assert.False(t, latched.Any())
	assert.Empty(t, cmp.Diff(spatial.Vector{X: 1, Y: -2, Z: -3}, p.Position, approx))
}

func TestTransform_OriginSamplePublishesZero(t *testing.T) {
	tr := NewTransformer()

	p, _ := tr.Transform(sample(500, 600, 700, spatial.Identity, false, false))
	assert.Equal(t, spatial.Vector{}, p.Position)
}

func TestTransform_OriginLatchIdempotence(t *testing.T) {
	tr := NewTransformer()

	samples := []mocap.Sample{
		// occluded, ignored
		sample(1, 1, 1, spatial.Identity, true, false),
		// first measured position
		sample(10, 20, 30, spatial.Identity, false, true),
		sample(99, 99, 99, spatial.Identity, false, false),
		sample(0, 0, 0, spatial.Identity, true, true),
		sample(-5, 7, 3, spatial.Identity, false, false),
	}

	var fired int
	for _, s := range samples {
		_, latched := tr.Transform(s)
		if latched.Origin {
			fired++
		}
	}

	assert.Equal(t, 1, fired)
	origin, ok := tr.Calibration().Origin()
	require.True(t, ok)
	assert.Equal(t, spatial.Vector{X: 10, Y: 20, Z: 30}, origin)
}

func TestTransform_ZeroPositionBeforeOrigin(t *testing.T) {
	tr := NewTransformer()

	p, latched := tr.Transform(sample(1000, 2000, 3000, spatial.Identity, true, false))
	assert.False(t, latched.Origin)
	assert.Equal(t, spatial.Vector{}, p.Position)
}

func TestTransform_OrientationLatchIndependentOfOrigin(t *testing.T) {
	tr := NewTransformer()
	ref := yaw(math.Pi / 3)

	// origin latches first, orientation still occluded
	_, latched := tr.Transform(sample(0, 0, 0, yaw(1), false, true))
	assert.Equal(t, Latched{Origin: true}, latched)

	_, latched = tr.Transform(sample(0, 0, 0, ref, false, false))
	assert.Equal(t, Latched{Orientation: true}, latched)

	// later measurements never move the reference
	tr.Transform(sample(0, 0, 0, yaw(2), false, false))
	tr.Transform(sample(0, 0, 0, yaw(-2), true, true))

	inv, ok := tr.Calibration().ReferenceInverse()
	require.True(t, ok)
	want := spatial.Conjugate(spatial.FlipFLUToFRD(ref))
	assert.Empty(t, cmp.Diff(want, inv, approx))
	assert.True(t, tr.Calibration().IsComplete())
}

func TestTransform_RawOrientationBeforeReference(t *testing.T) {
	tr := NewTransformer()
	q := yaw(0.4)

	p, _ := tr.Transform(sample(0, 0, 0, q, false, true))
	assert.Equal(t, spatial.ScalarFirst(q), p.Orientation)
}

func TestTransform_RelativeOrientation(t *testing.T) {
	tr := NewTransformer()
	ref := yaw(0.7)

	p, _ := tr.Transform(sample(0, 0, 0, ref, false, false))
	assert.Empty(t, cmp.Diff([4]float64{1, 0, 0, 0}, p.Orientation, approx),
		"the reference sample itself is the zero rotation")

	later := yaw(0.7 + 0.5)
	p, _ = tr.Transform(sample(0, 0, 0, later, false, false))

	want := spatial.ScalarFirst(spatial.Multiply(
		spatial.Conjugate(spatial.FlipFLUToFRD(ref)),
		spatial.FlipFLUToFRD(later)))
	assert.Empty(t, cmp.Diff(want, p.Orientation, approx))

	norm := math.Sqrt(p.Orientation[0]*p.Orientation[0] + p.Orientation[1]*p.Orientation[1] +
		p.Orientation[2]*p.Orientation[2] + p.Orientation[3]*p.Orientation[3])
	assert.InDelta(t, 1, norm, 1e-9)
}

func TestTransform_ReocclusionPassesThrough(t *testing.T) {
	tr := NewTransformer()
	tr.Transform(sample(100, 100, 100, spatial.Identity, false, false))

	// occluded after calibration: values are still transformed as reported
	p, latched := tr.Transform(sample(0, 0, 0, spatial.Identity, true, true))
	assert.False(t, latched.Any())
	assert.Empty(t, cmp.Diff(spatial.Vector{X: -0.1, Y: 0.1, Z: 0.1}, p.Position, approx))
}

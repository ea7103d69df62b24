package mocap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/mocap-bridge/internal/spatial"
)

const (
	// NoFrameMarker is printed by a helper process when the capture server has
	// no new frame. It is equivalent to not printing anything.
	NoFrameMarker = "NoFrame"

	// FrameFields is the number of comma separated fields of a frame line:
	// frame,x,y,z,qx,qy,qz,qw,occludedPos,occludedRot
	FrameFields = 10

	// UnitTolerance is how far a quaternion norm may drift from 1 before the
	// orientation is treated as not measured
	UnitTolerance = 1e-3
)

// ParseFrame parses a single frame line. It returns ErrPending for the
// NoFrame marker and an error wrapping ErrMalformedSample when the number of
// fields is wrong.
func ParseFrame(line string) (Sample, error) {
	if line == NoFrameMarker {
		return Sample{}, ErrPending
	}

	fields := strings.Split(line, ",")
	if len(fields) != FrameFields {
		return Sample{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedSample, FrameFields, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var s Sample
	var err error

	if s.Frame, err = strconv.ParseUint(fields[0], 10, 64); err != nil {
		return Sample{}, fmt.Errorf("invalid frame number: %w", err)
	}

	var values [7]float64
	for i := range values {
		if values[i], err = strconv.ParseFloat(fields[i+1], 64); err != nil {
			return Sample{}, fmt.Errorf("invalid field %d: %w", i+1, err)
		}
	}

	if s.PositionOccluded, err = strconv.ParseBool(fields[8]); err != nil {
		return Sample{}, fmt.Errorf("invalid position occlusion flag: %w", err)
	}
	if s.OrientationOccluded, err = strconv.ParseBool(fields[9]); err != nil {
		return Sample{}, fmt.Errorf("invalid orientation occlusion flag: %w", err)
	}

	s.Position = spatial.Vector{X: values[0], Y: values[1], Z: values[2]}
	s.Orientation = spatial.Quaternion{values[3], values[4], values[5], values[6]}

	if !s.Orientation.IsUnit(UnitTolerance) {
		s.OrientationOccluded = true
	}

	return s, nil
}

// FormatFrame renders s in the line format understood by ParseFrame
func FormatFrame(s Sample) string {
	return fmt.Sprintf("%d,%g,%g,%g,%g,%g,%g,%g,%d,%d",
		s.Frame,
		s.Position.X, s.Position.Y, s.Position.Z,
		s.Orientation[0], s.Orientation[1], s.Orientation[2], s.Orientation[3],
		boolToInt(s.PositionOccluded), boolToInt(s.OrientationOccluded))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

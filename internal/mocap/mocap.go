package mocap

import (
	"errors"

	"github.com/roman-kulish/mocap-bridge/internal/spatial"
)

var (
	// ErrPending is returned by a Source that has no fresh frame yet. Callers
	// should back off briefly and poll again.
	ErrPending = errors.New("no frame available yet")

	// ErrMalformedSample is returned when a frame does not carry the expected
	// number of fields
	ErrMalformedSample = errors.New("malformed sample")

	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

	// ErrBrokenPipe is returned when there's an error reading from stdout or stderr
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrAlreadyStarted is returned by Start on a source that was started
	// before. A source cannot be restarted, create a new one instead.
	ErrAlreadyStarted = errors.New("frame source already started")

	// ErrSourceClosed is returned by Poll after the source was closed or its
	// helper process exited cleanly
	ErrSourceClosed = errors.New("frame source closed")
)

// Sample is one pose measurement of the tracked subject.
type Sample struct {
	Frame               uint64             // Capture system frame number
	Position            spatial.Vector     // Global translation in millimeters, world frame
	Orientation         spatial.Quaternion // Global rotation, world frame, vector part first
	PositionOccluded    bool               // Position could not be measured for this frame
	OrientationOccluded bool               // Orientation could not be measured for this frame
}

// Source delivers capture frames on request.
//
// Poll returns the newest frame not yet returned, ErrPending when there is
// none, or any other error when the source has failed for good.
type Source interface {
	Poll() (Sample, error)
}

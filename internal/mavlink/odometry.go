package mavlink

import (
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/roman-kulish/mocap-bridge/internal/pose"
)

// placeholderCovariance fills both covariance matrices. External vision
// estimators on the autopilot side only need a small, non-zero value.
const placeholderCovariance = 1e-9

const (
	// QualityMeasured is sent when the capture measured both position and
	// orientation
	QualityMeasured int8 = 100

	// QualityDegraded is sent while either channel is occluded. In MAVLink 0
	// means unknown quality, failed would be -1.
	QualityDegraded int8 = 0
)

// NewOdometry packages a pose and velocity into an ODOMETRY message in the
// local FRD frame, reported as a vision estimate. Angular rates are zero.
func NewOdometry(ts time.Time, p pose.Pose, v pose.Velocity, quality int8) *common.MessageOdometry {
	m := common.MessageOdometry{
		TimeUsec:      uint64(ts.UnixMicro()),
		FrameId:       common.MAV_FRAME_LOCAL_FRD,
		ChildFrameId:  common.MAV_FRAME_BODY_FRD,
		X:             float32(p.Position.X),
		Y:             float32(p.Position.Y),
		Z:             float32(p.Position.Z),
		Vx:            float32(v.X),
		Vy:            float32(v.Y),
		Vz:            float32(v.Z),
		EstimatorType: common.MAV_ESTIMATOR_TYPE_VISION,
		Quality:       quality,
	}

	for i, c := range p.Orientation {
		m.Q[i] = float32(c)
	}

	for i := range m.PoseCovariance {
		m.PoseCovariance[i] = placeholderCovariance
		m.VelocityCovariance[i] = placeholderCovariance
	}

	return &m
}

// OdometryPublisher sends odometry over a shared Transport
type OdometryPublisher struct {
	transport Transport
}

// NewOdometryPublisher creates a publisher writing to transport
func NewOdometryPublisher(transport Transport) *OdometryPublisher {
	return &OdometryPublisher{transport: transport}
}

// Publish builds and sends one ODOMETRY message. There is no ack or retry.
func (o *OdometryPublisher) Publish(ts time.Time, p pose.Pose, v pose.Velocity, quality int8) {
	o.transport.Send(NewOdometry(ts, p, v, quality))
}

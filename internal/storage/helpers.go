package storage

import (
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError ignores sql.ErrTxDone so it can be deferred before Commit
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toOdometryData(sessionID int64, o *telemetry.Odometry) *odometryData {
	return &odometryData{
		SessionID:           sessionID,
		TimestampUs:         o.Timestamp.UnixMicro(),
		Frame:               int64(min(o.Frame, math.MaxInt64)),
		X:                   o.X,
		Y:                   o.Y,
		Z:                   o.Z,
		QW:                  o.Q[0],
		QX:                  o.Q[1],
		QY:                  o.Q[2],
		QZ:                  o.Q[3],
		VX:                  o.VX,
		VY:                  o.VY,
		VZ:                  o.VZ,
		PositionOccluded:    o.PositionOccluded,
		OrientationOccluded: o.OrientationOccluded,
		Quality:             int64(o.Quality),
	}
}

func fromOdometryData(d *odometryData) telemetry.Odometry {
	return telemetry.Odometry{
		Timestamp:           time.UnixMicro(d.TimestampUs).UTC(),
		Frame:               uint64(max(d.Frame, 0)),
		X:                   d.X,
		Y:                   d.Y,
		Z:                   d.Z,
		Q:                   [4]float64{d.QW, d.QX, d.QY, d.QZ},
		VX:                  d.VX,
		VY:                  d.VY,
		VZ:                  d.VZ,
		PositionOccluded:    d.PositionOccluded,
		OrientationOccluded: d.OrientationOccluded,
		Quality:             int8(d.Quality),
	}
}

func toSession(d *sessionData) *Session {
	s := Session{
		ID:        d.ID,
		RunID:     d.RunID,
		StartTime: d.StartTime,
		Source:    d.Source,
	}
	if d.Config.Valid {
		s.Config = &d.Config.String
	}
	return &s
}

package storage

import (
	"database/sql"
	"time"
)

// Session is one recorded bridge run
type Session struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"runId"`
	StartTime time.Time `json:"startTime"`
	Source    string    `json:"source"`           // Frame source kind, e.g. "process" or "sim"
	Config    *string   `json:"config,omitempty"` // Run configuration as JSON
}

type sessionData struct {
	ID        int64
	RunID     string
	StartTime time.Time
	Source    string
	Config    sql.NullString
}

type odometryData struct {
	SessionID           int64
	TimestampUs         int64
	Frame               int64
	X, Y, Z             float64
	QW, QX, QY, QZ      float64
	VX, VY, VZ          float64
	PositionOccluded    bool
	OrientationOccluded bool
	Quality             int64
}

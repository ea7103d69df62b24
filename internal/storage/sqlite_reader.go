package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

// OdometryReader provides an iterator-based interface for reading recorded
// odometry with optional time filtering.
type OdometryReader interface {
	// Session returns metadata about the run this reader is accessing.
	Session() *Session

	// Next advances the iterator and returns true if there is another record
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current record in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *telemetry.Odometry

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures an odometry reader
type ReaderOption func(*SqliteOdometryReader)

// WithStartTime excludes records before t
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteOdometryReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes records after t
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteOdometryReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteOdometryReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// WithoutOccluded skips records where the capture lost the position
func WithoutOccluded() ReaderOption {
	return func(r *SqliteOdometryReader) {
		r.skipOccluded = true
	}
}

var _ OdometryReader = (*SqliteOdometryReader)(nil)

// SqliteOdometryReader implements OdometryReader for SQLite database backend.
type SqliteOdometryReader struct {
	db *sql.DB

	sessionID    int64
	session      *Session
	skipOccluded bool

	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter

	current telemetry.Odometry
	rows    *sql.Rows
	err     error
}

func newSqliteOdometryReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteOdometryReader, error) {
	r := &SqliteOdometryReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return r, nil
}

func (r *SqliteOdometryReader) init(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database connection required")
	}
	if r.sessionID <= 0 {
		return errors.New("session ID required")
	}
	if r.startTime != nil && r.endTime != nil && r.startTime.After(*r.endTime) {
		return fmt.Errorf("start time %s is after end time %s", r.startTime, r.endTime)
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: r.loadSession},
		{msg: "initializing query", fn: r.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (r *SqliteOdometryReader) loadSession(ctx context.Context) (err error) {
	r.session, err = querySession(ctx, r.db, r.sessionID)
	return
}

func (r *SqliteOdometryReader) initQuery(ctx context.Context) (err error) {
	from, to := int64(math.MinInt64), int64(math.MaxInt64)
	if r.startTime != nil {
		from = r.startTime.UnixMicro()
	}
	if r.endTime != nil {
		to = r.endTime.UnixMicro()
	}

	stmt, err := r.db.PrepareContext(ctx, selectOdometrySQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if r.rows, err = stmt.QueryContext(ctx, r.sessionID, from, to); err != nil {
		return err
	}
	return nil
}

func (r *SqliteOdometryReader) Session() *Session {
	return r.session
}

func (r *SqliteOdometryReader) Next(ctx context.Context) bool {
	if r.err != nil || r.rows == nil {
		return false
	}

	for {
		select {
		case <-ctx.Done():
			r.err = ctx.Err()
			return false
		default:
		}

		if !r.rows.Next() {
			return false
		}

		var d odometryData
		err := r.rows.Scan(
			&d.TimestampUs,
			&d.Frame,
			&d.X,
			&d.Y,
			&d.Z,
			&d.QW,
			&d.QX,
			&d.QY,
			&d.QZ,
			&d.VX,
			&d.VY,
			&d.VZ,
			&d.PositionOccluded,
			&d.OrientationOccluded,
			&d.Quality,
		)
		if err != nil {
			r.err = fmt.Errorf("scanning odometry: %w", err)
			return false
		}

		if r.skipOccluded && d.PositionOccluded {
			continue
		}

		d.SessionID = r.sessionID
		r.current = fromOdometryData(&d)
		return true
	}
}

func (r *SqliteOdometryReader) Current() *telemetry.Odometry {
	return &r.current
}

func (r *SqliteOdometryReader) Error() error {
	if r.err != nil {
		return r.err
	}
	if r.rows != nil {
		return r.rows.Err()
	}
	return nil
}

func (r *SqliteOdometryReader) Close() error {
	if r.rows != nil {
		err := r.rows.Close()
		r.rows = nil
		return err
	}
	return nil
}

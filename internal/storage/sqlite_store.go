package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

// maxRowsPerStatement keeps a batch insert well below the SQLite bound
// variables limit
const maxRowsPerStatement = 500

// WithLogger sets the logger used for schema migrations
func WithLogger(logger *slog.Logger) func(*SqliteStore) {
	return func(s *SqliteStore) {
		s.logger = logger
	}
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string
	logger *slog.Logger

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store for the SQLite database at dbPath. The
// database is opened and migrated on first write.
func NewSqliteStore(dbPath string, options ...func(*SqliteStore)) *SqliteStore {
	s := SqliteStore{
		dbPath: dbPath,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = migrateUp(db, s.logger); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// SchemaVersion returns the applied migration version of the database
func (s *SqliteStore) SchemaVersion() (uint, error) {
	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}
	return schemaVersion(db)
}

func (s *SqliteStore) CreateSession(ctx context.Context, runID, source string, config any) (sessionID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch c := config.(type) {
		case string:
			configData.Valid = true
			configData.String = c

		case []byte:
			configData.Valid = true
			configData.String = string(c)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, runID, time.Now().UTC(), source, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	return querySession(ctx, db, id)
}

func querySession(ctx context.Context, db *sql.DB, id int64) (session *Session, err error) {
	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var sess sessionData
	if err = stmt.QueryRowContext(ctx, id).Scan(&sess.ID, &sess.RunID, &sess.StartTime, &sess.Source, &sess.Config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}

	return toSession(&sess), nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess sessionData
		if err = rows.Scan(&sess.ID, &sess.RunID, &sess.StartTime, &sess.Source, &sess.Config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, toSession(&sess))
	}
	err = rows.Err()
	return
}

// CountOdometry returns the number of odometry records of a session
func (s *SqliteStore) CountOdometry(ctx context.Context, sessionID int64) (count int64, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return 0, fmt.Errorf("getting read connection: %w", err)
	}

	if err = db.QueryRowContext(ctx, countOdometrySQL, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting odometry: %w", err)
	}
	return count, nil
}

// ReadOdometry creates a reader that iterates over the odometry records of a
// session in timestamp order.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - sessionID: Unique identifier of the session to read from
//   - opts: Optional configuration parameters for the reader (WithTimeRange,
//     WithStartTime, WithEndTime, WithoutOccluded)
//
// The returned reader must be closed after use to release database resources.
// Each reader instance should only be used from a single goroutine.
//
// Returns error if reader creation fails or session doesn't exist.
func (s *SqliteStore) ReadOdometry(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SqliteOdometryReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteOdometryReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) StoreOdometry(ctx context.Context, sessionID int64, records []*telemetry.Odometry) (err error) {
	if len(records) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	for start := 0; start < len(records); start += maxRowsPerStatement {
		chunk := records[start:min(start+maxRowsPerStatement, len(records))]

		// Prepare values array
		values := make([]interface{}, 0, len(chunk)*odometryColumns)

		var sb strings.Builder

		sb.WriteString(insertOdometrySQL)

		for i, record := range chunk {
			data := toOdometryData(sessionID, record)
			values = append(values,
				data.SessionID,
				data.TimestampUs,
				data.Frame,
				data.X,
				data.Y,
				data.Z,
				data.QW,
				data.QX,
				data.QY,
				data.QZ,
				data.VX,
				data.VY,
				data.VZ,
				data.PositionOccluded,
				data.OrientationOccluded,
				data.Quality,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(odometryValuesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting odometry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			// leave the file in rollback journal mode for read-only openers
			_, _ = s.writeDB.Exec(journalModeDeleteSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

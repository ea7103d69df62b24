package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

// Store provides an interface for the flight recorder storage. It handles
// sessions and odometry records in a thread-safe manner. All operations that
// write to the database should be considered atomic.
type Store interface {
	// CreateSession registers a new bridge run and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - runID: UUID of the run, as it appears in the logs
	//   - source: Frame source kind (e.g., "process", "sim")
	//   - config: Optional run configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, runID, source string, config any) (sessionID int64, err error)

	// Session retrieves a specific session by its ID.
	//
	// Returns:
	//   - session: Pointer to session data
	//   - error: If retrieval fails, the session does not exist or context is cancelled
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all sessions stored in the database.
	// Results are ordered by start time in ascending order.
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreOdometry saves a batch of odometry records for a specific session.
	// All records are stored in a single atomic transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session the records belong to
	//   - records: Odometry records, typically in timestamp order
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	StoreOdometry(ctx context.Context, sessionID int64, records []*telemetry.Odometry) error

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)

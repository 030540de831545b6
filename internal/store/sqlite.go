// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides checkpoint/state persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agent_states (
			task_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			state TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_task
			ON checkpoints(task_id, seq);

		CREATE TABLE IF NOT EXISTS lifecycle_events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			subject TEXT NOT NULL,
			correlation_id TEXT,
			time DATETIME NOT NULL,
			data TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_lifecycle_events_subject
			ON lifecycle_events(subject, time);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveAgentState upserts the latest state snapshot for a task.
func (s *SQLiteStore) SaveAgentState(ctx context.Context, taskID, status string, state json.RawMessage) error {
	query := `
		INSERT INTO agent_states (task_id, status, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			state = excluded.state,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		taskID,
		status,
		string(state),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving agent state: %w", err)
	}

	s.logger.Debug("saved agent state", "task_id", taskID, "status", status)
	return nil
}

// GetAgentState retrieves the latest state snapshot for a task.
func (s *SQLiteStore) GetAgentState(ctx context.Context, taskID string) (json.RawMessage, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM agent_states WHERE task_id = ?`, taskID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent state: %w", err)
	}
	return json.RawMessage(state), nil
}

// SaveCheckpoint persists an immutable checkpoint snapshot.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	query := `
		INSERT INTO checkpoints (id, task_id, seq, state, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		cp.ID,
		cp.TaskID,
		cp.Seq,
		string(cp.State),
		cp.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting checkpoint: %w", err)
	}

	s.logger.Debug("saved checkpoint",
		"checkpoint_id", cp.ID,
		"task_id", cp.TaskID,
		"seq", cp.Seq,
	)
	return nil
}

// GetCheckpoint retrieves a single checkpoint by ID.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, seq, state, created_at
		FROM checkpoints
		WHERE id = ?
	`, id)
	return scanCheckpoint(row)
}

// LatestCheckpoint retrieves the most recent checkpoint for a task,
// or ErrNotFound if the task has never checkpointed.
func (s *SQLiteStore) LatestCheckpoint(ctx context.Context, taskID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, seq, state, created_at
		FROM checkpoints
		WHERE task_id = ?
		ORDER BY seq DESC, created_at DESC
		LIMIT 1
	`, taskID)
	return scanCheckpoint(row)
}

// scanCheckpoint scans a checkpoint row, mapping no-rows to ErrNotFound.
func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	cp := &Checkpoint{}
	var state, createdAt string

	err := row.Scan(&cp.ID, &cp.TaskID, &cp.Seq, &state, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning checkpoint: %w", err)
	}

	cp.State = json.RawMessage(state)
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing checkpoint timestamp: %w", err)
	}
	cp.CreatedAt = ts
	return cp, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

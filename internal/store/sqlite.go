package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/afflo/tasksync/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// ReplaceTasks replaces all cached rows for the user with the given
// snapshot. The delete and inserts run in a single transaction so a
// failure leaves the previous cache intact.
func (s *SQLiteStore) ReplaceTasks(
	ctx context.Context,
	userID string,
	tasks []model.Task,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM task_cache WHERE user_id = ?", userID,
	); err != nil {
		return fmt.Errorf("clearing cache for user %s: %w", userID, err)
	}

	const query = `
		INSERT INTO task_cache (
			id, user_id, text, is_completed, sort_order, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing cache insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		_, err = stmt.ExecContext(ctx,
			t.ID, userID, t.Text, boolToInt(t.IsCompleted), t.Order,
			t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("caching task %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// LoadTasks retrieves the cached rows for the user sorted ascending by
// sort order.
func (s *SQLiteStore) LoadTasks(
	ctx context.Context,
	userID string,
) ([]model.Task, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, user_id, text, is_completed, sort_order, created_at, updated_at
		FROM task_cache
		WHERE user_id = ?
		ORDER BY sort_order ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying task cache: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var (
			t         model.Task
			completed int
			createdAt time.Time
			updatedAt time.Time
		)
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Text, &completed, &t.Order,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning cached task: %w", err)
		}
		t.IsCompleted = completed != 0
		t.CreatedAt = createdAt
		t.UpdatedAt = updatedAt
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// UpsertPendingOperation inserts a queued operation, or replaces the
// existing one for the same task id in place. The operation record id
// of an existing row is preserved.
func (s *SQLiteStore) UpsertPendingOperation(
	ctx context.Context,
	op model.PendingOperation,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_operations (id, task_id, operation_type, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			operation_type = excluded.operation_type,
			timestamp      = excluded.timestamp,
			payload        = excluded.payload`,
		op.ID, op.TaskID, string(op.Type), op.Timestamp.UTC(), op.Payload,
	)
	if err != nil {
		return fmt.Errorf("queueing %s operation for task %s: %w", op.Type, op.TaskID, err)
	}
	return nil
}

// ListPendingOperations retrieves all queued operations in enqueue
// order. Ties on timestamp fall back to the record id so the order is
// stable for a given dataset.
func (s *SQLiteStore) ListPendingOperations(
	ctx context.Context,
) ([]model.PendingOperation, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, task_id, operation_type, timestamp, payload
		FROM pending_operations
		ORDER BY timestamp ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending operations: %w", err)
	}
	defer rows.Close()

	var ops []model.PendingOperation
	for rows.Next() {
		var (
			op     model.PendingOperation
			opType string
			ts     time.Time
		)
		if err := rows.Scan(&op.ID, &op.TaskID, &opType, &ts, &op.Payload); err != nil {
			return nil, fmt.Errorf("scanning pending operation: %w", err)
		}
		op.Type = model.OperationType(opType)
		op.Timestamp = ts
		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// DeletePendingOperation removes a queued operation by record id.
func (s *SQLiteStore) DeletePendingOperation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM pending_operations WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("deleting pending operation %s: %w", id, err)
	}
	return nil
}

// CountPendingOperations reports the number of queued operations.
func (s *SQLiteStore) CountPendingOperations(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM pending_operations")
	if err != nil {
		return 0, fmt.Errorf("counting pending operations: %w", err)
	}
	return count, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

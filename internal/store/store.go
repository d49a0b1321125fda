package store

import (
	"context"

	"github.com/afflo/tasksync/internal/model"
)

// Store is the durable on-device persistence layer: a per-user task
// cache mirroring the in-memory list, and the pending-operation queue
// of not-yet-acknowledged mutations.
type Store interface {
	// ReplaceTasks atomically replaces all cached rows for the user
	// with the given snapshot (delete-then-insert in one transaction).
	ReplaceTasks(ctx context.Context, userID string, tasks []model.Task) error

	// LoadTasks returns the cached rows for the user, sorted ascending
	// by order. Callers re-apply the display sort on top.
	LoadTasks(ctx context.Context, userID string) ([]model.Task, error)

	// UpsertPendingOperation records a queued mutation. If an operation
	// already exists for the same task id it is replaced in place
	// (type, payload, and timestamp), keeping a single live operation
	// per task.
	UpsertPendingOperation(ctx context.Context, op model.PendingOperation) error

	// ListPendingOperations returns all queued operations ordered by
	// enqueue time ascending.
	ListPendingOperations(ctx context.Context) ([]model.PendingOperation, error)

	// DeletePendingOperation removes a queued operation by its own id.
	DeletePendingOperation(ctx context.Context, id string) error

	// CountPendingOperations reports how many operations are queued.
	CountPendingOperations(ctx context.Context) (int, error)

	// Close releases the underlying database.
	Close() error
}

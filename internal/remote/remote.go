// Package remote defines the contract with the remote task backend.
// Transport and authentication live in the concrete client; the sync
// engine only depends on this interface.
package remote

import (
	"context"

	"github.com/afflo/tasksync/internal/model"
)

// TaskStore is the remote backend for one user's task set.
//
// Upsert must be keyed by task id (insert-or-overwrite) so replaying a
// queued create or update twice is idempotent. Delete must treat a
// missing row as success, which makes replaying a delete for a row that
// never reached the backend harmless.
type TaskStore interface {
	// Select returns all tasks for the user ordered ascending by the
	// order column.
	Select(ctx context.Context, userID string) ([]model.Task, error)

	// Upsert inserts or overwrites a single task keyed by id.
	Upsert(ctx context.Context, task model.Task) error

	// Delete removes a task by id. Deleting an absent row is not an
	// error.
	Delete(ctx context.Context, taskID string) error
}

// Package sync implements the offline/online reconciliation policy: it
// writes mutations to the remote store when reachable, queues them
// durably when not, and drains the queue in enqueue order once
// connectivity returns.
package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/afflo/tasksync/internal/connectivity"
	"github.com/afflo/tasksync/internal/model"
	"github.com/afflo/tasksync/internal/remote"
	"github.com/afflo/tasksync/internal/store"
)

// DefaultRetryInterval is how often the background retry loop re-checks
// the pending queue while online.
const DefaultRetryInterval = 30 * time.Second

// Engine orchestrates the local cache, the pending-operation queue, and
// the remote store. It owns both local tables: no other component
// writes them.
type Engine struct {
	store   store.Store
	remote  remote.TaskStore
	monitor connectivity.Monitor
	logger  *slog.Logger

	retryInterval time.Duration

	mu      gosync.Mutex
	stopCh  chan struct{}
	running bool
}

// NewEngine creates a sync engine over the given store, remote backend,
// and connectivity monitor.
func NewEngine(
	s store.Store,
	r remote.TaskStore,
	m connectivity.Monitor,
	logger *slog.Logger,
	retryInterval time.Duration,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	return &Engine{
		store:         s,
		remote:        r,
		monitor:       m,
		logger:        logger,
		retryInterval: retryInterval,
	}
}

// AttemptRemoteWrite tries exactly one remote call for the operation:
// upsert for create/update, delete by id for delete. It reports whether
// the call succeeded; a device known to be offline fails immediately
// without a network attempt.
func (e *Engine) AttemptRemoteWrite(
	ctx context.Context,
	opType model.OperationType,
	task model.Task,
) bool {
	if !e.monitor.Connected() {
		return false
	}

	var err error
	switch opType {
	case model.OpDelete:
		err = e.remote.Delete(ctx, task.ID)
	default:
		err = e.remote.Upsert(ctx, task)
	}

	if err != nil {
		e.logger.Warn("remote write failed",
			"op", string(opType), "task", task.ID, "error", err)
		return false
	}
	return true
}

// Enqueue records a mutation in the pending queue. A queued operation
// for the same task is replaced in place, collapsing rapid edits into a
// single eventual write.
func (e *Engine) Enqueue(
	ctx context.Context,
	opType model.OperationType,
	taskID string,
	task model.Task,
) error {
	payload, err := model.EncodeTaskPayload(task)
	if err != nil {
		return err
	}

	op := model.PendingOperation{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Type:      opType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	if err := e.store.UpsertPendingOperation(ctx, op); err != nil {
		return err
	}

	e.logger.Info("queued operation", "op", string(opType), "task", taskID)
	return nil
}

// SyncTask applies one mutation: attempt the remote write, and on
// failure (or offline) queue it for later. The returned error only
// reflects a queueing failure; a failed remote write is an expected,
// recoverable condition.
func (e *Engine) SyncTask(
	ctx context.Context,
	opType model.OperationType,
	task model.Task,
) error {
	if e.AttemptRemoteWrite(ctx, opType, task) {
		return nil
	}
	return e.Enqueue(ctx, opType, task.ID, task)
}

// DrainPending replays all queued operations in enqueue order. An
// operation is removed once its remote call succeeds, removed
// immediately when its payload cannot be decoded or its type is
// unknown, and left in place for the next drain when the remote call
// fails. A failed operation does not stop the rest of the queue.
func (e *Engine) DrainPending(ctx context.Context) error {
	ops, err := e.store.ListPendingOperations(ctx)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	e.logger.Info("draining pending operations", "count", len(ops))

	for _, op := range ops {
		task, err := op.DecodeTask()
		if err != nil {
			// Poison message: a corrupt payload can never replay.
			e.logger.Warn("dropping undecodable operation",
				"id", op.ID, "task", op.TaskID, "error", err)
			e.deleteOp(ctx, op.ID)
			continue
		}

		switch op.Type {
		case model.OpCreate, model.OpUpdate:
			err = e.remote.Upsert(ctx, task)
		case model.OpDelete:
			err = e.remote.Delete(ctx, op.TaskID)
		default:
			e.logger.Warn("dropping operation of unknown type",
				"id", op.ID, "type", string(op.Type))
			e.deleteOp(ctx, op.ID)
			continue
		}

		if err != nil {
			e.logger.Warn("replay failed, keeping operation",
				"op", string(op.Type), "task", op.TaskID, "error", err)
			continue
		}

		e.deleteOp(ctx, op.ID)
	}

	return nil
}

func (e *Engine) deleteOp(ctx context.Context, id string) {
	if err := e.store.DeletePendingOperation(ctx, id); err != nil {
		e.logger.Error("deleting pending operation", "id", id, "error", err)
	}
}

// PendingCount reports how many operations are queued.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.store.CountPendingOperations(ctx)
}

// FetchRemote pulls the canonical task list for the user from the
// remote store.
func (e *Engine) FetchRemote(ctx context.Context, userID string) ([]model.Task, error) {
	return e.remote.Select(ctx, userID)
}

// RefreshCache replaces the user's cached rows with the given snapshot.
// The cache is best effort: failures are logged, never propagated.
func (e *Engine) RefreshCache(ctx context.Context, userID string, tasks []model.Task) {
	if err := e.store.ReplaceTasks(ctx, userID, tasks); err != nil {
		e.logger.Error("refreshing task cache", "user", userID, "error", err)
	}
}

// LoadCache returns the user's cached tasks, pre-sorted by order. A
// read failure degrades to an empty result.
func (e *Engine) LoadCache(ctx context.Context, userID string) []model.Task {
	tasks, err := e.store.LoadTasks(ctx, userID)
	if err != nil {
		e.logger.Error("loading task cache", "user", userID, "error", err)
		return nil
	}
	return tasks
}

// StartPeriodicRetry launches the background safety net: every retry
// interval, while online, if any operation is queued, onSync is invoked
// to run the full sync path. Calling it again restarts the loop.
func (e *Engine) StartPeriodicRetry(onSync func(context.Context)) {
	e.StopPeriodicRetry()

	e.mu.Lock()
	e.stopCh = make(chan struct{})
	e.running = true
	stopCh := e.stopCh
	e.mu.Unlock()

	go e.retryLoop(stopCh, onSync)
}

// StopPeriodicRetry halts the retry loop. No further ticks fire after
// it returns.
func (e *Engine) StopPeriodicRetry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	close(e.stopCh)
	e.running = false
}

func (e *Engine) retryLoop(stopCh chan struct{}, onSync func(context.Context)) {
	ticker := time.NewTicker(e.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !e.monitor.Connected() {
				continue
			}

			ctx := context.Background()
			count, err := e.store.CountPendingOperations(ctx)
			if err != nil {
				e.logger.Error("checking pending operations", "error", err)
				continue
			}
			if count == 0 {
				continue
			}

			e.logger.Info("retrying pending operations", "count", count)
			onSync(ctx)
		}
	}
}

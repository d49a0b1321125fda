// Package task holds the state exposed to presentation: the in-memory
// ordered task list and its mutation entry points. All persistence and
// sync decisions are delegated to the sync engine; mutations here are
// optimistic and never block on connectivity.
package task

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/afflo/tasksync/internal/connectivity"
	"github.com/afflo/tasksync/internal/identity"
	"github.com/afflo/tasksync/internal/model"
	"github.com/afflo/tasksync/internal/sync"
)

// Controller owns the in-memory task list for one user session. Public
// operations are serialized against each other; observers registered
// with OnChange are called synchronously after each state change and
// may read controller state but must not invoke mutations.
type Controller struct {
	engine   *sync.Engine
	identity identity.Provider
	monitor  connectivity.Monitor
	logger   *slog.Logger

	// opMu serializes the public operations, including their I/O, so
	// two concurrent AddTask calls cannot compute the same order and
	// the queue's read-then-write upsert never races.
	opMu gosync.Mutex

	// syncMu collapses overlapping sync triggers (connectivity event,
	// periodic retry, manual refresh) into a single pass.
	syncMu gosync.Mutex

	mu      gosync.RWMutex
	tasks   []model.Task
	loading bool
	lastErr string

	obsMu     gosync.Mutex
	observers []func()
}

// NewController creates a controller for one user session.
func NewController(
	engine *sync.Engine,
	provider identity.Provider,
	monitor connectivity.Monitor,
	logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		engine:   engine,
		identity: provider,
		monitor:  monitor,
		logger:   logger,
	}
}

// Start wires connectivity transitions to the sync machinery: going
// online triggers a sync and arms the periodic retry loop, going
// offline disarms it. It returns immediately; the watcher stops when
// ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	transitions := c.monitor.Subscribe()

	if c.monitor.Connected() {
		c.engine.StartPeriodicRetry(c.SyncNow)
	}

	go func() {
		defer c.engine.StopPeriodicRetry()
		for {
			select {
			case <-ctx.Done():
				return
			case online, ok := <-transitions:
				if !ok {
					return
				}
				if online {
					c.SyncNow(ctx)
					c.engine.StartPeriodicRetry(c.SyncNow)
				} else {
					c.engine.StopPeriodicRetry()
				}
			}
		}
	}()
}

// LoadTasks resolves the current user and loads the task list: from the
// remote store when connected (draining the pending queue first), from
// the local cache otherwise or on any failure mid-flow.
func (c *Controller) LoadTasks(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.load(ctx)
}

// load performs the load flow. Callers hold opMu.
func (c *Controller) load(ctx context.Context) {
	c.setLoading(true)
	defer c.setLoading(false)
	c.setError("")

	userID := c.resolveUserID(ctx)

	if c.monitor.Connected() {
		if err := c.engine.DrainPending(ctx); err != nil {
			c.logger.Warn("draining before load", "error", err)
		}

		remoteTasks, err := c.engine.FetchRemote(ctx, userID)
		if err == nil {
			c.setTasks(model.SortTasks(remoteTasks))
			c.engine.RefreshCache(ctx, userID, c.Tasks())
			return
		}

		c.logger.Warn("remote load failed, falling back to cache",
			"user", userID, "error", err)
		c.setError(fmt.Sprintf("couldn't refresh from server: %v", err))
	}

	cached := c.engine.LoadCache(ctx, userID)
	c.setTasks(model.SortTasks(cached))
}

// AddTask appends a new task with the next order value among incomplete
// tasks. Empty text is a no-op. The task appears in memory immediately;
// the remote write is attempted and queued on failure.
func (c *Controller) AddTask(ctx context.Context, text string) {
	if text == "" {
		return
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	userID := c.resolveUserID(ctx)
	now := time.Now().UTC()

	c.mu.Lock()
	t := model.Task{
		ID:        uuid.NewString(),
		Text:      text,
		Order:     model.NextOrder(c.tasks),
		CreatedAt: now,
		UpdatedAt: now,
		UserID:    userID,
	}
	c.tasks = model.SortTasks(append(c.tasks, t))
	c.mu.Unlock()
	c.notify()

	c.finishMutation(ctx, userID, model.OpCreate, t)
}

// UpdateTask replaces the text of an existing task. Unknown ids are a
// no-op.
func (c *Controller) UpdateTask(ctx context.Context, id, text string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	c.tasks[idx].Text = text
	c.tasks[idx].UpdatedAt = time.Now().UTC()
	t := c.tasks[idx]
	c.mu.Unlock()
	c.notify()

	c.finishMutation(ctx, t.UserID, model.OpUpdate, t)
}

// ToggleComplete flips a task's completion state, moving it between the
// incomplete and completed partitions. Unknown ids are a no-op.
func (c *Controller) ToggleComplete(ctx context.Context, id string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	c.tasks[idx].IsCompleted = !c.tasks[idx].IsCompleted
	c.tasks[idx].UpdatedAt = time.Now().UTC()
	t := c.tasks[idx]
	c.tasks = model.SortTasks(c.tasks)
	c.mu.Unlock()
	c.notify()

	c.finishMutation(ctx, t.UserID, model.OpUpdate, t)
}

// DeleteTask removes a task from the in-memory list immediately,
// regardless of connectivity, then attempts the remote delete (queued
// on failure). Unknown ids are a no-op.
func (c *Controller) DeleteTask(ctx context.Context, id string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	t := c.tasks[idx]
	c.tasks = append(c.tasks[:idx], c.tasks[idx+1:]...)
	c.mu.Unlock()
	c.notify()

	c.finishMutation(ctx, t.UserID, model.OpDelete, t)
}

// SyncNow drains the pending queue and reloads canonical state from the
// remote store. It is a no-op while offline, and overlapping triggers
// collapse into a single pass.
func (c *Controller) SyncNow(ctx context.Context) {
	if !c.monitor.Connected() {
		return
	}
	if !c.syncMu.TryLock() {
		return
	}
	defer c.syncMu.Unlock()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.engine.DrainPending(ctx); err != nil {
		c.logger.Warn("draining pending queue", "error", err)
	}
	c.load(ctx)
}

// finishMutation runs the write-or-queue step and the cache refresh
// shared by every mutation.
func (c *Controller) finishMutation(
	ctx context.Context,
	userID string,
	opType model.OperationType,
	t model.Task,
) {
	if err := c.engine.SyncTask(ctx, opType, t); err != nil {
		// Queueing failed too; the in-memory and cached state still
		// hold the mutation, so surface it as advisory only.
		c.logger.Error("queueing mutation", "op", string(opType), "task", t.ID, "error", err)
		c.setError(fmt.Sprintf("couldn't queue change: %v", err))
	}
	c.engine.RefreshCache(ctx, userID, c.Tasks())
}

// Tasks returns a copy of the current ordered task list.
func (c *Controller) Tasks() []model.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// IsLoading reports whether a load is in flight.
func (c *Controller) IsLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// LastError returns the advisory error message, empty when none. It is
// informational only; no operation blocks on it.
func (c *Controller) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// ClearError dismisses the advisory error message.
func (c *Controller) ClearError() {
	c.setError("")
}

// OnChange registers a callback invoked after every state change.
func (c *Controller) OnChange(fn func()) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

// indexOf returns the position of the task with the given id, or -1.
// Callers hold mu.
func (c *Controller) indexOf(id string) int {
	for i, t := range c.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) resolveUserID(ctx context.Context) string {
	id, err := c.identity.CurrentUserID(ctx)
	if err != nil || id == "" {
		c.logger.Warn("no session, using anonymous user", "error", err)
		return identity.AnonymousUserID
	}
	return id
}

func (c *Controller) setTasks(tasks []model.Task) {
	c.mu.Lock()
	c.tasks = tasks
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) setLoading(loading bool) {
	c.mu.Lock()
	c.loading = loading
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	c.obsMu.Lock()
	observers := make([]func(), len(c.observers))
	copy(observers, c.observers)
	c.obsMu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

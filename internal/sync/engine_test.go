package sync

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/afflo/tasksync/internal/model"
	"github.com/afflo/tasksync/internal/store"
)

// fakeRemote is an in-memory remote task store recording call order.
type fakeRemote struct {
	mu    gosync.Mutex
	tasks map[string]model.Task
	fail  bool
	calls []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{tasks: make(map[string]model.Task)}
}

func (f *fakeRemote) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeRemote) Select(ctx context.Context, userID string) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("remote unavailable")
	}
	var out []model.Task
	for _, t := range f.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return model.SortTasks(out), nil
}

func (f *fakeRemote) Upsert(ctx context.Context, task model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("remote unavailable")
	}
	f.tasks[task.ID] = task
	f.calls = append(f.calls, "upsert:"+task.ID)
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("remote unavailable")
	}
	delete(f.tasks, taskID)
	f.calls = append(f.calls, "delete:"+taskID)
	return nil
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeRemote) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tasks[id]
	return ok
}

// fakeMonitor is a manually switched connectivity signal.
type fakeMonitor struct {
	mu     gosync.Mutex
	online bool
	subs   []chan bool
}

func (m *fakeMonitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *fakeMonitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *fakeMonitor) setOnline(online bool) {
	m.mu.Lock()
	m.online = online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- online:
		default:
		}
	}
}

func newTestEngine(t *testing.T, online bool) (*Engine, *fakeRemote, *fakeMonitor, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	remote := newFakeRemote()
	monitor := &fakeMonitor{online: online}
	engine := NewEngine(st, remote, monitor, nil, 10*time.Millisecond)
	return engine, remote, monitor, st
}

func task(id, userID string, order int) model.Task {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return model.Task{
		ID: id, Text: "task " + id, Order: order,
		CreatedAt: now, UpdatedAt: now, UserID: userID,
	}
}

func TestSyncTaskOnline(t *testing.T) {
	engine, remote, _, _ := newTestEngine(t, true)
	ctx := context.Background()

	if err := engine.SyncTask(ctx, model.OpCreate, task("t1", "u1", 0)); err != nil {
		t.Fatalf("SyncTask: %v", err)
	}

	if !remote.has("t1") {
		t.Error("task not written to remote")
	}
	count, _ := engine.PendingCount(ctx)
	if count != 0 {
		t.Errorf("pending count = %d, want 0", count)
	}
}

func TestSyncTaskOfflineQueues(t *testing.T) {
	engine, remote, _, st := newTestEngine(t, false)
	ctx := context.Background()

	if err := engine.SyncTask(ctx, model.OpCreate, task("t1", "u1", 0)); err != nil {
		t.Fatalf("SyncTask: %v", err)
	}

	if remote.has("t1") {
		t.Error("offline write must not reach the remote")
	}
	ops, err := st.ListPendingOperations(ctx)
	if err != nil {
		t.Fatalf("ListPendingOperations: %v", err)
	}
	if len(ops) != 1 || ops[0].Type != model.OpCreate || ops[0].TaskID != "t1" {
		t.Fatalf("queued ops = %+v, want one create for t1", ops)
	}
}

func TestSyncTaskRemoteFailureQueues(t *testing.T) {
	engine, remote, _, _ := newTestEngine(t, true)
	remote.setFail(true)
	ctx := context.Background()

	if err := engine.SyncTask(ctx, model.OpUpdate, task("t1", "u1", 0)); err != nil {
		t.Fatalf("SyncTask: %v", err)
	}

	count, _ := engine.PendingCount(ctx)
	if count != 1 {
		t.Errorf("pending count = %d, want 1", count)
	}
}

func TestDrainPendingFIFO(t *testing.T) {
	engine, remote, _, st := newTestEngine(t, true)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seed := []model.PendingOperation{
		{ID: "op2", TaskID: "t2", Type: model.OpUpdate, Timestamp: base.Add(time.Second)},
		{ID: "op1", TaskID: "t1", Type: model.OpCreate, Timestamp: base},
		{ID: "op3", TaskID: "t3", Type: model.OpDelete, Timestamp: base.Add(2 * time.Second)},
	}
	for i := range seed {
		payload, err := model.EncodeTaskPayload(task(seed[i].TaskID, "u1", i))
		if err != nil {
			t.Fatalf("EncodeTaskPayload: %v", err)
		}
		seed[i].Payload = payload
		if err := st.UpsertPendingOperation(ctx, seed[i]); err != nil {
			t.Fatalf("UpsertPendingOperation: %v", err)
		}
	}

	if err := engine.DrainPending(ctx); err != nil {
		t.Fatalf("DrainPending: %v", err)
	}

	want := []string{"upsert:t1", "upsert:t2", "delete:t3"}
	got := remote.callLog()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}

	count, _ := engine.PendingCount(ctx)
	if count != 0 {
		t.Errorf("pending count after drain = %d, want 0", count)
	}
}

func TestDrainDropsCorruptPayload(t *testing.T) {
	engine, _, _, st := newTestEngine(t, true)
	ctx := context.Background()

	op := model.PendingOperation{
		ID: "op1", TaskID: "t1", Type: model.OpCreate,
		Timestamp: time.Now().UTC(), Payload: "{not json",
	}
	if err := st.UpsertPendingOperation(ctx, op); err != nil {
		t.Fatalf("UpsertPendingOperation: %v", err)
	}

	if err := engine.DrainPending(ctx); err != nil {
		t.Fatalf("DrainPending: %v", err)
	}

	count, _ := engine.PendingCount(ctx)
	if count != 0 {
		t.Errorf("poison operation not dropped, count = %d", count)
	}
}

func TestDrainDropsUnknownType(t *testing.T) {
	engine, remote, _, st := newTestEngine(t, true)
	ctx := context.Background()

	payload, _ := model.EncodeTaskPayload(task("t1", "u1", 0))
	op := model.PendingOperation{
		ID: "op1", TaskID: "t1", Type: "compact",
		Timestamp: time.Now().UTC(), Payload: payload,
	}
	if err := st.UpsertPendingOperation(ctx, op); err != nil {
		t.Fatalf("UpsertPendingOperation: %v", err)
	}

	if err := engine.DrainPending(ctx); err != nil {
		t.Fatalf("DrainPending: %v", err)
	}

	count, _ := engine.PendingCount(ctx)
	if count != 0 {
		t.Errorf("unknown-type operation not dropped, count = %d", count)
	}
	if len(remote.callLog()) != 0 {
		t.Errorf("unknown-type operation reached the remote: %v", remote.callLog())
	}
}

func TestDrainKeepsFailedOperation(t *testing.T) {
	engine, remote, _, st := newTestEngine(t, true)
	ctx := context.Background()

	payload, _ := model.EncodeTaskPayload(task("t1", "u1", 0))
	op := model.PendingOperation{
		ID: "op1", TaskID: "t1", Type: model.OpCreate,
		Timestamp: time.Now().UTC(), Payload: payload,
	}
	if err := st.UpsertPendingOperation(ctx, op); err != nil {
		t.Fatalf("UpsertPendingOperation: %v", err)
	}

	remote.setFail(true)
	if err := engine.DrainPending(ctx); err != nil {
		t.Fatalf("DrainPending: %v", err)
	}

	count, _ := engine.PendingCount(ctx)
	if count != 1 {
		t.Fatalf("failed operation dropped, count = %d", count)
	}

	// The next drain after recovery clears it.
	remote.setFail(false)
	if err := engine.DrainPending(ctx); err != nil {
		t.Fatalf("DrainPending retry: %v", err)
	}
	count, _ = engine.PendingCount(ctx)
	if count != 0 {
		t.Errorf("operation not cleared after recovery, count = %d", count)
	}
	if !remote.has("t1") {
		t.Error("task missing from remote after recovered drain")
	}
}

func TestDrainEmptyQueueIsNoop(t *testing.T) {
	engine, remote, _, _ := newTestEngine(t, true)
	if err := engine.DrainPending(context.Background()); err != nil {
		t.Fatalf("DrainPending: %v", err)
	}
	if len(remote.callLog()) != 0 {
		t.Errorf("empty drain touched the remote: %v", remote.callLog())
	}
}

func TestIdempotentReplay(t *testing.T) {
	engine, remote, _, st := newTestEngine(t, true)
	ctx := context.Background()

	payload, _ := model.EncodeTaskPayload(task("t1", "u1", 0))
	op := model.PendingOperation{
		ID: "op1", TaskID: "t1", Type: model.OpCreate,
		Timestamp: time.Now().UTC(), Payload: payload,
	}

	// Replay the same create twice, as a retry racing a late success would.
	for i := 0; i < 2; i++ {
		if err := st.UpsertPendingOperation(ctx, op); err != nil {
			t.Fatalf("UpsertPendingOperation: %v", err)
		}
		if err := engine.DrainPending(ctx); err != nil {
			t.Fatalf("DrainPending: %v", err)
		}
	}

	tasks, err := remote.Select(ctx, "u1")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("remote has %d tasks after double replay, want 1", len(tasks))
	}
}

func TestPeriodicRetryTriggersWhenQueued(t *testing.T) {
	engine, _, _, st := newTestEngine(t, true)
	ctx := context.Background()

	payload, _ := model.EncodeTaskPayload(task("t1", "u1", 0))
	op := model.PendingOperation{
		ID: "op1", TaskID: "t1", Type: model.OpCreate,
		Timestamp: time.Now().UTC(), Payload: payload,
	}
	if err := st.UpsertPendingOperation(ctx, op); err != nil {
		t.Fatalf("UpsertPendingOperation: %v", err)
	}

	var syncs atomic.Int32
	engine.StartPeriodicRetry(func(context.Context) {
		syncs.Add(1)
	})

	deadline := time.Now().Add(2 * time.Second)
	for syncs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	engine.StopPeriodicRetry()

	if syncs.Load() == 0 {
		t.Fatal("retry loop never fired with a queued operation")
	}

	// Let any in-flight tick finish before sampling.
	time.Sleep(30 * time.Millisecond)
	after := syncs.Load()
	time.Sleep(50 * time.Millisecond)
	if syncs.Load() != after {
		t.Error("retry loop kept firing after stop")
	}
}

func TestPeriodicRetrySkipsWhileOffline(t *testing.T) {
	engine, _, monitor, st := newTestEngine(t, false)
	ctx := context.Background()

	payload, _ := model.EncodeTaskPayload(task("t1", "u1", 0))
	op := model.PendingOperation{
		ID: "op1", TaskID: "t1", Type: model.OpCreate,
		Timestamp: time.Now().UTC(), Payload: payload,
	}
	if err := st.UpsertPendingOperation(ctx, op); err != nil {
		t.Fatalf("UpsertPendingOperation: %v", err)
	}

	var syncs atomic.Int32
	engine.StartPeriodicRetry(func(context.Context) {
		syncs.Add(1)
	})
	defer engine.StopPeriodicRetry()

	time.Sleep(50 * time.Millisecond)
	if syncs.Load() != 0 {
		t.Fatal("retry loop fired while offline")
	}

	monitor.setOnline(true)
	deadline := time.Now().Add(2 * time.Second)
	for syncs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if syncs.Load() == 0 {
		t.Fatal("retry loop never fired after coming online")
	}
}

package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// OperationType identifies the kind of mutation a pending operation
// will replay against the remote store.
type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

// PendingOperation is a durable record of a mutation that has not yet
// been acknowledged by the remote store. At most one pending operation
// exists per task id; a newer mutation replaces the queued one.
type PendingOperation struct {
	// ID identifies the operation record itself, not the task.
	ID string `db:"id"`

	// TaskID is the task this operation targets.
	TaskID string `db:"task_id"`

	// Type is the mutation to replay.
	Type OperationType `db:"operation_type"`

	// Timestamp is the enqueue time; the queue drains oldest first.
	Timestamp time.Time `db:"timestamp"`

	// Payload is the JSON-encoded task snapshot taken at mutation time.
	// Not needed to replay a delete but stored uniformly.
	Payload string `db:"payload"`
}

// EncodeTaskPayload serializes a task snapshot for queue storage.
func EncodeTaskPayload(t Task) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encoding task payload for %s: %w", t.ID, err)
	}
	return string(data), nil
}

// DecodeTask deserializes the stored task snapshot. A failure here means
// the record can never replay successfully and should be dropped.
func (op PendingOperation) DecodeTask() (Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(op.Payload), &t); err != nil {
		return Task{}, fmt.Errorf("decoding payload of operation %s: %w", op.ID, err)
	}
	return t, nil
}

package model

import (
	"sort"
	"time"
)

// Task is a single to-do item owned by one user.
//
// The JSON field names match the remote tasks table columns, so the same
// struct is used for pending-operation payloads and remote responses.
type Task struct {
	// ID is the client-generated unique identifier, assigned at creation.
	ID string `json:"id"`

	// Text is the user-editable content.
	Text string `json:"text"`

	// IsCompleted marks the task as done.
	IsCompleted bool `json:"is_completed"`

	// Order is the sort key among incomplete tasks. Appending picks
	// max(order)+1 over the incomplete set; values are never compacted.
	Order int `json:"order"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// UserID scopes the task to its owning user.
	UserID string `json:"user_id"`
}

// SortTasks returns the display ordering: incomplete tasks ascending by
// Order, followed by completed tasks in their arrival order. The input
// slice is not modified.
func SortTasks(tasks []Task) []Task {
	incomplete := make([]Task, 0, len(tasks))
	completed := make([]Task, 0)
	for _, t := range tasks {
		if t.IsCompleted {
			completed = append(completed, t)
		} else {
			incomplete = append(incomplete, t)
		}
	}

	// Stable so equal Order values keep their arrival order.
	sort.SliceStable(incomplete, func(i, j int) bool {
		return incomplete[i].Order < incomplete[j].Order
	})

	return append(incomplete, completed...)
}

// NextOrder computes the sort key for an appended task: one past the
// highest Order among incomplete tasks, or 0 when there are none.
// Completed tasks are ignored so reopening old items cannot inflate
// the counter.
func NextOrder(tasks []Task) int {
	max := -1
	for _, t := range tasks {
		if t.IsCompleted {
			continue
		}
		if t.Order > max {
			max = t.Order
		}
	}
	return max + 1
}

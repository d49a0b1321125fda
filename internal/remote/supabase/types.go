package supabase

import (
	"time"

	"github.com/afflo/tasksync/internal/model"
)

// taskRecord mirrors a row of the remote tasks table.
type taskRecord struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	IsCompleted bool      `json:"is_completed"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	UserID      string    `json:"user_id"`
}

// upsertRecord is the write shape: created_at is set by the backend on
// first insert and never overwritten on replay.
type upsertRecord struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	IsCompleted bool      `json:"is_completed"`
	Order       int       `json:"order"`
	UserID      string    `json:"user_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r taskRecord) toModel() model.Task {
	return model.Task{
		ID:          r.ID,
		Text:        r.Text,
		IsCompleted: r.IsCompleted,
		Order:       r.Order,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		UserID:      r.UserID,
	}
}

func upsertFromModel(t model.Task) upsertRecord {
	return upsertRecord{
		ID:          t.ID,
		Text:        t.Text,
		IsCompleted: t.IsCompleted,
		Order:       t.Order,
		UserID:      t.UserID,
		UpdatedAt:   t.UpdatedAt,
	}
}

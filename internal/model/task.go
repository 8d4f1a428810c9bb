package model

import "time"

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// TaskSnapshot is the read-only view of one batch registration task as
// returned to polling clients.
type TaskSnapshot struct {
	ID         string           `json:"taskId"`
	Status     TaskStatus       `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
	Total      int              `json:"total"`
	Completed  int              `json:"completed"`
	Failed     int              `json:"failed"`
	InProgress int              `json:"inProgress"`
	Results    []CreatedAccount `json:"results,omitempty"`
	Errors     []string         `json:"errors,omitempty"`
}

// TaskProgress is published on the bus every time a work item settles.
type TaskProgress struct {
	TaskID    string     `json:"taskId"`
	Status    TaskStatus `json:"status"`
	Total     int        `json:"total"`
	Completed int        `json:"completed"`
	Failed    int        `json:"failed"`
}

package notify

import (
	"context"
	"time"
)

// TaskCompletedEvent describes a finished batch registration task.
type TaskCompletedEvent struct {
	At        time.Time     `json:"at"`
	TaskID    string        `json:"taskId"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

type Notifier interface {
	NotifyTaskCompleted(ctx context.Context, evt TaskCompletedEvent)
}

// Nop discards all events; used when notifications are disabled.
type Nop struct{}

func (Nop) NotifyTaskCompleted(context.Context, TaskCompletedEvent) {}

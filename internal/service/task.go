package service

import (
	"context"
	"fmt"
	"time"

	"lnstats/internal/metrics"
)

// Status is the outcome of one task within a cycle.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Task is one unit of periodic aggregation work.
type Task interface {
	Name() string
	Run(ctx context.Context, now time.Time) (Status, error)
}

// TaskResult records how a task fared in a cycle.
type TaskResult struct {
	Task     string
	Status   Status
	Err      error
	Duration time.Duration
}

// Failed reports whether the task returned an error.
func (r TaskResult) Failed() bool {
	return r.Status == StatusFailed
}

// runTask executes task with panic isolation and records its outcome.
func runTask(ctx context.Context, task Task, now time.Time) (result TaskResult) {
	start := time.Now()
	result.Task = task.Name()

	defer func() {
		if rec := recover(); rec != nil {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("task %s panicked: %v", task.Name(), rec)
		}
		result.Duration = time.Since(start)
		metrics.RecordTask(result.Task, string(result.Status), result.Duration)
	}()

	status, err := task.Run(ctx, now)
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	if status == "" {
		status = StatusCompleted
	}
	result.Status = status
	return result
}

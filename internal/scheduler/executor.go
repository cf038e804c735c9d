package scheduler

import (
	"context"

	"github.com/google/uuid"
)

// ExecutionStatus is the verdict an executor reports for one task run.
type ExecutionStatus string

const (
	// ExecutionCompleted means the task ran and produced a usable trajectory.
	ExecutionCompleted ExecutionStatus = "completed"

	// ExecutionFailed means the task ran but the executor judged it failed.
	ExecutionFailed ExecutionStatus = "failed"

	// ExecutionQualityFiltered means the task ran successfully but its
	// output was filtered out downstream. It still counts as a completed
	// attempt; the job is not retried.
	ExecutionQualityFiltered ExecutionStatus = "quality_filtered"
)

// Execution is the outcome an Executor produces for a task.
type Execution struct {
	Status       ExecutionStatus
	TrajectoryID *uuid.UUID
	Error        string
}

// Executor runs a single task and reports an outcome. The scheduler is
// agnostic to what execution actually involves: an in-process pipeline, a
// subprocess adapter, or a remote call all satisfy this interface.
//
// A returned error means the execution machinery itself broke (as opposed
// to the task failing); the worker treats it as a retryable failure.
// Executors must be safe to abandon mid-flight: when the job timeout
// fires, the worker stops waiting and the context is cancelled.
type Executor interface {
	Execute(ctx context.Context, spec TaskSpec) (*Execution, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, spec TaskSpec) (*Execution, error)

func (f ExecutorFunc) Execute(ctx context.Context, spec TaskSpec) (*Execution, error) {
	return f(ctx, spec)
}

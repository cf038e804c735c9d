// Package executor provides task executor implementations for the worker
// pool. The real sandbox-backed executor lives in the rollout service; this
// package carries the stub used for local runs and load testing.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/forgebench/scheduler/internal/scheduler"
)

// Stub is an Executor that fabricates execution outcomes without running
// anything. Each call waits for the configured delay, then reports the
// configured status with a fresh trajectory ID.
type Stub struct {
	// Status is the outcome every execution reports.
	Status scheduler.ExecutionStatus
	// Err is returned as a machinery error when set; Status is ignored then.
	Err error
	// Delay simulates execution time. The delay respects context
	// cancellation, so job timeouts still apply.
	Delay time.Duration
}

// NewStub returns a stub executor that completes every task instantly.
func NewStub() *Stub {
	return &Stub{Status: scheduler.ExecutionCompleted}
}

func (s *Stub) Execute(ctx context.Context, spec scheduler.TaskSpec) (*scheduler.Execution, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.Err != nil {
		return nil, s.Err
	}

	exec := &scheduler.Execution{Status: s.Status}
	if s.Status == scheduler.ExecutionCompleted {
		trajectoryID := uuid.New()
		exec.TrajectoryID = &trajectoryID
	}
	return exec, nil
}

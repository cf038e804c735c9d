package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// worker is a single polling loop owned by a WorkerPool. Each iteration
// it checks the shutdown signal, blocks briefly on Dequeue, executes any
// job it receives, and commits the outcome back to the queue.
//
// Mutual exclusion between workers comes entirely from the queue's atomic
// dequeue: whichever worker wins the BRPOPLPUSH owns the job. Workers hold
// no locks of their own.
type worker struct {
	id           string
	queue        *JobQueue
	executor     Executor
	pollInterval time.Duration
	jobTimeout   time.Duration
	stats        *poolStats
	logger       *slog.Logger
	stopCh       <-chan struct{}
}

// run is the worker loop. It exits when the stop channel is closed; a job
// already executing runs to completion or to the job timeout first.
func (w *worker) run() {
	w.logger.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("worker received shutdown signal")
			return
		default:
		}

		job, err := w.queue.Dequeue(context.Background(), w.pollInterval)
		if err != nil {
			w.logger.Error("failed to dequeue job", "error", err)
			w.sleep()
			continue
		}
		if job == nil {
			// Idle queue; Dequeue already waited for the poll interval.
			continue
		}

		w.processJob(job)
	}
}

// processJob executes one job and commits the outcome. A modeled outcome
// from the executor (success, failure verdict, or timeout) always resolves
// the attempt via Complete; only machinery errors consume retry budget.
func (w *worker) processJob(job *Job) {
	logger := w.logger.With("job_id", job.ID, "task_id", job.TaskSpec.ID)
	start := time.Now()

	w.stats.incrementActive()
	defer w.stats.decrementActive()

	// Count the attempt before executing so that a crash mid-execution
	// is still charged against the retry budget on recovery.
	job.IncrementAttempts()

	logger.Info("processing job", "attempt", job.Attempts, "max_attempts", job.MaxAttempts)

	result, execErr := w.executeWithTimeout(job)
	duration := time.Since(start)

	if execErr != nil {
		w.stats.recordFailure(duration)
		w.commitFailure(job, execErr, logger)
		return
	}

	if err := w.queue.Complete(context.Background(), job.ID, result); err != nil {
		logger.Error("failed to mark job complete", "error", err)
	}

	if result.IsSuccess() {
		w.stats.recordCompletion(duration)
		logger.Info("job completed", "duration_ms", duration.Milliseconds())
	} else {
		w.stats.recordFailure(duration)
		logger.Warn("job completed with failure status",
			"status", result.Status,
			"error", result.Error,
			"duration_ms", duration.Milliseconds())
	}
}

// executeWithTimeout races the executor against the job timeout. On
// timeout the execution goroutine is abandoned (its context is cancelled,
// but it is not awaited) and a timeout result is synthesized.
func (w *worker) executeWithTimeout(job *Job) (*JobResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	type outcome struct {
		exec *Execution
		err  error
	}

	start := time.Now()
	outcomeCh := make(chan outcome, 1)
	go func() {
		exec, err := w.executor.Execute(ctx, job.TaskSpec)
		outcomeCh <- outcome{exec: exec, err: err}
	}()

	select {
	case out := <-outcomeCh:
		durationMs := time.Since(start).Milliseconds()
		if out.err != nil {
			return nil, fmt.Errorf("execute task %s: %w", job.TaskSpec.ID, out.err)
		}
		return w.mapExecution(job, out.exec, durationMs), nil

	case <-ctx.Done():
		return TimeoutResult(job.ID, w.id, time.Since(start).Milliseconds()), nil
	}
}

// mapExecution converts an executor verdict into a JobResult.
func (w *worker) mapExecution(job *Job, exec *Execution, durationMs int64) *JobResult {
	switch exec.Status {
	case ExecutionCompleted, ExecutionQualityFiltered:
		// Quality-filtered runs still count as completed attempts.
		trajectoryID := uuid.New()
		if exec.TrajectoryID != nil {
			trajectoryID = *exec.TrajectoryID
		}
		return SuccessResult(job.ID, w.id, trajectoryID, durationMs)

	case ExecutionFailed:
		errMsg := exec.Error
		if errMsg == "" {
			errMsg = "unknown error"
		}
		return FailureResult(job.ID, w.id, errMsg, durationMs)

	default:
		return FailureResult(job.ID, w.id,
			fmt.Sprintf("unexpected execution status: %s", exec.Status), durationMs)
	}
}

// commitFailure handles a machinery failure: requeue while retry budget
// remains, dead-letter once it is exhausted.
func (w *worker) commitFailure(job *Job, execErr error, logger *slog.Logger) {
	if job.ShouldRetry() {
		logger.Warn("job failed, requeueing for retry",
			"error", execErr,
			"remaining_attempts", job.RemainingAttempts())

		if err := w.queue.Requeue(context.Background(), job); err != nil {
			logger.Error("failed to requeue job", "error", err)
		}
		return
	}

	logger.Error("job failed after max attempts, moving to dead-letter queue", "error", execErr)

	if err := w.queue.DeadLetter(context.Background(), job, execErr.Error()); err != nil {
		logger.Error("failed to dead-letter job", "error", err)
	}
}

// sleep waits out the poll interval after a dequeue error, returning early
// if shutdown is signalled.
func (w *worker) sleep() {
	select {
	case <-time.After(w.pollInterval):
	case <-w.stopCh:
	}
}

package scheduler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Default maximum number of execution attempts before a job is dead-lettered.
const DefaultMaxAttempts = 3

// DefaultTaskTimeout is the per-task execution timeout applied when a
// TaskSpec does not specify one.
const DefaultTaskTimeout = 30 * time.Minute

// DefaultMaxSteps is the default agent step budget for a task.
const DefaultMaxSteps = 50

// TaskSpec describes one unit of work to be executed by an agent worker.
// It is an immutable value: producers build it once, the queue stores it
// serialized, and workers hand it to the executor unchanged.
type TaskSpec struct {
	ID                 string `json:"id"`
	Category           string `json:"category"`
	Difficulty         string `json:"difficulty"`
	Instruction        string `json:"instruction"`
	VerificationScript string `json:"verification_script,omitempty"`
	ExpectedOutput     string `json:"expected_output,omitempty"`
	TimeoutSeconds     int64  `json:"timeout_seconds"`
	MaxSteps           int    `json:"max_steps"`
	ModelHint          string `json:"model_hint,omitempty"`
}

// NewTaskSpec creates a task specification with the default timeout and
// step budget.
func NewTaskSpec(id, category, difficulty, instruction string) TaskSpec {
	return TaskSpec{
		ID:             id,
		Category:       category,
		Difficulty:     difficulty,
		Instruction:    instruction,
		TimeoutSeconds: int64(DefaultTaskTimeout / time.Second),
		MaxSteps:       DefaultMaxSteps,
	}
}

// WithVerificationScript returns a copy of the spec with the verification
// script set.
func (s TaskSpec) WithVerificationScript(script string) TaskSpec {
	s.VerificationScript = script
	return s
}

// WithExpectedOutput returns a copy of the spec with the expected output set.
func (s TaskSpec) WithExpectedOutput(output string) TaskSpec {
	s.ExpectedOutput = output
	return s
}

// WithTimeoutSeconds returns a copy of the spec with the timeout set.
func (s TaskSpec) WithTimeoutSeconds(seconds int64) TaskSpec {
	s.TimeoutSeconds = seconds
	return s
}

// WithMaxSteps returns a copy of the spec with the step budget set.
func (s TaskSpec) WithMaxSteps(steps int) TaskSpec {
	s.MaxSteps = steps
	return s
}

// WithModelHint returns a copy of the spec with the model hint set.
func (s TaskSpec) WithModelHint(model string) TaskSpec {
	s.ModelHint = model
	return s
}

// Timeout returns the task's execution timeout as a duration.
func (s TaskSpec) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Job wraps a TaskSpec with the scheduling metadata the queue needs:
// identity, retry budget, and creation time. Jobs are serialized as JSON
// so that external tooling can inspect pending and dead-lettered work.
type Job struct {
	ID       uuid.UUID `json:"id"`
	TaskSpec TaskSpec  `json:"task_spec"`
	// Priority is recorded for each job but the queue is strictly FIFO;
	// the field is never consulted by Dequeue.
	Priority    int             `json:"priority"`
	CreatedAt   time.Time       `json:"created_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// NewJob creates a job for the given task with a fresh UUID, normal
// priority, zero attempts, and the default retry budget.
func NewJob(spec TaskSpec) *Job {
	return &Job{
		ID:          uuid.New(),
		TaskSpec:    spec,
		Priority:    0,
		CreatedAt:   time.Now().UTC(),
		Attempts:    0,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// NewJobWithPriority creates a job with the given priority. Negative
// values indicate lower-than-normal priority.
func NewJobWithPriority(spec TaskSpec, priority int) *Job {
	j := NewJob(spec)
	j.Priority = priority
	return j
}

// WithMaxAttempts sets the retry budget and returns the job for chaining.
func (j *Job) WithMaxAttempts(n int) *Job {
	j.MaxAttempts = n
	return j
}

// WithMetadata attaches opaque metadata and returns the job for chaining.
func (j *Job) WithMetadata(metadata json.RawMessage) *Job {
	j.Metadata = metadata
	return j
}

// IncrementAttempts records the start of an execution attempt. Workers
// call this immediately before executing so that a crash mid-execution
// still counts against the retry budget.
func (j *Job) IncrementAttempts() {
	j.Attempts++
}

// ShouldRetry reports whether the job has retry budget left.
func (j *Job) ShouldRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// RemainingAttempts returns how many attempts are left.
func (j *Job) RemainingAttempts() int {
	if j.Attempts >= j.MaxAttempts {
		return 0
	}
	return j.MaxAttempts - j.Attempts
}

// Age returns how long ago the job was created.
func (j *Job) Age() time.Duration {
	return time.Since(j.CreatedAt)
}

// JobStatus is the terminal status of a processed job.
type JobStatus string

const (
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimeout   JobStatus = "timeout"
	JobStatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) String() string {
	return string(s)
}

// JobResult records the outcome of one job attempt. Results are stored
// keyed by job id with a bounded retention window; last write wins.
type JobResult struct {
	JobID        uuid.UUID  `json:"job_id"`
	Status       JobStatus  `json:"status"`
	TrajectoryID *uuid.UUID `json:"trajectory_id,omitempty"`
	Error        string     `json:"error,omitempty"`
	CompletedAt  time.Time  `json:"completed_at"`
	WorkerID     string     `json:"worker_id"`
	DurationMs   int64      `json:"duration_ms"`
}

// SuccessResult creates a result for a successfully completed job.
func SuccessResult(jobID uuid.UUID, workerID string, trajectoryID uuid.UUID, durationMs int64) *JobResult {
	return &JobResult{
		JobID:        jobID,
		Status:       JobStatusCompleted,
		TrajectoryID: &trajectoryID,
		CompletedAt:  time.Now().UTC(),
		WorkerID:     workerID,
		DurationMs:   durationMs,
	}
}

// FailureResult creates a result for a job that failed with an explicit
// verdict from the executor.
func FailureResult(jobID uuid.UUID, workerID, errMsg string, durationMs int64) *JobResult {
	return &JobResult{
		JobID:       jobID,
		Status:      JobStatusFailed,
		Error:       errMsg,
		CompletedAt: time.Now().UTC(),
		WorkerID:    workerID,
		DurationMs:  durationMs,
	}
}

// TimeoutResult creates a result for a job whose execution exceeded the
// worker's job timeout.
func TimeoutResult(jobID uuid.UUID, workerID string, durationMs int64) *JobResult {
	return &JobResult{
		JobID:       jobID,
		Status:      JobStatusTimeout,
		Error:       "job execution timed out",
		CompletedAt: time.Now().UTC(),
		WorkerID:    workerID,
		DurationMs:  durationMs,
	}
}

// CancelledResult creates a result for a job cancelled before completion.
func CancelledResult(jobID uuid.UUID, workerID string) *JobResult {
	return &JobResult{
		JobID:       jobID,
		Status:      JobStatusCancelled,
		Error:       "job was cancelled",
		CompletedAt: time.Now().UTC(),
		WorkerID:    workerID,
	}
}

// IsSuccess reports whether the job completed successfully.
func (r *JobResult) IsSuccess() bool {
	return r.Status == JobStatusCompleted
}

// DeadLetterEntry is the record persisted when a job exhausts its retry
// budget: the job itself, the final error, and when it was moved. Nothing
// about the failed job is discarded.
type DeadLetterEntry struct {
	Job     Job       `json:"job"`
	Error   string    `json:"error"`
	MovedAt time.Time `json:"moved_at"`
}

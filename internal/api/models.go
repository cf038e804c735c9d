package api

import (
	"encoding/json"
	"time"

	"github.com/forgebench/scheduler/internal/scheduler"
)

// Common request/response structures

// TaskSpecPayload is the wire representation of a task specification.
type TaskSpecPayload struct {
	ID                 string `json:"id" validate:"required"`
	Category           string `json:"category" validate:"required"`
	Difficulty         string `json:"difficulty" validate:"required"`
	Instruction        string `json:"instruction" validate:"required,min=1"`
	VerificationScript string `json:"verification_script,omitempty"`
	ExpectedOutput     string `json:"expected_output,omitempty"`
	TimeoutSeconds     int64  `json:"timeout_seconds,omitempty" validate:"omitempty,gt=0"`
	MaxSteps           int    `json:"max_steps,omitempty" validate:"omitempty,gt=0"`
	ModelHint          string `json:"model_hint,omitempty"`
}

// toTaskSpec converts the payload to a task spec, applying defaults for the
// optional budget fields.
func (p TaskSpecPayload) toTaskSpec() scheduler.TaskSpec {
	spec := scheduler.NewTaskSpec(p.ID, p.Category, p.Difficulty, p.Instruction)
	spec.VerificationScript = p.VerificationScript
	spec.ExpectedOutput = p.ExpectedOutput
	spec.ModelHint = p.ModelHint
	if p.TimeoutSeconds > 0 {
		spec.TimeoutSeconds = p.TimeoutSeconds
	}
	if p.MaxSteps > 0 {
		spec.MaxSteps = p.MaxSteps
	}
	return spec
}

// EnqueueJobRequest defines the payload for submitting a single job.
type EnqueueJobRequest struct {
	TaskSpec    TaskSpecPayload `json:"task_spec" validate:"required"`
	Priority    int             `json:"priority,omitempty"`
	MaxAttempts int             `json:"max_attempts,omitempty" validate:"omitempty,gt=0"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// EnqueueBatchRequest defines the payload for submitting multiple jobs.
type EnqueueBatchRequest struct {
	Jobs []EnqueueJobRequest `json:"jobs" validate:"required,min=1,dive"`
}

// JobResponse represents an accepted job.
type JobResponse struct {
	JobID       string    `json:"job_id"`
	TaskID      string    `json:"task_id"`
	Priority    int       `json:"priority"`
	MaxAttempts int       `json:"max_attempts"`
	CreatedAt   time.Time `json:"created_at"`
}

// BatchResponse represents an accepted batch of jobs.
type BatchResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// RequeueDeadLetterRequest controls how many dead-lettered jobs to retry.
type RequeueDeadLetterRequest struct {
	Limit int64 `json:"limit,omitempty" validate:"omitempty,gt=0"`
}

// RequeueDeadLetterResponse reports how many jobs were moved back to pending.
type RequeueDeadLetterResponse struct {
	Requeued int `json:"requeued"`
}

// StatsResponse combines queue depth and worker pool activity.
type StatsResponse struct {
	Queue *scheduler.QueueStats `json:"queue"`
	Pool  scheduler.PoolStats   `json:"pool"`
}

// jobToResponse converts a scheduler job to its API representation.
func jobToResponse(job *scheduler.Job) JobResponse {
	return JobResponse{
		JobID:       job.ID.String(),
		TaskID:      job.TaskSpec.ID,
		Priority:    job.Priority,
		MaxAttempts: job.MaxAttempts,
		CreatedAt:   job.CreatedAt,
	}
}

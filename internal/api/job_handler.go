package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forgebench/scheduler/internal/api/shared"
	"github.com/forgebench/scheduler/internal/scheduler"
)

// JobHandler handles job submission and result lookup requests.
type JobHandler struct {
	queue *scheduler.JobQueue
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(queue *scheduler.JobQueue) *JobHandler {
	return &JobHandler{queue: queue}
}

// EnqueueJob handles POST /api/jobs requests.
func (h *JobHandler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req EnqueueJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	job := buildJob(req)
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		slog.Error("failed to enqueue job", "error", err, "task_id", req.TaskSpec.ID)
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to enqueue job", err)
		return
	}

	// 202: the job is accepted, execution happens asynchronously.
	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// EnqueueBatch handles POST /api/jobs/batch requests. The batch is enqueued
// atomically: either every job is accepted or none are.
func (h *JobHandler) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var req EnqueueBatchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	jobs := make([]*scheduler.Job, len(req.Jobs))
	for i, jobReq := range req.Jobs {
		jobs[i] = buildJob(jobReq)
	}

	if err := h.queue.EnqueueBatch(r.Context(), jobs); err != nil {
		slog.Error("failed to enqueue batch", "error", err, "batch_size", len(jobs))
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to enqueue batch", err)
		return
	}

	resp := BatchResponse{Jobs: make([]JobResponse, len(jobs))}
	for i, job := range jobs {
		resp.Jobs[i] = jobToResponse(job)
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, resp)
}

// GetResult handles GET /api/jobs/{id}/result requests.
func (h *JobHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	result, err := h.queue.GetResult(r.Context(), jobID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to fetch result", err)
		return
	}
	if result == nil {
		// Pending, still executing, or past the retention window.
		shared.RespondWithError(w, r, http.StatusNotFound, "Result not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// buildJob converts a validated request into a scheduler job.
func buildJob(req EnqueueJobRequest) *scheduler.Job {
	job := scheduler.NewJobWithPriority(req.TaskSpec.toTaskSpec(), req.Priority)
	if req.MaxAttempts > 0 {
		job.WithMaxAttempts(req.MaxAttempts)
	}
	if len(req.Metadata) > 0 {
		job.WithMetadata(req.Metadata)
	}
	return job
}

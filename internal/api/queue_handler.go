package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/forgebench/scheduler/internal/api/shared"
	"github.com/forgebench/scheduler/internal/scheduler"
)

// defaultDeadLetterPeek bounds GET /api/queue/dead-letter when no limit is
// given.
const defaultDeadLetterPeek = 100

// QueueHandler handles queue inspection and administration requests.
type QueueHandler struct {
	queue *scheduler.JobQueue
	pool  *scheduler.WorkerPool
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(queue *scheduler.JobQueue, pool *scheduler.WorkerPool) *QueueHandler {
	return &QueueHandler{queue: queue, pool: pool}
}

// Stats handles GET /api/queue/stats requests.
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	queueStats, err := h.queue.Stats(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to fetch queue stats", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, StatsResponse{
		Queue: queueStats,
		Pool:  h.pool.Stats(),
	})
}

// PeekDeadLetter handles GET /api/queue/dead-letter requests. The optional
// "limit" query parameter bounds how many entries are returned.
func (h *QueueHandler) PeekDeadLetter(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultDeadLetterPeek)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	entries, err := h.queue.PeekDeadLetter(r.Context(), limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to read dead letter queue", err)
		return
	}
	if entries == nil {
		entries = []scheduler.DeadLetterEntry{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, entries)
}

// RequeueDeadLetter handles POST /api/queue/dead-letter/requeue requests.
// Dead-lettered jobs re-enter the pending queue with a fresh retry budget.
func (h *QueueHandler) RequeueDeadLetter(w http.ResponseWriter, r *http.Request) {
	var req RequeueDeadLetterRequest
	if err := shared.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	limit := req.Limit
	if limit <= 0 {
		// An empty body retries everything currently dead-lettered.
		n, err := h.queue.DeadLetterLen(r.Context())
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to read dead letter queue", err)
			return
		}
		limit = n
	}

	requeued, err := h.queue.RequeueDeadLetter(r.Context(), limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to requeue dead letter jobs", err)
		return
	}

	slog.Info("requeued dead letter jobs", "count", requeued)
	shared.RespondWithJSON(w, r, http.StatusOK, RequeueDeadLetterResponse{Requeued: requeued})
}

// Clear handles DELETE /api/queue requests. It removes all pending,
// processing, and dead-lettered jobs; stored results are untouched.
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Clear(r.Context()); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to clear queue", err)
		return
	}

	slog.Info("queue cleared", "queue", h.queue.QueueName())
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebench/scheduler/internal/scheduler"
)

func newQueueRouter(h *QueueHandler) chi.Router {
	r := chi.NewRouter()
	r.Get("/api/queue/stats", h.Stats)
	r.Get("/api/queue/dead-letter", h.PeekDeadLetter)
	r.Post("/api/queue/dead-letter/requeue", h.RequeueDeadLetter)
	r.Delete("/api/queue", h.Clear)
	return r
}

func newTestQueueHandler(t *testing.T) (*QueueHandler, *scheduler.JobQueue) {
	t.Helper()

	queue := newTestQueue(t)
	noop := scheduler.ExecutorFunc(func(ctx context.Context, spec scheduler.TaskSpec) (*scheduler.Execution, error) {
		return &scheduler.Execution{Status: scheduler.ExecutionCompleted}, nil
	})
	pool := scheduler.NewWorkerPool(queue, noop, scheduler.DefaultWorkerPoolConfig(), testLogger())
	return NewQueueHandler(queue, pool), queue
}

// deadLetterJob pushes one job through dequeue and dead-letter so the DLQ
// has a realistic entry.
func deadLetterJob(t *testing.T, queue *scheduler.JobQueue, taskID string) *scheduler.Job {
	t.Helper()
	ctx := context.Background()

	job := scheduler.NewJob(scheduler.NewTaskSpec(taskID, "coding", "medium", "do something"))
	require.NoError(t, queue.Enqueue(ctx, job))

	dequeued, err := queue.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, dequeued)

	dequeued.Attempts = dequeued.MaxAttempts
	require.NoError(t, queue.DeadLetter(ctx, dequeued, "verification failed"))
	return job
}

func TestQueueStats(t *testing.T) {
	handler, queue := newTestQueueHandler(t)
	router := newQueueRouter(handler)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		job := scheduler.NewJob(scheduler.NewTaskSpec("task", "coding", "medium", "do something"))
		require.NoError(t, queue.Enqueue(ctx, job))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/queue/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Queue)
	assert.Equal(t, "test_tasks", resp.Queue.QueueName)
	assert.Equal(t, int64(3), resp.Queue.PendingJobs)
	assert.Equal(t, int64(0), resp.Queue.ProcessingJobs)
	assert.Equal(t, 4, resp.Pool.NumWorkers)
	assert.Equal(t, int64(0), resp.Pool.JobsCompleted)
}

func TestPeekDeadLetter(t *testing.T) {
	handler, queue := newTestQueueHandler(t)
	router := newQueueRouter(handler)

	job := deadLetterJob(t, queue, "task-dead")

	req := httptest.NewRequest(http.MethodGet, "/api/queue/dead-letter", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var entries []scheduler.DeadLetterEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, job.ID, entries[0].Job.ID)
	assert.Equal(t, "verification failed", entries[0].Error)
	assert.False(t, entries[0].MovedAt.IsZero())
}

func TestPeekDeadLetterEmpty(t *testing.T) {
	handler, _ := newTestQueueHandler(t)
	router := newQueueRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/queue/dead-letter", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String(), "empty dead letter queue should render as an empty array")
}

func TestPeekDeadLetterInvalidLimit(t *testing.T) {
	handler, _ := newTestQueueHandler(t)
	router := newQueueRouter(handler)

	for _, limit := range []string{"0", "-1", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/queue/dead-letter?limit="+limit, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestRequeueDeadLetter(t *testing.T) {
	handler, queue := newTestQueueHandler(t)
	router := newQueueRouter(handler)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		deadLetterJob(t, queue, "task-dead")
	}

	body, err := json.Marshal(RequeueDeadLetterRequest{Limit: 2})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/queue/dead-letter/requeue", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp RequeueDeadLetterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Requeued)

	pending, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	remaining, err := queue.DeadLetterLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestRequeueDeadLetterEmptyBody(t *testing.T) {
	handler, queue := newTestQueueHandler(t)
	router := newQueueRouter(handler)
	ctx := context.Background()

	deadLetterJob(t, queue, "task-dead")
	deadLetterJob(t, queue, "task-dead")

	// No body means retry everything.
	req := httptest.NewRequest(http.MethodPost, "/api/queue/dead-letter/requeue", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp RequeueDeadLetterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Requeued)

	remaining, err := queue.DeadLetterLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}

func TestClearQueue(t *testing.T) {
	handler, queue := newTestQueueHandler(t)
	router := newQueueRouter(handler)
	ctx := context.Background()

	// A stored result survives a queue clear.
	otherJob := scheduler.NewJob(scheduler.NewTaskSpec("task-2", "coding", "medium", "do something"))
	require.NoError(t, queue.Enqueue(ctx, otherJob))
	dequeued, err := queue.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, dequeued)
	require.NoError(t, queue.Complete(ctx, dequeued.ID, scheduler.SuccessResult(dequeued.ID, "worker-0", uuid.New(), 10)))

	deadLetterJob(t, queue, "task-dead")
	job := scheduler.NewJob(scheduler.NewTaskSpec("task-1", "coding", "medium", "do something"))
	require.NoError(t, queue.Enqueue(ctx, job))

	req := httptest.NewRequest(http.MethodDelete, "/api/queue", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalJobs())

	result, err := queue.GetResult(ctx, dequeued.ID)
	require.NoError(t, err)
	assert.NotNil(t, result, "results are retained across a queue clear")
}

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultResultTTL is how long job results are retained after completion.
const DefaultResultTTL = 7 * 24 * time.Hour

// JobQueue is a reliable, crash-tolerant job queue backed by Redis.
//
// Every live job resides in exactly one of three lists:
//
//   - {name}             pending jobs, waiting for a worker
//   - {name}:processing  jobs currently owned by a worker
//   - {name}:dead_letter jobs that exhausted their retry budget
//
// Dequeue uses BRPOPLPUSH so that a job moves from pending to processing
// in a single atomic step. A worker crash therefore leaves the job sitting
// in the processing list, where RecoverProcessingJobs reclaims it on the
// next startup. No operation can make a job vanish from all lists or
// appear in two at once.
type JobQueue struct {
	rdb             redis.UniversalClient
	queueName       string
	processingQueue string
	deadLetterQueue string
	resultsKey      string
	resultTTL       time.Duration
	logger          *slog.Logger
}

// QueueOption configures a JobQueue.
type QueueOption func(*JobQueue)

// WithResultTTL overrides the retention window for stored job results.
func WithResultTTL(ttl time.Duration) QueueOption {
	return func(q *JobQueue) { q.resultTTL = ttl }
}

// NewJobQueue creates a queue over an existing Redis client. The client is
// shared: each operation issues commands on it directly, and go-redis
// handles connection pooling and reconnection underneath.
func NewJobQueue(rdb redis.UniversalClient, queueName string, logger *slog.Logger, opts ...QueueOption) *JobQueue {
	q := &JobQueue{
		rdb:             rdb,
		queueName:       queueName,
		processingQueue: queueName + ":processing",
		deadLetterQueue: queueName + ":dead_letter",
		resultsKey:      queueName + ":results",
		resultTTL:       DefaultResultTTL,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// QueueName returns the name of the underlying queue.
func (q *JobQueue) QueueName() string {
	return q.queueName
}

// Enqueue serializes the job and pushes it onto the pending queue.
func (q *JobQueue) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	if err := q.rdb.LPush(ctx, q.queueName, data).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// EnqueueBatch pushes multiple jobs in a single pipelined operation. The
// push is all-or-nothing at the Redis level; no partial batch is left
// behind on failure.
func (q *JobQueue) EnqueueBatch(ctx context.Context, jobs []*Job) error {
	if len(jobs) == 0 {
		return nil
	}

	serialized := make([]interface{}, 0, len(jobs))
	for _, job := range jobs {
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", job.ID, err)
		}
		serialized = append(serialized, data)
	}

	// A single LPUSH with all values is atomic: Redis appends either the
	// whole batch or nothing.
	if err := q.rdb.LPush(ctx, q.queueName, serialized...).Err(); err != nil {
		return fmt.Errorf("enqueue batch of %d jobs: %w", len(jobs), err)
	}
	return nil
}

// Dequeue blocks until a job is available or the timeout expires, atomically
// moving the job from pending to processing. Returns (nil, nil) when the
// queue stayed empty for the full timeout; that is expected on an idle
// queue, not an error.
func (q *JobQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	// Redis blocking commands use whole-second resolution.
	if timeout < time.Second {
		timeout = time.Second
	}

	data, err := q.rdb.BRPopLPush(ctx, q.queueName, q.processingQueue, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue from %q: %w", q.queueName, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("unmarshal dequeued job: %w", err)
	}
	return &job, nil
}

// Complete stores the result under the job's id with a finite retention
// window, then removes the job from the processing queue.
func (q *JobQueue) Complete(ctx context.Context, jobID uuid.UUID, result *JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result for job %s: %w", jobID, err)
	}

	key := q.resultKey(jobID)
	if err := q.rdb.Set(ctx, key, data, q.resultTTL).Err(); err != nil {
		return fmt.Errorf("store result for job %s: %w", jobID, err)
	}

	if err := q.removeFromProcessing(ctx, jobID); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// Requeue returns a job to the back of the pending queue for another
// attempt. The caller must have incremented the job's attempts counter
// already. No delay or backoff is applied.
func (q *JobQueue) Requeue(ctx context.Context, job *Job) error {
	if err := q.removeFromProcessing(ctx, job.ID); err != nil {
		return fmt.Errorf("requeue job %s: %w", job.ID, err)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	if err := q.rdb.LPush(ctx, q.queueName, data).Err(); err != nil {
		return fmt.Errorf("requeue job %s: %w", job.ID, err)
	}
	return nil
}

// DeadLetter removes the job from the processing queue and preserves it in
// the dead-letter queue along with the final error and a timestamp.
func (q *JobQueue) DeadLetter(ctx context.Context, job *Job, errMsg string) error {
	if err := q.removeFromProcessing(ctx, job.ID); err != nil {
		return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}

	entry := DeadLetterEntry{
		Job:     *job,
		Error:   errMsg,
		MovedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead-letter entry for job %s: %w", job.ID, err)
	}

	if err := q.rdb.LPush(ctx, q.deadLetterQueue, data).Err(); err != nil {
		return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}

	q.logger.Warn("job moved to dead-letter queue",
		"job_id", job.ID,
		"task_id", job.TaskSpec.ID,
		"attempts", job.Attempts,
		"error", errMsg)
	return nil
}

// RecoverProcessingJobs sweeps the processing queue on startup. Anything
// found there was stranded by a crashed worker; each job is treated as a
// failed attempt and either requeued or dead-lettered depending on its
// remaining retry budget. Returns the number of jobs moved back to
// pending.
func (q *JobQueue) RecoverProcessingJobs(ctx context.Context) (int, error) {
	entries, err := q.rdb.LRange(ctx, q.processingQueue, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scan processing queue: %w", err)
	}

	recovered := 0
	for _, raw := range entries {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Error("skipping unparsable entry in processing queue", "error", err)
			continue
		}

		// The stranded run counts against the retry budget.
		job.IncrementAttempts()

		if job.ShouldRetry() {
			data, err := json.Marshal(&job)
			if err != nil {
				return recovered, fmt.Errorf("marshal recovered job %s: %w", job.ID, err)
			}

			// Remove from processing and re-add to pending in one
			// transaction so the job is never in limbo.
			pipe := q.rdb.TxPipeline()
			pipe.LRem(ctx, q.processingQueue, 1, raw)
			pipe.LPush(ctx, q.queueName, data)
			if _, err := pipe.Exec(ctx); err != nil {
				return recovered, fmt.Errorf("recover job %s: %w", job.ID, err)
			}
			recovered++

			q.logger.Info("recovered stranded job",
				"job_id", job.ID,
				"attempts", job.Attempts,
				"remaining_attempts", job.RemainingAttempts())
		} else {
			if err := q.DeadLetter(ctx, &job, "recovered from processing queue after max attempts"); err != nil {
				return recovered, err
			}
		}
	}

	return recovered, nil
}

// GetResult retrieves a stored job result, or (nil, nil) if none exists or
// it has expired.
func (q *JobQueue) GetResult(ctx context.Context, jobID uuid.UUID) (*JobResult, error) {
	data, err := q.rdb.Get(ctx, q.resultKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result for job %s: %w", jobID, err)
	}

	var result JobResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("unmarshal result for job %s: %w", jobID, err)
	}
	return &result, nil
}

// Len returns the number of pending jobs.
func (q *JobQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.queueName).Result()
	if err != nil {
		return 0, fmt.Errorf("pending length: %w", err)
	}
	return n, nil
}

// ProcessingLen returns the number of jobs currently owned by workers.
func (q *JobQueue) ProcessingLen(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.processingQueue).Result()
	if err != nil {
		return 0, fmt.Errorf("processing length: %w", err)
	}
	return n, nil
}

// DeadLetterLen returns the number of dead-lettered jobs.
func (q *JobQueue) DeadLetterLen(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.deadLetterQueue).Result()
	if err != nil {
		return 0, fmt.Errorf("dead-letter length: %w", err)
	}
	return n, nil
}

// IsEmpty reports whether the pending queue is empty.
func (q *JobQueue) IsEmpty(ctx context.Context) (bool, error) {
	n, err := q.Len(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// QueueStats is a point-in-time snapshot of the three queue partitions.
type QueueStats struct {
	QueueName      string `json:"queue_name"`
	PendingJobs    int64  `json:"pending_jobs"`
	ProcessingJobs int64  `json:"processing_jobs"`
	DeadLetterJobs int64  `json:"dead_letter_jobs"`
}

// TotalJobs returns the number of jobs across all partitions.
func (s QueueStats) TotalJobs() int64 {
	return s.PendingJobs + s.ProcessingJobs + s.DeadLetterJobs
}

// Stats returns the lengths of all three partitions, read in a single
// pipelined round trip.
func (q *JobQueue) Stats(ctx context.Context) (*QueueStats, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LLen(ctx, q.queueName)
	processing := pipe.LLen(ctx, q.processingQueue)
	deadLetter := pipe.LLen(ctx, q.deadLetterQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}

	return &QueueStats{
		QueueName:      q.queueName,
		PendingJobs:    pending.Val(),
		ProcessingJobs: processing.Val(),
		DeadLetterJobs: deadLetter.Val(),
	}, nil
}

// PeekDeadLetter returns up to limit dead-letter entries without removing
// them, newest first.
func (q *JobQueue) PeekDeadLetter(ctx context.Context, limit int64) ([]DeadLetterEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	raw, err := q.rdb.LRange(ctx, q.deadLetterQueue, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("peek dead-letter queue: %w", err)
	}

	entries := make([]DeadLetterEntry, 0, len(raw))
	for _, data := range raw {
		var entry DeadLetterEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal dead-letter entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RequeueDeadLetter moves up to limit dead-lettered jobs back onto the
// pending queue with a reset attempts counter, oldest first. It is the
// manual-intervention path for jobs that failed due to a since-fixed
// external problem. Returns the number of jobs replayed.
func (q *JobQueue) RequeueDeadLetter(ctx context.Context, limit int64) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	replayed := 0
	for int64(replayed) < limit {
		raw, err := q.rdb.RPop(ctx, q.deadLetterQueue).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return replayed, fmt.Errorf("pop dead-letter entry: %w", err)
		}

		var entry DeadLetterEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			// Put the entry back rather than dropping it.
			if pushErr := q.rdb.RPush(ctx, q.deadLetterQueue, raw).Err(); pushErr != nil {
				return replayed, fmt.Errorf("restore unparsable dead-letter entry: %w", pushErr)
			}
			return replayed, fmt.Errorf("unmarshal dead-letter entry: %w", err)
		}

		job := entry.Job
		job.Attempts = 0
		if err := q.Enqueue(ctx, &job); err != nil {
			return replayed, err
		}
		replayed++

		q.logger.Info("replayed dead-lettered job",
			"job_id", job.ID,
			"task_id", job.TaskSpec.ID,
			"original_error", entry.Error)
	}

	return replayed, nil
}

// Clear deletes all three queue partitions. This permanently discards all
// jobs, including dead-lettered ones; stored results are kept until their
// TTL expires.
func (q *JobQueue) Clear(ctx context.Context) error {
	pipe := q.rdb.TxPipeline()
	pipe.Del(ctx, q.queueName)
	pipe.Del(ctx, q.processingQueue)
	pipe.Del(ctx, q.deadLetterQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear queue %q: %w", q.queueName, err)
	}
	return nil
}

func (q *JobQueue) resultKey(jobID uuid.UUID) string {
	return q.resultsKey + ":" + jobID.String()
}

// removeFromProcessing scans the processing queue for the entry whose job
// id matches and removes it. The processing list only ever holds as many
// entries as there are active workers, so the linear scan is a documented
// tradeoff rather than a bottleneck. A missing job is not an error: it may
// already have been removed by a recovery sweep.
func (q *JobQueue) removeFromProcessing(ctx context.Context, jobID uuid.UUID) error {
	entries, err := q.rdb.LRange(ctx, q.processingQueue, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("scan processing queue: %w", err)
	}

	for _, raw := range entries {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		if job.ID == jobID {
			if err := q.rdb.LRem(ctx, q.processingQueue, 1, raw).Err(); err != nil {
				return fmt.Errorf("remove job %s from processing: %w", jobID, err)
			}
			return nil
		}
	}
	return nil
}

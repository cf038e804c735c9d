// Package scheduler implements the job scheduling backbone: a reliable
// Redis-backed job queue with at-least-once delivery, bounded retries,
// dead-lettering and crash recovery, plus the worker pool that executes
// jobs concurrently through a pluggable Executor.
package scheduler

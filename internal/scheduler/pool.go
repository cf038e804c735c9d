package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pool lifecycle errors. These indicate caller misuse and are returned,
// never panicked.
var (
	ErrAlreadyRunning  = errors.New("worker pool is already running")
	ErrNotRunning      = errors.New("worker pool is not running")
	ErrShutdownTimeout = errors.New("worker pool shutdown timed out")
)

// WorkerPoolConfig holds configuration for a WorkerPool.
type WorkerPoolConfig struct {
	// NumWorkers is how many concurrent worker loops to run.
	NumWorkers int

	// PollInterval bounds how long an idle worker blocks waiting for a
	// job before re-checking the shutdown signal.
	PollInterval time.Duration

	// JobTimeout bounds a single job execution. When it fires the
	// executor is abandoned and a timeout result is recorded.
	JobTimeout time.Duration

	// ShutdownTimeout bounds how long Shutdown waits for workers to
	// finish their current jobs.
	ShutdownTimeout time.Duration
}

// DefaultWorkerPoolConfig returns a config with reasonable defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		NumWorkers:      4,
		PollInterval:    time.Second,
		JobTimeout:      30 * time.Minute,
		ShutdownTimeout: 60 * time.Second,
	}
}

// WorkerPool supervises a fixed set of workers sharing one JobQueue, one
// Executor, and one block of atomic statistics. Starting the pool first
// runs the crash-recovery sweep; stopping it broadcasts a single shutdown
// signal that every worker observes independently.
type WorkerPool struct {
	config   WorkerPoolConfig
	queue    *JobQueue
	executor Executor
	logger   *slog.Logger
	stats    *poolStats

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	// wg belongs to the current worker generation. A timed-out Shutdown
	// leaves stragglers draining on the old group, so Start allocates a
	// fresh one rather than reusing a WaitGroup a Wait may still hold.
	wg *sync.WaitGroup
}

// NewWorkerPool creates a pool. Invalid config values are replaced with
// defaults.
func NewWorkerPool(queue *JobQueue, executor Executor, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	defaults := DefaultWorkerPoolConfig()
	if config.NumWorkers <= 0 {
		logger.Warn("invalid worker count, using default",
			"specified", config.NumWorkers,
			"default", defaults.NumWorkers)
		config.NumWorkers = defaults.NumWorkers
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	return &WorkerPool{
		config:   config,
		queue:    queue,
		executor: executor,
		logger:   logger,
		stats:    &poolStats{},
	}
}

// Start recovers jobs stranded in the processing queue by a previous run,
// then launches the worker loops. Returns ErrAlreadyRunning if the pool
// is already started.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	recovered, err := p.queue.RecoverProcessingJobs(ctx)
	if err != nil {
		// Recovery failure is not fatal to startup: the jobs stay in the
		// processing queue for the next sweep.
		p.logger.Warn("failed to recover processing jobs", "error", err)
	} else if recovered > 0 {
		p.logger.Info("recovered jobs from processing queue", "recovered", recovered)
	}

	p.stopCh = make(chan struct{})
	p.wg = &sync.WaitGroup{}
	for i := 0; i < p.config.NumWorkers; i++ {
		w := &worker{
			id:           fmt.Sprintf("worker-%d", i),
			queue:        p.queue,
			executor:     p.executor,
			pollInterval: p.config.PollInterval,
			jobTimeout:   p.config.JobTimeout,
			stats:        p.stats,
			logger:       p.logger.With("worker_id", fmt.Sprintf("worker-%d", i)),
			stopCh:       p.stopCh,
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run()
		}()
	}

	p.running = true
	p.logger.Info("worker pool started", "num_workers", p.config.NumWorkers)
	return nil
}

// Shutdown broadcasts the stop signal and waits for all workers to finish
// their current jobs, up to the configured shutdown timeout. On timeout it
// returns ErrShutdownTimeout but still marks the pool stopped; workers
// mid-execution beyond the deadline are not forcibly killed.
func (p *WorkerPool) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrNotRunning
	}

	p.logger.Info("worker pool shutting down")
	close(p.stopCh)

	// Capture the current generation's WaitGroup: on timeout this
	// goroutine outlives Shutdown, and a restart replaces p.wg.
	wg := p.wg
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.running = false
		p.logger.Info("worker pool shutdown complete")
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.running = false
		p.logger.Error("worker pool shutdown timed out",
			"timeout", p.config.ShutdownTimeout)
		return fmt.Errorf("%w after %s", ErrShutdownTimeout, p.config.ShutdownTimeout)
	}
}

// Scale changes the worker count by stopping and restarting the whole
// pool. In-flight jobs during a scale follow the same crash-recovery path
// as after a real crash. If the pool is stopped, only the config changes.
func (p *WorkerPool) Scale(ctx context.Context, numWorkers int) error {
	p.mu.Lock()
	if !p.running {
		p.config.NumWorkers = numWorkers
		p.mu.Unlock()
		return nil
	}
	if numWorkers == p.config.NumWorkers {
		p.mu.Unlock()
		return nil
	}
	current := p.config.NumWorkers
	p.mu.Unlock()

	p.logger.Info("scaling worker pool",
		"current", current,
		"target", numWorkers)

	if err := p.Shutdown(); err != nil {
		return fmt.Errorf("scale: %w", err)
	}

	p.mu.Lock()
	p.config.NumWorkers = numWorkers
	p.mu.Unlock()

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("scale: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the shared atomic counters.
func (p *WorkerPool) Stats() PoolStats {
	return p.stats.snapshot(p.NumWorkers())
}

// IsRunning reports whether the pool is started.
func (p *WorkerPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NumWorkers returns the configured worker count.
func (p *WorkerPool) NumWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config.NumWorkers
}

// Queue returns the pool's job queue.
func (p *WorkerPool) Queue() *JobQueue {
	return p.queue
}

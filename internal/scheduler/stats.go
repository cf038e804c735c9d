package scheduler

import (
	"sync/atomic"
	"time"
)

// PoolStats is a point-in-time snapshot of worker pool activity.
type PoolStats struct {
	NumWorkers         int           `json:"num_workers"`
	ActiveWorkers      int           `json:"active_workers"`
	JobsCompleted      int64         `json:"jobs_completed"`
	JobsFailed         int64         `json:"jobs_failed"`
	AverageJobDuration time.Duration `json:"average_job_duration"`
}

// TotalProcessed returns the number of jobs processed so far, completed
// and failed combined.
func (s PoolStats) TotalProcessed() int64 {
	return s.JobsCompleted + s.JobsFailed
}

// SuccessRate returns the completion rate as a percentage of all
// processed jobs, or 0 when nothing has been processed yet.
func (s PoolStats) SuccessRate() float64 {
	total := s.TotalProcessed()
	if total == 0 {
		return 0.0
	}
	return float64(s.JobsCompleted) / float64(total) * 100.0
}

// poolStats is the shared counter block mutated by workers. All updates
// are independent atomic increments, so no mutex is needed and counter
// updates can never stall job processing.
type poolStats struct {
	jobsCompleted   atomic.Int64
	jobsFailed      atomic.Int64
	totalDurationMs atomic.Int64
	activeWorkers   atomic.Int64
}

func (s *poolStats) recordCompletion(d time.Duration) {
	s.jobsCompleted.Add(1)
	s.totalDurationMs.Add(d.Milliseconds())
}

func (s *poolStats) recordFailure(d time.Duration) {
	s.jobsFailed.Add(1)
	s.totalDurationMs.Add(d.Milliseconds())
}

func (s *poolStats) incrementActive() {
	s.activeWorkers.Add(1)
}

func (s *poolStats) decrementActive() {
	s.activeWorkers.Add(-1)
}

func (s *poolStats) snapshot(numWorkers int) PoolStats {
	completed := s.jobsCompleted.Load()
	failed := s.jobsFailed.Load()
	totalMs := s.totalDurationMs.Load()

	var avg time.Duration
	if total := completed + failed; total > 0 {
		avg = time.Duration(totalMs/total) * time.Millisecond
	}

	return PoolStats{
		NumWorkers:         numWorkers,
		ActiveWorkers:      int(s.activeWorkers.Load()),
		JobsCompleted:      completed,
		JobsFailed:         failed,
		AverageJobDuration: avg,
	}
}

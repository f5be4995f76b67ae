package workflow

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/anime-shed/facescan-go/internal/logger"
)

// ErrPoolClosed is returned by Submit after Close
var ErrPoolClosed = errors.New("worker pool closed")

// WorkerPool runs detector jobs on a fixed number of goroutines
type WorkerPool struct {
	workers  int
	jobQueue chan func()
	wg       sync.WaitGroup
	once     sync.Once
	mu       sync.RWMutex
	closed   bool

	totalJobs     atomic.Int64
	completedJobs atomic.Int64
	failedJobs    atomic.Int64
	activeWorkers atomic.Int64
}

// PoolStats is a point-in-time view of the pool counters
type PoolStats struct {
	Workers       int   `json:"workers"`
	TotalJobs     int64 `json:"total_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	FailedJobs    int64 `json:"failed_jobs"`
	ActiveWorkers int64 `json:"active_workers"`
	QueuedJobs    int   `json:"queued_jobs"`
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start initializes and starts all workers in the pool
func (wp *WorkerPool) Start() {
	wp.once.Do(func() {
		for i := 0; i < wp.workers; i++ {
			go wp.worker()
		}
	})
}

// worker processes jobs from the job queue
func (wp *WorkerPool) worker() {
	for job := range wp.jobQueue {
		wp.run(job)
	}
}

func (wp *WorkerPool) run(job func()) {
	wp.activeWorkers.Add(1)
	defer wp.wg.Done()
	defer wp.activeWorkers.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			wp.failedJobs.Add(1)
			logger.WithField("panic", r).Error("Worker job panicked")
			return
		}
		wp.completedJobs.Add(1)
	}()
	job()
}

// Submit adds a job to the queue, blocking while it is full
func (wp *WorkerPool) Submit(job func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}
	wp.wg.Add(1)
	wp.totalJobs.Add(1)
	wp.jobQueue <- job
	return nil
}

// Wait waits for all submitted jobs to complete
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// GetStats returns the current counters
func (wp *WorkerPool) GetStats() PoolStats {
	return PoolStats{
		Workers:       wp.workers,
		TotalJobs:     wp.totalJobs.Load(),
		CompletedJobs: wp.completedJobs.Load(),
		FailedJobs:    wp.failedJobs.Load(),
		ActiveWorkers: wp.activeWorkers.Load(),
		QueuedJobs:    len(wp.jobQueue),
	}
}

// Close stops accepting jobs and lets the workers drain the queue
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return
	}
	wp.closed = true
	close(wp.jobQueue)
}

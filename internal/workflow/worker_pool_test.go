package workflow

import (
	"errors"
	"sync"
	"testing"
)

func TestNewWorkerPool_ZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	if pool == nil {
		t.Fatal("Expected non-nil WorkerPool")
	}
	if pool.GetStats().Workers <= 0 {
		t.Errorf("Expected worker count to default to NumCPU, got %d", pool.GetStats().Workers)
	}
}

func TestWorkerPool_Submit(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Close()

	var counter int
	var mu sync.Mutex

	for i := 0; i < 5; i++ {
		if err := pool.Submit(func() {
			mu.Lock()
			counter++
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	pool.Wait()

	if counter != 5 {
		t.Errorf("Expected counter to be 5, got %d", counter)
	}
}

func TestWorkerPool_StartOnce(t *testing.T) {
	pool := NewWorkerPool(2)

	pool.Start()
	pool.Start() // Should not panic or create duplicate workers
	defer pool.Close()

	var executed bool
	pool.Submit(func() {
		executed = true
	})

	pool.Wait()

	if !executed {
		t.Error("Expected job to be executed")
	}
}

func TestWorkerPool_CloseAndResubmit(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()

	var executed bool
	pool.Submit(func() {
		executed = true
	})

	pool.Wait()
	pool.Close()
	pool.Close() // idempotent

	if !executed {
		t.Error("Expected job to be executed before close")
	}
	if err := pool.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed after Close, got %v", err)
	}
}

func TestWorkerPool_PanickingJob(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	defer pool.Close()

	pool.Submit(func() { panic("detector blew up") })
	var executed bool
	pool.Submit(func() { executed = true })

	pool.Wait()

	if !executed {
		t.Error("Expected worker to survive a panicking job")
	}
	stats := pool.GetStats()
	if stats.FailedJobs != 1 || stats.CompletedJobs != 1 {
		t.Errorf("Expected 1 failed and 1 completed job, got %+v", stats)
	}
}

func TestWorkerPool_AtomicCounters(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Start()
	defer pool.Close()

	const numJobs = 5

	for i := 0; i < numJobs; i++ {
		pool.Submit(func() {
			for j := 0; j < 1000; j++ {
				_ = j * j
			}
		})
	}

	pool.Wait()

	stats := pool.GetStats()
	if stats.TotalJobs != int64(numJobs) {
		t.Errorf("Expected %d total jobs, got %d", numJobs, stats.TotalJobs)
	}
	if stats.CompletedJobs != int64(numJobs) {
		t.Errorf("Expected %d completed jobs, got %d", numJobs, stats.CompletedJobs)
	}
	if stats.ActiveWorkers != 0 {
		t.Errorf("Expected 0 active workers after completion, got %d", stats.ActiveWorkers)
	}
}

func TestWorkerPool_ConcurrentStatsAccess(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Close()

	const numJobs = 20
	const numStatsReads = 10

	var wg sync.WaitGroup

	for i := 0; i < numJobs; i++ {
		pool.Submit(func() {
			for j := 0; j < 5000; j++ {
				_ = j * j
			}
		})
	}

	for i := 0; i < numStatsReads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				stats := pool.GetStats()
				_ = stats.TotalJobs
				_ = stats.CompletedJobs
				_ = stats.ActiveWorkers
			}
		}()
	}

	wg.Wait()
	pool.Wait()

	finalStats := pool.GetStats()
	if finalStats.TotalJobs != numJobs {
		t.Errorf("Expected %d total jobs, got %d", numJobs, finalStats.TotalJobs)
	}
}

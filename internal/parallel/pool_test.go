package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}

	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	expected := runtime.GOMAXPROCS(0)
	if pool.Workers() != expected {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), expected)
	}
}

func TestWorkerPool_CreateNegativeWorkers(t *testing.T) {
	pool := NewWorkerPool(-5)
	defer pool.Close()

	expected := runtime.GOMAXPROCS(0)
	if pool.Workers() != expected {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), expected)
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	numTasks := 100

	work := make([]func(), numTasks)
	for i := range work {
		work[i] = func() {
			counter.Add(1)
		}
	}

	pool.ExecuteAll(work)

	if counter.Load() != int64(numTasks) {
		t.Errorf("counter = %d, want %d", counter.Load(), numTasks)
	}
}

func TestWorkerPool_ExecuteAll_AllItemsRun(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var mu sync.Mutex
	results := make([]int, 0, 10)

	work := make([]func(), 10)
	for i := range work {
		idx := i
		work[i] = func() {
			mu.Lock()
			results = append(results, idx)
			mu.Unlock()
		}
	}

	pool.ExecuteAll(work)

	// All items should be executed (order may vary due to parallelism)
	if len(results) != 10 {
		t.Errorf("results length = %d, want 10", len(results))
	}

	seen := make(map[int]bool)
	for _, v := range results {
		seen[v] = true
	}
	for i := 0; i < 10; i++ {
		if !seen[i] {
			t.Errorf("missing index %d in results", i)
		}
	}
}

func TestWorkerPool_ExecuteAll_Empty(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// Should not panic or block
	pool.ExecuteAll(nil)
	pool.ExecuteAll([]func(){})
}

func TestWorkerPool_ExecuteAll_Single(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var executed atomic.Bool

	pool.ExecuteAll([]func(){
		func() { executed.Store(true) },
	})

	if !executed.Load() {
		t.Error("single task was not executed")
	}
}

func TestWorkerPool_ExecuteAll_UnevenWork(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// A few slow items among many fast ones: stealing should keep the
	// total wall time close to the slow items alone.
	var counter atomic.Int64
	work := make([]func(), 64)
	for i := range work {
		slow := i%16 == 0
		work[i] = func() {
			if slow {
				time.Sleep(10 * time.Millisecond)
			}
			counter.Add(1)
		}
	}

	start := time.Now()
	pool.ExecuteAll(work)
	elapsed := time.Since(start)

	if counter.Load() != 64 {
		t.Errorf("counter = %d, want 64", counter.Load())
	}
	if elapsed > 2*time.Second {
		t.Errorf("ExecuteAll took %v, work is not being balanced", elapsed)
	}
}

func TestWorkerPool_ExecuteAll_Sequential(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// Repeated batches on the same pool, as the render loop issues them.
	var counter atomic.Int64
	work := make([]func(), 32)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}

	for range 10 {
		pool.ExecuteAll(work)
	}

	if counter.Load() != 320 {
		t.Errorf("counter = %d, want 320", counter.Load())
	}
}

func TestWorkerPool_Close(t *testing.T) {
	pool := NewWorkerPool(4)

	pool.Close()

	if pool.IsRunning() {
		t.Error("pool still running after Close")
	}
}

func TestWorkerPool_CloseTwice(t *testing.T) {
	pool := NewWorkerPool(2)

	// Should not panic
	pool.Close()
	pool.Close()
}

func TestWorkerPool_ExecuteAllAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	var executed atomic.Bool
	done := make(chan struct{})
	go func() {
		pool.ExecuteAll([]func(){
			func() { executed.Store(true) },
		})
		close(done)
	}()

	select {
	case <-done:
		// Must return promptly without running anything.
	case <-time.After(5 * time.Second):
		t.Fatal("ExecuteAll blocked on a closed pool")
	}
	if executed.Load() {
		t.Error("work executed on a closed pool")
	}
}

func TestWorkerPool_ConcurrentExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			work := make([]func(), 25)
			for i := range work {
				work[i] = func() { counter.Add(1) }
			}
			pool.ExecuteAll(work)
		}()
	}
	wg.Wait()

	if counter.Load() != 200 {
		t.Errorf("counter = %d, want 200", counter.Load())
	}
}

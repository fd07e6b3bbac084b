package accel

import (
	"sync"
	"testing"
)

func TestAsAPIExecutorRunsFuncTasks(t *testing.T) {
	e := NewExecutor(2, nil)
	api := AsAPIExecutor(e)
	defer api.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		if err := api.Submit(func() {
			defer wg.Done()
			mu.Lock()
			seen++
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()

	if seen != 5 {
		t.Fatalf("expected 5 tasks to run, got %d", seen)
	}
	if api.NumWorkers() != 2 {
		t.Fatalf("NumWorkers: got %d, want 2", api.NumWorkers())
	}
}

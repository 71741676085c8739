package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolProcessesTasks(t *testing.T) {
	var processed int64
	var wg sync.WaitGroup

	cfg := DefaultConfig()
	cfg.Workers = 4
	pool, err := New(cfg, func(_ context.Context, task *Task) error {
		atomic.AddInt64(&processed, 1)
		wg.Done()
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("pool creation failed: %v", err)
	}

	pool.Start()
	defer pool.Stop()

	const n = 20
	wg.Add(n)
	for i := 0; i < n; i++ {
		if err := pool.Submit(&Task{ID: "t", Payload: []byte("x")}); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	wg.Wait()

	if got := atomic.LoadInt64(&processed); got != n {
		t.Errorf("processed = %d, want %d", got, n)
	}
}

func TestPoolRetriesFailedTasks(t *testing.T) {
	var attempts int64
	done := make(chan struct{})

	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.MaxRetries = 3
	cfg.RetryDelay = time.Millisecond
	pool, err := New(cfg, func(_ context.Context, task *Task) error {
		if atomic.AddInt64(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("pool creation failed: %v", err)
	}

	pool.Start()
	defer pool.Stop()

	if err := pool.Submit(&Task{ID: "retry-me"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task never succeeded after retries")
	}
	if got := atomic.LoadInt64(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})

	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	pool, err := New(cfg, func(_ context.Context, task *Task) error {
		<-block
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("pool creation failed: %v", err)
	}

	pool.Start()
	defer func() {
		close(block)
		pool.Stop()
	}()

	// Saturate the single worker and the single queue slot, then expect
	// rejection instead of blocking.
	var lastErr error
	for i := 0; i < 10; i++ {
		if lastErr = pool.Submit(&Task{ID: "fill"}); lastErr != nil {
			break
		}
	}
	if !errors.Is(lastErr, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", lastErr)
	}
}

func TestPoolRequiresWorkerFunc(t *testing.T) {
	if _, err := New(DefaultConfig(), nil, nil); err == nil {
		t.Error("expected error for nil worker function")
	}
}

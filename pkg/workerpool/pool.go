// Package workerpool provides a bounded worker pool with retries, used to
// cap the concurrency of notification delivery.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work
type Task struct {
	ID      string
	Payload []byte
	Context context.Context
}

// WorkerFunc processes one task. A returned error triggers a retry with
// backoff up to the configured maximum.
type WorkerFunc func(ctx context.Context, task *Task) error

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the task queue capacity
	QueueSize int
	// MaxRetries is the retry attempts for failed tasks
	MaxRetries int
	// RetryDelay is the base delay between retries
	RetryDelay time.Duration
	// ShutdownTimeout bounds the wait for in-flight tasks on Stop
	ShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for notification delivery
func DefaultConfig() Config {
	return Config{
		Workers:         8,
		QueueSize:       1024,
		MaxRetries:      3,
		RetryDelay:      200 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool runs tasks on a fixed set of workers
type Pool struct {
	config     Config
	workerFunc WorkerFunc
	logger     *zap.Logger

	taskChan chan *Task
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64
	tasksRetried   int64
}

// ErrQueueFull indicates the task queue is at capacity
var ErrQueueFull = errors.New("task queue is full")

// ErrShuttingDown indicates the pool no longer accepts tasks
var ErrShuttingDown = errors.New("pool is shutting down")

// New creates a worker pool
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, errors.New("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		config:     cfg,
		workerFunc: fn,
		logger:     logger,
		taskChan:   make(chan *Task, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit queues a task without blocking
func (p *Pool) Submit(task *Task) error {
	select {
	case <-p.ctx.Done():
		return ErrShuttingDown
	default:
	}

	select {
	case p.taskChan <- task:
		atomic.AddInt64(&p.tasksSubmitted, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains the queue and waits for in-flight tasks
func (p *Pool) Stop() {
	p.logger.Info("stopping worker pool")
	p.cancel()
	close(p.taskChan)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskChan {
		p.runTask(id, task)
	}
}

func (p *Pool) runTask(workerID int, task *Task) {
	ctx := task.Context
	if ctx == nil {
		ctx = p.ctx
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		if lastErr = p.workerFunc(ctx, task); lastErr == nil {
			atomic.AddInt64(&p.tasksCompleted, 1)
			return
		}

		if attempt < p.config.MaxRetries {
			atomic.AddInt64(&p.tasksRetried, 1)
			p.logger.Debug("retrying task",
				zap.String("task_id", task.ID),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
				continue
			}
			break
		}
	}

	atomic.AddInt64(&p.tasksFailed, 1)
	p.logger.Error("task failed",
		zap.String("task_id", task.ID),
		zap.Int("worker_id", workerID),
		zap.Error(fmt.Errorf("after %d attempts: %w", p.config.MaxRetries+1, lastErr)))
}

// Stats holds pool counters
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksRetried   int64
	QueueDepth     int
	QueueCapacity  int
	Workers        int
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
		TasksRetried:   atomic.LoadInt64(&p.tasksRetried),
		QueueDepth:     len(p.taskChan),
		QueueCapacity:  p.config.QueueSize,
		Workers:        p.config.Workers,
	}
}

// IsHealthy reports whether the queue is not backing up
func (p *Pool) IsHealthy() bool {
	s := p.Stats()
	return float64(s.QueueDepth)/float64(s.QueueCapacity) < 0.9
}

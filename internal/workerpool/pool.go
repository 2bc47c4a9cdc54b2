// Package workerpool is a bounded goroutine pool with per-task timeout and
// panic recovery, adapted from the teacher's internal/workers/pool.go. The
// Scheduler (C9) uses it to fan the scan tick's per-symbol Detection Engine
// calls out across a bounded number of workers instead of one goroutine per
// symbol per tick. The teacher's generic BatchProcessor/Pipeline abstractions
// are dropped: nothing in this repo processes interface{} batches or chains
// multi-stage pipelines, only per-symbol tasks submitted to one pool.
package workerpool

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work a Pool executes.
type Task interface {
	Execute() error
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// Config sizes a Pool.
type Config struct {
	Name          string
	NumWorkers    int
	QueueSize     int
	TaskTimeout   time.Duration
	PanicRecovery bool
}

// DefaultConfig sizes the pool for the scan tick's symbol fan-out: a small
// worker count is enough since each task is a CPU-bound detection pass over
// already-cached candle data, not an I/O wait.
func DefaultConfig(name string) Config {
	return Config{
		Name:          name,
		NumWorkers:    8,
		QueueSize:     256,
		TaskTimeout:   10 * time.Second,
		PanicRecovery: true,
	}
}

// Stats reports pool throughput.
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksTimeout   int64
	PanicRecovered int64
	P99LatencyNs   int64
}

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("worker pool is stopped")

// ErrQueueFull is returned by Submit when the task queue has no room.
var ErrQueueFull = errors.New("worker pool task queue is full")

// Pool runs submitted tasks across a bounded set of worker goroutines.
type Pool struct {
	logger *zap.Logger
	cfg    Config

	taskQueue chan Task
	wg        sync.WaitGroup
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc

	tasksSubmitted atomic.Int64
	tasksCompleted atomic.Int64
	tasksFailed    atomic.Int64
	tasksTimeout   atomic.Int64
	panicRecovered atomic.Int64

	latencyMu sync.Mutex
	latencies []int64
}

// New builds a Pool; call Start to launch its workers.
func New(logger *zap.Logger, cfg Config) *Pool {
	if cfg.NumWorkers <= 0 || cfg.QueueSize <= 0 {
		def := DefaultConfig(cfg.Name)
		if cfg.NumWorkers <= 0 {
			cfg.NumWorkers = def.NumWorkers
		}
		if cfg.QueueSize <= 0 {
			cfg.QueueSize = def.QueueSize
		}
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig(cfg.Name).TaskTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger:    logger.Named("workerpool"),
		cfg:       cfg,
		taskQueue: make(chan Task, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		latencies: make([]int64, 0, 1024),
	}
}

// Start launches the worker goroutines; a no-op if already running.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}
	p.logger.Info("starting worker pool", zap.String("name", p.cfg.Name), zap.Int("workers", p.cfg.NumWorkers))
	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.execute(task)
		}
	}
}

func (p *Pool) execute(task Task) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.TaskTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var err error
		if p.cfg.PanicRecovery {
			defer func() {
				if r := recover(); r != nil {
					p.panicRecovered.Add(1)
					p.logger.Error("worker pool task panicked", zap.Any("panic", r))
					err = errors.New("panic recovered")
				}
				done <- err
			}()
		}
		err = task.Execute()
		if !p.cfg.PanicRecovery {
			done <- err
		}
	}()

	select {
	case err := <-done:
		p.recordLatency(time.Since(start).Nanoseconds())
		if err != nil {
			p.tasksFailed.Add(1)
		} else {
			p.tasksCompleted.Add(1)
		}
	case <-ctx.Done():
		p.tasksTimeout.Add(1)
		p.logger.Warn("worker pool task timed out", zap.Duration("timeout", p.cfg.TaskTimeout))
	}
}

func (p *Pool) recordLatency(ns int64) {
	p.latencyMu.Lock()
	defer p.latencyMu.Unlock()
	p.latencies = append(p.latencies, ns)
	if len(p.latencies) > 10000 {
		p.latencies = p.latencies[5000:]
	}
}

// Submit enqueues a task; returns ErrQueueFull if the queue has no room,
// ErrPoolStopped if the pool was never started or has been stopped.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		p.tasksSubmitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitFunc submits a plain function as a task.
func (p *Pool) SubmitFunc(fn func() error) error {
	return p.Submit(TaskFunc(fn))
}

// Stop signals workers to exit and waits for them to return; tasks still
// queued are not run.
func (p *Pool) Stop() error {
	if !p.running.Swap(false) {
		return nil
	}
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped", zap.String("name", p.cfg.Name))
	return nil
}

// QueueLength reports the number of tasks currently queued.
func (p *Pool) QueueLength() int { return len(p.taskQueue) }

// IsRunning reports whether the pool is accepting tasks.
func (p *Pool) IsRunning() bool { return p.running.Load() }

// Stats returns current throughput/latency counters.
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: p.tasksSubmitted.Load(),
		TasksCompleted: p.tasksCompleted.Load(),
		TasksFailed:    p.tasksFailed.Load(),
		TasksTimeout:   p.tasksTimeout.Load(),
		PanicRecovered: p.panicRecovered.Load(),
		P99LatencyNs:   p.p99LatencyNs(),
	}
}

func (p *Pool) p99LatencyNs() int64 {
	p.latencyMu.Lock()
	defer p.latencyMu.Unlock()
	if len(p.latencies) == 0 {
		return 0
	}
	sorted := make([]int64, len(p.latencies))
	copy(sorted, p.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

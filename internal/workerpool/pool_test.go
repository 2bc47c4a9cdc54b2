package workerpool

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestPool(cfg Config) *Pool {
	p := New(zap.NewNop(), cfg)
	p.Start()
	return p
}

func TestSubmitExecutesTask(t *testing.T) {
	p := newTestPool(Config{NumWorkers: 2, QueueSize: 8})
	defer p.Stop()

	var ran int32
	if err := p.SubmitFunc(func() error {
		atomic.AddInt32(&ran, 1)
		return nil
	}); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&ran) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("expected task to run once, got %d", ran)
	}

	stats := p.Stats()
	if stats.TasksCompleted != 1 {
		t.Fatalf("expected 1 completed task, got %+v", stats)
	}
}

func TestSubmitBeforeStartReturnsPoolStopped(t *testing.T) {
	p := New(zap.NewNop(), Config{NumWorkers: 1, QueueSize: 1})
	err := p.SubmitFunc(func() error { return nil })
	if !errors.Is(err, ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped before Start, got %v", err)
	}
}

func TestSubmitAfterStopReturnsPoolStopped(t *testing.T) {
	p := newTestPool(Config{NumWorkers: 1, QueueSize: 1})
	p.Stop()
	err := p.SubmitFunc(func() error { return nil })
	if !errors.Is(err, ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped after Stop, got %v", err)
	}
}

func TestQueueFullReturnsErrQueueFull(t *testing.T) {
	p := New(zap.NewNop(), Config{NumWorkers: 1, QueueSize: 1})
	p.running.Store(true) // force accepting state without launching workers to drain

	if err := p.SubmitFunc(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error filling the queue: %v", err)
	}
	err := p.SubmitFunc(func() error { return nil })
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull once the queue is saturated, got %v", err)
	}
}

func TestFailedTaskIsCountedNotPanicked(t *testing.T) {
	p := newTestPool(Config{NumWorkers: 1, QueueSize: 4})
	defer p.Stop()

	boom := errors.New("boom")
	p.SubmitFunc(func() error { return boom })

	deadline := time.Now().Add(time.Second)
	for p.Stats().TasksFailed == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.Stats().TasksFailed != 1 {
		t.Fatalf("expected 1 failed task, got %+v", p.Stats())
	}
}

func TestPanicRecoveredCountsAndDoesNotCrash(t *testing.T) {
	p := newTestPool(Config{NumWorkers: 1, QueueSize: 4, PanicRecovery: true})
	defer p.Stop()

	p.SubmitFunc(func() error {
		panic("detector blew up")
	})

	deadline := time.Now().Add(time.Second)
	for p.Stats().PanicRecovered == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.Stats().PanicRecovered != 1 {
		t.Fatalf("expected 1 recovered panic, got %+v", p.Stats())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	p := newTestPool(Config{NumWorkers: 1, QueueSize: 1})
	if err := p.Stop(); err != nil {
		t.Fatalf("unexpected error on first Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("unexpected error on second Stop: %v", err)
	}
}

func TestDefaultConfigFillsZeroValues(t *testing.T) {
	p := New(zap.NewNop(), Config{Name: "scan-tick"})
	if p.cfg.NumWorkers <= 0 || p.cfg.QueueSize <= 0 || p.cfg.TaskTimeout <= 0 {
		t.Fatalf("expected zero-value config fields to be defaulted, got %+v", p.cfg)
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldnote/scrapesched/internal/logger"
)

// PoolState represents the current state of the pool.
type PoolState int32

const (
	// PoolStateStopped means the pool is not running.
	PoolStateStopped PoolState = iota

	// PoolStateRunning means the pool is actively processing tasks.
	PoolStateRunning

	// PoolStateDraining means the pool is shutting down gracefully.
	PoolStateDraining
)

// poolPercentageMultiplier converts ratio to percentage.
const poolPercentageMultiplier = 100

// String returns the string representation of a pool state.
func (s PoolState) String() string {
	switch s {
	case PoolStateStopped:
		return "stopped"
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Pool manages N workers, each independently pulling and processing tasks
// from the Broker (§4.4, §5: "parallel across workers; within a worker, a
// single cooperative task runs to completion before the next is pulled").
type Pool struct {
	config  Config
	workers []*Worker
	logger  logger.Logger
	state   atomic.Int32
	mu      sync.RWMutex
}

// NewPool creates a new worker pool. Each worker pulls from puller and
// processes tasks via handler.
func NewPool(cfg Config, puller Puller, handler TaskHandler, log logger.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if puller == nil {
		return nil, errors.New("puller cannot be nil")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	p := &Pool{
		config:  cfg,
		logger:  log,
		workers: make([]*Worker, cfg.PoolSize),
	}
	for i := range cfg.PoolSize {
		p.workers[i] = NewWorker(i, puller, handler, cfg, log)
	}
	p.state.Store(int32(PoolStateStopped))

	return p, nil
}

// Start launches every worker's pull loop.
func (p *Pool) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateStopped), int32(PoolStateRunning)) {
		return errors.New("pool is already running")
	}

	p.logger.Info("worker pool started", logger.Int("pool_size", p.config.PoolSize))

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, w := range p.workers {
		go w.Run(ctx)
	}

	return nil
}

// Stop gracefully stops the worker pool: signals every worker and waits
// (up to DrainTimeout or ctx's deadline) for their in-flight tasks to finish.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateRunning), int32(PoolStateDraining)) {
		return errors.New("pool is not running")
	}

	p.logger.Info("worker pool draining")

	p.mu.RLock()
	workers := append([]*Worker(nil), p.workers...)
	p.mu.RUnlock()

	for _, w := range workers {
		w.Stop()
	}

	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			<-w.Done()
		}
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool stop timed out")
	case <-time.After(p.config.DrainTimeout):
		p.logger.Warn("worker pool drain timeout exceeded")
	}

	p.state.Store(int32(PoolStateStopped))
	return nil
}

// State returns the current pool state.
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// IsRunning returns true if the pool is running.
func (p *Pool) IsRunning() bool {
	return p.State() == PoolStateRunning
}

// Size returns the pool size.
func (p *Pool) Size() int {
	return p.config.PoolSize
}

// BusyCount returns the number of workers currently processing a task.
func (p *Pool) BusyCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := 0
	for _, w := range p.workers {
		if w.IsBusy() {
			count++
		}
	}
	return count
}

// IdleCount returns the number of idle workers.
func (p *Pool) IdleCount() int {
	return p.Size() - p.BusyCount()
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workerStats := make([]WorkerStats, len(p.workers))
	var processed, succeeded, failed int64
	for i, w := range p.workers {
		s := w.Stats()
		workerStats[i] = s
		processed += s.TasksProcessed
		succeeded += s.TasksSucceeded
		failed += s.TasksFailed
	}

	return PoolStats{
		State:          p.State(),
		PoolSize:       p.config.PoolSize,
		TasksProcessed: processed,
		TasksSucceeded: succeeded,
		TasksFailed:    failed,
		Workers:        workerStats,
	}
}

// PoolStats holds statistics for the pool.
type PoolStats struct {
	State          PoolState
	PoolSize       int
	TasksProcessed int64
	TasksSucceeded int64
	TasksFailed    int64
	Workers        []WorkerStats
}

// SuccessRate returns the success rate as a percentage.
func (s PoolStats) SuccessRate() float64 {
	if s.TasksProcessed == 0 {
		return 0
	}
	return float64(s.TasksSucceeded) / float64(s.TasksProcessed) * poolPercentageMultiplier
}

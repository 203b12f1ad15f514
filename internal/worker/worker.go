package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fieldnote/scrapesched/internal/domain"
	"github.com/fieldnote/scrapesched/internal/logger"
)

// WorkerState represents the current state of a worker.
type WorkerState int32

const (
	// WorkerStateIdle means the worker is waiting for work.
	WorkerStateIdle WorkerState = iota

	// WorkerStateBusy means the worker is processing a task.
	WorkerStateBusy

	// WorkerStateStopping means the worker is shutting down.
	WorkerStateStopping

	// WorkerStateStopped means the worker has stopped.
	WorkerStateStopped
)

// percentageMultiplier converts ratio to percentage.
const percentageMultiplier = 100

// String returns the string representation of a worker state.
func (s WorkerState) String() string {
	switch s {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateBusy:
		return "busy"
	case WorkerStateStopping:
		return "stopping"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Puller pulls the next highest-priority task envelope from the Broker.
// Returns (nil, nil) when every lane is empty.
type Puller interface {
	PopHighestPriority(ctx context.Context) (*domain.TaskEnvelope, error)
}

// TaskHandler executes process(task) (§4.4): it owns the
// load-job/check-cancelled/scrape/branch/retry algorithm. A returned error
// is logged but never crashes the worker — handlers are expected to have
// already routed failures into the retry/fail path themselves.
type TaskHandler func(ctx context.Context, task *domain.TaskEnvelope) error

// Worker runs the cooperative pull-process loop: pull highest priority,
// sleep on empty, process to completion (including any retry back-off
// sleep) before pulling again.
type Worker struct {
	id      int
	puller  Puller
	handler TaskHandler
	cfg     Config
	logger  logger.Logger

	state atomic.Int32
	stopCh chan struct{}
	doneCh chan struct{}

	// Stats
	tasksProcessed atomic.Int64
	tasksSucceeded atomic.Int64
	tasksFailed    atomic.Int64
	lastTaskAt     atomic.Int64
	lastError      atomic.Value

	currentTaskID atomic.Value
	taskStartedAt atomic.Int64
}

// NewWorker creates a new worker.
func NewWorker(id int, puller Puller, handler TaskHandler, cfg Config, log logger.Logger) *Worker {
	w := &Worker{
		id:      id,
		puller:  puller,
		handler: handler,
		cfg:     cfg,
		logger:  log,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	w.state.Store(int32(WorkerStateIdle))
	return w
}

// ID returns the worker ID.
func (w *Worker) ID() int {
	return w.id
}

// State returns the current worker state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// IsIdle returns true if the worker is idle (between tasks, not stopped).
func (w *Worker) IsIdle() bool {
	return w.State() == WorkerStateIdle
}

// IsBusy returns true if the worker is currently processing a task.
func (w *Worker) IsBusy() bool {
	return w.State() == WorkerStateBusy
}

// Run executes the cooperative loop until Stop is called. It is intended
// to be launched in its own goroutine by the owning Pool.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			w.state.Store(int32(WorkerStateStopped))
			return
		case <-ctx.Done():
			w.state.Store(int32(WorkerStateStopped))
			return
		default:
		}

		task, err := w.puller.PopHighestPriority(ctx)
		if err != nil {
			w.logger.Error("worker failed to pull task",
				logger.Int("worker_id", w.id),
				logger.Error(err),
			)
			w.sleepOrStop(w.cfg.PollInterval)
			continue
		}
		if task == nil {
			w.sleepOrStop(w.cfg.PollInterval)
			continue
		}

		w.runTask(ctx, task)
	}
}

func (w *Worker) runTask(ctx context.Context, task *domain.TaskEnvelope) {
	w.state.Store(int32(WorkerStateBusy))
	w.currentTaskID.Store(task.TaskID)
	w.taskStartedAt.Store(time.Now().UnixNano())
	defer func() {
		w.currentTaskID.Store("")
		w.taskStartedAt.Store(0)
		w.state.Store(int32(WorkerStateIdle))
	}()

	start := time.Now()
	err := w.handler(ctx, task)
	duration := time.Since(start)

	w.tasksProcessed.Add(1)
	w.lastTaskAt.Store(time.Now().UnixNano())

	if err != nil {
		w.tasksFailed.Add(1)
		w.lastError.Store(err)
		w.logger.Error("worker task handler error",
			logger.Int("worker_id", w.id),
			logger.String("task_id", task.TaskID),
			logger.String("job_id", task.JobID),
			logger.Duration("duration", duration),
			logger.Error(err),
		)
		return
	}

	w.tasksSucceeded.Add(1)
	w.logger.Debug("worker task handled",
		logger.Int("worker_id", w.id),
		logger.String("task_id", task.TaskID),
		logger.String("job_id", task.JobID),
		logger.Duration("duration", duration),
	)
}

// sleepOrStop sleeps for d unless Stop is called first.
func (w *Worker) sleepOrStop(d time.Duration) {
	select {
	case <-time.After(d):
	case <-w.stopCh:
	}
}

// Stop signals the worker's loop to exit after its current task finishes.
func (w *Worker) Stop() {
	w.state.Store(int32(WorkerStateStopping))
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// Done returns a channel closed once Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.doneCh
}

// Stats returns the worker's statistics.
func (w *Worker) Stats() WorkerStats {
	var lastErr error
	if v := w.lastError.Load(); v != nil {
		lastErr, _ = v.(error)
	}

	var currentTaskID string
	if v := w.currentTaskID.Load(); v != nil {
		currentTaskID, _ = v.(string)
	}

	var lastTaskTime time.Time
	if ts := w.lastTaskAt.Load(); ts > 0 {
		lastTaskTime = time.Unix(0, ts)
	}

	var taskStartTime time.Time
	if ts := w.taskStartedAt.Load(); ts > 0 {
		taskStartTime = time.Unix(0, ts)
	}

	return WorkerStats{
		ID:             w.id,
		State:          w.State(),
		TasksProcessed: w.tasksProcessed.Load(),
		TasksSucceeded: w.tasksSucceeded.Load(),
		TasksFailed:    w.tasksFailed.Load(),
		LastTaskAt:     lastTaskTime,
		LastError:      lastErr,
		CurrentTaskID:  currentTaskID,
		TaskStartedAt:  taskStartTime,
	}
}

// WorkerStats holds statistics for a worker.
type WorkerStats struct {
	ID             int
	State          WorkerState
	TasksProcessed int64
	TasksSucceeded int64
	TasksFailed    int64
	LastTaskAt     time.Time
	LastError      error
	CurrentTaskID  string
	TaskStartedAt  time.Time
}

// SuccessRate returns the success rate as a percentage.
func (s WorkerStats) SuccessRate() float64 {
	if s.TasksProcessed == 0 {
		return 0
	}
	return float64(s.TasksSucceeded) / float64(s.TasksProcessed) * percentageMultiplier
}

// IsHealthy returns true if the worker is considered healthy: not stopped,
// and not stuck on a task well past its configured timeout.
func (s WorkerStats) IsHealthy(jobTimeout time.Duration) bool {
	if s.State == WorkerStateStopped {
		return false
	}
	if s.State == WorkerStateBusy && !s.TaskStartedAt.IsZero() {
		const stuckThresholdMultiplier = 2
		if time.Since(s.TaskStartedAt) > stuckThresholdMultiplier*jobTimeout {
			return false
		}
	}
	return true
}

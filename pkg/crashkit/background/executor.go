// Package background runs network and file I/O off the caller's goroutine.
//
// Each TaskType has its own bounded queue and worker, so a slow collector
// cannot delay session delivery or disk writes. Submit never blocks: a full
// queue rejects the task and the caller falls back to persistence.
package background

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/strongdm/ai-crashkit/pkg/crashkit/metrics"
)

var (
	// ErrRejected is returned by Submit when the task queue is full.
	ErrRejected = errors.New("background task rejected: queue full")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("background executor is closed")
)

// TaskType selects the queue a task runs on.
type TaskType int

const (
	// ErrorRequest tasks deliver events.
	ErrorRequest TaskType = iota
	// SessionRequest tasks deliver sessions.
	SessionRequest
	// IO tasks touch the disk.
	IO
	// InternalReport tasks deliver diagnostic self-reports.
	InternalReport
	// Default is for everything else.
	Default
)

var taskTypes = []TaskType{ErrorRequest, SessionRequest, IO, InternalReport, Default}

func (t TaskType) String() string {
	switch t {
	case ErrorRequest:
		return "error_request"
	case SessionRequest:
		return "session_request"
	case IO:
		return "io"
	case InternalReport:
		return "internal_report"
	case Default:
		return "default"
	}
	return fmt.Sprintf("task_type(%d)", int(t))
}

// Task is a handle on a submitted function.
type Task struct {
	ctx    context.Context
	cancel context.CancelFunc
	fn     func(ctx context.Context)
	done   chan struct{}
}

// Done is closed once the task has finished or was skipped after Cancel.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx ends, returning ctx.Err() in the
// latter case. The task keeps running unless Cancel is called.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels the context passed to the task function. A task that has
// not started yet is skipped.
func (t *Task) Cancel() { t.cancel() }

// Option configures an Executor.
type Option func(*executorConfig)

type executorConfig struct {
	queueSize int
	logger    zerolog.Logger
	metrics   metrics.Recorder
}

// WithQueueSize sets the per-type queue capacity (default: 128).
func WithQueueSize(size int) Option {
	return func(c *executorConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *executorConfig) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(c *executorConfig) { c.metrics = m }
}

// Executor owns one queue and one worker goroutine per TaskType.
type Executor struct {
	queues  map[TaskType]chan *Task
	logger  zerolog.Logger
	metrics metrics.Recorder

	// closeMu guards closed and the queue channels against send-after-close.
	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts an executor.
func New(opts ...Option) *Executor {
	cfg := &executorConfig{
		queueSize: 128,
		logger:    zerolog.Nop(),
		metrics:   metrics.Noop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	e := &Executor{
		queues:  make(map[TaskType]chan *Task, len(taskTypes)),
		logger:  cfg.logger.With().Str("component", "executor").Logger(),
		metrics: cfg.metrics,
	}
	for _, typ := range taskTypes {
		queue := make(chan *Task, cfg.queueSize)
		e.queues[typ] = queue
		e.wg.Add(1)
		go e.processLoop(typ, queue)
	}
	return e
}

// Submit enqueues fn on the queue for typ. It never blocks.
func (e *Executor) Submit(typ TaskType, fn func(ctx context.Context)) (*Task, error) {
	queue, ok := e.queues[typ]
	if !ok {
		queue = e.queues[Default]
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &Task{ctx: ctx, cancel: cancel, fn: fn, done: make(chan struct{})}

	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		cancel()
		return nil, ErrClosed
	}

	select {
	case queue <- task:
		return task, nil
	default:
		cancel()
		e.metrics.IncExecutorRejections(typ.String())
		e.logger.Warn().Stringer("task", typ).Msg("background queue full, task rejected")
		return nil, ErrRejected
	}
}

// processLoop runs tasks until the queue is closed and drained.
func (e *Executor) processLoop(typ TaskType, queue chan *Task) {
	defer e.wg.Done()
	for task := range queue {
		e.run(typ, task)
	}
}

func (e *Executor) run(typ TaskType, task *Task) {
	defer close(task.done)
	defer task.cancel()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Stringer("task", typ).Str("panic", fmt.Sprint(r)).Msg("background task panicked")
		}
	}()

	if task.ctx.Err() != nil {
		return
	}
	task.fn(task.ctx)
}

// Close stops accepting tasks, runs everything already queued, and waits for
// the workers to exit. Safe to call more than once.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() {
		e.closeMu.Lock()
		e.closed = true
		for _, queue := range e.queues {
			close(queue)
		}
		e.closeMu.Unlock()
		e.wg.Wait()
	})
	return nil
}

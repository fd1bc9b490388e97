// Package flush drains a stored-payload queue against the network.
//
// A Controller lists idle files, delivers them one at a time and classifies
// each outcome: delivered files are deleted, undelivered files are released
// for a later pass, and failed files are deleted with a diagnostic report.
// At most one pass runs per Controller; overlapping requests coalesce.
package flush

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/background"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/metrics"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/store"
)

// FileQueue is the part of store.Store a Controller drives.
type FileQueue interface {
	FindStoredFiles() []string
	CancelQueuedFiles(files []string)
	DeleteStoredFiles(files []string)
	Claim(path string) bool
}

// FileDeliverer sends one stored file. A non-nil error means the file could
// not be read or decoded and is treated as a Failure.
type FileDeliverer interface {
	DeliverFile(ctx context.Context, path string) (crashkit.DeliveryStatus, error)
}

// Submitter schedules background work. *background.Executor satisfies it.
type Submitter interface {
	Submit(typ background.TaskType, fn func(ctx context.Context)) (*background.Task, error)
}

// FailureReporter is told about every file dropped as a Failure. It runs
// before the file is deleted.
type FailureReporter func(ctx context.Context, path string, cause error)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithKind sets the payload kind for logs and metrics (default: event).
func WithKind(kind string) Option {
	return func(c *Controller) { c.kind = kind }
}

// WithTaskType sets the queue background passes run on (default: ErrorRequest).
func WithTaskType(typ background.TaskType) Option {
	return func(c *Controller) { c.taskType = typ }
}

// WithDiscardPolicy sets the check applied to undelivered files. Files for
// which it returns true are deleted instead of retried.
func WithDiscardPolicy(discard func(path string) bool) Option {
	return func(c *Controller) { c.discard = discard }
}

// WithFailureReporter sets the diagnostic hook for failed files.
func WithFailureReporter(fn FailureReporter) Option {
	return func(c *Controller) { c.onFailure = fn }
}

// Controller serializes delivery of one store's files.
type Controller struct {
	queue     FileQueue
	deliverer FileDeliverer
	executor  Submitter

	// sem admits one flush pass at a time.
	sem *semaphore.Weighted

	logger    zerolog.Logger
	metrics   metrics.Recorder
	kind      string
	taskType  background.TaskType
	discard   func(path string) bool
	onFailure FailureReporter
}

// NewController creates a controller over queue.
func NewController(queue FileQueue, deliverer FileDeliverer, executor Submitter, opts ...Option) *Controller {
	c := &Controller{
		queue:     queue,
		deliverer: deliverer,
		executor:  executor,
		sem:       semaphore.NewWeighted(1),
		logger:    zerolog.Nop(),
		metrics:   metrics.Noop(),
		kind:      metrics.KindEvent,
		taskType:  background.ErrorRequest,
		discard:   func(string) bool { return false },
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "flush").Str("kind", c.kind).Logger()
	return c
}

// FlushAsync schedules a pass over every idle file. A rejected task is logged;
// the files stay on disk for the next attempt.
func (c *Controller) FlushAsync() {
	_, err := c.executor.Submit(c.taskType, func(ctx context.Context) {
		c.FlushReports(ctx, c.queue.FindStoredFiles())
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to flush stored payloads, will retry later")
	}
}

// FlushReports delivers files, which the caller must have queued. If another
// pass is running the files are released and FlushReports returns false.
func (c *Controller) FlushReports(ctx context.Context, files []string) bool {
	if !c.sem.TryAcquire(1) {
		c.queue.CancelQueuedFiles(files)
		c.metrics.IncFlushPasses(c.kind, metrics.FlushCoalesced)
		c.logger.Debug().Int("files", len(files)).Msg("flush already running, skipping")
		return false
	}
	defer c.sem.Release(1)

	if len(files) == 0 {
		c.metrics.IncFlushPasses(c.kind, metrics.FlushEmpty)
		c.logger.Debug().Msg("no stored payloads to flush")
		return true
	}

	c.metrics.IncFlushPasses(c.kind, metrics.FlushRan)
	c.logger.Debug().Int("files", len(files)).Msg("flushing stored payloads")
	for _, path := range files {
		c.flushFile(ctx, path)
	}
	return true
}

// FlushFile delivers one specific file outside of a pass. It claims the file
// first so a concurrent pass cannot deliver it too; an unclaimable file is
// skipped.
func (c *Controller) FlushFile(ctx context.Context, path string) {
	if !c.queue.Claim(path) {
		c.logger.Debug().Str("file", path).Msg("stored payload already in flight")
		return
	}
	c.flushFile(ctx, path)
}

// FlushOnLaunch gives launch-crash files a head start at startup.
//
// Launch-crash files are flushed in the background and the caller waits up to
// timeout for that pass; every other file is released and swept by a normal
// FlushAsync afterwards. A zero timeout does not wait.
func (c *Controller) FlushOnLaunch(ctx context.Context, timeout time.Duration) {
	var launch, rest []string
	for _, path := range c.queue.FindStoredFiles() {
		if store.IsLaunchCrashReport(path) {
			launch = append(launch, path)
		} else {
			rest = append(rest, path)
		}
	}
	c.queue.CancelQueuedFiles(rest)

	if len(launch) > 0 {
		c.logger.Info().Int("files", len(launch)).Msg("attempting to send launch crash reports")
		task, err := c.executor.Submit(c.taskType, func(ctx context.Context) {
			c.FlushReports(ctx, launch)
		})
		switch {
		case err != nil:
			c.queue.CancelQueuedFiles(launch)
			c.logger.Warn().Err(err).Msg("failed to schedule launch crash flush")
		case timeout > 0:
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			if err := task.Wait(waitCtx); err != nil {
				c.logger.Debug().Err(err).Msg("launch crash flush still running, continuing startup")
			}
			cancel()
		}
	}

	c.FlushAsync()
}

// flushFile delivers one queued file and settles it.
func (c *Controller) flushFile(ctx context.Context, path string) {
	status, err := c.deliverer.DeliverFile(ctx, path)
	if err != nil {
		c.metrics.IncDeliveries(c.kind, crashkit.Failure.String())
		c.logger.Warn().Err(err).Str("file", path).Msg("discarding unreadable stored payload")
		c.reportFailure(ctx, path, err)
		c.queue.DeleteStoredFiles([]string{path})
		return
	}
	c.metrics.IncDeliveries(c.kind, status.String())

	switch status {
	case crashkit.Delivered:
		c.queue.DeleteStoredFiles([]string{path})
		c.logger.Info().Str("file", path).Msg("deleting sent payload")
	case crashkit.Undelivered:
		if c.discard(path) {
			c.queue.DeleteStoredFiles([]string{path})
			c.logger.Warn().Str("file", path).Msg("discarding historical payload")
			return
		}
		c.queue.CancelQueuedFiles([]string{path})
		c.logger.Warn().Str("file", path).Msg("could not send stored payload, will try again later")
	case crashkit.Failure:
		c.logger.Warn().Str("file", path).Msg("collector rejected stored payload, deleting")
		c.reportFailure(ctx, path, fmt.Errorf("collector rejected %s", c.kind))
		c.queue.DeleteStoredFiles([]string{path})
	}
}

func (c *Controller) reportFailure(ctx context.Context, path string, cause error) {
	if c.onFailure != nil {
		c.onFailure(ctx, path, cause)
	}
}

// internal_reporter.go sends diagnostics about the library's own storage failures.

package delivery

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/background"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/flush"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/metrics"
)

const (
	// DiagnosticsSection is the metadata section of an internal report.
	DiagnosticsSection = "crashkitDiagnostics"

	// HeaderInternalError marks internal reports so the collector can route them.
	HeaderInternalError = "Crashkit-Internal-Error"
)

// InternalReporter describes a stored file the flush controller had to drop
// and sends that description once, in the background. Reports are never
// persisted and never pass through user callbacks.
type InternalReporter struct {
	settings  Settings
	deliverer crashkit.Deliverer
	executor  flush.Submitter
	collector crashkit.MetadataCollector
	logger    zerolog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewInternalReporter creates an InternalReporter. collector may be nil.
func NewInternalReporter(settings Settings, deliverer crashkit.Deliverer, executor flush.Submitter, collector crashkit.MetadataCollector, opts ...Option) *InternalReporter {
	if settings.Notifier == (crashkit.Notifier{}) {
		settings.Notifier = crashkit.DefaultNotifier
	}
	// Reuse the Delegate option set for the shared fields.
	d := &Delegate{logger: zerolog.Nop(), metrics: metrics.Noop(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return &InternalReporter{
		settings:  settings,
		deliverer: deliverer,
		executor:  executor,
		collector: collector,
		logger:    d.logger.With().Str("component", "internal_report").Logger(),
		metrics:   d.metrics,
		now:       d.now,
	}
}

// ReportStoredFileFailure satisfies flush.FailureReporter. It must run while
// path still exists so the file can be described.
func (r *InternalReporter) ReportStoredFileFailure(ctx context.Context, path string, cause error) {
	event := r.buildEvent(path, cause)

	_, err := r.executor.Submit(background.InternalReport, func(ctx context.Context) {
		params := crashkit.EventDeliveryParams(r.settings.Endpoint, r.settings.APIKey, r.now())
		params.Headers[HeaderInternalError] = r.settings.Notifier.Name
		payload := &crashkit.EventPayload{
			APIKey:   r.settings.APIKey,
			Notifier: r.settings.Notifier,
			Events:   []*crashkit.Event{event},
		}
		status := r.deliverer.DeliverEvent(ctx, payload, params)
		r.logger.Debug().Str("status", status.String()).Str("file", filepath.Base(path)).Msg("sent internal report")
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to schedule internal report")
		return
	}
	r.metrics.IncInternalReports()
}

// buildEvent collects the file diagnostics synchronously.
func (r *InternalReporter) buildEvent(path string, cause error) *crashkit.Event {
	event := crashkit.NewEvent(cause, crashkit.Handled(), "")
	now := r.now()
	event.Timestamp = now
	event.APIKey = r.settings.APIKey
	event.Context = "Stored File Failure"
	if r.collector != nil {
		event.App = r.collector.AppInfo(now)
		event.Device = r.collector.DeviceInfo(now)
	}

	diag := map[string]any{
		"notifierName":    r.settings.Notifier.Name,
		"notifierVersion": r.settings.Notifier.Version,
		"apiKey":          r.settings.APIKey,
		"fileName":        filepath.Base(path),
	}
	for k, v := range describeFile(path) {
		diag[k] = v
	}
	event.Metadata = event.Metadata.WithSection(DiagnosticsSection, diag)
	return event
}

// describeFile reports what the process can see of path and its volume.
func describeFile(path string) map[string]any {
	out := map[string]any{
		"exists":     false,
		"canRead":    false,
		"canWrite":   false,
		"fileLength": int64(-1),
		"freeDisk":   freeDiskBytes(filepath.Dir(path)),
	}
	info, err := os.Stat(path)
	if err != nil {
		return out
	}
	out["exists"] = true
	out["fileLength"] = info.Size()
	out["canRead"] = canAccess(path, false)
	out["canWrite"] = canAccess(path, true)
	return out
}

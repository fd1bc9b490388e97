package agentssdk

import (
	"context"
	"sync"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

type capturedBreadcrumb struct {
	message  string
	typ      crashkit.BreadcrumbType
	metadata map[string]any
}

// recordingReporter builds events the way a client would and keeps them.
type recordingReporter struct {
	mu          sync.Mutex
	events      []*crashkit.Event
	breadcrumbs []capturedBreadcrumb
}

func (r *recordingReporter) Notify(ctx context.Context, err error, callbacks ...crashkit.OnErrorFunc) {
	r.record(ctx, crashkit.NewEvent(err, crashkit.Handled(), ""), callbacks)
}

func (r *recordingReporter) NotifyUnhandled(ctx context.Context, err error, state crashkit.HandledState, stack string, callbacks ...crashkit.OnErrorFunc) {
	r.record(ctx, crashkit.NewEvent(err, state, stack), callbacks)
}

func (r *recordingReporter) record(ctx context.Context, event *crashkit.Event, callbacks []crashkit.OnErrorFunc) {
	if id, ok := crashkit.ContextIDFromContext(ctx); ok {
		event.ContextID = &id
	}
	for _, cb := range callbacks {
		if !cb(event) {
			return
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingReporter) LeaveBreadcrumb(message string, typ crashkit.BreadcrumbType, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breadcrumbs = append(r.breadcrumbs, capturedBreadcrumb{message: message, typ: typ, metadata: metadata})
}

func (r *recordingReporter) getEvents() []*crashkit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*crashkit.Event(nil), r.events...)
}

func (r *recordingReporter) getBreadcrumbs() []capturedBreadcrumb {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedBreadcrumb(nil), r.breadcrumbs...)
}

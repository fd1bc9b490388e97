package crashkit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// mockReporter records every call for inspection.
type mockReporter struct {
	mu     sync.Mutex
	events []*Event
	crumbs []Breadcrumb
}

func (m *mockReporter) Notify(ctx context.Context, err error, callbacks ...OnErrorFunc) {
	m.NotifyUnhandled(ctx, err, Handled(), "", callbacks...)
}

func (m *mockReporter) NotifyUnhandled(_ context.Context, err error, state HandledState, stack string, callbacks ...OnErrorFunc) {
	e := NewEvent(err, state, stack)
	for _, cb := range callbacks {
		if !cb(e) {
			return
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *mockReporter) LeaveBreadcrumb(message string, typ BreadcrumbType, metadata map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crumbs = append(m.crumbs, Breadcrumb{Message: message, Type: typ, Metadata: metadata})
}

func (m *mockReporter) getEvents() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Event(nil), m.events...)
}

func TestRecover_DirectDefer(t *testing.T) {
	reporter := &mockReporter{}
	ctx := WithContextID(context.Background(), 77)

	func() {
		defer Recover(ctx, reporter)
		panic("something broke")
	}()

	events := reporter.getEvents()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	e := events[0]
	if !e.IsUnhandled() || e.Severity() != SeverityError {
		t.Errorf("event state = unhandled:%v severity:%q", e.IsUnhandled(), e.Severity())
	}
	if e.ContextID == nil || *e.ContextID != 77 {
		t.Errorf("ContextID = %v, want 77", e.ContextID)
	}
	if !strings.Contains(e.Errors[0].Message, "something broke") {
		t.Errorf("message = %q", e.Errors[0].Message)
	}
	if e.Errors[0].Stacktrace == "" {
		t.Error("stack trace not captured")
	}
}

func TestRecover_NoPanic(t *testing.T) {
	reporter := &mockReporter{}

	func() {
		defer Recover(context.Background(), reporter)
	}()

	if len(reporter.getEvents()) != 0 {
		t.Error("Recover reported without a panic")
	}
}

func TestRecoveredError(t *testing.T) {
	base := errors.New("typed")
	if RecoveredError(base) != base {
		t.Error("error values must pass through")
	}
	err := RecoveredError(42)
	if !IsPanic(err) || err.Error() != "panic: 42" {
		t.Errorf("RecoveredError(42) = %v", err)
	}
}

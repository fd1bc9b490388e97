// recover.go provides the Recover helper for panic capture.
// Use this in HTTP handlers, goroutines, or any code outside an adapter.

package crashkit

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// Reporter is the capture surface used by Recover and the adapters.
// client.Client satisfies it.
type Reporter interface {
	// Notify reports a handled error.
	Notify(ctx context.Context, err error, callbacks ...OnErrorFunc)

	// NotifyUnhandled reports an error with an explicit handled state and stack.
	NotifyUnhandled(ctx context.Context, err error, state HandledState, stack string, callbacks ...OnErrorFunc)

	// LeaveBreadcrumb records a breadcrumb.
	LeaveBreadcrumb(message string, typ BreadcrumbType, metadata map[string]any)
}

// PanicError wraps a recovered panic value that was not an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover captures a panic, reports it as unhandled, and returns the recovered value.
// Unlike the runner adapter, Recover does NOT re-panic after reporting.
//
// Use in defer:
//
//	func handler(ctx context.Context) {
//	    defer crashkit.Recover(ctx, client)
//	    // code that might panic
//	}
func Recover(ctx context.Context, reporter Reporter) any {
	r := recover()
	if r == nil {
		return nil
	}

	var callbacks []OnErrorFunc
	if link := linkContextID(ctx); link != nil {
		callbacks = append(callbacks, link)
	}

	reporter.NotifyUnhandled(ctx, RecoveredError(r), Unhandled(), string(debug.Stack()), callbacks...)
	return r
}

// RecoveredError converts a recovered panic value into an error.
func RecoveredError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return err
	}
	return &PanicError{Value: recovered}
}

// IsPanic reports whether err came from RecoveredError with a non-error value.
func IsPanic(err error) bool {
	var p *PanicError
	return errors.As(err, &p)
}

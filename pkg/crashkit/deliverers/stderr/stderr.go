// Package stderr provides a Deliverer that prints payloads in human-readable form.
// Useful for development and debugging.
package stderr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

// Option configures the stderr deliverer.
type Option func(*Deliverer)

// WithVerbose enables full event details including stack traces.
func WithVerbose() Option {
	return func(d *Deliverer) { d.verbose = true }
}

// WithWriter redirects output (default: os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(d *Deliverer) { d.out = w }
}

// Deliverer writes payloads to stderr.
type Deliverer struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// New creates a deliverer that writes to stderr.
func New(opts ...Option) *Deliverer {
	d := &Deliverer{out: os.Stderr}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeliverEvent prints each event and reports Delivered.
func (d *Deliverer) DeliverEvent(_ context.Context, payload *crashkit.EventPayload, _ crashkit.DeliveryParams) crashkit.DeliveryStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, event := range payload.Events {
		d.writeEvent(event)
	}
	return crashkit.Delivered
}

// DeliverSession prints one line per session and reports Delivered.
func (d *Deliverer) DeliverSession(_ context.Context, payload *crashkit.SessionPayload, _ crashkit.DeliveryParams) crashkit.DeliveryStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range payload.Sessions {
		line := fmt.Sprintf("[CRASHKIT] %s SESSION %s", s.StartedAt.Format("2006-01-02T15:04:05Z07:00"), s.ID)
		if s.User.ID != "" {
			line += fmt.Sprintf(" (user: %s)", s.User.ID)
		}
		fmt.Fprintln(d.out, line)
	}
	return crashkit.Delivered
}

// Format: [CRASHKIT] <timestamp> <SEVERITY> <class> in <context> (unhandled)
func (d *Deliverer) writeEvent(event *crashkit.Event) {
	severity := strings.ToUpper(string(event.Severity()))
	timestamp := event.Timestamp.Format("2006-01-02T15:04:05Z07:00")

	class, message, stack := "error", "", ""
	if len(event.Errors) > 0 {
		class = event.Errors[0].Class
		message = event.Errors[0].Message
		stack = event.Errors[0].Stacktrace
	}

	parts := []string{fmt.Sprintf("[CRASHKIT] %s %s %s", timestamp, severity, class)}
	if event.Context != "" {
		parts = append(parts, "in "+event.Context)
	}
	if event.IsUnhandled() {
		parts = append(parts, "(unhandled)")
	}
	fmt.Fprintln(d.out, strings.Join(parts, " "))

	if message != "" {
		fmt.Fprintf(d.out, "        Message: %s\n", message)
	}
	if event.GroupingHash != "" {
		fmt.Fprintf(d.out, "        Grouping: %s\n", event.GroupingHash)
	}
	if event.Session != nil {
		fmt.Fprintf(d.out, "        Session: %s (%d handled, %d unhandled)\n",
			event.Session.ID, event.Session.Events.Handled, event.Session.Events.Unhandled)
	}
	if event.ContextID != nil {
		fmt.Fprintf(d.out, "        Context: %d\n", *event.ContextID)
	}

	// Stack trace and breadcrumbs (only in verbose mode)
	if !d.verbose {
		return
	}
	for _, crumb := range event.Breadcrumbs {
		fmt.Fprintf(d.out, "        Breadcrumb: [%s] %s\n", crumb.Type, crumb.Message)
	}
	if stack != "" {
		fmt.Fprintf(d.out, "        Stack trace:\n")
		for _, line := range strings.Split(stack, "\n") {
			fmt.Fprintf(d.out, "          %s\n", line)
		}
	}
}

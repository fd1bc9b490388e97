// event.go defines the canonical event representation and its wire encoding.

package crashkit

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Error is one entry in an event's error chain, outermost first.
type Error struct {
	// Class is the error type name, e.g. "*fs.PathError".
	Class string `json:"errorClass"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Stacktrace is the raw goroutine stack, if captured.
	Stacktrace string `json:"stacktrace,omitempty"`

	// Type names the runtime that produced the error.
	Type string `json:"type"`
}

// ErrorClassANR is the error class used for application-not-responding events.
const ErrorClassANR = "ANR"

// ErrorsFrom unwraps err into an error chain. The stack, if any, is attached
// to the outermost error.
func ErrorsFrom(err error, stack string) []Error {
	if err == nil {
		return []Error{{Class: "<nil>", Message: "<nil>", Stacktrace: stack, Type: "go"}}
	}
	var chain []Error
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, Error{Class: fmt.Sprintf("%T", e), Message: e.Error(), Type: "go"})
		if len(chain) == 8 {
			break
		}
	}
	chain[0].Stacktrace = stack
	return chain
}

// Event is a single captured error occurrence.
type Event struct {
	// Identity fields

	// ID is a unique identifier for this event (UUID).
	ID string

	// APIKey is the project key the event is reported under.
	APIKey string

	// Timestamp is when the event was captured.
	Timestamp time.Time

	// Error details

	// Errors is the unwrapped error chain, outermost first.
	Errors []Error

	// GroupingHash is a hash for grouping similar events.
	GroupingHash string

	// Context

	// Context names what the program was doing, e.g. the foreground component.
	Context string

	// User is the affected user.
	User User

	// App and Device are collected at capture time.
	App    AppInfo
	Device DeviceInfo

	// Breadcrumbs is the trail of prior actions, oldest first.
	Breadcrumbs []Breadcrumb

	// Metadata is a snapshot of diagnostic data.
	Metadata Metadata

	// Session is the snapshot of the session counters taken on delivery.
	Session *SessionSnapshot

	// ContextID optionally links the event to a cxdb conversation context.
	// Uses pointer to distinguish "not set" from "zero value".
	ContextID *uint64

	handled HandledState
}

// NewEvent builds an event for err with the given handled state.
func NewEvent(err error, state HandledState, stack string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Errors:    ErrorsFrom(err, stack),
		Metadata:  NewMetadata(nil),
		handled:   state,
	}
}

// HandledState returns the event's severity record.
func (e *Event) HandledState() HandledState { return e.handled }

// Severity is the current severity.
func (e *Event) Severity() Severity { return e.handled.Severity() }

// SetSeverity overrides the severity. The reported reason becomes
// callback-specified unless s equals the default severity.
func (e *Event) SetSeverity(s Severity) { e.handled = e.handled.WithSeverity(s) }

// IsUnhandled reports whether the event currently counts as unhandled.
func (e *Event) IsUnhandled() bool { return e.handled.Unhandled() }

// SetUnhandled overrides the unhandled flag.
func (e *Event) SetUnhandled(unhandled bool) { e.handled = e.handled.WithUnhandled(unhandled) }

// IsANR reports whether the event represents an application-not-responding condition.
func (e *Event) IsANR() bool {
	if e.handled.OriginalReason() == ReasonANR {
		return true
	}
	return len(e.Errors) > 0 && e.Errors[0].Class == ErrorClassANR
}

// IsPromiseRejection reports whether the event came from an unhandled async rejection.
func (e *Event) IsPromiseRejection() bool {
	return e.handled.OriginalReason() == ReasonPromiseRejection
}

// eventJSON is the wire shape of an event.
type eventJSON struct {
	ID             string                    `json:"id"`
	APIKey         string                    `json:"apiKey,omitempty"`
	Timestamp      time.Time                 `json:"timestamp"`
	Exceptions     []Error                   `json:"exceptions"`
	Severity       Severity                  `json:"severity"`
	Unhandled      bool                      `json:"unhandled"`
	SeverityReason severityReasonJSON        `json:"severityReason"`
	Context        string                    `json:"context,omitempty"`
	GroupingHash   string                    `json:"groupingHash,omitempty"`
	User           User                      `json:"user"`
	App            AppInfo                   `json:"app"`
	Device         DeviceInfo                `json:"device"`
	Breadcrumbs    []Breadcrumb              `json:"breadcrumbs"`
	MetaData       map[string]map[string]any `json:"metaData"`
	Session        *SessionSnapshot          `json:"session,omitempty"`
	ContextID      *uint64                   `json:"contextId,omitempty"`
}

// MarshalJSON encodes the event in its wire shape.
func (e *Event) MarshalJSON() ([]byte, error) {
	breadcrumbs := e.Breadcrumbs
	if breadcrumbs == nil {
		breadcrumbs = []Breadcrumb{}
	}
	return json.Marshal(eventJSON{
		ID:             e.ID,
		APIKey:         e.APIKey,
		Timestamp:      e.Timestamp,
		Exceptions:     e.Errors,
		Severity:       e.handled.Severity(),
		Unhandled:      e.handled.Unhandled(),
		SeverityReason: e.handled.reasonJSON(),
		Context:        e.Context,
		GroupingHash:   e.GroupingHash,
		User:           e.User,
		App:            e.App,
		Device:         e.Device,
		Breadcrumbs:    breadcrumbs,
		MetaData:       e.Metadata.ToMap(),
		Session:        e.Session,
		ContextID:      e.ContextID,
	})
}

// UnmarshalJSON decodes an event previously produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire eventJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.ID == "" || len(wire.Exceptions) == 0 {
		return errors.New("event is missing id or exceptions")
	}
	if !wire.Severity.Valid() {
		return fmt.Errorf("event has unknown severity %q", wire.Severity)
	}
	*e = Event{
		ID:           wire.ID,
		APIKey:       wire.APIKey,
		Timestamp:    wire.Timestamp,
		Errors:       wire.Exceptions,
		Context:      wire.Context,
		GroupingHash: wire.GroupingHash,
		User:         wire.User,
		App:          wire.App,
		Device:       wire.Device,
		Breadcrumbs:  wire.Breadcrumbs,
		Metadata:     NewMetadata(wire.MetaData),
		Session:      wire.Session,
		ContextID:    wire.ContextID,
		handled:      handledStateFromWire(wire.SeverityReason, wire.Severity, wire.Unhandled),
	}
	return nil
}

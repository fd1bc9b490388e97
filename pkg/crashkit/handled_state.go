// handled_state.go records why an event has its severity and whether it is a crash.

package crashkit

import (
	"errors"
	"fmt"
)

// Severity indicates the severity level of an event.
type Severity string

const (
	// SeverityError indicates a failure that caused an operation or the process to fail.
	SeverityError Severity = "error"

	// SeverityWarning indicates a non-fatal issue that may need attention.
	SeverityWarning Severity = "warning"

	// SeverityInfo indicates an informational event.
	SeverityInfo Severity = "info"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// SeverityReasonType is the reason an event was given its severity.
type SeverityReasonType string

const (
	ReasonUnhandledException SeverityReasonType = "unhandledException"
	ReasonStrictMode         SeverityReasonType = "strictMode"
	ReasonHandledException   SeverityReasonType = "handledException"
	ReasonUserSpecified      SeverityReasonType = "userSpecifiedSeverity"
	ReasonCallbackSpecified  SeverityReasonType = "userCallbackSetSeverity"
	ReasonPromiseRejection   SeverityReasonType = "unhandledPromiseRejection"
	ReasonSignal             SeverityReasonType = "signal"
	ReasonLog                SeverityReasonType = "log"
	ReasonANR                SeverityReasonType = "anrError"
)

// ErrInvalidSeverityReason is returned when a HandledState is constructed with
// an unknown reason or with an attribute that does not fit the reason.
var ErrInvalidSeverityReason = errors.New("invalid severity reason")

// HandledState is the per-event severity record.
// The zero value is not valid; use NewHandledState.
type HandledState struct {
	reason            SeverityReasonType
	attributeValue    string
	defaultSeverity   Severity
	currentSeverity   Severity
	unhandled         bool
	originalUnhandled bool
}

// NewHandledState validates and builds a HandledState.
//
// Strict-mode and log reasons require a non-empty attributeValue, every other
// reason forbids one. severity is only honored for the user-specified,
// callback-specified and log reasons; the others carry a fixed default.
func NewHandledState(reason SeverityReasonType, severity Severity, attributeValue string) (HandledState, error) {
	needsAttribute := reason == ReasonStrictMode || reason == ReasonLog
	if needsAttribute && attributeValue == "" {
		return HandledState{}, fmt.Errorf("%w: %s requires an attribute value", ErrInvalidSeverityReason, reason)
	}
	if !needsAttribute && attributeValue != "" {
		return HandledState{}, fmt.Errorf("%w: %s does not accept an attribute value", ErrInvalidSeverityReason, reason)
	}

	h := HandledState{reason: reason, attributeValue: attributeValue}
	switch reason {
	case ReasonUnhandledException, ReasonPromiseRejection, ReasonSignal, ReasonANR:
		h.defaultSeverity = SeverityError
		h.unhandled = true
	case ReasonStrictMode:
		h.defaultSeverity = SeverityWarning
		h.unhandled = true
	case ReasonHandledException:
		h.defaultSeverity = SeverityWarning
	case ReasonUserSpecified, ReasonCallbackSpecified, ReasonLog:
		if !severity.Valid() {
			return HandledState{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidSeverityReason, severity)
		}
		h.defaultSeverity = severity
	default:
		return HandledState{}, fmt.Errorf("%w: %q", ErrInvalidSeverityReason, reason)
	}
	h.currentSeverity = h.defaultSeverity
	h.originalUnhandled = h.unhandled
	return h, nil
}

// MustHandledState is like NewHandledState but panics on a usage error.
// Intended for package-level defaults built from constants.
func MustHandledState(reason SeverityReasonType, severity Severity, attributeValue string) HandledState {
	h, err := NewHandledState(reason, severity, attributeValue)
	if err != nil {
		panic(err)
	}
	return h
}

// Handled is the state used for errors passed to Notify.
func Handled() HandledState {
	return MustHandledState(ReasonHandledException, "", "")
}

// Unhandled is the state used for recovered panics.
func Unhandled() HandledState {
	return MustHandledState(ReasonUnhandledException, "", "")
}

// OriginalReason is the reason the state was constructed with.
func (h HandledState) OriginalReason() SeverityReasonType { return h.reason }

// AttributeValue is the reason attribute (log level or violation type), if any.
func (h HandledState) AttributeValue() string { return h.attributeValue }

// DefaultSeverity is the severity implied by the original reason.
func (h HandledState) DefaultSeverity() Severity { return h.defaultSeverity }

// Severity is the current, possibly callback-overridden, severity.
func (h HandledState) Severity() Severity { return h.currentSeverity }

// Unhandled reports whether the event currently counts as unhandled.
func (h HandledState) Unhandled() bool { return h.unhandled }

// OriginalUnhandled reports whether the event was unhandled when captured.
func (h HandledState) OriginalUnhandled() bool { return h.originalUnhandled }

// UnhandledOverridden reports whether a callback flipped the unhandled flag.
func (h HandledState) UnhandledOverridden() bool { return h.unhandled != h.originalUnhandled }

// WithSeverity returns a copy with the current severity replaced.
func (h HandledState) WithSeverity(s Severity) HandledState {
	h.currentSeverity = s
	return h
}

// WithUnhandled returns a copy with the unhandled flag replaced.
// The original unhandled flag is kept.
func (h HandledState) WithUnhandled(unhandled bool) HandledState {
	h.unhandled = unhandled
	return h
}

// SeverityReasonType is the effective reason reported on the wire.
func (h HandledState) SeverityReasonType() SeverityReasonType {
	return deriveSeverityReason(h.reason, h.defaultSeverity, h.currentSeverity)
}

// AttributeKey names the attribute emitted for the effective reason, or "".
func (h HandledState) AttributeKey() string {
	switch h.SeverityReasonType() {
	case ReasonLog:
		return "level"
	case ReasonStrictMode:
		return "violationType"
	}
	return ""
}

// deriveSeverityReason reports callback-specified whenever the severity moved
// away from the default, and the original reason otherwise.
func deriveSeverityReason(original SeverityReasonType, defaultSeverity, current Severity) SeverityReasonType {
	if current != defaultSeverity {
		return ReasonCallbackSpecified
	}
	return original
}

// severityReasonJSON is the wire shape of the severityReason object.
type severityReasonJSON struct {
	Type                SeverityReasonType `json:"type"`
	Attributes          map[string]string  `json:"attributes,omitempty"`
	UnhandledOverridden bool               `json:"unhandledOverridden,omitempty"`
}

func (h HandledState) reasonJSON() severityReasonJSON {
	out := severityReasonJSON{
		Type:                h.SeverityReasonType(),
		UnhandledOverridden: h.UnhandledOverridden(),
	}
	if key := h.AttributeKey(); key != "" && h.attributeValue != "" {
		out.Attributes = map[string]string{key: h.attributeValue}
	}
	return out
}

// handledStateFromWire rebuilds a state from its encoded form. The effective
// reason becomes the original reason so that re-encoding is stable.
func handledStateFromWire(r severityReasonJSON, severity Severity, unhandled bool) HandledState {
	h := HandledState{
		reason:          r.Type,
		defaultSeverity: severity,
		currentSeverity: severity,
		unhandled:       unhandled,
	}
	h.originalUnhandled = unhandled != r.UnhandledOverridden
	switch r.Type {
	case ReasonLog:
		h.attributeValue = r.Attributes["level"]
	case ReasonStrictMode:
		h.attributeValue = r.Attributes["violationType"]
	}
	return h
}

// session.go defines the live Session and the immutable snapshot attached to events.

package crashkit

import (
	"sync/atomic"
	"time"
)

// User identifies the person using the host program.
type User struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Session is the live, mutable session. Counters and flags are atomics so any
// goroutine may increment them; everything else is fixed at construction.
// Events never hold a *Session, only a SessionSnapshot.
type Session struct {
	id           string
	startedAt    time.Time
	user         User
	autoCaptured bool

	handled   atomic.Int64
	unhandled atomic.Int64
	tracked   atomic.Bool
	stopped   atomic.Bool
}

// NewSession creates a live session.
func NewSession(id string, startedAt time.Time, user User, autoCaptured bool) *Session {
	return &Session{
		id:           id,
		startedAt:    startedAt,
		user:         user,
		autoCaptured: autoCaptured,
	}
}

// ID is the opaque session token.
func (s *Session) ID() string { return s.id }

// StartedAt is when the session began.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// User is the user the session was started for.
func (s *Session) User() User { return s.user }

// AutoCaptured reports whether the foreground timeout started this session.
func (s *Session) AutoCaptured() bool { return s.autoCaptured }

// HandledCount is the current handled-event count.
func (s *Session) HandledCount() int64 { return s.handled.Load() }

// UnhandledCount is the current unhandled-event count.
func (s *Session) UnhandledCount() int64 { return s.unhandled.Load() }

// Stopped reports whether the session is paused.
func (s *Session) Stopped() bool { return s.stopped.Load() }

// Stop marks the session paused. Returns false if it already was.
func (s *Session) Stop() bool { return s.stopped.CompareAndSwap(false, true) }

// Resume clears the paused flag. Returns false if the session was not paused.
func (s *Session) Resume() bool { return s.stopped.CompareAndSwap(true, false) }

// Tracked reports whether the session has been sent (or queued) once.
func (s *Session) Tracked() bool { return s.tracked.Load() }

// MarkTracked flags the session as sent. Only the first caller gets true.
func (s *Session) MarkTracked() bool { return s.tracked.CompareAndSwap(false, true) }

// IncrementHandledAndCopy bumps the handled counter and returns a snapshot
// that includes the increment.
func (s *Session) IncrementHandledAndCopy() SessionSnapshot {
	handled := s.handled.Add(1)
	return SessionSnapshot{
		ID:        s.id,
		StartedAt: s.startedAt,
		Events:    SessionCounts{Handled: handled, Unhandled: s.unhandled.Load()},
	}
}

// IncrementUnhandledAndCopy bumps the unhandled counter and returns a snapshot
// that includes the increment.
func (s *Session) IncrementUnhandledAndCopy() SessionSnapshot {
	unhandled := s.unhandled.Add(1)
	return SessionSnapshot{
		ID:        s.id,
		StartedAt: s.startedAt,
		Events:    SessionCounts{Handled: s.handled.Load(), Unhandled: unhandled},
	}
}

// Snapshot copies the session without changing it.
func (s *Session) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:        s.id,
		StartedAt: s.startedAt,
		Events:    SessionCounts{Handled: s.handled.Load(), Unhandled: s.unhandled.Load()},
	}
}

// Record returns the payload entry used when the session is delivered.
func (s *Session) Record() SessionRecord {
	return SessionRecord{ID: s.id, StartedAt: s.startedAt, User: s.user}
}

// SessionCounts are the per-session event counters at snapshot time.
type SessionCounts struct {
	Handled   int64 `json:"handled"`
	Unhandled int64 `json:"unhandled"`
}

// SessionSnapshot is an immutable copy of a Session attached to an Event.
type SessionSnapshot struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"startedAt"`
	Events    SessionCounts `json:"events"`
}

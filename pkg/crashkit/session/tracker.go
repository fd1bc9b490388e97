// Package session tracks the current usage session and delivers session starts.
//
// A Tracker starts sessions explicitly (StartSession) or automatically when a
// component enters the foreground after the program has been idle for at
// least the configured timeout. The live session is swapped atomically and
// only ever read through copies.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/background"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/bus"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/flush"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/metrics"
)

// DefaultTimeout is the idle time after which a foreground entry starts a
// new session.
const DefaultTimeout = 30 * time.Second

// PayloadWriter persists session payloads.
// *store.Store[*crashkit.SessionPayload] satisfies it.
type PayloadWriter interface {
	Write(payload *crashkit.SessionPayload) string
}

// Flusher drains the session store. *flush.Controller satisfies it.
type Flusher interface {
	FlushAsync()
}

// Settings are the tracker's static inputs.
type Settings struct {
	APIKey   string
	Endpoint string
	Notifier crashkit.Notifier

	// AutoTrack enables foreground-driven sessions.
	AutoTrack bool

	// Timeout is the idle gap that makes a foreground entry start a session.
	// Zero means DefaultTimeout.
	Timeout time.Duration

	// ReleaseStageEnabled is false when sessions must not be sent at all.
	ReleaseStageEnabled bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithPublisher sets where session and foreground changes are published.
func WithPublisher(p bus.Publisher) Option {
	return func(t *Tracker) { t.publisher = p }
}

// WithCallbacks sets the OnSession hooks.
func WithCallbacks(c *crashkit.Callbacks) Option {
	return func(t *Tracker) { t.callbacks = c }
}

// WithCollector sets the app and device source for session payloads.
func WithCollector(c crashkit.MetadataCollector) Option {
	return func(t *Tracker) { t.collector = c }
}

// WithUser sets the user attached to automatically started sessions.
func WithUser(fn func() crashkit.User) Option {
	return func(t *Tracker) { t.user = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker owns the current session.
type Tracker struct {
	settings  Settings
	store     PayloadWriter
	flusher   Flusher
	deliverer crashkit.Deliverer
	executor  flush.Submitter

	current atomic.Pointer[crashkit.Session]

	// foreground holds the names of components currently in the foreground.
	// The emptiness check in UpdateForeground and the insertion that follows
	// are not atomic together; two components entering at once may both see
	// an empty set. The worst case is one extra session.
	foreground      sync.Map
	foregroundCount atomic.Int64
	lastEnteredMs   atomic.Int64
	lastExitedMs    atomic.Int64
	context         atomic.Pointer[string]

	callbacks *crashkit.Callbacks
	collector crashkit.MetadataCollector
	user      func() crashkit.User
	publisher bus.Publisher
	logger    zerolog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewTracker wires a Tracker. flusher may be nil when nothing is persisted.
func NewTracker(settings Settings, store PayloadWriter, flusher Flusher, deliverer crashkit.Deliverer, executor flush.Submitter, opts ...Option) *Tracker {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	if settings.Notifier == (crashkit.Notifier{}) {
		settings.Notifier = crashkit.DefaultNotifier
	}
	t := &Tracker{
		settings:  settings,
		store:     store,
		flusher:   flusher,
		deliverer: deliverer,
		executor:  executor,
		callbacks: &crashkit.Callbacks{},
		user:      func() crashkit.User { return crashkit.User{} },
		publisher: bus.Discard(),
		logger:    zerolog.Nop(),
		metrics:   metrics.Noop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With().Str("component", "session").Logger()
	return t
}

// StartSession starts a session explicitly. It returns nil when the session
// is discarded (release stage disabled or an OnSession hook declined it).
func (t *Tracker) StartSession() *crashkit.Session {
	return t.startNewSession(t.now(), t.user(), false)
}

// PauseSession stops the current session. Events captured while paused are
// not attributed to any session.
func (t *Tracker) PauseSession() {
	cur := t.current.Load()
	if cur != nil && cur.Stop() {
		t.publisher.Publish(bus.SessionPaused{})
	}
}

// ResumeSession resumes the paused session, or starts a new one when none
// exists. It reports whether an existing session was resumed.
func (t *Tracker) ResumeSession() bool {
	cur := t.current.Load()
	if cur == nil {
		t.StartSession()
		return false
	}
	resumed := cur.Resume()
	if resumed {
		t.publisher.Publish(bus.SessionStarted{Session: cur.Snapshot(), User: cur.User(), AutoCaptured: cur.AutoCaptured()})
	}
	return resumed
}

// CurrentSession returns the live session, or nil when none is running.
func (t *Tracker) CurrentSession() *crashkit.Session {
	cur := t.current.Load()
	if cur == nil || cur.Stopped() {
		return nil
	}
	return cur
}

// SessionForEvent returns the session an event should count against.
// Automatically captured sessions only count while auto-tracking is on.
func (t *Tracker) SessionForEvent() *crashkit.Session {
	cur := t.CurrentSession()
	if cur == nil {
		return nil
	}
	if cur.AutoCaptured() && !t.settings.AutoTrack {
		return nil
	}
	return cur
}

// IncrementHandledAndCopy counts a handled event against the current
// session. ok is false when no session is running.
func (t *Tracker) IncrementHandledAndCopy() (snap crashkit.SessionSnapshot, ok bool) {
	cur := t.CurrentSession()
	if cur == nil {
		return crashkit.SessionSnapshot{}, false
	}
	return cur.IncrementHandledAndCopy(), true
}

// IncrementUnhandledAndCopy counts an unhandled event against the current
// session. ok is false when no session is running.
func (t *Tracker) IncrementUnhandledAndCopy() (snap crashkit.SessionSnapshot, ok bool) {
	cur := t.CurrentSession()
	if cur == nil {
		return crashkit.SessionSnapshot{}, false
	}
	return cur.IncrementUnhandledAndCopy(), true
}

// UpdateForeground records a component entering (starting) or leaving the
// foreground at now. Entering with no other component foregrounded after
// an idle gap of at least Timeout starts a session when auto-tracking.
func (t *Tracker) UpdateForeground(component string, starting bool, now time.Time) {
	nowMs := now.UnixMilli()
	if starting {
		if t.foregroundCount.Load() == 0 {
			idle := time.Duration(nowMs-t.lastExitedMs.Load()) * time.Millisecond
			if idle >= t.settings.Timeout && t.settings.AutoTrack {
				t.startNewSession(now, t.user(), true)
			}
			t.lastEnteredMs.Store(nowMs)
		}
		if _, loaded := t.foreground.LoadOrStore(component, struct{}{}); !loaded {
			t.foregroundCount.Add(1)
		}
		name := component
		t.context.Store(&name)
	} else {
		if _, loaded := t.foreground.LoadAndDelete(component); loaded {
			if t.foregroundCount.Add(-1) == 0 {
				t.lastExitedMs.Store(nowMs)
			}
		}
	}
	t.publisher.Publish(bus.UpdateInForeground{InForeground: t.InForeground(), Component: t.ContextComponent()})
}

// InForeground reports whether any component is foregrounded.
func (t *Tracker) InForeground() bool {
	return t.foregroundCount.Load() > 0
}

// DurationInForeground returns how long the program has been continuously
// foregrounded, or zero when it is not.
func (t *Tracker) DurationInForeground(now time.Time) time.Duration {
	entered := t.lastEnteredMs.Load()
	if !t.InForeground() || entered == 0 {
		return 0
	}
	d := time.Duration(now.UnixMilli()-entered) * time.Millisecond
	if d < 0 {
		return 0
	}
	return d
}

// ContextComponent returns the most recently foregrounded component while
// the program is in the foreground, or "".
func (t *Tracker) ContextComponent() string {
	if !t.InForeground() {
		return ""
	}
	if name := t.context.Load(); name != nil {
		return *name
	}
	return ""
}

// FlushStoredSessions schedules delivery of persisted session payloads.
func (t *Tracker) FlushStoredSessions() {
	if t.flusher != nil {
		t.flusher.FlushAsync()
	}
}

func (t *Tracker) shouldDiscard(autoCaptured bool) bool {
	if !t.settings.ReleaseStageEnabled {
		return true
	}
	return autoCaptured && !t.settings.AutoTrack
}

func (t *Tracker) startNewSession(at time.Time, user crashkit.User, autoCaptured bool) *crashkit.Session {
	if t.shouldDiscard(autoCaptured) {
		t.logger.Debug().Bool("auto_captured", autoCaptured).Msg("session discarded")
		return nil
	}

	s := crashkit.NewSession(uuid.NewString(), at, user, autoCaptured)
	if !t.callbacks.RunOnSession(s, t.logger) {
		t.logger.Debug().Msg("session dropped by OnSession callback")
		return nil
	}
	t.current.Store(s)
	t.trackSessionIfNeeded(s)
	t.publisher.Publish(bus.SessionStarted{Session: s.Snapshot(), User: user, AutoCaptured: autoCaptured})
	return s
}

// trackSessionIfNeeded sends the session start once, in the background.
func (t *Tracker) trackSessionIfNeeded(s *crashkit.Session) {
	if s.AutoCaptured() && !t.settings.AutoTrack {
		return
	}
	if !s.MarkTracked() {
		return
	}

	payload := t.payloadFor(s)
	_, err := t.executor.Submit(background.SessionRequest, func(ctx context.Context) {
		t.FlushStoredSessions()
		t.deliver(ctx, payload)
	})
	if err != nil {
		t.logger.Warn().Err(err).Msg("failed to schedule session delivery, storing")
		t.store.Write(payload)
	}
}

func (t *Tracker) payloadFor(s *crashkit.Session) *crashkit.SessionPayload {
	payload := &crashkit.SessionPayload{
		Notifier: t.settings.Notifier,
		Sessions: []crashkit.SessionRecord{s.Record()},
	}
	if t.collector != nil {
		now := t.now()
		payload.App = t.collector.AppInfo(now)
		payload.Device = t.collector.DeviceInfo(now)
	}
	return payload
}

func (t *Tracker) deliver(ctx context.Context, payload *crashkit.SessionPayload) {
	params := crashkit.SessionDeliveryParams(t.settings.Endpoint, t.settings.APIKey, t.now())
	status := t.deliverer.DeliverSession(ctx, payload, params)
	t.metrics.IncDeliveries(metrics.KindSession, status.String())

	switch status {
	case crashkit.Delivered:
		t.logger.Info().Str("session_id", payload.Sessions[0].ID).Msg("sent 1 new session")
	case crashkit.Undelivered:
		t.logger.Warn().Msg("could not send session, storing for later")
		t.store.Write(payload)
	case crashkit.Failure:
		t.logger.Warn().Msg("collector rejected session, dropping")
	}
}

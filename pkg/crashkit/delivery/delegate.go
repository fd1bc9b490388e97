// Package delivery routes captured events to the network or the event store.
//
// Unhandled events that came straight from a capture point are persisted
// first, because the process may be about to exit. Handled events are sent
// in the background and only touch disk when the network is unavailable.
package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/background"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/bus"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/flush"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/metrics"
)

// EventWriter persists events. *store.Store[*crashkit.Event] satisfies it.
type EventWriter interface {
	// Write returns the stored path, or "" if the event was not persisted.
	Write(event *crashkit.Event) string
}

// Flusher drains the event store. *flush.Controller satisfies it.
type Flusher interface {
	FlushAsync()
	FlushFile(ctx context.Context, path string)
}

// SessionSource yields the session an event should be attributed to, or nil.
// session.Tracker satisfies it.
type SessionSource interface {
	SessionForEvent() *crashkit.Session
}

// Settings are the delegate's static inputs.
type Settings struct {
	APIKey   string
	Endpoint string
	Notifier crashkit.Notifier

	// AttemptDeliveryOnCrash enables the bounded synchronous send for
	// unhandled events.
	AttemptDeliveryOnCrash bool

	// SyncTimeout bounds that send. Zero means 3s.
	SyncTimeout time.Duration
}

// Option configures a Delegate.
type Option func(*Delegate)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Delegate) { d.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(d *Delegate) { d.metrics = m }
}

// WithPublisher sets where NotifyHandled and NotifyUnhandled are published.
func WithPublisher(p bus.Publisher) Option {
	return func(d *Delegate) { d.publisher = p }
}

// WithSessions sets the session events are attributed to.
func WithSessions(s SessionSource) Option {
	return func(d *Delegate) { d.sessions = s }
}

// WithCallbacks sets the OnSend hooks run before a handled event is sent.
func WithCallbacks(c *crashkit.Callbacks) Option {
	return func(d *Delegate) { d.callbacks = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Delegate) { d.now = now }
}

// Delegate decides, per event, between synchronous send, persistence and
// background send.
type Delegate struct {
	settings  Settings
	store     EventWriter
	flusher   Flusher
	deliverer crashkit.Deliverer
	executor  flush.Submitter

	sessions  SessionSource
	callbacks *crashkit.Callbacks
	publisher bus.Publisher
	logger    zerolog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewDelegate wires a Delegate.
func NewDelegate(settings Settings, store EventWriter, flusher Flusher, deliverer crashkit.Deliverer, executor flush.Submitter, opts ...Option) *Delegate {
	if settings.SyncTimeout <= 0 {
		settings.SyncTimeout = 3 * time.Second
	}
	if settings.Notifier == (crashkit.Notifier{}) {
		settings.Notifier = crashkit.DefaultNotifier
	}
	d := &Delegate{
		settings:  settings,
		store:     store,
		flusher:   flusher,
		deliverer: deliverer,
		executor:  executor,
		callbacks: &crashkit.Callbacks{},
		publisher: bus.Discard(),
		logger:    zerolog.Nop(),
		metrics:   metrics.Noop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("component", "delivery").Logger()
	return d
}

// Deliver routes one event. It never returns an error; every failure is
// logged and the event is persisted when that is still possible.
func (d *Delegate) Deliver(ctx context.Context, event *crashkit.Event) {
	d.attributeSession(event)

	if event.HandledState().OriginalUnhandled() {
		d.deliverUnhandled(ctx, event)
		return
	}

	if !d.callbacks.RunOnSend(event, d.logger) {
		d.logger.Debug().Msg("skipping notification, OnSend callback returned false")
		return
	}
	d.deliverAsync(event)
}

// attributeSession stamps the event with a copy of the current session after
// counting it. The counter moves before the copy so the payload includes this
// event.
func (d *Delegate) attributeSession(event *crashkit.Event) {
	if d.sessions == nil {
		return
	}
	live := d.sessions.SessionForEvent()
	if live == nil {
		return
	}

	var snap crashkit.SessionSnapshot
	if event.IsUnhandled() {
		snap = live.IncrementUnhandledAndCopy()
		d.publisher.Publish(bus.NotifyUnhandled{})
	} else {
		snap = live.IncrementHandledAndCopy()
		d.publisher.Publish(bus.NotifyHandled{})
	}
	event.Session = &snap
}

func (d *Delegate) deliverUnhandled(ctx context.Context, event *crashkit.Event) {
	switch {
	case event.IsANR() || event.IsPromiseRejection():
		// The process survives these, so the regular queue picks them up.
		if d.store.Write(event) != "" {
			d.flusher.FlushAsync()
		}
	case d.settings.AttemptDeliveryOnCrash:
		d.cacheAndSendSynchronously(ctx, event)
	default:
		d.store.Write(event)
	}
}

// cacheAndSendSynchronously persists the event and then blocks for at most
// SyncTimeout while it is sent from disk. The wait ignores cancellation of
// ctx, which is often already done when the crash is reported.
func (d *Delegate) cacheAndSendSynchronously(ctx context.Context, event *crashkit.Event) {
	path := d.store.Write(event)

	var work func(ctx context.Context)
	if path != "" {
		work = func(ctx context.Context) { d.flusher.FlushFile(ctx, path) }
	} else {
		work = func(ctx context.Context) { d.deliverPayload(ctx, event, false) }
	}

	task, err := d.executor.Submit(background.ErrorRequest, work)
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to schedule crash delivery, event remains on disk")
		return
	}

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.settings.SyncTimeout)
	defer cancel()
	if err := task.Wait(waitCtx); err != nil {
		task.Cancel()
		d.logger.Warn().Err(err).Dur("timeout", d.settings.SyncTimeout).Msg("failed to send event synchronously")
	}
}

// deliverAsync sends a handled event in the background, falling back to the
// store when the request queue is full.
func (d *Delegate) deliverAsync(event *crashkit.Event) {
	_, err := d.executor.Submit(background.ErrorRequest, func(ctx context.Context) {
		d.deliverPayload(ctx, event, true)
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to schedule event delivery, storing")
		d.store.Write(event)
	}
}

// deliverPayload makes one network attempt. When persistUndelivered is set
// a transient failure writes the event to the store.
func (d *Delegate) deliverPayload(ctx context.Context, event *crashkit.Event, persistUndelivered bool) crashkit.DeliveryStatus {
	apiKey := event.APIKey
	if apiKey == "" {
		apiKey = d.settings.APIKey
	}
	payload := &crashkit.EventPayload{
		APIKey:   apiKey,
		Notifier: d.settings.Notifier,
		Events:   []*crashkit.Event{event},
	}
	params := crashkit.EventDeliveryParams(d.settings.Endpoint, apiKey, d.now())

	status := d.deliverer.DeliverEvent(ctx, payload, params)
	d.metrics.IncDeliveries(metrics.KindEvent, status.String())

	switch status {
	case crashkit.Delivered:
		d.logger.Info().Str("event_id", event.ID).Msg("sent 1 new event")
	case crashkit.Undelivered:
		if persistUndelivered {
			d.logger.Warn().Str("event_id", event.ID).Msg("could not send event, will try again later")
			d.store.Write(event)
		}
	case crashkit.Failure:
		d.logger.Warn().Str("event_id", event.ID).Msg("collector rejected event, dropping")
	}
	return status
}

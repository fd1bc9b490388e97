// Package client composes the crashkit components into a reporting client.
//
// A Client is constructed explicitly and passed to whatever needs it; there is
// no package-level instance. It satisfies crashkit.Reporter, so it can be
// used with crashkit.Recover and the adapters.
package client

import (
	"context"
	"errors"
	"io"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/background"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/bus"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/config"
	httpdeliverer "github.com/strongdm/ai-crashkit/pkg/crashkit/deliverers/http"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/delivery"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/flush"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/metrics"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/session"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/store"
)

// RunSection is the metadata section holding the run ID from the context.
const RunSection = "run"

// Option configures a Client.
type Option func(*options)

type options struct {
	deliverer crashkit.Deliverer
	logger    *zerolog.Logger
	logOutput io.Writer
	registry  prometheus.Registerer
	plugins   []Plugin
	collector crashkit.MetadataCollector
	scrubber  *crashkit.ScrubberConfig
	notifier  crashkit.Notifier
	now       func() time.Time
}

// WithDeliverer replaces the HTTP deliverer built from the config.
func WithDeliverer(d crashkit.Deliverer) Option {
	return func(o *options) { o.deliverer = d }
}

// WithLogger replaces the logger built from the config.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithLogOutput sets where the config-built logger writes (default: stderr).
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithMetricsRegistry registers the client's metrics with reg. It enables
// metrics regardless of the config.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithPlugin registers a plugin. Plugins are loaded in registration order.
func WithPlugin(p Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, p) }
}

// WithCollector replaces the runtime app and device collector.
func WithCollector(c crashkit.MetadataCollector) Option {
	return func(o *options) { o.collector = c }
}

// WithScrubber replaces the scrubber configuration derived from redactedKeys.
func WithScrubber(cfg crashkit.ScrubberConfig) Option {
	return func(o *options) { o.scrubber = &cfg }
}

// WithNotifier overrides the notifier reported in payloads.
func WithNotifier(n crashkit.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Client is the reporting client.
type Client struct {
	cfg       *config.Config
	logger    zerolog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
	collector crashkit.MetadataCollector
	scrubber  *crashkit.Scrubber

	executor      *background.Executor
	bus           *bus.Bus
	eventStore    *store.Store[*crashkit.Event]
	sessionStore  *store.Store[*crashkit.SessionPayload]
	eventFlush    *flush.Controller
	sessionFlush  *flush.Controller
	tracker       *session.Tracker
	delegate      *delivery.Delegate
	callbacks     *crashkit.Callbacks
	breadcrumbs   *crashkit.BreadcrumbBuffer
	pluginsByName map[string]Plugin
	pluginOrder   []Plugin

	// metaMu serializes metadata patches; readers load the pointer.
	metaMu   sync.Mutex
	metadata atomic.Pointer[crashkit.Metadata]
	user     atomic.Pointer[crashkit.User]
	context  atomic.Pointer[string]

	startOnce sync.Once
	closeOnce sync.Once
}

// New validates cfg and wires a Client. Nothing touches the network until
// Start or the first capture.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("crashkit client: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{now: time.Now, logOutput: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{
		cfg:         cfg,
		now:         o.now,
		callbacks:   &crashkit.Callbacks{},
		breadcrumbs: crashkit.NewBreadcrumbBuffer(cfg.Breadcrumbs.Max),
	}
	if o.logger != nil {
		c.logger = *o.logger
	} else {
		c.logger = config.NewLogger(cfg.Logger, o.logOutput)
	}
	c.metrics = metrics.Noop()
	switch {
	case o.registry != nil:
		c.metrics = metrics.NewPrometheus(o.registry)
	case cfg.Metrics.Enabled:
		c.metrics = metrics.NewPrometheus(prometheus.DefaultRegisterer)
	}

	empty := crashkit.NewMetadata(nil)
	c.metadata.Store(&empty)
	c.user.Store(&crashkit.User{})

	scrubCfg := crashkit.DefaultScrubberConfig()
	scrubCfg.RedactedKeys = append(append([]string(nil), crashkit.DefaultRedactedKeys...), cfg.RedactedKeys...)
	if o.scrubber != nil {
		scrubCfg = *o.scrubber
	}
	c.scrubber = crashkit.NewScrubber(scrubCfg)

	notifier := o.notifier
	if notifier == (crashkit.Notifier{}) {
		notifier = crashkit.DefaultNotifier
	}

	deliverer := o.deliverer
	if deliverer == nil {
		deliverer = httpdeliverer.New(
			httpdeliverer.WithTimeout(cfg.Delivery.RequestTimeout),
			httpdeliverer.WithCompression(cfg.Delivery.Compress),
			httpdeliverer.WithLogger(c.logger),
		)
	}

	runtimeCollector := &crashkit.RuntimeCollector{
		StartTime:            c.now(),
		Version:              cfg.AppVersion,
		ReleaseStage:         cfg.ReleaseStage,
		Type:                 cfg.AppType,
		LaunchCrashThreshold: cfg.Delivery.LaunchCrashThreshold,
	}
	c.collector = runtimeCollector
	if o.collector != nil {
		c.collector = o.collector
	}

	c.executor = background.New(
		background.WithQueueSize(cfg.Executor.QueueSize),
		background.WithLogger(c.logger),
		background.WithMetrics(c.metrics),
	)
	c.bus = bus.New(cfg.Bus.BufferSize, bus.WithLogger(c.logger), bus.WithMetrics(c.metrics))

	c.eventStore = store.New(cfg.EventsDirectory(), cfg.Persistence.MaxEvents,
		store.EventNamer(), store.EventLess,
		store.WithLogger(c.logger), store.WithMetrics(c.metrics), store.WithKind(metrics.KindEvent))
	c.sessionStore = store.New(cfg.SessionsDirectory(), cfg.Persistence.MaxSessions,
		store.SessionNamer(c.now), store.SessionLess,
		store.WithLogger(c.logger), store.WithMetrics(c.metrics), store.WithKind(metrics.KindSession))

	eventSettings := delivery.Settings{
		APIKey:                 cfg.APIKey,
		Endpoint:               cfg.Endpoints.Notify,
		Notifier:               notifier,
		AttemptDeliveryOnCrash: cfg.Delivery.AttemptDeliveryOnCrash,
		SyncTimeout:            cfg.Delivery.SyncTimeout,
	}
	internal := delivery.NewInternalReporter(eventSettings, deliverer, c.executor, c.collector,
		delivery.WithLogger(c.logger), delivery.WithMetrics(c.metrics), delivery.WithClock(c.now))

	c.eventFlush = flush.NewController(c.eventStore,
		delivery.NewFileDeliverer(c.eventStore, deliverer, cfg.Endpoints.Notify, cfg.APIKey, notifier),
		c.executor,
		flush.WithLogger(c.logger),
		flush.WithMetrics(c.metrics),
		flush.WithKind(metrics.KindEvent),
		flush.WithTaskType(background.ErrorRequest),
		flush.WithDiscardPolicy(delivery.DiscardPolicy(cfg.Persistence.MaxAge, cfg.Persistence.MaxFileBytes, c.now)),
		flush.WithFailureReporter(internal.ReportStoredFileFailure),
	)
	c.sessionFlush = flush.NewController(c.sessionStore,
		session.NewFileDeliverer(c.sessionStore, deliverer, cfg.Endpoints.Sessions, cfg.APIKey),
		c.executor,
		flush.WithLogger(c.logger),
		flush.WithMetrics(c.metrics),
		flush.WithKind(metrics.KindSession),
		flush.WithTaskType(background.SessionRequest),
		flush.WithDiscardPolicy(func(path string) bool { return store.IsTooOld(path, c.now(), cfg.Persistence.MaxAge) }),
		flush.WithFailureReporter(internal.ReportStoredFileFailure),
	)

	c.tracker = session.NewTracker(session.Settings{
		APIKey:              cfg.APIKey,
		Endpoint:            cfg.Endpoints.Sessions,
		Notifier:            notifier,
		AutoTrack:           cfg.Sessions.AutoTrack,
		Timeout:             cfg.Sessions.Timeout,
		ReleaseStageEnabled: cfg.ShouldNotifyForReleaseStage(),
	}, c.sessionStore, c.sessionFlush, deliverer, c.executor,
		session.WithLogger(c.logger),
		session.WithMetrics(c.metrics),
		session.WithPublisher(c.bus),
		session.WithCallbacks(c.callbacks),
		session.WithCollector(c.collector),
		session.WithUser(c.User),
		session.WithClock(c.now),
	)
	runtimeCollector.Foreground = c.tracker

	c.delegate = delivery.NewDelegate(eventSettings, c.eventStore, c.eventFlush, deliverer, c.executor,
		delivery.WithLogger(c.logger),
		delivery.WithMetrics(c.metrics),
		delivery.WithPublisher(c.bus),
		delivery.WithSessions(c.tracker),
		delivery.WithCallbacks(c.callbacks),
		delivery.WithClock(c.now),
	)

	c.logger = c.logger.With().Str("component", "client").Logger()
	c.loadPlugins(o.plugins)
	return c, nil
}

// Start flushes what previous runs left on disk and announces the client.
// When sendLaunchCrashesSynchronously is set, Start blocks up to
// launchFlushTimeout for launch crashes. Calling Start again is a no-op.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		timeout := time.Duration(0)
		if c.cfg.Delivery.SendLaunchCrashesSynchronously {
			timeout = c.cfg.Delivery.LaunchFlushTimeout
		}
		c.eventFlush.FlushOnLaunch(ctx, timeout)
		c.tracker.FlushStoredSessions()
		c.bus.Publish(bus.Install{
			APIKey:       c.cfg.APIKey,
			ReleaseStage: c.cfg.ReleaseStage,
			AppVersion:   c.cfg.AppVersion,
		})
	})
}

// Close unloads plugins, drains background work and stops the bus.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.pluginOrder) - 1; i >= 0; i-- {
			c.pluginOrder[i].Unload()
		}
		err = errors.Join(c.executor.Close(), c.bus.Close())
	})
	return err
}

// Notify reports a handled error.
func (c *Client) Notify(ctx context.Context, err error, callbacks ...crashkit.OnErrorFunc) {
	c.notify(ctx, err, crashkit.Handled(), string(debug.Stack()), callbacks)
}

// NotifyWithSeverity reports a handled error with an explicit severity.
func (c *Client) NotifyWithSeverity(ctx context.Context, err error, severity crashkit.Severity, callbacks ...crashkit.OnErrorFunc) {
	state, stateErr := crashkit.NewHandledState(crashkit.ReasonUserSpecified, severity, "")
	if stateErr != nil {
		c.logger.Warn().Err(stateErr).Msg("invalid severity, reporting as handled")
		state = crashkit.Handled()
	}
	c.notify(ctx, err, state, string(debug.Stack()), callbacks)
}

// NotifyUnhandled implements crashkit.Reporter.
func (c *Client) NotifyUnhandled(ctx context.Context, err error, state crashkit.HandledState, stack string, callbacks ...crashkit.OnErrorFunc) {
	c.notify(ctx, err, state, stack, callbacks)
}

func (c *Client) notify(ctx context.Context, err error, state crashkit.HandledState, stack string, callbacks []crashkit.OnErrorFunc) {
	if !c.cfg.ShouldNotifyForReleaseStage() {
		c.logger.Debug().Str("release_stage", c.cfg.ReleaseStage).Msg("release stage not enabled, skipping notification")
		return
	}

	event := c.buildEvent(ctx, err, state, stack)
	if !c.callbacks.RunOnError(event, c.logger, callbacks...) {
		c.logger.Debug().Msg("skipping notification, OnError callback returned false")
		return
	}

	c.scrubber.ScrubEvent(event)
	if event.GroupingHash == "" {
		event.GroupingHash = crashkit.GroupingHash(event)
	}

	c.delegate.Deliver(ctx, event)
	c.leaveErrorBreadcrumb(event)
}

func (c *Client) buildEvent(ctx context.Context, err error, state crashkit.HandledState, stack string) *crashkit.Event {
	now := c.now()
	event := crashkit.NewEvent(err, state, stack)
	event.Timestamp = now
	event.APIKey = c.cfg.APIKey
	event.App = c.collector.AppInfo(now)
	event.Device = c.collector.DeviceInfo(now)
	event.User = c.User()
	event.Context = c.Context()
	event.Breadcrumbs = c.breadcrumbs.Copy()
	event.Metadata = *c.metadata.Load()

	if id, ok := crashkit.ContextIDFromContext(ctx); ok {
		event.ContextID = &id
	}
	if runID, ok := crashkit.RunIDFromContext(ctx); ok {
		event.Metadata = event.Metadata.With(RunSection, "id", runID)
	}
	return event
}

func (c *Client) leaveErrorBreadcrumb(event *crashkit.Event) {
	if len(event.Errors) == 0 {
		return
	}
	first := event.Errors[0]
	c.LeaveBreadcrumb(first.Class, crashkit.BreadcrumbError, map[string]any{
		"errorClass": first.Class,
		"message":    first.Message,
		"unhandled":  event.IsUnhandled(),
		"severity":   string(event.Severity()),
	})
}

// LeaveBreadcrumb records a breadcrumb for future events.
func (c *Client) LeaveBreadcrumb(message string, typ crashkit.BreadcrumbType, metadata map[string]any) {
	crumb := crashkit.Breadcrumb{
		Timestamp: c.now(),
		Message:   message,
		Type:      typ,
		Metadata:  metadata,
	}
	if !c.callbacks.RunOnBreadcrumb(&crumb, c.logger) {
		return
	}
	c.breadcrumbs.Add(crumb)
	c.bus.Publish(bus.BreadcrumbAdded{Breadcrumb: crumb})
}

// Breadcrumbs returns the current breadcrumbs, oldest first.
func (c *Client) Breadcrumbs() []crashkit.Breadcrumb {
	return c.breadcrumbs.Copy()
}

// AddMetadata sets section.key on every future event.
func (c *Client) AddMetadata(section, key string, value any) {
	c.applyMetadata(crashkit.MetadataPatch{Section: section, Key: key, Value: value})
}

// ClearMetadata removes section.key, or the whole section when key is "".
func (c *Client) ClearMetadata(section, key string) {
	c.applyMetadata(crashkit.MetadataPatch{Section: section, Key: key, Removed: true})
}

// Metadata returns the current metadata snapshot.
func (c *Client) Metadata() crashkit.Metadata {
	return *c.metadata.Load()
}

func (c *Client) applyMetadata(patch crashkit.MetadataPatch) {
	c.metaMu.Lock()
	next := c.metadata.Load().Apply(patch)
	c.metadata.Store(&next)
	c.metaMu.Unlock()
	c.bus.Publish(bus.MetadataChanged{Patch: patch})
}

// SetUser sets the user attached to events and new sessions.
func (c *Client) SetUser(user crashkit.User) {
	c.user.Store(&user)
	c.bus.Publish(bus.UpdateUser{User: user})
}

// User returns the current user.
func (c *Client) User() crashkit.User {
	return *c.user.Load()
}

// SetContext overrides the event context. An empty value restores the
// foreground component as the context.
func (c *Client) SetContext(value string) {
	c.context.Store(&value)
	c.bus.Publish(bus.UpdateContext{Context: value})
}

// Context returns the explicit context, or the foreground component.
func (c *Client) Context() string {
	if v := c.context.Load(); v != nil && *v != "" {
		return *v
	}
	return c.tracker.ContextComponent()
}

// AddOnError registers a hook run before every capture.
func (c *Client) AddOnError(fn crashkit.OnErrorFunc) { c.callbacks.AddOnError(fn) }

// AddOnSend registers a hook run before a handled event is sent.
func (c *Client) AddOnSend(fn crashkit.OnSendFunc) { c.callbacks.AddOnSend(fn) }

// AddOnBreadcrumb registers a hook run before a breadcrumb is recorded.
func (c *Client) AddOnBreadcrumb(fn crashkit.OnBreadcrumbFunc) { c.callbacks.AddOnBreadcrumb(fn) }

// AddOnSession registers a hook run before a session starts.
func (c *Client) AddOnSession(fn crashkit.OnSessionFunc) { c.callbacks.AddOnSession(fn) }

// StartSession starts a session explicitly.
func (c *Client) StartSession() { c.tracker.StartSession() }

// PauseSession stops the current session.
func (c *Client) PauseSession() { c.tracker.PauseSession() }

// ResumeSession resumes the paused session, reporting false if a new one
// had to be started.
func (c *Client) ResumeSession() bool { return c.tracker.ResumeSession() }

// CurrentSession returns the live session, or nil.
func (c *Client) CurrentSession() *crashkit.Session { return c.tracker.CurrentSession() }

// ComponentStarted records a component entering the foreground.
func (c *Client) ComponentStarted(name string) {
	c.tracker.UpdateForeground(name, true, c.now())
}

// ComponentStopped records a component leaving the foreground.
func (c *Client) ComponentStopped(name string) {
	c.tracker.UpdateForeground(name, false, c.now())
}

// Subscribe registers a listener for state changes. See package bus.
func (c *Client) Subscribe(fn bus.Listener) (unsubscribe func()) {
	return c.bus.Subscribe(fn)
}

// FlushStored schedules delivery of every stored event and session.
func (c *Client) FlushStored() {
	c.eventFlush.FlushAsync()
	c.sessionFlush.FlushAsync()
}

// FlushStoredSync delivers every stored event and session on the calling
// goroutine. It returns false if a background pass was already running for
// either store.
func (c *Client) FlushStoredSync(ctx context.Context) bool {
	events := c.eventFlush.FlushReports(ctx, c.eventStore.FindStoredFiles())
	sessions := c.sessionFlush.FlushReports(ctx, c.sessionStore.FindStoredFiles())
	return events && sessions
}

// EventsDirectory returns the directory holding stored events, or "".
func (c *Client) EventsDirectory() string { return c.eventStore.Directory() }

// SessionsDirectory returns the directory holding stored sessions, or "".
func (c *Client) SessionsDirectory() string { return c.sessionStore.Directory() }

// EventFlusher returns the event flush controller.
func (c *Client) EventFlusher() *flush.Controller { return c.eventFlush }

// SessionFlusher returns the session flush controller.
func (c *Client) SessionFlusher() *flush.Controller { return c.sessionFlush }

// Logger returns the client logger.
func (c *Client) Logger() zerolog.Logger { return c.logger }

// Config returns the configuration the client was built from.
func (c *Client) Config() *config.Config { return c.cfg }

package client

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/bus"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/config"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/store"
)

// recordingDeliverer captures payloads and replies with a fixed status.
type recordingDeliverer struct {
	mu       sync.Mutex
	status   crashkit.DeliveryStatus
	events   []*crashkit.Event
	sessions []crashkit.SessionRecord
}

func (r *recordingDeliverer) DeliverEvent(_ context.Context, p *crashkit.EventPayload, _ crashkit.DeliveryParams) crashkit.DeliveryStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p.Events...)
	return r.status
}

func (r *recordingDeliverer) DeliverSession(_ context.Context, p *crashkit.SessionPayload, _ crashkit.DeliveryParams) crashkit.DeliveryStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, p.Sessions...)
	return r.status
}

func (r *recordingDeliverer) getEvents() []*crashkit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*crashkit.Event(nil), r.events...)
}

func (r *recordingDeliverer) getSessions() []crashkit.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]crashkit.SessionRecord(nil), r.sessions...)
}

// messageLog collects bus messages.
type messageLog struct {
	mu   sync.Mutex
	msgs []bus.Message
}

func (m *messageLog) record(msg bus.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func (m *messageLog) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.msgs))
	for _, msg := range m.msgs {
		out = append(out, msg.Kind())
	}
	return out
}

func (m *messageLog) getMessages() []bus.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bus.Message(nil), m.msgs...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.APIKey = "abc123"
	cfg.Persistence.Directory = t.TempDir()
	cfg.Sessions.AutoTrack = false
	return cfg
}

func newTestClient(t *testing.T, cfg *config.Config, d crashkit.Deliverer, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithDeliverer(d), WithLogger(zerolog.Nop())}, opts...)
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	cfg := config.Default()
	_, err = New(cfg)
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestClient_NotifyDeliversEnrichedEvent(t *testing.T) {
	d := &recordingDeliverer{status: crashkit.Delivered}
	c := newTestClient(t, testConfig(t), d)

	c.SetUser(crashkit.User{ID: "u-1", Email: "dev@example.com"})
	c.AddMetadata("account", "plan", "pro")
	c.LeaveBreadcrumb("clicked checkout", crashkit.BreadcrumbUser, nil)
	c.SetContext("checkout")

	ctx := crashkit.WithContextID(crashkit.WithRunID(context.Background(), "run-7"), 42)
	c.Notify(ctx, errors.New("card declined"))

	require.Eventually(t, func() bool { return len(d.getEvents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	event := d.getEvents()[0]

	assert.Equal(t, "abc123", event.APIKey)
	assert.False(t, event.IsUnhandled())
	assert.Equal(t, crashkit.SeverityWarning, event.Severity())
	assert.Equal(t, "card declined", event.Errors[0].Message)
	assert.Equal(t, "u-1", event.User.ID)
	assert.Equal(t, "checkout", event.Context)
	require.NotNil(t, event.ContextID)
	assert.Equal(t, uint64(42), *event.ContextID)
	assert.NotEmpty(t, event.GroupingHash)

	plan, ok := event.Metadata.Get("account", "plan")
	require.True(t, ok)
	assert.Equal(t, "pro", plan)
	runID, ok := event.Metadata.Get(RunSection, "id")
	require.True(t, ok)
	assert.Equal(t, "run-7", runID)

	require.Len(t, event.Breadcrumbs, 1)
	assert.Equal(t, "clicked checkout", event.Breadcrumbs[0].Message)

	// The capture itself leaves an error breadcrumb for later events.
	crumbs := c.Breadcrumbs()
	require.Len(t, crumbs, 2)
	assert.Equal(t, crashkit.BreadcrumbError, crumbs[1].Type)
	assert.Equal(t, "card declined", crumbs[1].Metadata["message"])
}

func TestClient_NotifyWithSeverity(t *testing.T) {
	d := &recordingDeliverer{status: crashkit.Delivered}
	c := newTestClient(t, testConfig(t), d)

	c.NotifyWithSeverity(context.Background(), errors.New("slow"), crashkit.SeverityInfo)

	require.Eventually(t, func() bool { return len(d.getEvents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	event := d.getEvents()[0]
	assert.Equal(t, crashkit.SeverityInfo, event.Severity())
	assert.Equal(t, crashkit.ReasonUserSpecified, event.HandledState().SeverityReasonType())
}

func TestClient_OnErrorCanDrop(t *testing.T) {
	d := &recordingDeliverer{status: crashkit.Delivered}
	c := newTestClient(t, testConfig(t), d)

	c.AddOnError(func(e *crashkit.Event) bool { return e.Errors[0].Message != "ignored" })
	c.Notify(context.Background(), errors.New("ignored"))
	c.Notify(context.Background(), errors.New("kept"), func(e *crashkit.Event) bool {
		e.Context = "from-callback"
		return true
	})

	require.Eventually(t, func() bool { return len(d.getEvents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Close())
	events := d.getEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "kept", events[0].Errors[0].Message)
	assert.Equal(t, "from-callback", events[0].Context)
}

func TestClient_ReleaseStageDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReleaseStage = "development"
	cfg.EnabledReleaseStages = []string{"production"}
	d := &recordingDeliverer{status: crashkit.Delivered}
	c := newTestClient(t, cfg, d)

	c.Notify(context.Background(), errors.New("boom"))
	c.StartSession()
	require.NoError(t, c.Close())

	assert.Empty(t, d.getEvents())
	assert.Empty(t, d.getSessions())
}

func TestClient_ScrubsRedactedKeys(t *testing.T) {
	d := &recordingDeliverer{status: crashkit.Delivered}
	c := newTestClient(t, testConfig(t), d)

	c.AddMetadata("account", "password", "hunter2")
	c.Notify(context.Background(), errors.New("boom"))

	require.Eventually(t, func() bool { return len(d.getEvents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got, _ := d.getEvents()[0].Metadata.Get("account", "password")
	assert.Equal(t, crashkit.Redacted, got)

	// The client snapshot itself is untouched.
	raw, _ := c.Metadata().Get("account", "password")
	assert.Equal(t, "hunter2", raw)
}

func TestClient_MetadataPatchesOnBus(t *testing.T) {
	c := newTestClient(t, testConfig(t), &recordingDeliverer{status: crashkit.Delivered})
	log := &messageLog{}
	c.Subscribe(log.record)

	c.AddMetadata("account", "plan", "pro")
	c.AddMetadata("account", "seats", 3)
	c.ClearMetadata("account", "plan")
	c.ClearMetadata("account", "")
	require.NoError(t, c.Close())

	assert.Zero(t, c.Metadata().Len())

	var patches []crashkit.MetadataPatch
	for _, msg := range log.getMessages() {
		if m, ok := msg.(bus.MetadataChanged); ok {
			patches = append(patches, m.Patch)
		}
	}
	require.Len(t, patches, 4)
	assert.Equal(t, crashkit.MetadataPatch{Section: "account", Key: "plan", Value: "pro"}, patches[0])
	assert.True(t, patches[2].Removed)
	assert.Equal(t, "", patches[3].Key)
}

func TestClient_SessionAttribution(t *testing.T) {
	d := &recordingDeliverer{status: crashkit.Delivered}
	c := newTestClient(t, testConfig(t), d)
	log := &messageLog{}
	c.Subscribe(log.record)

	c.StartSession()
	require.NotNil(t, c.CurrentSession())
	c.Notify(context.Background(), errors.New("one"))

	require.Eventually(t, func() bool { return len(d.getEvents()) == 1 && len(d.getSessions()) == 1 }, 2*time.Second, 10*time.Millisecond)
	event := d.getEvents()[0]
	require.NotNil(t, event.Session)
	assert.Equal(t, d.getSessions()[0].ID, event.Session.ID)
	assert.Equal(t, int64(1), event.Session.Events.Handled)

	c.PauseSession()
	assert.Nil(t, c.CurrentSession())
	assert.True(t, c.ResumeSession())

	require.NoError(t, c.Close())
	assert.Equal(t, []string{"session_started", "notify_handled", "breadcrumb_added", "session_paused", "session_started"}, log.kinds())
}

func TestClient_ForegroundContext(t *testing.T) {
	d := &recordingDeliverer{status: crashkit.Delivered}
	c := newTestClient(t, testConfig(t), d)

	c.ComponentStarted("cart")
	assert.Equal(t, "cart", c.Context())
	c.SetContext("override")
	assert.Equal(t, "override", c.Context())
	c.SetContext("")
	assert.Equal(t, "cart", c.Context())
	c.ComponentStopped("cart")
	assert.Equal(t, "", c.Context())
}

func TestClient_AutoTrackStartsSessionOnForeground(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sessions.AutoTrack = true
	d := &recordingDeliverer{status: crashkit.Delivered}
	c := newTestClient(t, cfg, d)

	c.ComponentStarted("main")
	require.Eventually(t, func() bool { return len(d.getSessions()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, c.CurrentSession().AutoCaptured())
}

func TestClient_UnhandledStoredAndSentOnNextStart(t *testing.T) {
	cfg := testConfig(t)

	first := newTestClient(t, cfg, &recordingDeliverer{status: crashkit.Undelivered})
	first.NotifyUnhandled(context.Background(), errors.New("crash"), crashkit.Unhandled(), "goroutine 1 [running]:")
	require.NoError(t, first.Close())
	require.Len(t, storedFiles(t, cfg.EventsDirectory()), 1)

	d := &recordingDeliverer{status: crashkit.Delivered}
	second := newTestClient(t, cfg, d)
	log := &messageLog{}
	second.Subscribe(log.record)
	second.Start(context.Background())
	second.Start(context.Background())

	require.Eventually(t, func() bool { return len(d.getEvents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, second.Close())

	event := d.getEvents()[0]
	assert.True(t, event.IsUnhandled())
	assert.Equal(t, "crash", event.Errors[0].Message)
	assert.Empty(t, storedFiles(t, cfg.EventsDirectory()))
	assert.Equal(t, []string{"install"}, log.kinds())
}

func TestClient_SyncCrashDelivery(t *testing.T) {
	cfg := testConfig(t)
	cfg.Delivery.AttemptDeliveryOnCrash = true
	d := &recordingDeliverer{status: crashkit.Delivered}
	c := newTestClient(t, cfg, d)

	c.NotifyUnhandled(context.Background(), errors.New("fatal"), crashkit.Unhandled(), "")

	// Delivered before NotifyUnhandled returned.
	require.Len(t, d.getEvents(), 1)
	assert.Empty(t, storedFiles(t, cfg.EventsDirectory()))
}

func TestClient_FlushStoredSync(t *testing.T) {
	cfg := testConfig(t)
	failing := newTestClient(t, cfg, &recordingDeliverer{status: crashkit.Undelivered})
	failing.Notify(context.Background(), errors.New("offline"))
	require.NoError(t, failing.Close())
	require.Len(t, storedFiles(t, cfg.EventsDirectory()), 1)

	d := &recordingDeliverer{status: crashkit.Delivered}
	c := newTestClient(t, cfg, d)
	assert.True(t, c.FlushStoredSync(context.Background()))
	assert.Len(t, d.getEvents(), 1)
	assert.Empty(t, storedFiles(t, cfg.EventsDirectory()))
}

func TestClient_BreadcrumbCallbackCanDrop(t *testing.T) {
	c := newTestClient(t, testConfig(t), &recordingDeliverer{status: crashkit.Delivered})
	c.AddOnBreadcrumb(func(b *crashkit.Breadcrumb) bool { return b.Type != crashkit.BreadcrumbLog })

	c.LeaveBreadcrumb("noisy", crashkit.BreadcrumbLog, nil)
	c.LeaveBreadcrumb("nav", crashkit.BreadcrumbNavigation, map[string]any{"to": "/cart"})

	crumbs := c.Breadcrumbs()
	require.Len(t, crumbs, 1)
	assert.Equal(t, "nav", crumbs[0].Message)
}

func TestClient_MetricsRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := &recordingDeliverer{status: crashkit.Delivered}
	c := newTestClient(t, testConfig(t), d, WithMetricsRegistry(reg))

	c.Notify(context.Background(), errors.New("boom"))
	require.Eventually(t, func() bool { return len(d.getEvents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Close())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["crashkit_deliveries_total"])
}

func TestClient_MetricsEnabledTwice(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	d := &recordingDeliverer{status: crashkit.Delivered}

	first := newTestClient(t, cfg, d)
	require.NoError(t, first.Close())

	// A rebuilt client reuses the series already on the default registry.
	var second *Client
	require.NotPanics(t, func() { second = newTestClient(t, cfg, d) })
	second.Notify(context.Background(), errors.New("boom"))
	require.Eventually(t, func() bool { return len(d.getEvents()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_SharedMetricsRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := &recordingDeliverer{status: crashkit.Delivered}
	newTestClient(t, testConfig(t), d, WithMetricsRegistry(reg))
	require.NotPanics(t, func() { newTestClient(t, testConfig(t), d, WithMetricsRegistry(reg)) })
}

// fixedCollector reports static app info with no launch information.
type fixedCollector struct{}

func (fixedCollector) AppInfo(time.Time) crashkit.AppInfo {
	return crashkit.AppInfo{Version: "1"}
}

func (fixedCollector) DeviceInfo(time.Time) crashkit.DeviceInfo {
	return crashkit.DeviceInfo{}
}

func TestClient_CustomCollectorNotLaunchCrash(t *testing.T) {
	cfg := testConfig(t)
	c := newTestClient(t, cfg, &recordingDeliverer{status: crashkit.Undelivered}, WithCollector(fixedCollector{}))

	c.NotifyUnhandled(context.Background(), errors.New("crash"), crashkit.Unhandled(), "")
	require.NoError(t, c.Close())

	files := storedFiles(t, cfg.EventsDirectory())
	require.Len(t, files, 1)
	assert.False(t, store.IsLaunchCrashReport(files[0]), files[0])
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c := newTestClient(t, testConfig(t), &recordingDeliverer{status: crashkit.Delivered})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// Capture after close never panics.
	c.Notify(context.Background(), errors.New("late"))
}

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/client"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/config"
)

// executeCommand runs cmd with args and returns combined output.
func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// collector records requests by path.
type collector struct {
	mu       sync.Mutex
	requests map[string]int
	apiKeys  []string
}

func newCollector(t *testing.T) (*collector, *httptest.Server) {
	t.Helper()
	c := &collector{requests: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.requests[r.URL.Path]++
		c.apiKeys = append(c.apiKeys, r.Header.Get(crashkit.HeaderAPIKey))
		c.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)
	return c, srv
}

func (c *collector) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[path]
}

func (c *collector) getAPIKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.apiKeys...)
}

func writeTestConfig(t *testing.T, dir, endpoint string) string {
	t.Helper()
	body := fmt.Sprintf(`apiKey: abc123
logger:
  level: disabled
persistence:
  directory: %s
sessions:
  autoTrack: false
endpoints:
  notify: %s/notify
  sessions: %s/sessions
`, dir, endpoint, endpoint)
	path := filepath.Join(t.TempDir(), "crashkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// undeliverable keeps every payload on disk.
type undeliverable struct{}

func (undeliverable) DeliverEvent(context.Context, *crashkit.EventPayload, crashkit.DeliveryParams) crashkit.DeliveryStatus {
	return crashkit.Undelivered
}

func (undeliverable) DeliverSession(context.Context, *crashkit.SessionPayload, crashkit.DeliveryParams) crashkit.DeliveryStatus {
	return crashkit.Undelivered
}

// storeCrash leaves one unhandled event in dir's event queue.
func storeCrash(t *testing.T, dir string) {
	t.Helper()
	cfg := config.Default()
	cfg.APIKey = "abc123"
	cfg.Persistence.Directory = dir
	cfg.Sessions.AutoTrack = false

	c, err := client.New(cfg, client.WithDeliverer(undeliverable{}), client.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	c.NotifyUnhandled(context.Background(), errors.New("crash"), crashkit.Unhandled(), "goroutine 1 [running]:")
	require.NoError(t, c.Close())
}

func TestNotifyCommand(t *testing.T) {
	col, srv := newCollector(t)
	path := writeTestConfig(t, t.TempDir(), srv.URL)

	out, err := executeCommand(newRootCmd(), "notify", "--config", path, "--message", "hello", "--severity", "info")
	require.NoError(t, err)

	assert.Contains(t, out, `sent info event "hello"`)
	assert.Equal(t, 1, col.count("/notify"))
	assert.Equal(t, []string{"abc123"}, col.getAPIKeys())
}

func TestNotifyCommand_BadSeverity(t *testing.T) {
	_, srv := newCollector(t)
	path := writeTestConfig(t, t.TempDir(), srv.URL)

	_, err := executeCommand(newRootCmd(), "notify", "--config", path, "--severity", "fatal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown severity")
}

func TestFlushCommand(t *testing.T) {
	col, srv := newCollector(t)
	dir := t.TempDir()
	storeCrash(t, dir)
	path := writeTestConfig(t, dir, srv.URL)

	out, err := executeCommand(newRootCmd(), "flush", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, "delivered 1 of 1 stored payloads")
	assert.Equal(t, 1, col.count("/notify"))
	assert.Zero(t, countPayloads(filepath.Join(dir, "events")))
}

func TestFlushCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crashkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("releaseStage: production\n"), 0o600))

	_, err := executeCommand(newRootCmd(), "flush", "--config", path)
	require.ErrorIs(t, err, config.ErrInvalid)
}

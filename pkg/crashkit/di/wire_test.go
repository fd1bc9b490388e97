package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/ai-crashkit/pkg/crashkit/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crashkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestInitClient(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "apiKey: abc123\nlogger:\n  level: disabled\npersistence:\n  directory: "+dir+"\n")

	c, err := InitClient(ConfigPath(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, "abc123", c.Config().APIKey)
	assert.Equal(t, filepath.Join(dir, "events"), c.EventsDirectory())
}

func TestInitClient_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "releaseStage: production\n")

	_, err := InitClient(ConfigPath(path))
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestInitClient_MissingFile(t *testing.T) {
	_, err := InitClient(ConfigPath(filepath.Join(t.TempDir(), "nope.yaml")))
	require.Error(t, err)
}

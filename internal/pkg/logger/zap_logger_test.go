package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolatedLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collab.log")
	log := NewIsolatedLogger(path)

	log.Debug("Hub", "dropped below file level", nil)
	log.Info("Hub", "client registered", map[string]interface{}{"connection_id": "c-1"})
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"message":"client registered"`)
	assert.Contains(t, string(raw), `"module":"Hub"`)
	assert.Contains(t, string(raw), `"connection_id":"c-1"`)
	assert.NotContains(t, string(raw), "dropped below file level")
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	assert.NotPanics(t, func() {
		log.Error("Test", "nothing happens", map[string]interface{}{"error": "boom"})
		_ = log.Sync()
	})
}

func TestWithStampsEveryEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collab.log")
	base := NewIsolatedLogger(path)
	conn := base.With(map[string]interface{}{"connection_id": "c-9"})

	conn.Warn("Client", "slow consumer", nil)
	base.Info("Hub", "unrelated", nil)
	_ = base.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"connection_id":"c-9"`)
	assert.NotContains(t, lines[1], "connection_id")
}

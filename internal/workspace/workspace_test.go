package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkspace(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(root)
	require.NoError(t, err)

	assert.Equal(t, root, ws.Root)
	assert.Equal(t, filepath.Join(root, "logs"), ws.LogsDir)
	assert.Equal(t, filepath.Join(root, "manifest.db"), ws.ManifestDB)
	assert.Equal(t, filepath.Join(root, "logs", "gridsync.log"), ws.LogFile())
}

func TestWorkspaceLocking_SingleInstance(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")

	ws1, err := NewWorkspace(root)
	require.NoError(t, err)
	require.NoError(t, ws1.Setup())
	assert.DirExists(t, ws1.LogsDir)
	assert.FileExists(t, filepath.Join(root, lockFile))

	ws2, err := NewWorkspace(root)
	require.NoError(t, err)
	assert.ErrorIs(t, ws2.Lock(), ErrWorkspaceLocked)

	// unlocking a workspace we never locked leaves the lock alone
	require.NoError(t, ws2.Unlock())
	assert.FileExists(t, filepath.Join(root, lockFile))

	require.NoError(t, ws1.Unlock())
	assert.NoFileExists(t, filepath.Join(root, lockFile))

	require.NoError(t, ws2.Lock())
	require.NoError(t, ws2.Unlock())
}

func TestPruneLogs(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	n, err := ws.PruneLogs(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, ws.Setup())
	defer ws.Unlock()

	old := time.Now().Add(-48 * time.Hour)
	for _, name := range []string{"gridsync.log", "gridsync.log.1", "gridsync.log.2"} {
		p := filepath.Join(ws.LogsDir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(p, old, old))
	}
	fresh := filepath.Join(ws.LogsDir, "gridsync.log.3")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	n, err = ws.PruneLogs(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, ws.LogFile())
	assert.FileExists(t, fresh)
	assert.NoFileExists(t, filepath.Join(ws.LogsDir, "gridsync.log.1"))
}

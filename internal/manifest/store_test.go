package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/gridsync/internal/remote"
	"github.com/openmined/gridsync/internal/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	s := NewSQLiteStore(path)
	require.NoError(t, s.Open())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RoundTripPerOwner(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "manifest.db"))

	alice := FromEntries(map[string]Entry{"/a/1.png": {Hash: "h1", Timestamp: 10}, "/a/2.png": {Hash: "h2"}})
	bob := FromEntries(map[string]Entry{"/b/1.png": {Hash: "h3", Timestamp: 20}})
	require.NoError(t, s.Save(ctx, "alice", alice))
	require.NoError(t, s.Save(ctx, "bob", bob))

	got, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.Entries(), got.Entries())

	// saving replaces rather than merges
	alice.Delete("/a/2.png")
	require.NoError(t, s.Save(ctx, "alice", alice))
	got, err = s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())

	got, err = s.Load(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, bob.Entries(), got.Entries())

	empty, err := s.Load(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "manifest.db")

	s := NewSQLiteStore(path)
	require.NoError(t, s.Open())
	require.NoError(t, s.Save(ctx, "o", FromEntries(map[string]Entry{"/x": {Hash: "h", Timestamp: 5}})))
	require.NoError(t, s.Close())

	s = openSQLite(t, path)
	got, err := s.Load(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, &Entry{Hash: "h", Timestamp: 5}, got.Lookup("/x"))
}

func TestSQLiteStore_RecreatesGarbageFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a sqlite database, just some text padding it out"), 0o644))

	s := openSQLite(t, path)
	got, err := s.Load(context.Background(), "o")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	matches, err := filepath.Glob(path + ".corrupt.*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSQLiteStore_NotOpen(t *testing.T) {
	s := NewSQLiteStore(filepath.Join(t.TempDir(), "m.db"))
	_, err := s.Load(context.Background(), "o")
	assert.Error(t, err)
}

func manifestPath(owner string) string { return "/grids/" + owner + "/manifest.json" }

func TestRemoteStore(t *testing.T) {
	ctx := context.Background()
	mem := remotetest.New(remote.KindHash)
	rs := NewRemoteStore(mem, manifestPath)

	// nothing published yet
	m, err := rs.Load(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())

	published := FromEntries(map[string]Entry{"/grids/o/SteamGridSync/1.png": {Hash: "h", Timestamp: 3}})
	require.NoError(t, rs.Save(ctx, "o", published))

	m, err = rs.Load(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, published.Entries(), m.Entries())
}

func TestRemoteStore_CorruptFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	mem := remotetest.New(remote.KindHash)
	mem.Seed(manifestPath("o"), []byte("{not json"), time.Now())
	rs := NewRemoteStore(mem, manifestPath)

	_, err := rs.Load(ctx, "o")
	assert.ErrorIs(t, err, ErrCorrupt)

	m, err := LoadOrEmpty(ctx, rs, "o")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestRemoteStore_PropagatesAuthErrors(t *testing.T) {
	ctx := context.Background()
	mem := remotetest.New(remote.KindHash)
	mem.FailOn(remotetest.OpGet, manifestPath("o"), remote.ErrUnauthorized)
	rs := NewRemoteStore(mem, manifestPath)

	_, err := LoadOrEmpty(ctx, rs, "o")
	assert.True(t, errors.Is(err, remote.ErrUnauthorized))
}

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openmined/gridsync/internal/config"
	"github.com/openmined/gridsync/internal/remote"
	"github.com/openmined/gridsync/internal/sync"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) *viper.Viper {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))

	v := viper.New()
	v.SetConfigFile(p)
	require.NoError(t, v.ReadInConfig())
	return v
}

func TestConfigFromViper(t *testing.T) {
	v := writeConfig(t, `{
		"data_dir": "/tmp/gridsync",
		"grid_dir": "/tmp/grid",
		"owner": "76561198000000000",
		"workers": 3,
		"include": ["*.png"],
		"webdav": {"url": "https://cloud.example.com", "username": "alice", "password": "pw"},
		"s3": {"bucket": "grids", "region": "eu-west-1"}
	}`)

	cfg := configFromViper(v)
	assert.Equal(t, v.ConfigFileUsed(), cfg.Path)
	assert.Equal(t, "76561198000000000", cfg.Owner)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, []string{"*.png"}, cfg.Include)
	assert.Nil(t, cfg.Dropbox)
	require.NotNil(t, cfg.WebDAV)
	assert.Equal(t, "alice", cfg.WebDAV.Username)
	require.NotNil(t, cfg.S3)
	assert.Equal(t, "grids", cfg.S3.Bucket)
	assert.Equal(t, []string{config.BackendWebDAV, config.BackendS3}, cfg.Backends())
}

func TestConfigFromViper_Env(t *testing.T) {
	t.Setenv("GRIDSYNC_DROPBOX_REFRESH_TOKEN", "from-env")
	v := writeConfig(t, `{"owner": "me", "grid_dir": "/tmp/grid"}`)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := configFromViper(v)
	require.NotNil(t, cfg.Dropbox)
	assert.Equal(t, "from-env", cfg.Dropbox.RefreshToken)
}

func TestSelectBackends(t *testing.T) {
	cfg := &config.Config{
		Dropbox: &config.DropboxConfig{RefreshToken: "t"},
		S3:      &config.S3Config{Bucket: "b"},
	}

	got, err := selectBackends(cfg, backendAll)
	require.NoError(t, err)
	assert.Equal(t, []string{config.BackendDropbox, config.BackendS3}, got)

	got, err = selectBackends(cfg, config.BackendS3)
	require.NoError(t, err)
	assert.Equal(t, []string{config.BackendS3}, got)

	_, err = selectBackends(cfg, config.BackendWebDAV)
	assert.ErrorContains(t, err, "not configured")

	_, err = selectBackends(cfg, "ftp")
	assert.ErrorContains(t, err, "unknown backend")
}

func TestNewBackend(t *testing.T) {
	cfg := &config.Config{
		Owner:   "76561198000000000",
		Dropbox: &config.DropboxConfig{AppKey: "key", RefreshToken: "token"},
		WebDAV:  &config.WebDAVConfig{URL: "https://cloud.example.com", Username: "alice", Password: "pw"},
	}
	db := filepath.Join(t.TempDir(), "manifest.db")

	b, err := newBackend(context.Background(), config.BackendDropbox, cfg, db)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, remote.KindHash, b.engine.Store().Kind())
	assert.Equal(t, "/76561198000000000/SteamGridSync", b.folders.Primary)
	assert.Equal(t, "/76561198000000000/SteamShortcutGridSync", b.folders.Aliased)
	assert.FileExists(t, db)

	b, err = newBackend(context.Background(), config.BackendWebDAV, cfg, db)
	require.NoError(t, err)
	assert.Equal(t, remote.KindTimestamp, b.engine.Store().Kind())
	assert.NoError(t, b.Close())

	_, err = newBackend(context.Background(), "ftp", cfg, db)
	assert.Error(t, err)
}

func TestManifestPath(t *testing.T) {
	assert.Equal(t, "/76561198000000000/manifest.json", manifestPath("76561198000000000"))
}

func TestRenderSummary(t *testing.T) {
	started := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &sync.Summary{
		Backend:   "webdav",
		Direction: sync.DirectionUpload,
		Started:   started,
		Finished:  started.Add(1500 * time.Millisecond),
		Categories: map[sync.Category]*sync.CategorySummary{
			sync.CategoryPrimary: {
				Transferred: 1200,
				Bytes:       2 << 20,
				Skipped:     3,
				Failed:      1,
				Failures:    []sync.ItemFailure{{Path: "/me/SteamGridSync/440p.png", Err: errors.New("boom")}},
			},
			sync.CategoryAliased: {Err: errors.New("folder create failed")},
		},
	}

	var buf bytes.Buffer
	renderSummary(&buf, s)
	out := buf.String()

	assert.Contains(t, out, "webdav")
	assert.Contains(t, out, "upload")
	assert.Contains(t, out, "2.1 MB")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "1,200 transferred")
	assert.Contains(t, out, "3 skipped")
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "abandoned: folder create failed")
	assert.Contains(t, out, "/me/SteamGridSync/440p.png")
	assert.Less(t, strings.Index(out, "aliased"), strings.Index(out, "primary"))

	buf.Reset()
	renderSummary(&buf, nil)
	assert.Empty(t, buf.String())
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&buf)
	require.NoError(t, cmd.Execute())
	assert.NotEmpty(t, strings.TrimSpace(buf.String()))
}

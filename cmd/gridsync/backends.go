package main

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/openmined/gridsync/internal/config"
	"github.com/openmined/gridsync/internal/manifest"
	"github.com/openmined/gridsync/internal/remote"
	"github.com/openmined/gridsync/internal/remote/dropbox"
	"github.com/openmined/gridsync/internal/remote/s3store"
	"github.com/openmined/gridsync/internal/remote/webdav"
	"github.com/openmined/gridsync/internal/sync"
)

const (
	backendAll   = "all"
	manifestFile = "manifest.json"
)

// backend is one configured remote with its engine and folder layout.
type backend struct {
	name    string
	engine  *sync.SyncEngine
	folders sync.Folders
	closer  io.Closer
}

func ownerRoot(owner string) string {
	return "/" + owner
}

func manifestPath(owner string) string {
	return remote.Join(ownerRoot(owner), manifestFile)
}

// selectBackends resolves the --backend flag against the configured backends.
func selectBackends(cfg *config.Config, flag string) ([]string, error) {
	configured := cfg.Backends()
	if flag == "" || flag == backendAll {
		return configured, nil
	}
	if !slices.Contains([]string{config.BackendDropbox, config.BackendWebDAV, config.BackendS3}, flag) {
		return nil, fmt.Errorf("unknown backend %q", flag)
	}
	if !cfg.HasBackend(flag) {
		return nil, fmt.Errorf("backend %q is not configured", flag)
	}
	return []string{flag}, nil
}

// newBackend builds the store and engine for name. Hash backends get a
// SQLite manifest in the workspace and a manifest published next to the
// grid folders.
func newBackend(ctx context.Context, name string, cfg *config.Config, manifestDB string, opts ...sync.Option) (*backend, error) {
	b := &backend{name: name, folders: sync.FoldersUnder(ownerRoot(cfg.Owner))}

	var store remote.Store
	switch name {
	case config.BackendDropbox:
		client, err := dropbox.New(&dropbox.Config{
			AppKey:       cfg.Dropbox.AppKey,
			AppSecret:    cfg.Dropbox.AppSecret,
			RefreshToken: cfg.Dropbox.RefreshToken,
		})
		if err != nil {
			return nil, err
		}
		local := manifest.NewSQLiteStore(manifestDB)
		if err := local.Open(); err != nil {
			return nil, fmt.Errorf("open manifest db: %w", err)
		}
		b.closer = local
		opts = append(opts, sync.WithManifests(local, manifest.NewRemoteStore(client, manifestPath)))
		store = client

	case config.BackendWebDAV:
		client, err := webdav.New(&webdav.Config{
			URL:      cfg.WebDAV.URL,
			Username: cfg.WebDAV.Username,
			Password: cfg.WebDAV.Password,
			Root:     cfg.WebDAV.Root,
		})
		if err != nil {
			return nil, err
		}
		store = client

	case config.BackendS3:
		client, err := s3store.New(ctx, &s3store.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		store = client

	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}

	engine, err := sync.NewSyncEngine(store, cfg.Owner, opts...)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.engine = engine
	return b, nil
}

func (b *backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/gridsync/internal/remote"
	"github.com/openmined/gridsync/internal/sync"
	"github.com/spf13/cobra"
)

const defaultWatchInterval = 5 * time.Minute

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	var backendFlag string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Upload local changes as they happen and sync periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var fw *sync.FileWatcher
			hook := func(path string) {
				if fw != nil {
					fw.IgnoreOnce(path)
				}
			}

			a, err := newApp(cmd, backendFlag, sync.WithWriteHook(hook))
			if err != nil {
				return err
			}
			defer a.Close()

			fw = sync.NewFileWatcher(a.cfg.GridDir)
			fw.FilterPaths(func(path string) bool {
				return a.ignore.ShouldIgnore(filepath.Base(path))
			})

			w := &watcher{app: a, fw: fw, interval: interval, out: cmd}
			return w.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&backendFlag, "backend", "b", backendAll, "dropbox, webdav, s3 or all")
	cmd.Flags().DurationVarP(&interval, "interval", "i", defaultWatchInterval, "full sync interval")
	return cmd
}

type watcher struct {
	app      *app
	fw       *sync.FileWatcher
	interval time.Duration
	out      *cobra.Command
	lastSync time.Time
}

func (w *watcher) run(ctx context.Context) error {
	if err := w.fw.Start(ctx); err != nil {
		return err
	}
	defer w.fw.Stop()

	if err := w.sync(ctx, false); err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-w.fw.Events():
			slog.Debug("local change", "path", path, "last_sync", humanize.Time(w.lastSync))
			w.drain()
			if err := w.sync(ctx, true); err != nil {
				return err
			}
		case <-ticker.C:
			if err := w.sync(ctx, false); err != nil {
				return err
			}
		}
	}
}

// drain drops events already queued; one upload pass covers them.
func (w *watcher) drain() {
	for {
		select {
		case <-w.fw.Events():
		default:
			return
		}
	}
}

// sync runs an upload pass, or a full sync, on every backend. Only fatal
// errors end the watch.
func (w *watcher) sync(ctx context.Context, uploadOnly bool) error {
	err := w.app.forEach(ctx, func(ctx context.Context, b *backend) error {
		if uploadOnly {
			s, err := b.engine.ReconcileUpload(ctx, w.app.cfg.GridDir, b.folders, w.app.aliases)
			renderSummary(w.out.OutOrStdout(), s)
			return err
		}
		down, up, err := b.engine.Sync(ctx, w.app.cfg.GridDir, b.folders, w.app.aliases)
		renderSummary(w.out.OutOrStdout(), down)
		renderSummary(w.out.OutOrStdout(), up)
		return err
	})
	w.lastSync = time.Now()

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), ctx.Err() != nil:
		return nil
	case remote.IsFatal(err):
		return err
	default:
		slog.Warn("watch sync", "error", err)
		return nil
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openmined/gridsync/internal/remote"
	"github.com/openmined/gridsync/internal/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newReconcileCmd(sync.DirectionDownload, "Download remote changes into the grid directory"))
	rootCmd.AddCommand(newReconcileCmd(sync.DirectionUpload, "Upload local changes to the remote"))
	rootCmd.AddCommand(newSyncCmd())
}

func newReconcileCmd(dir sync.Direction, short string) *cobra.Command {
	var backendFlag string

	cmd := &cobra.Command{
		Use:   string(dir),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, backendFlag)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.forEach(cmd.Context(), func(ctx context.Context, b *backend) error {
				var s *sync.Summary
				var err error
				if dir == sync.DirectionDownload {
					s, err = b.engine.ReconcileDownload(ctx, a.cfg.GridDir, b.folders, a.aliases)
				} else {
					s, err = b.engine.ReconcileUpload(ctx, a.cfg.GridDir, b.folders, a.aliases)
				}
				renderSummary(cmd.OutOrStdout(), s)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&backendFlag, "backend", "b", backendAll, "dropbox, webdav, s3 or all")
	return cmd
}

func newSyncCmd() *cobra.Command {
	var backendFlag string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download remote changes, then upload local ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, backendFlag)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.forEach(cmd.Context(), func(ctx context.Context, b *backend) error {
				down, up, err := b.engine.Sync(ctx, a.cfg.GridDir, b.folders, a.aliases)
				renderSummary(cmd.OutOrStdout(), down)
				renderSummary(cmd.OutOrStdout(), up)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&backendFlag, "backend", "b", backendAll, "dropbox, webdav, s3 or all")
	return cmd
}

// forEach runs fn for every backend in turn. A fatal error on one backend
// does not stop the others; the errors are joined.
func (a *app) forEach(ctx context.Context, fn func(context.Context, *backend) error) error {
	var errs []error
	for _, b := range a.backends {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, b); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			slog.Error("backend failed", "backend", b.name, "fatal", remote.IsFatal(err), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/gridsync/internal/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDedupeCmd())
}

func newDedupeCmd() *cobra.Command {
	var backendFlag string
	var includeRemote bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Keep only the newest extension variant of every grid image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, backendFlag)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(a.backends) == 0 {
				return fmt.Errorf("no backend configured")
			}

			out := cmd.OutOrStdout()
			verb := "removed"
			if dryRun {
				verb = "would remove"
			}

			removed, err := a.backends[0].engine.DedupeLocal(cmd.Context(), a.cfg.GridDir, dryRun)
			for _, p := range removed {
				fmt.Fprintf(out, "%s %s\n", gray.Render(verb), p)
			}
			if err != nil {
				return err
			}
			if !includeRemote {
				return nil
			}

			return a.forEach(cmd.Context(), func(ctx context.Context, b *backend) error {
				for _, folder := range []string{b.folders.Primary, b.folders.Aliased} {
					removed, err := b.engine.DedupeRemote(ctx, folder, dryRun)
					if errors.Is(err, sync.ErrDedupeUnsupported) {
						slog.Warn("dedupe remote skipped", "backend", b.name, "reason", err)
						return nil
					}
					for _, p := range removed {
						fmt.Fprintf(out, "%s %s:%s\n", gray.Render(verb), b.name, p)
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&backendFlag, "backend", "b", backendAll, "dropbox, webdav, s3 or all")
	cmd.Flags().BoolVar(&includeRemote, "remote", false, "also dedupe the remote folders")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "only print what would be removed")
	return cmd
}

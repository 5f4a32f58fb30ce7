package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/openmined/gridsync/internal/aliases"
	"github.com/openmined/gridsync/internal/config"
	"github.com/openmined/gridsync/internal/contenthash"
	"github.com/openmined/gridsync/internal/sync"
	"github.com/openmined/gridsync/internal/version"
	"github.com/openmined/gridsync/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	maxLogSize = 10 << 20
	maxLogAge  = 14 * 24 * time.Hour
)

// app holds everything one command invocation needs.
type app struct {
	cfg      *config.Config
	ws       *workspace.Workspace
	aliases  *aliases.Map
	ignore   *sync.IgnoreList
	backends []*backend
	logs     io.Closer
}

// newApp validates the config, locks the workspace and builds an engine for
// every selected backend.
func newApp(cmd *cobra.Command, backendFlag string, opts ...sync.Option) (*app, error) {
	cfg := configFromViper(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cmd.SilenceUsage = true

	ws, err := workspace.NewWorkspace(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if err := ws.Setup(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, ws: ws}
	if err := a.init(cmd.Context(), cmd, backendFlag, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, cmd *cobra.Command, backendFlag string, opts []sync.Option) error {
	rotateLog(a.ws)
	verbose, _ := cmd.Flags().GetBool("verbose")
	logs, err := setupLogging(a.ws.LogFile(), verbose)
	if err != nil {
		return err
	}
	a.logs = logs
	slog.Info("gridsync", "version", version.Version, "revision", version.Revision, "config", a.cfg.Path, "grid_dir", a.cfg.GridDir)

	a.aliases = aliases.New(nil)
	if a.cfg.AliasesFile != "" {
		if a.aliases, err = aliases.Load(a.cfg.AliasesFile); err != nil {
			return fmt.Errorf("load aliases: %w", err)
		}
		slog.Debug("aliases loaded", "path", a.cfg.AliasesFile, "count", a.aliases.Len())
	}

	a.ignore = sync.NewIgnoreList(a.cfg.GridDir)
	a.ignore.Load()
	if err := a.ignore.SetInclude(a.cfg.Include); err != nil {
		return err
	}

	names, err := selectBackends(a.cfg, backendFlag)
	if err != nil {
		return err
	}

	// engines share the hash cache so a file is hashed once per run
	hashes := contenthash.NewCache(contenthash.DefaultCacheSize, contenthash.DefaultCacheTTL)
	base := []sync.Option{
		sync.WithWorkers(a.cfg.Workers),
		sync.WithIgnoreList(a.ignore),
		sync.WithHashCache(hashes),
	}
	for _, name := range names {
		b, err := newBackend(ctx, name, a.cfg, a.ws.ManifestDB, append(append([]sync.Option(nil), base...), opts...)...)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		a.backends = append(a.backends, b)
	}
	return nil
}

func (a *app) Close() error {
	var errs []error
	for _, b := range a.backends {
		errs = append(errs, b.Close())
	}
	errs = append(errs, a.ws.Unlock())
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

// rotateLog moves a large log file aside and prunes old rotations.
func rotateLog(ws *workspace.Workspace) {
	if info, err := os.Stat(ws.LogFile()); err == nil && info.Size() > maxLogSize {
		rotated := fmt.Sprintf("%s.%d", ws.LogFile(), time.Now().Unix())
		if err := os.Rename(ws.LogFile(), rotated); err != nil {
			slog.Warn("rotate log", "path", ws.LogFile(), "error", err)
		}
	}
	if n, err := ws.PruneLogs(maxLogAge); err != nil {
		slog.Warn("prune logs", "error", err)
	} else if n > 0 {
		slog.Debug("pruned logs", "count", n)
	}
}

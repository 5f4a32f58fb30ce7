package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/gridsync/internal/config"
	"github.com/openmined/gridsync/internal/utils"
	"github.com/openmined/gridsync/internal/version"
	"github.com/spf13/cobra"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

var rootCmd = &cobra.Command{
	Use:           "gridsync",
	Short:         "Sync Steam grid images with cloud storage",
	Version:       version.Detailed(),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "gridsync config file")
	rootCmd.PersistentFlags().StringP("datadir", "d", config.DefaultDataDir, "gridsync data directory")
	rootCmd.PersistentFlags().StringP("griddir", "g", "", "local grid image directory")
	rootCmd.PersistentFlags().StringP("owner", "o", "", "owner id used as the remote root")
	rootCmd.PersistentFlags().IntP("workers", "w", config.DefaultWorkers, "concurrent transfers")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
}

func main() {
	slog.SetDefault(slog.New(newConsoleHandler(os.Stdout, slog.LevelInfo)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("error: ")+err.Error())
		stop()
		os.Exit(1)
	}
}

func newConsoleHandler(w *os.File, level slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: timeFormat,
		NoColor:    !isatty.IsTerminal(w.Fd()),
	})
}

// setupLogging fans logs out to the console and the log file. The returned
// closer flushes the file.
func setupLogging(logFile string, verbose bool) (io.Closer, error) {
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// Do not include time as it is added by the log interceptor.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(newConsoleHandler(os.Stdout, level), fileHandler)))
	return closerFunc(func() error {
		ierr := logInterceptor.Close()
		ferr := file.Close()
		if ierr != nil {
			return ierr
		}
		return ferr
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

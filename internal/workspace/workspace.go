package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/gridsync/internal/utils"
)

const (
	logsDir    = "logs"
	lockFile   = "gridsync.lock"
	manifestDB = "manifest.db"
	logFile    = "gridsync.log"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace is the data directory of one gridsync instance.
type Workspace struct {
	Root       string
	LogsDir    string
	ManifestDB string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	return &Workspace{
		Root:       root,
		LogsDir:    filepath.Join(root, logsDir),
		ManifestDB: filepath.Join(root, manifestDB),
		flock:      flock.New(filepath.Join(root, lockFile)),
	}, nil
}

// LogFile is the path of the persistent log file.
func (w *Workspace) LogFile() string {
	return filepath.Join(w.LogsDir, logFile)
}

func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, then don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Setup locks the workspace and creates its directories.
func (w *Workspace) Setup() error {
	if err := w.Lock(); err != nil {
		return err
	}

	if err := utils.EnsureDir(w.LogsDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.LogsDir, err)
	}

	slog.Debug("workspace", "root", w.Root)
	return nil
}

// PruneLogs removes rotated log files older than maxAge.
func (w *Workspace) PruneLogs(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(w.LogsDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || e.Name() == logFile {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(w.LogsDir, e.Name())); err != nil {
			slog.Warn("prune log", "path", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

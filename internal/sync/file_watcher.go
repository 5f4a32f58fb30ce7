package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	DefaultIgnoreTimeout   = 2 * time.Second
	defaultCleanupInterval = 15 * time.Second
	defaultDebounceTimeout = 500 * time.Millisecond
	eventBufferSize        = 64
)

// FilterCallback returns true for paths whose events should be dropped.
type FilterCallback func(path string) bool

// FileWatcher reports settled writes in a grid directory. Bursts of events on
// one path collapse into a single event once the path has been quiet for the
// debounce timeout.
type FileWatcher struct {
	watchDir        string
	rawEvents       chan notify.EventInfo
	events          chan string
	done            chan struct{}
	wg              sync.WaitGroup
	cleanupInterval time.Duration

	ignoreMu sync.Mutex
	ignore   map[string]time.Time

	debounceMu      sync.Mutex
	timers          map[string]*time.Timer
	debounceTimeout time.Duration

	filter FilterCallback
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir:        watchDir,
		done:            make(chan struct{}),
		cleanupInterval: defaultCleanupInterval,
		ignore:          make(map[string]time.Time),
		timers:          make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
	}
}

func (fw *FileWatcher) SetDebounceTimeout(d time.Duration) {
	fw.debounceTimeout = d
}

// FilterPaths must be called before Start.
func (fw *FileWatcher) FilterPaths(cb FilterCallback) {
	fw.filter = cb
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.events = make(chan string, eventBufferSize)

	if err := notify.Watch(fw.watchDir, fw.rawEvents, notify.Write, notify.Create, notify.Rename); err != nil {
		return err
	}
	slog.Info("file watcher start", "dir", fw.watchDir)

	fw.wg.Add(2)
	go fw.filterEvents(ctx)
	go fw.cleanupExpired(ctx)
	return nil
}

func (fw *FileWatcher) Stop() {
	close(fw.done)
	if fw.rawEvents != nil {
		notify.Stop(fw.rawEvents)
	}
	fw.wg.Wait()

	fw.debounceMu.Lock()
	for p, t := range fw.timers {
		t.Stop()
		delete(fw.timers, p)
	}
	fw.debounceMu.Unlock()
	slog.Info("file watcher stopped", "dir", fw.watchDir)
}

// Events delivers settled paths. It is never closed; select on your own context.
func (fw *FileWatcher) Events() <-chan string {
	return fw.events
}

// IgnoreOnce drops the next event for path, for writes the sync engine makes itself.
func (fw *FileWatcher) IgnoreOnce(path string) {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()
	fw.ignore[filepath.Clean(path)] = time.Now().Add(DefaultIgnoreTimeout)
}

func (fw *FileWatcher) consumeIgnore(path string) bool {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()
	expiry, ok := fw.ignore[path]
	if !ok {
		return false
	}
	delete(fw.ignore, path)
	return time.Now().Before(expiry)
}

func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer fw.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case ev, ok := <-fw.rawEvents:
			if !ok {
				return
			}
			path := filepath.Clean(ev.Path())
			if fw.filter != nil && fw.filter(path) {
				continue
			}
			fw.debounce(path)
		}
	}
}

func (fw *FileWatcher) debounce(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.timers[path]; ok {
		t.Reset(fw.debounceTimeout)
		return
	}
	fw.timers[path] = time.AfterFunc(fw.debounceTimeout, func() { fw.flush(path) })
}

func (fw *FileWatcher) flush(path string) {
	fw.debounceMu.Lock()
	delete(fw.timers, path)
	fw.debounceMu.Unlock()

	if fw.consumeIgnore(path) {
		return
	}
	select {
	case fw.events <- path:
		slog.Debug("file watcher", "path", path)
	default:
		slog.Warn("file watcher dropped", "reason", "channel full", "path", path)
	}
}

func (fw *FileWatcher) cleanupExpired(ctx context.Context) {
	defer fw.wg.Done()
	ticker := time.NewTicker(fw.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case now := <-ticker.C:
			fw.ignoreMu.Lock()
			for p, expiry := range fw.ignore {
				if now.After(expiry) {
					delete(fw.ignore, p)
				}
			}
			fw.ignoreMu.Unlock()
		}
	}
}

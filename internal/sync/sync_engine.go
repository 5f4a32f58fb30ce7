package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/gridsync/internal/aliases"
	"github.com/openmined/gridsync/internal/contenthash"
	"github.com/openmined/gridsync/internal/manifest"
	"github.com/openmined/gridsync/internal/remote"
)

const (
	DefaultWorkers = 8
	// Unaliased item ids this long belong to shortcuts that no longer exist.
	maxPrimaryIDLen = 10
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
	ErrManifestRequired   = errors.New("hash backends need local and remote manifest stores")
	ErrIntegrity          = errors.New("downloaded content does not match listed hash")
)

// SyncEngine reconciles a local grid directory with one remote store.
type SyncEngine struct {
	store     remote.Store
	owner     string
	workers   int
	ignore    *IgnoreList
	hashes    *contenthash.Cache
	manifests manifest.Store
	published manifest.Store
	progress  ProgressFunc
	onWrite   func(path string)
	now       func() time.Time
	muSync    sync.Mutex
}

type Option func(*SyncEngine)

// WithWorkers bounds concurrent transfers.
func WithWorkers(n int) Option {
	return func(se *SyncEngine) {
		if n > 0 {
			se.workers = n
		}
	}
}

// WithIgnoreList overrides the list loaded from the local directory.
func WithIgnoreList(il *IgnoreList) Option {
	return func(se *SyncEngine) { se.ignore = il }
}

func WithHashCache(c *contenthash.Cache) Option {
	return func(se *SyncEngine) { se.hashes = c }
}

// WithManifests sets the local manifest store and the store holding the
// manifest published on the backend. Required for hash backends.
func WithManifests(local, published manifest.Store) Option {
	return func(se *SyncEngine) {
		se.manifests = local
		se.published = published
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(se *SyncEngine) { se.progress = fn }
}

// WithWriteHook is called with every local path the engine is about to write or remove.
func WithWriteHook(fn func(path string)) Option {
	return func(se *SyncEngine) { se.onWrite = fn }
}

func WithClock(now func() time.Time) Option {
	return func(se *SyncEngine) { se.now = now }
}

func NewSyncEngine(store remote.Store, owner string, opts ...Option) (*SyncEngine, error) {
	if store == nil {
		return nil, fmt.Errorf("nil remote store")
	}
	se := &SyncEngine{
		store:    store,
		owner:    owner,
		workers:  DefaultWorkers,
		progress: logProgress,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(se)
	}
	if store.Kind() == remote.KindHash && (se.manifests == nil || se.published == nil) {
		return nil, ErrManifestRequired
	}
	if se.hashes == nil {
		se.hashes = contenthash.NewCache(contenthash.DefaultCacheSize, contenthash.DefaultCacheTTL)
	}
	return se, nil
}

func (se *SyncEngine) Store() remote.Store {
	return se.store
}

func (se *SyncEngine) hashed() bool {
	return se.store.Kind() == remote.KindHash
}

// ReconcileDownload brings remote changes into localDir.
func (se *SyncEngine) ReconcileDownload(ctx context.Context, localDir string, folders Folders, aka *aliases.Map) (*Summary, error) {
	return se.reconcile(ctx, DirectionDownload, localDir, folders, aka)
}

// ReconcileUpload pushes local changes in localDir to the remote.
func (se *SyncEngine) ReconcileUpload(ctx context.Context, localDir string, folders Folders, aka *aliases.Map) (*Summary, error) {
	return se.reconcile(ctx, DirectionUpload, localDir, folders, aka)
}

// Sync runs a download pass followed by an upload pass. The upload pass is
// skipped when the download pass hit a fatal error.
func (se *SyncEngine) Sync(ctx context.Context, localDir string, folders Folders, aka *aliases.Map) (down, up *Summary, err error) {
	down, err = se.ReconcileDownload(ctx, localDir, folders, aka)
	if err != nil && (remote.IsFatal(err) || ctx.Err() != nil) {
		return down, nil, err
	}
	up, upErr := se.ReconcileUpload(ctx, localDir, folders, aka)
	return down, up, errors.Join(err, upErr)
}

func (se *SyncEngine) reconcile(ctx context.Context, dir Direction, localDir string, folders Folders, aka *aliases.Map) (*Summary, error) {
	if !se.muSync.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer se.muSync.Unlock()

	s, err := se.newSession(dir, localDir, folders, aka)
	if err != nil {
		return nil, err
	}
	defer func() {
		s.summary.Finished = se.now()
		s.emit(StateIdle)
		slog.Info("sync done", "session", s.id, "backend", se.store.Name(), "direction", dir,
			"transferred", s.summary.Transferred(), "skipped", s.summary.Skipped(),
			"failed", s.summary.Failed(), "deleted", s.summary.Deleted(),
			"took", s.summary.Duration().Round(time.Millisecond))
	}()

	s.emit(StateListingRemote)
	if se.hashed() {
		if err := se.loadManifests(ctx, s); err != nil {
			return s.summary, err
		}
		if err := se.hashLocalFiles(ctx, s); err != nil {
			return s.summary, err
		}
	}

	listings := make(map[Category]map[string]remote.Entry)
	for _, cat := range folders.categories() {
		if err := ctx.Err(); err != nil {
			return s.summary, err
		}
		entries, err := se.listCategory(ctx, s, cat)
		switch {
		case err == nil:
		case remote.IsFatal(err):
			return s.summary, err
		case errors.Is(err, remote.ErrFolderCreate):
			slog.Error("sync category abandoned", "session", s.id, "category", cat, "folder", folders.For(cat), "error", err)
			s.summary.abandon(cat, fmt.Errorf("%s %s: %w", dir, folders.For(cat), err))
			s.holdBack(cat)
			continue
		default:
			// the next pass lists again
			slog.Warn("sync category skipped", "session", s.id, "category", cat, "folder", folders.For(cat), "error", err)
			s.summary.recordFailure(cat, folders.For(cat), err)
			s.holdBack(cat)
			continue
		}
		listings[cat] = entries
	}

	s.emit(StateReconciling)
	var ops []*SyncOperation
	for _, cat := range folders.categories() {
		entries, ok := listings[cat]
		if !ok {
			continue
		}
		ops = append(ops, se.plan(s, cat, entries)...)
	}

	execErr := se.execute(ctx, s, ops)

	if se.hashed() {
		s.emit(StatePersisting)
		if err := se.persistManifests(context.WithoutCancel(ctx), s, execErr == nil); err != nil {
			execErr = errors.Join(execErr, err)
		}
	}

	return s.summary, errors.Join(execErr, s.summary.Err())
}

func (se *SyncEngine) plan(s *session, cat Category, entries map[string]remote.Entry) []*SyncOperation {
	switch {
	case s.dir == DirectionDownload && se.hashed():
		return se.planHashedDownload(s, cat, entries)
	case s.dir == DirectionDownload:
		return se.planTimestampDownload(s, cat, entries)
	case se.hashed():
		return se.planHashedUpload(s, cat, entries)
	default:
		return se.planTimestampUpload(s, cat, entries)
	}
}

// listCategory lists the category folder once. Uploads first make sure the
// folder exists on backends that have folders.
func (se *SyncEngine) listCategory(ctx context.Context, s *session, cat Category) (map[string]remote.Entry, error) {
	folder := s.folders.For(cat)
	if s.dir == DirectionUpload {
		if fe, ok := se.store.(remote.FolderEnsurer); ok {
			if err := fe.EnsureFolder(ctx, folder); err != nil {
				return nil, err
			}
		}
	}
	entries, err := se.store.List(ctx, folder)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	slog.Debug("sync listed", "session", s.id, "folder", folder, "entries", len(entries))
	return entries, nil
}

func (se *SyncEngine) ignoreListFor(localDir string) *IgnoreList {
	if se.ignore != nil {
		return se.ignore
	}
	il := NewIgnoreList(localDir)
	il.Load()
	return il
}

func (se *SyncEngine) newSession(dir Direction, localDir string, folders Folders, aka *aliases.Map) (*session, error) {
	ld, err := ScanLocalDir(localDir, se.ignoreListFor(localDir))
	if err != nil {
		return nil, err
	}

	s := &session{
		id:      uuid.NewString(),
		dir:     dir,
		engine:  se,
		folders: folders,
		aliases: aka,
		local:   ld,
		refs:    make(map[string]itemRef, len(ld.Files)),
		summary: newSummary("", se.store.Name(), dir, se.now()),
	}
	s.summary.SessionID = s.id

	for _, st := range ld.Files {
		if ref, ok := s.refForLocal(st); ok {
			s.refs[st.Name] = ref
		}
	}
	slog.Debug("sync session", "session", s.id, "backend", se.store.Name(), "direction", dir,
		"dir", localDir, "files", len(ld.Files), "items", len(s.refs))
	return s, nil
}

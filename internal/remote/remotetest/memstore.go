// Package remotetest provides an in-memory remote.Store for tests.
package remotetest

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/openmined/gridsync/internal/contenthash"
	"github.com/openmined/gridsync/internal/remote"
)

const (
	OpList   = "list"
	OpGet    = "get"
	OpPut    = "put"
	OpDelete = "delete"
	OpEnsure = "ensure"
	OpStat   = "stat"
)

type object struct {
	data    []byte
	modTime time.Time
}

// Call records one operation against the store.
type Call struct {
	Op   string
	Path string
}

// MemStore keeps files in a map. It implements remote.Store,
// remote.FolderEnsurer and remote.ModTimer.
type MemStore struct {
	mu       sync.Mutex
	kind     remote.Kind
	objects  map[string]*object
	folders  map[string]bool
	failures map[Call]error
	calls    []Call

	// Now stamps uploads that carry no modification time.
	Now func() time.Time
}

func New(kind remote.Kind) *MemStore {
	return &MemStore{
		kind:     kind,
		objects:  make(map[string]*object),
		folders:  make(map[string]bool),
		failures: make(map[Call]error),
		Now:      time.Now,
	}
}

func (s *MemStore) Name() string      { return "mem-" + s.kind.String() }
func (s *MemStore) Kind() remote.Kind { return s.kind }

// Seed stores a file without recording a call.
func (s *MemStore) Seed(p string, data []byte, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[p] = &object{data: append([]byte(nil), data...), modTime: modTime}
}

// File returns the stored bytes and modification time of p.
func (s *MemStore) File(p string) ([]byte, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[p]
	if !ok {
		return nil, time.Time{}, false
	}
	return append([]byte(nil), obj.data...), obj.modTime, true
}

// Paths lists every stored path in order.
func (s *MemStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.objects))
	for p := range s.objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FailOn makes op on p return err until cleared with a nil err.
func (s *MemStore) FailOn(op, p string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, Call{op, p})
		return
	}
	s.failures[Call{op, p}] = err
}

// Count returns how many times op was called since the last ResetCalls.
func (s *MemStore) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (s *MemStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *MemStore) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// record must be called with mu held.
func (s *MemStore) record(op, p string) error {
	s.calls = append(s.calls, Call{op, p})
	if err, ok := s.failures[Call{op, p}]; ok {
		return err
	}
	return nil
}

func (s *MemStore) List(ctx context.Context, folder string) (map[string]remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpList, folder); err != nil {
		return nil, err
	}

	entries := make(map[string]remote.Entry)
	for p, obj := range s.objects {
		if path.Dir(p) != folder {
			continue
		}
		name := path.Base(p)
		entry := remote.Entry{Name: name, Size: int64(len(obj.data))}
		if s.kind == remote.KindHash {
			entry.Hash = contenthash.Sum(obj.data)
		} else {
			entry.ModTime = obj.modTime
		}
		entries[name] = entry
	}
	return entries, nil
}

func (s *MemStore) Get(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpGet, p); err != nil {
		return nil, err
	}
	obj, ok := s.objects[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *MemStore) Put(ctx context.Context, p string, data []byte, modTime time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpPut, p); err != nil {
		return err
	}
	if modTime.IsZero() {
		modTime = s.Now()
	}
	s.objects[p] = &object{data: append([]byte(nil), data...), modTime: modTime}
	return nil
}

func (s *MemStore) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpDelete, p); err != nil {
		return err
	}
	if _, ok := s.objects[p]; !ok {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}
	delete(s.objects, p)
	return nil
}

func (s *MemStore) EnsureFolder(ctx context.Context, folder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpEnsure, folder); err != nil {
		return err
	}
	s.folders[folder] = true
	return nil
}

func (s *MemStore) ModTime(ctx context.Context, p string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpStat, p); err != nil {
		return time.Time{}, err
	}
	obj, ok := s.objects[p]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}
	return obj.modTime, nil
}

var (
	_ remote.Store         = (*MemStore)(nil)
	_ remote.FolderEnsurer = (*MemStore)(nil)
	_ remote.ModTimer      = (*MemStore)(nil)
)

// Package manifest tracks, per remote path, the last content hash seen and a
// logical timestamp that only moves when that content changes.
package manifest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/gridsync/internal/jsonx"
)

var ErrCorrupt = errors.New("manifest: corrupt")

// Entry is the stored state of one remote path. Timestamp is unix seconds, or
// zero for content that has never changed since it was first observed.
type Entry struct {
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// Manifest is safe for concurrent use.
type Manifest struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func New() *Manifest {
	return &Manifest{entries: make(map[string]Entry)}
}

// FromEntries copies entries into a new Manifest.
func FromEntries(entries map[string]Entry) *Manifest {
	m := New()
	for k, v := range entries {
		m.entries[k] = v
	}
	return m
}

// Lookup returns a copy of the entry for key, or nil.
func (m *Manifest) Lookup(key string) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	return &e
}

// Observe records the content hash currently on disk for key. A first
// sighting stores timestamp 0; a changed hash stamps now. It reports whether
// the entry changed.
func (m *Manifest) Observe(key, hash string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, seen := m.entries[key]
	if seen && prev.Hash == hash {
		return false
	}

	next := Entry{Hash: hash}
	if seen && prev.Hash != "" {
		next.Timestamp = now.Unix()
	}
	m.entries[key] = next
	return true
}

// Adopt overwrites key with state confirmed on the remote side.
func (m *Manifest) Adopt(key, hash string, timestamp int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Hash: hash, Timestamp: timestamp}
}

func (m *Manifest) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Retain drops every key not in keep and returns how many were dropped.
func (m *Manifest) Retain(keep mapset.Set[string]) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for key := range m.entries {
		if !keep.Contains(key) {
			delete(m.entries, key)
			dropped++
		}
	}
	return dropped
}

func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Entries returns a snapshot copy.
func (m *Manifest) Entries() map[string]Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Keys returns the set of tracked paths.
func (m *Manifest) Keys() mapset.Set[string] {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := mapset.NewThreadUnsafeSetWithSize[string](len(m.entries))
	for k := range m.entries {
		keys.Add(k)
	}
	return keys
}

// Encode produces the `{path: {hash, timestamp}}` document also used as the
// remote manifest.
func Encode(m *Manifest) ([]byte, error) {
	return jsonx.Marshal(m.Entries())
}

// Decode parses a manifest document. An empty document is an empty manifest.
func Decode(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return New(), nil
	}
	var entries map[string]Entry
	if err := jsonx.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return FromEntries(entries), nil
}

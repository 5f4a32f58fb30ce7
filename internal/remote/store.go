// Package remote defines the capability interface every storage backend
// implements and the error vocabulary the sync engine understands.
package remote

import (
	"context"
	"path"
	"strings"
	"time"
)

// Kind is the change-detection model a backend supports.
type Kind int

const (
	// KindHash backends list a content hash per entry.
	KindHash Kind = iota + 1
	// KindTimestamp backends list a modification time per entry.
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindHash:
		return "hash"
	case KindTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Entry is one file in a remote folder listing. Hash is set by KindHash
// backends, ModTime by KindTimestamp backends.
type Entry struct {
	Name    string
	Hash    string
	ModTime time.Time
	Size    int64
}

type Store interface {
	Name() string
	Kind() Kind
	// List returns the files directly inside folder keyed by name. A folder
	// that does not exist lists as empty.
	List(ctx context.Context, folder string) (map[string]Entry, error)
	Get(ctx context.Context, path string) ([]byte, error)
	// Put overwrites path. Backends that can store a client modification time use modTime.
	Put(ctx context.Context, path string, data []byte, modTime time.Time) error
	Delete(ctx context.Context, path string) error
}

// FolderEnsurer is implemented by backends with real directories.
type FolderEnsurer interface {
	EnsureFolder(ctx context.Context, folder string) error
}

// ModTimer is implemented by timestamp backends that can stat a single path.
type ModTimer interface {
	ModTime(ctx context.Context, path string) (time.Time, error)
}

// Join builds a slash separated remote path, keeping the folder's leading slash.
func Join(folder string, elem ...string) string {
	parts := append([]string{folder}, elem...)
	joined := path.Join(parts...)
	if strings.HasPrefix(folder, "/") && !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	return joined
}

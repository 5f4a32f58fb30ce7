package sync

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/openmined/gridsync/internal/gridname"
)

// LocalFileState is one file in the local grid directory as it looked when
// the directory was scanned.
type LocalFileState struct {
	Path       string
	Name       string
	Size       int64
	ModTime    time.Time
	ChangeTime time.Time
	// ContentHash is only filled for hash backends.
	ContentHash string

	parsed gridname.Name
	valid  bool
}

// GridName returns the parsed filename and whether it follows the grid grammar.
func (f *LocalFileState) GridName() (gridname.Name, bool) {
	return f.parsed, f.valid
}

// Newest is the later of the modification and status change times.
func (f *LocalFileState) Newest() time.Time {
	if f.ChangeTime.After(f.ModTime) {
		return f.ChangeTime
	}
	return f.ModTime
}

func statLocalFile(path string, info fs.FileInfo) *LocalFileState {
	st := &LocalFileState{
		Path:       path,
		Name:       info.Name(),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		ChangeTime: statusChangeTime(path, info),
	}
	if n, err := gridname.Parse(st.Name); err == nil {
		st.parsed, st.valid = n, true
	}
	return st
}

// LocalDir is a one-shot snapshot of the top level of a grid directory.
type LocalDir struct {
	Root  string
	Files map[string]*LocalFileState
	byKey map[gridname.Key][]*LocalFileState
}

// ScanLocalDir reads dir once. Subdirectories and ignored names are skipped.
// A missing directory is created and scans as empty.
func ScanLocalDir(dir string, ignore *IgnoreList) (*LocalDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local dir %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read local dir %s: %w", dir, err)
	}

	ld := &LocalDir{
		Root:  dir,
		Files: make(map[string]*LocalFileState, len(entries)),
		byKey: make(map[gridname.Key][]*LocalFileState),
	}
	for _, de := range entries {
		if !de.Type().IsRegular() {
			continue
		}
		if ignore != nil && ignore.ShouldIgnore(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// removed between readdir and stat
			continue
		}
		ld.add(statLocalFile(filepath.Join(dir, de.Name()), info))
	}
	return ld, nil
}

func (ld *LocalDir) add(st *LocalFileState) {
	ld.Files[st.Name] = st
	if n, ok := st.GridName(); ok {
		ld.byKey[n.Key] = append(ld.byKey[n.Key], st)
	}
}

// Variants returns the files for key whose extension differs from exceptExt.
func (ld *LocalDir) Variants(key gridname.Key, exceptExt string) []*LocalFileState {
	var out []*LocalFileState
	for _, st := range ld.byKey[key] {
		if n, _ := st.GridName(); n.Ext != exceptExt {
			out = append(out, st)
		}
	}
	return out
}

// Groups returns every logical key with more than one extension present.
func (ld *LocalDir) Groups() map[gridname.Key][]*LocalFileState {
	out := make(map[gridname.Key][]*LocalFileState)
	for key, files := range ld.byKey {
		if len(files) > 1 {
			out[key] = files
		}
	}
	return out
}

// Sorted returns the files ordered by name.
func (ld *LocalDir) Sorted() []*LocalFileState {
	out := make([]*LocalFileState, 0, len(ld.Files))
	for _, st := range ld.Files {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/openmined/gridsync/internal/gridname"
	"github.com/openmined/gridsync/internal/remote"
)

const aliasLen = 64

var ErrDedupeUnsupported = errors.New("remote dedupe needs a timestamp backend")

// DedupeLocal keeps, for every logical item with several extensions in dir,
// the variant touched last and removes the others. It returns the removed
// (or, with dryRun, removable) paths.
func (se *SyncEngine) DedupeLocal(ctx context.Context, dir string, dryRun bool) ([]string, error) {
	ld, err := ScanLocalDir(dir, se.ignoreListFor(dir))
	if err != nil {
		return nil, err
	}

	var removed []string
	for key, files := range ld.Groups() {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sort.Slice(files, func(i, j int) bool {
			if !files[i].Newest().Equal(files[j].Newest()) {
				return files[i].Newest().After(files[j].Newest())
			}
			return files[i].Name < files[j].Name
		})
		keep := files[0]
		for _, loser := range files[1:] {
			slog.Info("dedupe local", "key", key.String(), "keep", keep.Name, "remove", loser.Name, "dry_run", dryRun)
			if !dryRun {
				se.notifyWrite(loser.Path)
				if err := os.Remove(loser.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return removed, fmt.Errorf("remove %s: %w", loser.Path, err)
				}
			}
			removed = append(removed, loser.Path)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

type remoteVariant struct {
	name    string
	modTime time.Time
}

// remoteKey groups names of both folders: `<digits><role><ext>` and
// `<64 hex alias><role><ext>`.
func remoteKey(name string) (string, bool) {
	if n, err := gridname.Parse(name); err == nil {
		return n.Key.String(), true
	}
	if len(name) > aliasLen && isHex(name[:aliasLen]) {
		if n, err := gridname.ParseSuffix(name[:aliasLen], name[aliasLen:]); err == nil {
			return n.Key.String(), true
		}
	}
	return "", false
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// DedupeRemote keeps the most recently modified variant of every logical item
// in folder and deletes the others.
func (se *SyncEngine) DedupeRemote(ctx context.Context, folder string, dryRun bool) ([]string, error) {
	if se.store.Kind() != remote.KindTimestamp {
		return nil, ErrDedupeUnsupported
	}

	entries, err := se.store.List(ctx, folder)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}

	groups := make(map[string][]remoteVariant)
	for name, e := range entries {
		if key, ok := remoteKey(name); ok {
			groups[key] = append(groups[key], remoteVariant{name: name, modTime: e.ModTime})
		}
	}

	var removed []string
	for key, variants := range groups {
		if len(variants) < 2 {
			continue
		}
		sort.Slice(variants, func(i, j int) bool {
			if !variants[i].modTime.Equal(variants[j].modTime) {
				return variants[i].modTime.After(variants[j].modTime)
			}
			return variants[i].name < variants[j].name
		})
		for _, loser := range variants[1:] {
			p := remote.Join(folder, loser.name)
			slog.Info("dedupe remote", "key", key, "keep", variants[0].name, "remove", loser.name, "dry_run", dryRun)
			if !dryRun {
				if err := se.store.Delete(ctx, p); err != nil && !errors.Is(err, remote.ErrNotFound) {
					return removed, fmt.Errorf("delete %s: %w", p, err)
				}
			}
			removed = append(removed, p)
		}
	}
	sort.Strings(removed)
	return removed, nil
}


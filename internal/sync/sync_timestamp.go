package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/openmined/gridsync/internal/remote"
	"github.com/openmined/gridsync/internal/utils"
)

func sortedNames(entries map[string]remote.Entry) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (se *SyncEngine) planTimestampDownload(s *session, cat Category, entries map[string]remote.Entry) []*SyncOperation {
	var ops []*SyncOperation
	for _, name := range sortedNames(entries) {
		entry := entries[name]
		ref, err := s.refForRemote(cat, name)
		if err != nil {
			ops = append(ops, skipOp(cat, "", remote.Join(s.folders.For(cat), name), err.Error()))
			continue
		}

		var losers []*LocalFileState
		if alts := s.local.Variants(ref.Name.Key, ref.Name.Ext); len(alts) > 0 {
			res := ResolveConflict(alts, NewerThanTime(entry.ModTime))
			if res.Abandon {
				slog.Info("sync conflict", "session", s.id, "remote", ref.RemotePath, "winner", res.Winner.Path)
				ops = append(ops, skipOp(cat, ref.LocalPath, ref.RemotePath, "newer local variant "+res.Winner.Name))
				continue
			}
			losers = res.Losers
		}

		local := s.local.Files[ref.LocalName]
		decision := DecideDownload(local, entry.ModTime)
		if decision != DecisionUseRemote {
			if len(losers) > 0 {
				ops = append(ops, &SyncOperation{
					Type: OpDeleteLocal, Category: cat, LocalPath: ref.LocalPath, RemotePath: ref.RemotePath, Losers: losers,
				})
				continue
			}
			ops = append(ops, skipOp(cat, ref.LocalPath, ref.RemotePath, decision.String()))
			continue
		}

		ops = append(ops, &SyncOperation{
			Type:       OpDownload,
			Category:   cat,
			LocalPath:  ref.LocalPath,
			RemotePath: ref.RemotePath,
			Local:      local,
			Remote:     entry,
			Losers:     losers,
		})
	}
	return ops
}

func (se *SyncEngine) planTimestampUpload(s *session, cat Category, entries map[string]remote.Entry) []*SyncOperation {
	var ops []*SyncOperation
	for _, ref := range s.localRefsIn(cat) {
		local := s.local.Files[ref.LocalName]
		// a missing entry has a zero ModTime, which DecideUpload treats as absent
		entry := entries[ref.RemoteName]

		decision := DecideUpload(local, entry.ModTime)
		if decision != DecisionUseLocal {
			ops = append(ops, skipOp(cat, ref.LocalPath, ref.RemotePath, decision.String()))
			continue
		}
		ops = append(ops, &SyncOperation{
			Type:       OpUpload,
			Category:   cat,
			LocalPath:  ref.LocalPath,
			RemotePath: ref.RemotePath,
			Local:      local,
			Remote:     entry,
		})
	}
	return ops
}

// downloadTimestamped writes the remote file and pins its mtime to the remote
// modification time so the next pass compares equal.
func (se *SyncEngine) downloadTimestamped(ctx context.Context, s *session, op *SyncOperation) error {
	data, err := se.store.Get(ctx, op.RemotePath)
	if err != nil {
		return fmt.Errorf("download %s: %w", op.RemotePath, err)
	}

	se.notifyWrite(op.LocalPath)
	if err := utils.WriteFileAtomic(op.LocalPath, data, nil); err != nil {
		return fmt.Errorf("write %s: %w", op.LocalPath, err)
	}
	if err := os.Chtimes(op.LocalPath, op.Remote.ModTime, op.Remote.ModTime); err != nil {
		return fmt.Errorf("set mtime on %s: %w", op.LocalPath, err)
	}

	se.removeLosers(s, op)
	return nil
}

// uploadTimestamped sends the file without a client mtime, so the remote
// modification time is the upload time. The local mtime is then moved to match.
func (se *SyncEngine) uploadTimestamped(ctx context.Context, s *session, op *SyncOperation) error {
	data, err := os.ReadFile(op.LocalPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", op.LocalPath, err)
	}
	if err := se.store.Put(ctx, op.RemotePath, data, time.Time{}); err != nil {
		return fmt.Errorf("upload %s: %w", op.RemotePath, err)
	}

	mt, ok := se.store.(remote.ModTimer)
	if !ok {
		return nil
	}
	remoteTime, err := mt.ModTime(ctx, op.RemotePath)
	if err != nil {
		slog.Debug("sync upload stat", "session", s.id, "path", op.RemotePath, "error", err)
		return nil
	}
	if !withinTolerance(remoteTime, op.Local.ModTime) {
		se.notifyWrite(op.LocalPath)
		if err := os.Chtimes(op.LocalPath, remoteTime, remoteTime); err != nil {
			slog.Warn("sync upload baseline", "session", s.id, "path", op.LocalPath, "error", err)
		}
	}
	return nil
}

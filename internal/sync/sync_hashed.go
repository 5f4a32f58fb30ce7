package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/gridsync/internal/contenthash"
	"github.com/openmined/gridsync/internal/manifest"
	"github.com/openmined/gridsync/internal/remote"
	"github.com/openmined/gridsync/internal/utils"
	"golang.org/x/sync/errgroup"
)

func (se *SyncEngine) loadManifests(ctx context.Context, s *session) error {
	local, err := manifest.LoadOrEmpty(ctx, se.manifests, se.owner)
	if err != nil {
		return fmt.Errorf("load local manifest: %w", err)
	}
	published, err := manifest.LoadOrEmpty(ctx, se.published, se.owner)
	if err != nil {
		return fmt.Errorf("load remote manifest: %w", err)
	}
	s.localManifest = local
	s.remoteManifest = published
	s.heldBack = mapset.NewSet[string]()
	return nil
}

// hashLocalFiles hashes every mapped local file on the worker pool, records
// each digest in the local manifest and drops entries whose file is gone.
func (se *SyncEngine) hashLocalFiles(ctx context.Context, s *session) error {
	present := mapset.NewSet[string]()
	now := se.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(se.workers)
	for name, ref := range s.refs {
		st := s.local.Files[name]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// an unreadable file still exists and keeps its entry
			present.Add(ref.RemotePath)
			sum, err := se.hashes.Hash(contenthash.Stat{
				Path:       st.Path,
				Size:       st.Size,
				ModTime:    st.ModTime,
				ChangeTime: st.ChangeTime,
			})
			if err != nil {
				slog.Warn("sync hash", "session", s.id, "path", st.Path, "error", err)
				return nil
			}
			st.ContentHash = sum
			if s.localManifest.Observe(ref.RemotePath, sum, now) {
				slog.Debug("manifest observe", "session", s.id, "path", ref.RemotePath, "hash", sum)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if n := s.localManifest.Retain(present); n > 0 {
		slog.Debug("manifest pruned", "session", s.id, "entries", n)
	}
	return nil
}

func (se *SyncEngine) planHashedDownload(s *session, cat Category, entries map[string]remote.Entry) []*SyncOperation {
	var ops []*SyncOperation
	for _, name := range sortedNames(entries) {
		entry := entries[name]
		ref, err := s.refForRemote(cat, name)
		if err != nil {
			ops = append(ops, skipOp(cat, "", remote.Join(s.folders.For(cat), name), err.Error()))
			continue
		}

		localEntry := s.localManifest.Lookup(ref.RemotePath)
		remoteEntry := s.remoteManifest.Lookup(ref.RemotePath)
		var remoteTS int64
		if remoteEntry != nil {
			remoteTS = remoteEntry.Timestamp
		}

		decision := DecideHashed(localEntry, remoteEntry)
		if decision != DecisionUseRemote {
			ops = append(ops, skipOp(cat, ref.LocalPath, ref.RemotePath, decision.String()))
			continue
		}

		local := s.local.Files[ref.LocalName]
		if local != nil && local.ContentHash == "" {
			ops = append(ops, skipOp(cat, ref.LocalPath, ref.RemotePath, "not hashed"))
			continue
		}
		if local != nil && local.ContentHash == entry.Hash {
			// same bytes already here; only the manifest needs to catch up
			s.localManifest.Adopt(ref.RemotePath, entry.Hash, remoteTS)
			ops = append(ops, skipOp(cat, ref.LocalPath, ref.RemotePath, "identical content"))
			continue
		}

		res := ResolveConflict(s.local.Variants(ref.Name.Key, ref.Name.Ext), func(alt *LocalFileState) bool {
			altRef, ok := s.refs[alt.Name]
			if !ok {
				return false
			}
			e := s.localManifest.Lookup(altRef.RemotePath)
			return e != nil && e.Timestamp > remoteTS
		})
		if res.Abandon {
			slog.Info("sync conflict", "session", s.id, "remote", ref.RemotePath, "winner", res.Winner.Path)
			ops = append(ops, skipOp(cat, ref.LocalPath, ref.RemotePath, "newer local variant "+res.Winner.Name))
			continue
		}

		ops = append(ops, &SyncOperation{
			Type:            OpDownload,
			Category:        cat,
			LocalPath:       ref.LocalPath,
			RemotePath:      ref.RemotePath,
			Local:           local,
			Remote:          entry,
			RemoteTimestamp: remoteTS,
			Losers:          res.Losers,
		})
	}
	return ops
}

func (se *SyncEngine) planHashedUpload(s *session, cat Category, entries map[string]remote.Entry) []*SyncOperation {
	var ops []*SyncOperation
	for _, ref := range s.localRefsIn(cat) {
		local := s.local.Files[ref.LocalName]
		if local.ContentHash == "" {
			ops = append(ops, skipOp(cat, ref.LocalPath, ref.RemotePath, "not hashed"))
			continue
		}

		decision := DecideHashed(s.localManifest.Lookup(ref.RemotePath), s.remoteManifest.Lookup(ref.RemotePath))
		if decision != DecisionUseLocal {
			ops = append(ops, skipOp(cat, ref.LocalPath, ref.RemotePath, decision.String()))
			continue
		}
		if entry, ok := entries[ref.RemoteName]; ok && entry.Hash == local.ContentHash {
			ops = append(ops, skipOp(cat, ref.LocalPath, ref.RemotePath, "identical content"))
			continue
		}

		ops = append(ops, &SyncOperation{
			Type:       OpUpload,
			Category:   cat,
			LocalPath:  ref.LocalPath,
			RemotePath: ref.RemotePath,
			Local:      local,
			Remote:     entries[ref.RemoteName],
		})
	}
	return ops
}

// downloadHashed verifies the fetched bytes against the listed hash before
// they replace the local file.
func (se *SyncEngine) downloadHashed(ctx context.Context, s *session, op *SyncOperation) error {
	data, err := se.store.Get(ctx, op.RemotePath)
	if err != nil {
		return fmt.Errorf("download %s: %w", op.RemotePath, err)
	}

	se.notifyWrite(op.LocalPath)
	err = utils.WriteFileAtomic(op.LocalPath, data, func(b []byte) error {
		if op.Remote.Hash == "" {
			return nil
		}
		if got := contenthash.Sum(b); got != op.Remote.Hash {
			return fmt.Errorf("%w: %s: want %s, got %s", ErrIntegrity, op.RemotePath, op.Remote.Hash, got)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.localManifest.Adopt(op.RemotePath, op.Remote.Hash, op.RemoteTimestamp)
	se.removeLosers(s, op)
	return nil
}

func (se *SyncEngine) uploadHashed(ctx context.Context, s *session, op *SyncOperation) error {
	data, err := os.ReadFile(op.LocalPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", op.LocalPath, err)
	}
	if err := se.store.Put(ctx, op.RemotePath, data, op.Local.ModTime); err != nil {
		return fmt.Errorf("upload %s: %w", op.RemotePath, err)
	}
	return nil
}

// persistManifests saves the local manifest after every phase. After an
// upload phase the manifest is also published, except for items that did not
// reach the remote: those keep their previously published entry.
func (se *SyncEngine) persistManifests(ctx context.Context, s *session, publish bool) error {
	if s.localManifest == nil {
		return nil
	}
	if err := se.manifests.Save(ctx, se.owner, s.localManifest); err != nil {
		return fmt.Errorf("save local manifest: %w", err)
	}
	if s.dir != DirectionUpload || !publish {
		return nil
	}

	out := manifest.FromEntries(s.localManifest.Entries())
	for p := range s.heldBack.Iter() {
		if prev := s.remoteManifest.Lookup(p); prev != nil {
			out.Adopt(p, prev.Hash, prev.Timestamp)
		} else {
			out.Delete(p)
		}
	}
	if err := se.published.Save(ctx, se.owner, out); err != nil {
		return fmt.Errorf("publish manifest: %w", err)
	}
	slog.Debug("manifest published", "session", s.id, "entries", out.Len(), "held_back", s.heldBack.Cardinality())
	return nil
}

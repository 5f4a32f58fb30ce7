package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/openmined/gridsync/internal/remote"
	"golang.org/x/sync/errgroup"
)

// execute runs every non-skip operation on a bounded pool. Per-item failures
// are recorded in the summary; only fatal errors and cancellation are returned.
func (se *SyncEngine) execute(ctx context.Context, s *session, ops []*SyncOperation) error {
	pending := make([]*SyncOperation, 0, len(ops))
	for _, op := range ops {
		if op.Type == OpSkip {
			s.summary.recordSkip(op.Category)
			slog.Debug("sync skip", "session", s.id, "path", op.RemotePath, "reason", op.Reason)
			continue
		}
		pending = append(pending, op)
	}
	s.total.Store(int64(len(pending)))
	s.emit(StateExecuting)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(se.workers)

	for _, op := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			err := se.run(gctx, s, op)
			se.record(s, op, err)
			if remote.IsFatal(err) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (se *SyncEngine) run(ctx context.Context, s *session, op *SyncOperation) error {
	switch op.Type {
	case OpDownload:
		if se.hashed() {
			return se.downloadHashed(ctx, s, op)
		}
		return se.downloadTimestamped(ctx, s, op)
	case OpUpload:
		if se.hashed() {
			return se.uploadHashed(ctx, s, op)
		}
		return se.uploadTimestamped(ctx, s, op)
	case OpDeleteLocal:
		se.removeLosers(s, op)
		return nil
	default:
		return fmt.Errorf("unexpected operation %s", op.Type)
	}
}

func (se *SyncEngine) record(s *session, op *SyncOperation, err error) {
	switch {
	case err == nil:
		if op.Type != OpDeleteLocal {
			s.summary.recordTransfer(op.Category, op.Size())
		}
	case errors.Is(err, remote.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		// vanished on one side between listing and transfer
		s.summary.recordSkip(op.Category)
		err = nil
	case errors.Is(err, context.Canceled):
		s.summary.recordSkip(op.Category)
	default:
		s.summary.recordFailure(op.Category, op.RemotePath, err)
		if op.Type == OpUpload {
			s.holdBackPath(op.RemotePath)
		}
	}
	s.emitItem(op, err)
}

// removeLosers deletes local variants that lost a conflict. Runs only after
// the winning file is in place.
func (se *SyncEngine) removeLosers(s *session, op *SyncOperation) {
	removed := 0
	for _, loser := range op.Losers {
		se.notifyWrite(loser.Path)
		if err := os.Remove(loser.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("sync conflict loser not removed", "session", s.id, "path", loser.Path, "error", err)
			continue
		}
		removed++
		if s.localManifest != nil {
			if ref, ok := s.refs[loser.Name]; ok {
				s.localManifest.Delete(ref.RemotePath)
			}
		}
		slog.Info("sync", "session", s.id, "op", OpDeleteLocal, "path", loser.Path, "kept", op.LocalPath)
	}
	if removed > 0 {
		s.summary.recordDelete(op.Category, removed)
	}
}

func (se *SyncEngine) notifyWrite(path string) {
	if se.onWrite != nil {
		se.onWrite(path)
	}
}

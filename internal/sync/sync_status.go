package sync

import (
	"log/slog"

	"github.com/dustin/go-humanize"
)

// SessionState is the phase a reconcile call is in.
type SessionState string

const (
	StateIdle          SessionState = "idle"
	StateListingRemote SessionState = "listing_remote"
	StateReconciling   SessionState = "reconciling"
	StateExecuting     SessionState = "executing"
	StatePersisting    SessionState = "persisting"
)

// Progress is emitted on every state change and after every finished operation.
type Progress struct {
	SessionID string
	Backend   string
	Direction Direction
	State     SessionState
	Done      int
	Total     int
	// Op and Err are set for per-item events.
	Op  *SyncOperation
	Err error
}

type ProgressFunc func(Progress)

func logProgress(p Progress) {
	if p.Op == nil {
		slog.Debug("sync state", "session", p.SessionID, "backend", p.Backend, "direction", p.Direction, "state", p.State, "total", p.Total)
		return
	}
	if p.Err != nil {
		slog.Warn("sync", "session", p.SessionID, "op", p.Op.Type, "path", p.Op.RemotePath, "progress", p.Done, "total", p.Total, "error", p.Err)
		return
	}
	if size := p.Op.Size(); size > 0 {
		slog.Info("sync", "session", p.SessionID, "op", p.Op.Type, "path", p.Op.RemotePath, "size", humanize.Bytes(uint64(size)), "progress", p.Done, "total", p.Total)
		return
	}
	slog.Info("sync", "session", p.SessionID, "op", p.Op.Type, "path", p.Op.RemotePath, "progress", p.Done, "total", p.Total)
}

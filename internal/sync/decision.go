package sync

import (
	"time"

	"github.com/openmined/gridsync/internal/manifest"
)

// SyncTolerance absorbs timestamp precision lost by remote filesystems.
const SyncTolerance = 2 * time.Second

// Decision is the outcome of comparing one local item with its remote counterpart.
type Decision int

const (
	DecisionIndeterminate Decision = iota
	DecisionUseLocal
	DecisionUseRemote
	DecisionInSync
)

func (d Decision) String() string {
	switch d {
	case DecisionUseLocal:
		return "use-local"
	case DecisionUseRemote:
		return "use-remote"
	case DecisionInSync:
		return "in-sync"
	default:
		return "indeterminate"
	}
}

func withinTolerance(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < SyncTolerance
}

// DecideDownload compares a local file with a remote modification time on a
// timestamp backend. A local file whose status change time is newer than the
// remote wins even when its mtime is older: that is a copy with preserved mtime.
func DecideDownload(local *LocalFileState, remoteModTime time.Time) Decision {
	switch {
	case remoteModTime.IsZero():
		return DecisionIndeterminate
	case local == nil:
		return DecisionUseRemote
	case withinTolerance(local.ModTime, remoteModTime):
		return DecisionInSync
	case local.ModTime.After(remoteModTime):
		return DecisionUseLocal
	case local.ChangeTime.After(remoteModTime):
		return DecisionUseLocal
	default:
		return DecisionUseRemote
	}
}

// DecideUpload compares a local file with a remote modification time on a
// timestamp backend. A zero remoteModTime means the remote has no such file.
// Only mtime is consulted.
func DecideUpload(local *LocalFileState, remoteModTime time.Time) Decision {
	switch {
	case local == nil:
		return DecisionIndeterminate
	case remoteModTime.IsZero():
		return DecisionUseLocal
	case withinTolerance(local.ModTime, remoteModTime):
		return DecisionInSync
	case local.ModTime.After(remoteModTime):
		return DecisionUseLocal
	default:
		return DecisionUseRemote
	}
}

// DecideHashed compares local and remote manifest entries for one remote
// path on a hash backend. Filesystem times are never consulted.
func DecideHashed(local, remote *manifest.Entry) Decision {
	switch {
	case local == nil || local.Hash == "":
		return DecisionUseRemote
	case remote == nil:
		return DecisionUseLocal
	case remote.Timestamp > local.Timestamp:
		return DecisionUseRemote
	case remote.Timestamp < local.Timestamp:
		return DecisionUseLocal
	default:
		return DecisionInSync
	}
}

package sync

import (
	"errors"
	"time"
)

// ErrConflictResolution marks an item whose extension variants could not be
// reconciled. The item is skipped.
var ErrConflictResolution = errors.New("sync: conflict resolution failed")

// NewerFunc reports whether a local alternative beats the remote candidate.
type NewerFunc func(alt *LocalFileState) bool

// Resolution says what to do with local extension variants of an item that
// is about to be downloaded.
type Resolution struct {
	// Abandon means a local variant is newer; the remote candidate is left alone.
	Abandon bool
	// Winner is the variant that beat the remote, when Abandon is set.
	Winner *LocalFileState
	// Losers are removed once the downloaded file is in place.
	Losers []*LocalFileState
}

// ResolveConflict compares the local variants of one logical item against a
// remote candidate with a different extension.
func ResolveConflict(alternatives []*LocalFileState, newer NewerFunc) Resolution {
	for _, alt := range alternatives {
		if newer(alt) {
			return Resolution{Abandon: true, Winner: alt}
		}
	}
	return Resolution{Losers: alternatives}
}

// NewerThanTime is the rule for timestamp backends: either local time beating
// the remote modification time makes the variant newer.
func NewerThanTime(remoteModTime time.Time) NewerFunc {
	return func(alt *LocalFileState) bool {
		return alt.ModTime.After(remoteModTime) || alt.ChangeTime.After(remoteModTime)
	}
}

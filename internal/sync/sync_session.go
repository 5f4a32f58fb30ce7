package sync

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/gridsync/internal/aliases"
	"github.com/openmined/gridsync/internal/gridname"
	"github.com/openmined/gridsync/internal/manifest"
	"github.com/openmined/gridsync/internal/remote"
)

// itemRef ties a local filename to its remote path.
type itemRef struct {
	Category   Category
	Name       gridname.Name
	LocalName  string
	LocalPath  string
	RemoteName string
	RemotePath string
}

// session is the state of one reconcile call.
type session struct {
	id      string
	dir     Direction
	engine  *SyncEngine
	folders Folders
	aliases *aliases.Map
	local   *LocalDir
	// refs is keyed by local filename.
	refs    map[string]itemRef
	summary *Summary

	// hash backends only
	localManifest  *manifest.Manifest
	remoteManifest *manifest.Manifest
	// remote paths whose published entry must not advance this session
	heldBack mapset.Set[string]

	total atomic.Int64
	done  atomic.Int64
}

func (s *session) emit(state SessionState) {
	s.engine.progress(Progress{
		SessionID: s.id,
		Backend:   s.engine.store.Name(),
		Direction: s.dir,
		State:     state,
		Total:     int(s.total.Load()),
	})
}

func (s *session) emitItem(op *SyncOperation, err error) {
	s.engine.progress(Progress{
		SessionID: s.id,
		Backend:   s.engine.store.Name(),
		Direction: s.dir,
		State:     StateExecuting,
		Done:      int(s.done.Add(1)),
		Total:     int(s.total.Load()),
		Op:        op,
		Err:       err,
	})
}

func (s *session) holdBackPath(remotePath string) {
	if s.heldBack == nil {
		return
	}
	s.heldBack.Add(remotePath)
}

// holdBack keeps every item of an unlisted category at its previously published state.
func (s *session) holdBack(cat Category) {
	for _, ref := range s.refs {
		if ref.Category == cat {
			s.holdBackPath(ref.RemotePath)
		}
	}
}

// refForLocal maps a local file to its remote counterpart. Files outside the
// grid grammar and stale shortcut images have none.
func (s *session) refForLocal(st *LocalFileState) (itemRef, bool) {
	n, ok := st.GridName()
	if !ok {
		return itemRef{}, false
	}

	ref := itemRef{
		Category:  CategoryPrimary,
		Name:      n,
		LocalName: st.Name,
		LocalPath: st.Path,
	}
	if alias, ok := s.aliases.Remote(n.ItemID); ok {
		ref.Category = CategoryAliased
		ref.RemoteName = alias + n.Role + n.Ext
	} else if len(n.ItemID) >= maxPrimaryIDLen {
		return itemRef{}, false
	} else {
		ref.RemoteName = st.Name
	}
	ref.RemotePath = remote.Join(s.folders.For(ref.Category), ref.RemoteName)
	return ref, true
}

// refForRemote maps a name listed in a category folder to its local file.
func (s *session) refForRemote(cat Category, remoteName string) (itemRef, error) {
	var (
		n   gridname.Name
		err error
	)
	switch cat {
	case CategoryAliased:
		localID, suffix, ok := s.aliases.Local(remoteName)
		if !ok {
			return itemRef{}, fmt.Errorf("%w: %s has no known alias", ErrConflictResolution, remoteName)
		}
		n, err = gridname.ParseSuffix(localID, suffix)
	default:
		n, err = gridname.Parse(remoteName)
	}
	if err != nil {
		return itemRef{}, fmt.Errorf("%w: %w", ErrConflictResolution, err)
	}

	localName := n.String()
	return itemRef{
		Category:   cat,
		Name:       n,
		LocalName:  localName,
		LocalPath:  filepath.Join(s.local.Root, localName),
		RemoteName: remoteName,
		RemotePath: remote.Join(s.folders.For(cat), remoteName),
	}, nil
}

// localRefsIn returns the mapped local files of one category in name order.
func (s *session) localRefsIn(cat Category) []itemRef {
	var out []itemRef
	for _, st := range s.local.Sorted() {
		if ref, ok := s.refs[st.Name]; ok && ref.Category == cat {
			out = append(out, ref)
		}
	}
	return out
}

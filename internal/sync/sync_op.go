package sync

import (
	"fmt"

	"github.com/openmined/gridsync/internal/remote"
)

type OpType string

const (
	OpUpload      OpType = "Upload"
	OpDownload    OpType = "Download"
	OpDeleteLocal OpType = "DeleteLocal"
	OpSkip        OpType = "Skip"
)

// Category separates catalog items from aliased shortcut items. Each has its
// own remote folder.
type Category string

const (
	CategoryPrimary Category = "primary"
	CategoryAliased Category = "aliased"
)

const (
	PrimaryFolderName = "SteamGridSync"
	AliasedFolderName = "SteamShortcutGridSync"
)

// Folders are the remote folders for one owner.
type Folders struct {
	Primary string
	Aliased string
}

// FoldersUnder lays out the standard folders below root.
func FoldersUnder(root string) Folders {
	return Folders{
		Primary: remote.Join(root, PrimaryFolderName),
		Aliased: remote.Join(root, AliasedFolderName),
	}
}

func (f Folders) For(c Category) string {
	if c == CategoryAliased {
		return f.Aliased
	}
	return f.Primary
}

func (f Folders) categories() []Category {
	return []Category{CategoryPrimary, CategoryAliased}
}

// SyncOperation is one planned action for one item.
type SyncOperation struct {
	Type       OpType
	Category   Category
	LocalPath  string
	RemotePath string
	Reason     string

	Local  *LocalFileState
	Remote remote.Entry
	// RemoteTimestamp is the remote manifest timestamp adopted after a hash backend download.
	RemoteTimestamp int64
	// Losers are local extension variants removed after a download lands.
	Losers []*LocalFileState
}

func (op *SyncOperation) String() string {
	return fmt.Sprintf("%s %s %s <-> %s", op.Type, op.Category, op.LocalPath, op.RemotePath)
}

// Size is the number of bytes the operation moves.
func (op *SyncOperation) Size() int64 {
	switch {
	case op.Type == OpDownload:
		return op.Remote.Size
	case op.Type == OpUpload && op.Local != nil:
		return op.Local.Size
	}
	return 0
}

func skipOp(cat Category, localPath, remotePath, reason string) *SyncOperation {
	return &SyncOperation{Type: OpSkip, Category: cat, LocalPath: localPath, RemotePath: remotePath, Reason: reason}
}

// Package interfaces declares the narrow, one-concern contracts between
// components, mirroring the teacher's internal/interfaces convention of
// naming a cross-package dependency as an interface instead of a concrete
// type. internal/cryptofs depends on these, not on the concrete
// inodestore.Store / dirstore.Store / handles.Manager types directly, so a
// component can be swapped or faked without touching the façade.
package interfaces

import (
	"context"

	"github.com/cryptofs/cryptfs/internal/types"
)

// PasswordProvider supplies the mount password on demand. keystore.Store
// depends on this, not on any concrete prompting mechanism (spec.md §1's
// scope note that prompting is an external adapter's job).
type PasswordProvider interface {
	Password(ctx context.Context) (string, error)
}

// InodeStore is C4's contract as seen by the filesystem façade: read,
// write, and mutate inode records.
type InodeStore interface {
	Read(ino uint64) (types.InodeRecord, error)
	Write(rec types.InodeRecord) error
	SetAttr(ino uint64, set types.SetAttrRequest) (types.InodeRecord, error)
	Remove(ino uint64) error
	Exists(ino uint64) bool
}

// DirectoryStore is C5's contract as seen by the filesystem façade: the
// directory-entry operations create/remove/rename drive.
type DirectoryStore interface {
	CreateDir(ino, parentIno uint64) error
	Insert(parentIno uint64, name string, childIno uint64, kind types.FileType) error
	Remove(parentIno uint64, name string) error
	RemoveDirContents(ino uint64) error
	Lookup(parentIno uint64, name string) (types.DirectoryEntry, bool, error)
	List(parentIno uint64) ([]DirListResult, error)
	Count(parentIno uint64) (int, error)
	RewriteParent(ino, newParentIno uint64) error
}

// DirListResult is one listed entry, or the error encountered
// decrypting/decoding it, so a damaged entry does not abort the rest of
// the listing (spec.md §4.7's read_dir contract). dirstore.ListResult is
// an alias of this type.
type DirListResult struct {
	Entry types.DirectoryEntry
	Err   error
}

// HandleManager is C6's contract as seen by the filesystem façade: content
// lifecycle plus the open-handle read/write/release session operations.
type HandleManager interface {
	CreateContent(ino uint64) error
	RemoveContent(ino uint64) error
	Open(ino uint64, read, write bool) (types.FileHandle, types.HandleSide, error)
	Read(ino uint64, fh types.FileHandle, offset uint64, buf []byte) (int, error)
	Write(ino uint64, fh types.FileHandle, offset uint64, buf []byte) (int, error)
	MergeAttr(ino uint64, rec types.InodeRecord) types.InodeRecord
	Flush(ino uint64, fh types.FileHandle) error
	Release(ino uint64, fh types.FileHandle) error
	CopyFileRange(srcIno uint64, srcFh types.FileHandle, srcOffset uint64, dstIno uint64, dstFh types.FileHandle, dstOffset uint64, length uint64) (uint64, error)
	SetLen(ino uint64, newSize uint64) error
}

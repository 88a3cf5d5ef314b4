// Package types holds the value types shared across the encrypted
// filesystem engine: inode metadata, directory entries, and the small
// enums that describe them on disk and in memory.
package types

import "time"

// FileType distinguishes the two kinds of inode this filesystem supports.
// Symlinks, hard links, and device nodes are explicitly out of scope.
type FileType uint8

const (
	// RegularFile is a content-bearing inode backed by an encrypted stream.
	RegularFile FileType = iota
	// Directory is an inode whose content store is a host directory of
	// encrypted child entries.
	Directory
)

func (k FileType) String() string {
	if k == Directory {
		return "directory"
	}
	return "file"
}

// RootIno is the fixed inode number of the filesystem root.
const RootIno uint64 = 1

// InodeRecord is the persistent metadata record for one inode. It is
// serialized through the block-encrypted stream and rewritten wholesale on
// every mutation (spec.md §4.4: atomic truncate-rewrite, never an in-place
// patch).
type InodeRecord struct {
	Ino     uint64
	Size    uint64
	Blocks  uint64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Crtime  time.Time
	Kind    FileType
	Perm    uint16
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint32
	Blksize uint32
	Flags   uint32
}

// SetAttrRequest carries only the fields a caller wants to change; nil/zero
// pointers mean "leave as is" (spec.md §4.4: unset fields are preserved).
type SetAttrRequest struct {
	Size    *uint64
	Atime   *time.Time
	Mtime   *time.Time
	Ctime   *time.Time
	Perm    *uint16
	Uid     *uint32
	Gid     *uint32
	Flags   *uint32
}

// DirectoryEntry is one child of a directory inode, as returned by
// listing/lookup. Name is reconstructed from the entry payload, never from
// the on-disk (hashed) filename.
type DirectoryEntry struct {
	Ino  uint64
	Name string
	Kind FileType
}

// SelfName and ParentName are the plaintext spellings of "." and "..". They
// are remapped to sentinel strings before hashing/encryption (spec.md
// §4.1) so a directory listing never has to special-case them once
// decrypted back to a DirectoryEntry.
const (
	SelfName   = "."
	ParentName = ".."
)

// FileHandle is the opaque id returned by Open/Create and required by every
// subsequent Read/Write/Flush/Release call.
type FileHandle uint64

// HandleSide records which table(s) a handle is valid against.
type HandleSide uint8

const (
	// SideRead marks a handle usable with Read.
	SideRead HandleSide = 1 << iota
	// SideWrite marks a handle usable with Write.
	SideWrite
)

func (s HandleSide) CanRead() bool  { return s&SideRead != 0 }
func (s HandleSide) CanWrite() bool { return s&SideWrite != 0 }

// MaxTime returns the later of a and b, used to enforce the monotonic-time
// invariant on attribute updates (spec.md §4.4, §8 invariant 10).
func MaxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// Package cryptofs implements the filesystem façade (spec.md §4.7): the
// single entry point that wires the key store, inode store, directory
// store, and handle manager together and exposes the POSIX-shaped
// operation set a path-based façade (internal/vfile) or an external mount
// adapter would drive.
package cryptofs

import (
	"context"
	"time"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/interfaces"
	"github.com/cryptofs/cryptfs/internal/keystore"
	"github.com/cryptofs/cryptfs/internal/obslog"
	"github.com/cryptofs/cryptfs/internal/types"
)

// Filesystem is a single mounted data directory: every exported method is
// safe for concurrent use (spec.md §5's parallel-threaded scheduling
// model). It depends on C4/C5/C6 through the narrow contracts declared in
// internal/interfaces rather than on inodestore/dirstore/handles directly.
type Filesystem struct {
	keys    *keystore.Store
	inodes  interfaces.InodeStore
	dirs    interfaces.DirectoryStore
	handles interfaces.HandleManager
	inos    *inoAllocator
	log     *obslog.Mount
}

// CreateAttr carries the subset of InodeRecord a caller supplies when
// creating a new inode; the rest (size, block count, timestamps) is filled
// in by Create.
type CreateAttr struct {
	Kind types.FileType
	Perm uint16
	Uid  uint32
	Gid  uint32
}

// Create implements spec.md §4.7's create(parent, name, create_attr, read, write).
func (fs *Filesystem) Create(ctx context.Context, parent uint64, name string, attr CreateAttr, read, write bool) (types.FileHandle, types.HandleSide, types.InodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, types.InodeRecord{}, err
	}
	if name == types.SelfName || name == types.ParentName {
		return 0, 0, types.InodeRecord{}, apferrors.InvalidInput("name \"" + name + "\" is reserved")
	}

	parentRec, err := fs.inodes.Read(parent)
	if err != nil {
		return 0, 0, types.InodeRecord{}, err
	}
	if parentRec.Kind != types.Directory {
		return 0, 0, types.InodeRecord{}, apferrors.ErrInvalidInodeType
	}

	if _, ok, err := fs.dirs.Lookup(parent, name); err != nil {
		return 0, 0, types.InodeRecord{}, err
	} else if ok {
		return 0, 0, types.InodeRecord{}, apferrors.ErrAlreadyExists
	}

	ino := fs.inos.Allocate()
	now := time.Now().UTC()
	rec := types.InodeRecord{
		Ino: ino, Kind: attr.Kind, Perm: attr.Perm, Uid: attr.Uid, Gid: attr.Gid,
		Nlink: 1, Atime: now, Mtime: now, Ctime: now, Crtime: now,
	}
	if attr.Kind == types.Directory {
		rec.Nlink = 2
	}
	if err := fs.inodes.Write(rec); err != nil {
		return 0, 0, types.InodeRecord{}, err
	}

	switch attr.Kind {
	case types.RegularFile:
		if err := fs.handles.CreateContent(ino); err != nil {
			_ = fs.inodes.Remove(ino)
			return 0, 0, types.InodeRecord{}, err
		}
	case types.Directory:
		if err := fs.dirs.CreateDir(ino, parent); err != nil {
			_ = fs.inodes.Remove(ino)
			return 0, 0, types.InodeRecord{}, err
		}
	}

	if err := fs.dirs.Insert(parent, name, ino, attr.Kind); err != nil {
		if attr.Kind == types.RegularFile {
			_ = fs.handles.RemoveContent(ino)
		} else {
			_ = fs.dirs.RemoveDirContents(ino)
		}
		_ = fs.inodes.Remove(ino)
		return 0, 0, types.InodeRecord{}, err
	}

	var fh types.FileHandle
	var side types.HandleSide
	if attr.Kind == types.RegularFile && (read || write) {
		fh, side, err = fs.handles.Open(ino, read, write)
		if err != nil {
			return 0, 0, types.InodeRecord{}, err
		}
	}

	fs.log.Trace("create ino=%d parent=%d name=%q kind=%s", ino, parent, name, attr.Kind)
	return fh, side, rec, nil
}

// FindByName implements find_by_name(parent, name).
func (fs *Filesystem) FindByName(ctx context.Context, parent uint64, name string) (types.InodeRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.InodeRecord{}, false, err
	}
	parentRec, err := fs.inodes.Read(parent)
	if err != nil {
		return types.InodeRecord{}, false, err
	}
	if parentRec.Kind != types.Directory {
		return types.InodeRecord{}, false, apferrors.ErrInvalidInodeType
	}

	entry, ok, err := fs.dirs.Lookup(parent, name)
	if err != nil || !ok {
		return types.InodeRecord{}, false, err
	}
	rec, err := fs.inodes.Read(entry.Ino)
	if err != nil {
		return types.InodeRecord{}, false, err
	}
	return fs.handles.MergeAttr(entry.Ino, rec), true, nil
}

// ExistsByName implements exists_by_name(parent, name).
func (fs *Filesystem) ExistsByName(ctx context.Context, parent uint64, name string) (bool, error) {
	_, ok, err := fs.FindByName(ctx, parent, name)
	return ok, err
}

// ReadDir implements read_dir(ino): an eagerly materialized listing
// (lazy iteration is the host directory store's concern, not exposed
// further up since callers - the CLI's `verify` walk, a mount adapter's
// readdir callback - consume the whole listing anyway).
func (fs *Filesystem) ReadDir(ctx context.Context, ino uint64) ([]types.DirectoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := fs.inodes.Read(ino)
	if err != nil {
		return nil, err
	}
	if rec.Kind != types.Directory {
		return nil, apferrors.ErrInvalidInodeType
	}

	results, err := fs.dirs.List(ino)
	if err != nil {
		return nil, err
	}
	entries := make([]types.DirectoryEntry, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			fs.log.Warn("skipping damaged directory entry under ino=%d: %v", ino, r.Err)
			continue
		}
		entries = append(entries, r.Entry)
	}
	return entries, nil
}

// DirEntryPlus pairs a directory entry with its merged attributes, as
// read_dir_plus returns.
type DirEntryPlus struct {
	Entry types.DirectoryEntry
	Attr  types.InodeRecord
}

// ReadDirPlus implements read_dir_plus(ino).
func (fs *Filesystem) ReadDirPlus(ctx context.Context, ino uint64) ([]DirEntryPlus, error) {
	entries, err := fs.ReadDir(ctx, ino)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntryPlus, 0, len(entries))
	for _, e := range entries {
		rec, err := fs.inodes.Read(e.Ino)
		if err != nil {
			fs.log.Warn("read_dir_plus: inode %d for entry %q missing: %v", e.Ino, e.Name, err)
			continue
		}
		out = append(out, DirEntryPlus{Entry: e, Attr: fs.handles.MergeAttr(e.Ino, rec)})
	}
	return out, nil
}

// GetAttr implements get_attr(ino): the stored record merged with any
// in-flight open-handle deltas (spec.md §4.4).
func (fs *Filesystem) GetAttr(ctx context.Context, ino uint64) (types.InodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.InodeRecord{}, err
	}
	rec, err := fs.inodes.Read(ino)
	if err != nil {
		return types.InodeRecord{}, err
	}
	return fs.handles.MergeAttr(ino, rec), nil
}

// SetAttr implements set_attr(ino, set).
func (fs *Filesystem) SetAttr(ctx context.Context, ino uint64, set types.SetAttrRequest) (types.InodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.InodeRecord{}, err
	}
	return fs.inodes.SetAttr(ino, set)
}

// SetLen implements set_len(ino, size).
func (fs *Filesystem) SetLen(ctx context.Context, ino uint64, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fs.handles.SetLen(ino, size)
}

// RemoveFile implements remove_file(parent, name).
func (fs *Filesystem) RemoveFile(ctx context.Context, parent uint64, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry, ok, err := fs.dirs.Lookup(parent, name)
	if err != nil {
		return err
	}
	if !ok {
		return apferrors.NotFound(name)
	}
	if entry.Kind != types.RegularFile {
		return apferrors.ErrInvalidInodeType
	}
	if err := fs.dirs.Remove(parent, name); err != nil {
		return err
	}
	if err := fs.handles.RemoveContent(entry.Ino); err != nil {
		return err
	}
	return fs.inodes.Remove(entry.Ino)
}

// RemoveDir implements remove_dir(parent, name): the target must be empty
// save for its own "." and ".." sentinel entries.
func (fs *Filesystem) RemoveDir(ctx context.Context, parent uint64, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry, ok, err := fs.dirs.Lookup(parent, name)
	if err != nil {
		return err
	}
	if !ok {
		return apferrors.NotFound(name)
	}
	if entry.Kind != types.Directory {
		return apferrors.ErrInvalidInodeType
	}

	count, err := fs.dirs.Count(entry.Ino)
	if err != nil {
		return err
	}
	if count > 2 {
		return apferrors.ErrNotEmpty
	}

	if err := fs.dirs.Remove(parent, name); err != nil {
		return err
	}
	if err := fs.dirs.RemoveDirContents(entry.Ino); err != nil {
		return err
	}
	return fs.inodes.Remove(entry.Ino)
}

// Rename implements rename(parent, name, new_parent, new_name) (spec.md
// §4.7): overwrite is allowed for files and empty directories; a
// cross-parent directory rename rewrites "..". Renaming an entry onto
// itself (same parent, same name) is a no-op.
func (fs *Filesystem) Rename(ctx context.Context, parent uint64, name string, newParent uint64, newName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if parent == newParent && name == newName {
		return nil
	}
	if newName == types.SelfName || newName == types.ParentName {
		return apferrors.InvalidInput("name \"" + newName + "\" is reserved")
	}

	src, ok, err := fs.dirs.Lookup(parent, name)
	if err != nil {
		return err
	}
	if !ok {
		return apferrors.NotFound(name)
	}

	if dst, ok, err := fs.dirs.Lookup(newParent, newName); err != nil {
		return err
	} else if ok {
		if dst.Kind != src.Kind {
			return apferrors.ErrInvalidInodeType
		}
		if dst.Kind == types.Directory {
			count, err := fs.dirs.Count(dst.Ino)
			if err != nil {
				return err
			}
			if count > 2 {
				return apferrors.ErrNotEmpty
			}
			if err := fs.dirs.RemoveDirContents(dst.Ino); err != nil {
				return err
			}
		} else if err := fs.handles.RemoveContent(dst.Ino); err != nil {
			return err
		}
		if err := fs.inodes.Remove(dst.Ino); err != nil {
			return err
		}
		if err := fs.dirs.Remove(newParent, newName); err != nil {
			return err
		}
	}

	if err := fs.dirs.Insert(newParent, newName, src.Ino, src.Kind); err != nil {
		return err
	}
	if err := fs.dirs.Remove(parent, name); err != nil {
		return err
	}

	if src.Kind == types.Directory && parent != newParent {
		if err := fs.dirs.RewriteParent(src.Ino, newParent); err != nil {
			return err
		}
	}
	return nil
}

// Open/Read/Write/Flush/Release/CopyFileRange delegate directly to the
// handle manager (spec.md §4.6); the façade adds only the ctx cancellation
// check every exported operation carries (spec.md §5).

func (fs *Filesystem) Open(ctx context.Context, ino uint64, read, write bool) (types.FileHandle, types.HandleSide, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	return fs.handles.Open(ino, read, write)
}

func (fs *Filesystem) Read(ctx context.Context, ino uint64, fh types.FileHandle, offset uint64, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return fs.handles.Read(ino, fh, offset, buf)
}

func (fs *Filesystem) Write(ctx context.Context, ino uint64, fh types.FileHandle, offset uint64, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return fs.handles.Write(ino, fh, offset, buf)
}

func (fs *Filesystem) Flush(ctx context.Context, ino uint64, fh types.FileHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fs.handles.Flush(ino, fh)
}

func (fs *Filesystem) Release(ctx context.Context, ino uint64, fh types.FileHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fs.handles.Release(ino, fh)
}

func (fs *Filesystem) CopyFileRange(ctx context.Context, srcIno uint64, srcFh types.FileHandle, srcOffset uint64, dstIno uint64, dstFh types.FileHandle, dstOffset uint64, length uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return fs.handles.CopyFileRange(srcIno, srcFh, srcOffset, dstIno, dstFh, dstOffset, length)
}

// ChangePassword implements change_password(data_dir, old, new): it
// rewrites security/key.enc in place via the key store.
func (fs *Filesystem) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fs.keys.ChangePassword(ctx, oldPassword, newPassword)
}

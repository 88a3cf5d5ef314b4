package vfile

import (
	"context"
	"io"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/cryptofs"
	"github.com/cryptofs/cryptfs/internal/types"
)

// OpenOptions is the six-flag truth table of spec.md §4.8. The zero
// value (all false) is never valid: Open rejects it with InvalidInput.
type OpenOptions struct {
	Read      bool
	Write     bool
	Append    bool
	Truncate  bool
	Create    bool
	CreateNew bool
}

// File is a path-resolved open stream backed by a C6 handle, exposing a
// conventional read/write/seek cursor.
type File struct {
	fs     *cryptofs.Filesystem
	ino    uint64
	fh     types.FileHandle
	side   types.HandleSide
	cursor int64
}

// Open resolves path against root (normally types.RootIno), walking every
// intermediate segment through find_by_name, and opens the final segment
// per opts's truth table.
func Open(ctx context.Context, fs *cryptofs.Filesystem, root uint64, path string, opts OpenOptions) (*File, error) {
	if !opts.Read && !opts.Write && !opts.Append && !opts.Truncate && !opts.Create && !opts.CreateNew {
		return nil, apferrors.InvalidInput("no open flags set")
	}
	if opts.Append && opts.Truncate {
		return nil, apferrors.InvalidInput("append and truncate are mutually exclusive")
	}
	if (opts.Create || opts.Truncate) && !opts.Write && !opts.Append {
		return nil, apferrors.ErrReadOnly
	}
	if opts.CreateNew && !opts.Write && !opts.Append {
		return nil, apferrors.InvalidInput("create_new requires write or append")
	}

	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	parent := root
	for _, seg := range segments[:len(segments)-1] {
		rec, ok, err := fs.FindByName(ctx, parent, seg)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apferrors.NotFound(seg)
		}
		if rec.Kind != types.Directory {
			return nil, apferrors.ErrInvalidInodeType
		}
		parent = rec.Ino
	}
	name := segments[len(segments)-1]

	existing, exists, err := fs.FindByName(ctx, parent, name)
	if err != nil {
		return nil, err
	}

	wantRead := opts.Read
	wantWrite := opts.Write || opts.Append || opts.Truncate || opts.Create || opts.CreateNew

	switch {
	case exists && opts.CreateNew:
		return nil, apferrors.ErrAlreadyExists

	case exists:
		if existing.Kind != types.RegularFile {
			return nil, apferrors.ErrInvalidInodeType
		}
		fh, side, err := fs.Open(ctx, existing.Ino, wantRead, wantWrite)
		if err != nil {
			return nil, err
		}
		f := &File{fs: fs, ino: existing.Ino, fh: fh, side: side}
		if opts.Truncate {
			if err := fs.SetLen(ctx, existing.Ino, 0); err != nil {
				_ = fs.Release(ctx, existing.Ino, fh)
				return nil, err
			}
		}
		if opts.Append {
			rec, err := fs.GetAttr(ctx, existing.Ino)
			if err != nil {
				_ = fs.Release(ctx, existing.Ino, fh)
				return nil, err
			}
			f.cursor = int64(rec.Size)
		}
		return f, nil

	case !opts.Create && !opts.CreateNew && !opts.Append:
		if opts.Read && !opts.Write {
			// "read alone, existing file: open read-only; missing file ->
			// ReadOnly" (spec.md §4.8's truth table).
			return nil, apferrors.ErrReadOnly
		}
		return nil, apferrors.NotFound(name)

	default:
		// Create-on-missing path: Append/Create/CreateNew all create when
		// the target is absent (spec.md §4.8).
		fh, side, rec, err := fs.Create(ctx, parent, name, cryptofs.CreateAttr{Kind: types.RegularFile, Perm: 0o644}, wantRead, wantWrite)
		if err != nil {
			return nil, err
		}
		return &File{fs: fs, ino: rec.Ino, fh: fh, side: side}, nil
	}
}

// Read reads into p starting at the current cursor, advancing it by the
// number of bytes read.
func (f *File) Read(ctx context.Context, p []byte) (int, error) {
	if !f.side.CanRead() {
		return 0, apferrors.ErrReadOnly
	}
	n, err := f.fs.Read(ctx, f.ino, f.fh, uint64(f.cursor), p)
	f.cursor += int64(n)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

// Write writes p starting at the current cursor, advancing it by the
// number of bytes written.
func (f *File) Write(ctx context.Context, p []byte) (int, error) {
	if !f.side.CanWrite() {
		return 0, apferrors.ErrReadOnly
	}
	n, err := f.fs.Write(ctx, f.ino, f.fh, uint64(f.cursor), p)
	f.cursor += int64(n)
	return n, err
}

// Whence selects the reference point for Seek.
type Whence int

const (
	SeekStart Whence = iota
	SeekCurrent
	SeekEnd
)

// Seek adjusts the in-memory cursor; an end-based seek consults get_attr
// for the current size. A resulting negative offset or an offset beyond
// the current end-of-file fails with InvalidInput (spec.md §4.8).
func (f *File) Seek(ctx context.Context, offset int64, whence Whence) (int64, error) {
	rec, err := f.fs.GetAttr(ctx, f.ino)
	if err != nil {
		return 0, err
	}

	var base int64
	switch whence {
	case SeekStart:
		base = 0
	case SeekCurrent:
		base = f.cursor
	case SeekEnd:
		base = int64(rec.Size)
	default:
		return 0, apferrors.InvalidInput("unknown seek whence")
	}

	target := base + offset
	if target < 0 {
		return 0, apferrors.InvalidInput("seek to negative offset")
	}
	if target > int64(rec.Size) {
		return 0, apferrors.InvalidInput("seek past end of file")
	}

	f.cursor = target
	return f.cursor, nil
}

// Flush forwards to the underlying handle.
func (f *File) Flush(ctx context.Context) error {
	return f.fs.Flush(ctx, f.ino, f.fh)
}

// Close releases the underlying handle, committing any buffered writes.
func (f *File) Close(ctx context.Context) error {
	return f.fs.Release(ctx, f.ino, f.fh)
}

// Ino returns the inode this file is open against, for diagnostics.
func (f *File) Ino() uint64 { return f.ino }

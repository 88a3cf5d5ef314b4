// File: internal/blockstream/seekwriter.go
package blockstream

import (
	"io"
	"os"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/crypto"
)

// SeekWriter is the seekable-writer wrapper of spec.md §4.2
// ("create_write_seek"): it gives the handle layer in-place and
// seek-beyond-end write semantics over a content file by restreaming
// through a tmp file whenever a caller seeks before the current position.
//
// Every byte written goes through tmpPath; contentPath is only ever read
// from (to preserve bytes this session hasn't touched yet) and is only
// overwritten by an atomic rename, never edited in place.
type SeekWriter struct {
	suite       *crypto.Suite
	blockSize   int
	contentPath string
	tmpPath     string

	tmpFile *os.File
	writer  *Writer

	pos  uint64
	size uint64
}

// NewSeekWriter opens a fresh tmp file at tmpPath and begins a write
// session against contentPath, whose prior committed size is existingSize
// (0 for a brand new file).
func NewSeekWriter(contentPath, tmpPath string, suite *crypto.Suite, blockSize int, existingSize uint64) (*SeekWriter, error) {
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, apferrors.Io("create tmp content file", err)
	}
	return &SeekWriter{
		suite:       suite,
		blockSize:   blockSize,
		contentPath: contentPath,
		tmpPath:     tmpPath,
		tmpFile:     f,
		writer:      NewWriter(f, suite, blockSize),
		size:        existingSize,
	}, nil
}

// Pos returns the writer's current logical plaintext position.
func (sw *SeekWriter) Pos() uint64 { return sw.pos }

// Size returns the best-known logical size of the content being written.
func (sw *SeekWriter) Size() uint64 { return sw.size }

// Write appends p at the current position.
func (sw *SeekWriter) Write(p []byte) (int, error) {
	n, err := sw.writer.Write(p)
	if err != nil {
		return n, err
	}
	sw.pos += uint64(n)
	if sw.pos > sw.size {
		sw.size = sw.pos
	}
	return n, nil
}

// copyUnchanged decrypt-reads length bytes starting at skip from the last
// committed contentPath and re-encrypts them unchanged through the
// current writer (spec.md §4.2's forward-seek-within-size rule).
func (sw *SeekWriter) copyUnchanged(skip, length uint64) error {
	if length == 0 {
		return nil
	}
	src, err := OpenReader(sw.contentPath, sw.suite, sw.blockSize)
	if err != nil {
		return err
	}
	defer src.Close()

	if skip > 0 {
		if err := src.Discard(skip); err != nil {
			return err
		}
	}

	buf := make([]byte, 32*1024)
	remaining := length
	for remaining > 0 {
		chunk := uint64(len(buf))
		if chunk > remaining {
			chunk = remaining
		}
		n, rerr := src.Read(buf[:chunk])
		if n > 0 {
			if _, werr := sw.Write(buf[:n]); werr != nil {
				return werr
			}
			remaining -= uint64(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				if remaining > 0 {
					return apferrors.Serialization("source content shorter than expected during copy", nil)
				}
				break
			}
			return apferrors.Io("read during copy-unchanged", rerr)
		}
	}
	return nil
}

// zeroFill writes n zero bytes through the writer: the zero-fill-on-extend
// semantics spec.md mandates in place of true sparse holes.
func (sw *SeekWriter) zeroFill(n uint64) error {
	buf := make([]byte, 32*1024)
	for n > 0 {
		chunk := uint64(len(buf))
		if chunk > n {
			chunk = n
		}
		if _, err := sw.Write(buf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// SeekTo repositions the writer per spec.md §4.2's three-way rule:
//   - offset == current position: nothing to do.
//   - offset < current position: restream from a fresh tmp file.
//   - current position < offset <= existing size: preserve unchanged bytes.
//   - offset > existing size: zero-fill the gap.
func (sw *SeekWriter) SeekTo(offset int64) error {
	if offset < 0 {
		return apferrors.InvalidInput("negative seek offset")
	}
	target := uint64(offset)

	switch {
	case target == sw.pos:
		return nil

	case target <= sw.pos:
		if err := sw.flushAndRename(); err != nil {
			return err
		}
		f, err := os.Create(sw.tmpPath)
		if err != nil {
			return apferrors.Io("recreate tmp content file", err)
		}
		sw.tmpFile = f
		sw.writer = NewWriter(f, sw.suite, sw.blockSize)
		sw.pos = 0
		return sw.copyUnchanged(0, target)

	case target <= sw.size:
		return sw.copyUnchanged(sw.pos, target-sw.pos)

	default: // target > sw.size
		if sw.pos < sw.size {
			if err := sw.copyUnchanged(sw.pos, sw.size-sw.pos); err != nil {
				return err
			}
		}
		return sw.zeroFill(target - sw.size)
	}
}

// flushAndRename finishes the current tmp stream — preserving any
// unwritten tail from the last committed content first — and renames it
// atomically over contentPath. It does not end the write session; callers
// either stop here (Commit) or immediately open a new tmp file (a
// backward SeekTo).
func (sw *SeekWriter) flushAndRename() error {
	if sw.pos < sw.size {
		if err := sw.copyUnchanged(sw.pos, sw.size-sw.pos); err != nil {
			return err
		}
	}
	if err := sw.writer.Finish(); err != nil {
		return err
	}
	if err := sw.tmpFile.Close(); err != nil {
		return apferrors.Io("close tmp content file", err)
	}
	if err := os.Rename(sw.tmpPath, sw.contentPath); err != nil {
		return apferrors.Io("commit content file", err)
	}
	return nil
}

// Commit finalizes the write session: any unread tail of the prior
// content is preserved, the final (possibly short) frame is flushed, and
// the tmp file is renamed atomically over the content file (spec.md
// §4.2's "finish" and §4.6's release algorithm).
func (sw *SeekWriter) Commit() error {
	return sw.flushAndRename()
}

// Abort discards the in-progress tmp file without committing, leaving
// contentPath untouched.
func (sw *SeekWriter) Abort() error {
	_ = sw.tmpFile.Close()
	return os.Remove(sw.tmpPath)
}

// File: internal/blockstream/truncate.go
package blockstream

import (
	"os"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/crypto"
)

// Truncate implements spec.md §4.6's set_len algorithm: it rebuilds the
// content file at the new size through a tmp-then-rename, independent of
// any open write handle. Callers (the handle manager) are responsible for
// flushing/invalidating any open writer for this inode first.
//
//   - newSize == oldSize is a caller-side no-op; Truncate is not called.
//   - newSize == 0 truncates to an empty content file.
//   - newSize < oldSize keeps the decrypted prefix.
//   - newSize > oldSize keeps existing content and zero-fills the remainder.
func Truncate(contentPath, tmpPath string, suite *crypto.Suite, blockSize int, oldSize, newSize uint64) error {
	f, err := os.Create(tmpPath)
	if err != nil {
		return apferrors.Io("create tmp content file", err)
	}
	w := NewWriter(f, suite, blockSize)

	if newSize > 0 {
		keep := newSize
		if oldSize < keep {
			keep = oldSize
		}
		if keep > 0 {
			src, err := OpenReader(contentPath, suite, blockSize)
			if err != nil {
				_ = f.Close()
				_ = os.Remove(tmpPath)
				return err
			}
			if err := copyExact(src, w, keep); err != nil {
				src.Close()
				_ = f.Close()
				_ = os.Remove(tmpPath)
				return err
			}
			src.Close()
		}
		if newSize > oldSize {
			if err := zeroFillInto(w, newSize-oldSize); err != nil {
				_ = f.Close()
				_ = os.Remove(tmpPath)
				return err
			}
		}
	}

	if err := w.Finish(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		return apferrors.Io("close tmp content file", err)
	}
	if err := os.Rename(tmpPath, contentPath); err != nil {
		return apferrors.Io("commit truncated content file", err)
	}
	return nil
}

func copyExact(src *Reader, dst *Writer, n uint64) error {
	buf := make([]byte, 32*1024)
	for n > 0 {
		chunk := uint64(len(buf))
		if chunk > n {
			chunk = n
		}
		read, err := src.Read(buf[:chunk])
		if read > 0 {
			if _, werr := dst.Write(buf[:read]); werr != nil {
				return werr
			}
			n -= uint64(read)
		}
		if err != nil {
			if n == 0 {
				return nil
			}
			return apferrors.Serialization("source content shorter than expected during truncate", nil)
		}
	}
	return nil
}

func zeroFillInto(dst *Writer, n uint64) error {
	buf := make([]byte, 32*1024)
	for n > 0 {
		chunk := uint64(len(buf))
		if chunk > n {
			chunk = n
		}
		if _, err := dst.Write(buf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

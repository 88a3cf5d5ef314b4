// File: internal/blockstream/reader.go
package blockstream

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/crypto"
)

// Reader decodes a frame stream lazily, one frame at a time, buffering the
// residual plaintext of the current frame. It is forward-only and
// stateful: positioning backward or more than one frame forward requires
// a caller to recreate it from offset 0 (spec.md §4.2). Random access is
// the surrounding handle layer's job.
type Reader struct {
	f         *os.File
	suite     *crypto.Suite
	blockSize int

	frameIdx uint64
	residual []byte
	rpos     int
	pos      uint64
	eof      bool
}

// OpenReader opens path and returns a Reader positioned at plaintext
// offset 0.
func OpenReader(path string, suite *crypto.Suite, blockSize int) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apferrors.Io("open content file for read", err)
	}
	return &Reader{f: f, suite: suite, blockSize: blockSize}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// Pos returns the current logical plaintext offset.
func (r *Reader) Pos() uint64 { return r.pos }

// loadFrame decodes the next frame into r.residual, verifying its
// authentication tag. Any truncation or tag mismatch aborts the stream
// with an Io, Serialization (short frame) or Encryption error, per
// spec.md §4.2's reader contract.
func (r *Reader) loadFrame() error {
	if r.eof {
		return io.EOF
	}

	nonce := make([]byte, r.suite.NonceLen())
	if _, err := io.ReadFull(r.f, nonce); err != nil {
		if err == io.EOF {
			r.eof = true
			return io.EOF
		}
		return apferrors.Io("read frame nonce", err)
	}

	maxCipherLen := r.blockSize + r.suite.OverheadLen()
	cbuf := make([]byte, maxCipherLen)
	n, err := io.ReadFull(r.f, cbuf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return apferrors.Io("read frame ciphertext", err)
	}
	if n == 0 {
		return apferrors.Serialization("truncated frame after nonce", nil)
	}
	if n < r.suite.OverheadLen() {
		return apferrors.Serialization("frame shorter than authentication tag", nil)
	}

	aad := make([]byte, 8)
	binary.LittleEndian.PutUint64(aad, r.frameIdx)

	plaintext, derr := r.suite.Open(nonce, aad, cbuf[:n])
	if derr != nil {
		return derr
	}

	r.frameIdx++
	r.residual = plaintext
	r.rpos = 0
	if n < maxCipherLen {
		// This frame held fewer than a full block's worth of ciphertext:
		// it is necessarily the stream's last frame.
		r.eof = true
	}
	return nil
}

// Read implements io.Reader, decoding frames as needed.
func (r *Reader) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		if r.rpos >= len(r.residual) {
			if err := r.loadFrame(); err != nil {
				if err == io.EOF {
					if total > 0 {
						return total, nil
					}
					return 0, io.EOF
				}
				return total, err
			}
		}
		n := copy(p[total:], r.residual[r.rpos:])
		r.rpos += n
		total += n
		r.pos += uint64(n)
	}
	return total, nil
}

// Discard advances the reader by exactly n plaintext bytes without
// returning them: the consume-and-discard mechanism random access uses for
// intra-frame and whole-frame skips (spec.md §4.2, §4.6 step 5).
func (r *Reader) Discard(n uint64) error {
	buf := make([]byte, 32*1024)
	for n > 0 {
		chunk := uint64(len(buf))
		if chunk > n {
			chunk = n
		}
		read, err := r.Read(buf[:chunk])
		n -= uint64(read)
		if err != nil {
			if err == io.EOF {
				if n == 0 {
					return nil
				}
				return apferrors.Serialization("discard ran past end of stream", nil)
			}
			return err
		}
	}
	return nil
}

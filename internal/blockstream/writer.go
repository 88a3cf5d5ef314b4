// File: internal/blockstream/writer.go
package blockstream

import (
	"encoding/binary"
	"io"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/crypto"
)

// Writer is the append-only frame encoder (spec.md §4.2's writer
// contract). It packs input into block-sized plaintext and emits complete
// frames; any partial plaintext left at Finish becomes a final short
// frame.
type Writer struct {
	w         io.Writer
	suite     *crypto.Suite
	blockSize int

	frameIdx uint64
	pending  []byte
}

// NewWriter wraps w (typically a freshly created tmp file) as a frame
// encoder.
func NewWriter(w io.Writer, suite *crypto.Suite, blockSize int) *Writer {
	return &Writer{w: w, suite: suite, blockSize: blockSize}
}

// Write buffers p and emits one frame per complete block accumulated.
func (w *Writer) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	for len(w.pending) >= w.blockSize {
		if err := w.flush(w.pending[:w.blockSize]); err != nil {
			return 0, err
		}
		rest := make([]byte, len(w.pending)-w.blockSize)
		copy(rest, w.pending[w.blockSize:])
		w.pending = rest
	}
	return len(p), nil
}

func (w *Writer) flush(plaintext []byte) error {
	nonce, err := w.suite.RandomNonce()
	if err != nil {
		return err
	}
	aad := make([]byte, 8)
	binary.LittleEndian.PutUint64(aad, w.frameIdx)
	ciphertext := w.suite.Seal(nonce, aad, plaintext)

	if _, err := w.w.Write(nonce); err != nil {
		return apferrors.Io("write frame nonce", err)
	}
	if _, err := w.w.Write(ciphertext); err != nil {
		return apferrors.Io("write frame ciphertext", err)
	}
	w.frameIdx++
	return nil
}

// Finish flushes any partial plaintext as a final short frame. Calling
// Finish on a stream with nothing ever written emits zero frames, which
// Reader reproduces as an immediate EOF (an empty plaintext stream).
func (w *Writer) Finish() error {
	if len(w.pending) > 0 {
		if err := w.flush(w.pending); err != nil {
			return err
		}
		w.pending = nil
	}
	return nil
}

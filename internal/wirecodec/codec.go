// Package wirecodec implements the single stable binary serialization used
// for every on-disk record in this filesystem: little-endian, fixed-width
// integers, length-prefixed variable fields (spec.md §6). It is the
// generalization of the teacher's apfs/pkg/types binary reader/writer pair
// to the handful of record shapes this engine actually persists.
package wirecodec

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/cryptofs/cryptfs/internal/apferrors"
)

// Writer accumulates a little-endian, length-prefixed encoding of a record.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter wraps w for sequential field writes.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Err returns the first error encountered by any Write* call.
func (bw *Writer) Err() error { return bw.err }

func (bw *Writer) WriteUint8(v uint8) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *Writer) WriteUint16(v uint16) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *Writer) WriteUint32(v uint32) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *Writer) WriteUint64(v uint64) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

// WriteTime encodes a timestamp as Unix nanoseconds (int64).
func (bw *Writer) WriteTime(t time.Time) {
	bw.WriteUint64(uint64(t.UnixNano()))
}

// WriteBytes writes a uint32 length prefix followed by the raw bytes.
func (bw *Writer) WriteBytes(b []byte) {
	if bw.err != nil {
		return
	}
	bw.WriteUint32(uint32(len(b)))
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(b)
}

// WriteString writes a length-prefixed UTF-8 string.
func (bw *Writer) WriteString(s string) {
	bw.WriteBytes([]byte(s))
}

// Reader decodes a little-endian, length-prefixed encoding produced by
// Writer. Any short read is reported as apferrors.Serialization.
type Reader struct {
	r   io.Reader
	err error
}

// NewReader wraps r for sequential field reads.
func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

// Err returns the first error encountered by any Read* call.
func (br *Reader) Err() error { return br.err }

func (br *Reader) fail(cause error) {
	if br.err == nil {
		br.err = apferrors.Serialization("truncated record", cause)
	}
}

func (br *Reader) ReadUint8() uint8 {
	var v uint8
	if br.err != nil {
		return 0
	}
	if err := binary.Read(br.r, binary.LittleEndian, &v); err != nil {
		br.fail(err)
		return 0
	}
	return v
}

func (br *Reader) ReadUint16() uint16 {
	var v uint16
	if br.err != nil {
		return 0
	}
	if err := binary.Read(br.r, binary.LittleEndian, &v); err != nil {
		br.fail(err)
		return 0
	}
	return v
}

func (br *Reader) ReadUint32() uint32 {
	var v uint32
	if br.err != nil {
		return 0
	}
	if err := binary.Read(br.r, binary.LittleEndian, &v); err != nil {
		br.fail(err)
		return 0
	}
	return v
}

func (br *Reader) ReadUint64() uint64 {
	var v uint64
	if br.err != nil {
		return 0
	}
	if err := binary.Read(br.r, binary.LittleEndian, &v); err != nil {
		br.fail(err)
		return 0
	}
	return v
}

// ReadTime decodes a timestamp written by WriteTime.
func (br *Reader) ReadTime() time.Time {
	ns := br.ReadUint64()
	if br.err != nil {
		return time.Time{}
	}
	return time.Unix(0, int64(ns)).UTC()
}

// ReadBytes reads a uint32 length prefix and then that many raw bytes.
func (br *Reader) ReadBytes() []byte {
	n := br.ReadUint32()
	if br.err != nil {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br.r, buf); err != nil {
		br.fail(err)
		return nil
	}
	return buf
}

// ReadString reads a length-prefixed UTF-8 string.
func (br *Reader) ReadString() string {
	return string(br.ReadBytes())
}

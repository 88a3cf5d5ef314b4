// Package blockstream implements the block-encrypted reader/writer: a
// seekable authenticated stream over a plain host file, built from
// fixed-size plaintext blocks each sealed into its own AEAD frame
// (spec.md §4.2):
//
//	frame_i = nonce_i (random) || AEAD.seal(key, nonce_i, aad=i(u64 LE), plaintext_i)
//
// Frames are produced and consumed in strict sequence. Random access is
// layered on top: the reader supports only forward consume-and-discard,
// the writer supports only append, and the seekable-writer wrapper in
// seekwriter.go provides the full read-modify-write semantics a POSIX
// caller expects by restreaming through a tmp file when necessary.
package blockstream

// DefaultBlockSize is the release profile's plaintext block size (1 MiB).
// Any value >= 64 KiB is acceptable per spec.md §4.2; it must stay fixed
// for the lifetime of a data directory since it is never persisted inside
// the ciphertext.
const DefaultBlockSize = 1 << 20

// TestBlockSize is a small block size used by tests so frame-boundary
// behavior (B-1, B, B+1, 3B+42) can be exercised without megabyte buffers.
const TestBlockSize = 256 * 1024

// Package inodestore implements the inode metadata store (spec.md §4.4):
// every InodeRecord lives in its own encrypted stream file under an
// "inodes/" directory, rewritten wholesale through a tmp-then-rename on
// every mutation. Concurrency follows the teacher's practice of keeping a
// lock alongside the data it guards rather than reaching for one global
// mutex: a per-inode RW lock serializes full-record writes against reads,
// and a distinct per-inode mutex serializes read-modify-write attribute
// updates (spec.md §5).
package inodestore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/blockstream"
	"github.com/cryptofs/cryptfs/internal/crypto"
	"github.com/cryptofs/cryptfs/internal/types"
	"github.com/cryptofs/cryptfs/internal/wirecodec"
)

// Store owns the "inodes/" subtree of one data directory.
type Store struct {
	dir       string
	suite     *crypto.Suite
	blockSize int

	mu    sync.Mutex // guards the two maps below, not the records themselves
	rw    map[uint64]*sync.RWMutex
	rmw   map[uint64]*sync.Mutex
}

// New opens the inode store rooted at dir (normally "<datadir>/inodes").
// The directory must already exist; Mount creates it on bootstrap.
func New(dir string, suite *crypto.Suite, blockSize int) *Store {
	return &Store{
		dir:       dir,
		suite:     suite,
		blockSize: blockSize,
		rw:        make(map[uint64]*sync.RWMutex),
		rmw:       make(map[uint64]*sync.Mutex),
	}
}

func (s *Store) locks(ino uint64) (*sync.RWMutex, *sync.Mutex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rw, ok := s.rw[ino]
	if !ok {
		rw = &sync.RWMutex{}
		s.rw[ino] = rw
	}
	rmw, ok := s.rmw[ino]
	if !ok {
		rmw = &sync.Mutex{}
		s.rmw[ino] = rmw
	}
	return rw, rmw
}

func (s *Store) path(ino uint64) string {
	return filepath.Join(s.dir, formatIno(ino))
}

func formatIno(ino uint64) string {
	// uint64 decimal, matching spec.md §6's "inodes/<u64-decimal>" layout.
	if ino == 0 {
		return "0"
	}
	buf := make([]byte, 0, 20)
	for ino > 0 {
		buf = append([]byte{byte('0' + ino%10)}, buf...)
		ino /= 10
	}
	return string(buf)
}

// Write persists rec, overwriting any prior record for rec.Ino atomically.
func (s *Store) Write(rec types.InodeRecord) error {
	rw, _ := s.locks(rec.Ino)
	rw.Lock()
	defer rw.Unlock()
	return s.writeLocked(rec)
}

func (s *Store) writeLocked(rec types.InodeRecord) error {
	final := s.path(rec.Ino)
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return apferrors.Io("create inode tmp", err)
	}
	w := blockstream.NewWriter(f, s.suite, s.blockSize)
	bw := wirecodec.NewWriter(w)
	rec.Encode(bw)
	if err := bw.Err(); err != nil {
		f.Close()
		os.Remove(tmp)
		return apferrors.Serialization("encode inode record", err)
	}
	if err := w.Finish(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apferrors.Io("close inode tmp", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return apferrors.Io("commit inode record", err)
	}
	return nil
}

// Read loads the inode record for ino. A missing record is reported as
// apferrors.ErrInodeNotFound.
func (s *Store) Read(ino uint64) (types.InodeRecord, error) {
	rw, _ := s.locks(ino)
	rw.RLock()
	defer rw.RUnlock()
	return s.readLocked(ino)
}

func (s *Store) readLocked(ino uint64) (types.InodeRecord, error) {
	path := s.path(ino)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return types.InodeRecord{}, apferrors.ErrInodeNotFound
		}
		return types.InodeRecord{}, apferrors.Io("stat inode record", err)
	}

	r, err := blockstream.OpenReader(path, s.suite, s.blockSize)
	if err != nil {
		return types.InodeRecord{}, err
	}
	defer r.Close()

	br := wirecodec.NewReader(r)
	rec, err := types.DecodeInodeRecord(br)
	if err != nil {
		return types.InodeRecord{}, err
	}
	return rec, nil
}

// SetAttr applies set to the stored record under the read-modify-write
// lock, taking the maximum of current and requested value for every
// monotonic time field (spec.md §4.4, §8 invariant 10). It returns the
// updated record.
func (s *Store) SetAttr(ino uint64, set types.SetAttrRequest) (types.InodeRecord, error) {
	rw, rmw := s.locks(ino)
	rmw.Lock()
	defer rmw.Unlock()
	rw.Lock()
	defer rw.Unlock()

	rec, err := s.readLocked(ino)
	if err != nil {
		return types.InodeRecord{}, err
	}

	if set.Size != nil {
		rec.Size = *set.Size
	}
	if set.Atime != nil {
		rec.Atime = types.MaxTime(rec.Atime, *set.Atime)
	}
	if set.Mtime != nil {
		rec.Mtime = types.MaxTime(rec.Mtime, *set.Mtime)
	}
	if set.Ctime != nil {
		rec.Ctime = types.MaxTime(rec.Ctime, *set.Ctime)
	}
	if set.Perm != nil {
		rec.Perm = *set.Perm
	}
	if set.Uid != nil {
		rec.Uid = *set.Uid
	}
	if set.Gid != nil {
		rec.Gid = *set.Gid
	}
	if set.Flags != nil {
		rec.Flags = *set.Flags
	}

	if err := s.writeLocked(rec); err != nil {
		return types.InodeRecord{}, err
	}
	return rec, nil
}

// Remove deletes the inode record for ino. Missing records are not an
// error: callers that already verified existence via Read shouldn't have
// to special-case a concurrent double-delete.
func (s *Store) Remove(ino uint64) error {
	rw, _ := s.locks(ino)
	rw.Lock()
	defer rw.Unlock()
	if err := os.Remove(s.path(ino)); err != nil && !os.IsNotExist(err) {
		return apferrors.Io("remove inode record", err)
	}
	return nil
}

// Exists reports whether an inode record is present for ino, without
// decoding it.
func (s *Store) Exists(ino uint64) bool {
	_, err := os.Stat(s.path(ino))
	return err == nil
}

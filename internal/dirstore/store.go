// Package dirstore implements the directory store (spec.md §4.5): every
// directory inode's children live as individually encrypted entry files
// under "contents/<ino>/hash/", named by a keyed hash of the plaintext
// name so the host filesystem never sees a real filename. Listing
// decrypts every entry and reconstructs the name from its payload, never
// from the on-disk (hashed) filename.
package dirstore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/blockstream"
	"github.com/cryptofs/cryptfs/internal/crypto"
	"github.com/cryptofs/cryptfs/internal/interfaces"
	"github.com/cryptofs/cryptfs/internal/types"
	"github.com/cryptofs/cryptfs/internal/wirecodec"
)

// Store owns the "contents/<ino>/hash/" subtrees for every directory inode.
type Store struct {
	contentsDir string
	suite       *crypto.Suite
	blockSize   int
	nameHashKey []byte

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// New opens the directory store rooted at contentsDir (normally
// "<datadir>/contents"), keyed by nameHashKey (spec.md §4.1's HKDF'd
// name-hash sub-key).
func New(contentsDir string, suite *crypto.Suite, blockSize int, nameHashKey []byte) *Store {
	return &Store{
		contentsDir: contentsDir,
		suite:       suite,
		blockSize:   blockSize,
		nameHashKey: nameHashKey,
		locks:       make(map[string]*sync.RWMutex),
	}
}

func (s *Store) hashDir(parentIno uint64) string {
	return filepath.Join(s.contentsDir, formatIno(parentIno), "hash")
}

func (s *Store) entryPath(parentIno uint64, name string) string {
	return filepath.Join(s.hashDir(parentIno), crypto.HashName(name, s.nameHashKey))
}

func formatIno(ino uint64) string {
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

func (s *Store) pathLock(path string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[path] = l
	}
	return l
}

// CreateDir makes the hash/ subdirectory for a newly created directory
// inode ino and inserts the self/parent sentinel entries.
func (s *Store) CreateDir(ino, parentIno uint64) error {
	if err := os.MkdirAll(s.hashDir(ino), 0o700); err != nil {
		return apferrors.Io("create directory content dir", err)
	}
	if err := s.writeEntry(ino, types.SelfName, ino, types.Directory); err != nil {
		return err
	}
	if err := s.writeEntry(ino, types.ParentName, parentIno, types.Directory); err != nil {
		return err
	}
	return nil
}

// Insert adds a new child entry. name must not be "." or "..".
func (s *Store) Insert(parentIno uint64, name string, childIno uint64, kind types.FileType) error {
	if name == types.SelfName || name == types.ParentName {
		return apferrors.InvalidInput("name \"" + name + "\" is reserved")
	}
	return s.writeEntry(parentIno, name, childIno, kind)
}

func (s *Store) writeEntry(parentIno uint64, name string, childIno uint64, kind types.FileType) error {
	path := s.entryPath(parentIno, name)
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()
	return s.writeEntryLocked(path, name, childIno, kind)
}

func (s *Store) writeEntryLocked(path, name string, childIno uint64, kind types.FileType) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return apferrors.Io("create directory entry tmp", err)
	}
	w := blockstream.NewWriter(f, s.suite, s.blockSize)
	bw := wirecodec.NewWriter(w)
	types.DirEntryPayload{ChildIno: childIno, Kind: kind, Name: name}.Encode(bw)
	if err := bw.Err(); err != nil {
		f.Close()
		os.Remove(tmp)
		return apferrors.Serialization("encode directory entry", err)
	}
	if err := w.Finish(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apferrors.Io("close directory entry tmp", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apferrors.Io("commit directory entry", err)
	}
	return nil
}

// Remove deletes a child entry. Returns apferrors.ErrNotFound if absent.
func (s *Store) Remove(parentIno uint64, name string) error {
	path := s.entryPath(parentIno, name)
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return apferrors.NotFound(name)
		}
		return apferrors.Io("remove directory entry", err)
	}
	return nil
}

// RemoveDirContents removes the hash/ subtree for a directory inode being
// deleted (after the caller has verified it is empty save for "." /"..").
func (s *Store) RemoveDirContents(ino uint64) error {
	if err := os.RemoveAll(filepath.Join(s.contentsDir, formatIno(ino))); err != nil {
		return apferrors.Io("remove directory content dir", err)
	}
	return nil
}

// Lookup probes the single expected on-disk filename for name under
// parentIno. ok is false if absent.
func (s *Store) Lookup(parentIno uint64, name string) (entry types.DirectoryEntry, ok bool, err error) {
	path := s.entryPath(parentIno, name)
	lock := s.pathLock(path)
	lock.RLock()
	defer lock.RUnlock()

	if _, statErr := os.Stat(path); statErr != nil {
		if os.IsNotExist(statErr) {
			return types.DirectoryEntry{}, false, nil
		}
		return types.DirectoryEntry{}, false, apferrors.Io("stat directory entry", statErr)
	}

	payload, err := s.readEntry(path)
	if err != nil {
		return types.DirectoryEntry{}, false, err
	}
	return types.DirectoryEntry{Ino: payload.ChildIno, Name: crypto.UnreservedName(payload.Name), Kind: payload.Kind}, true, nil
}

func (s *Store) readEntry(path string) (types.DirEntryPayload, error) {
	r, err := blockstream.OpenReader(path, s.suite, s.blockSize)
	if err != nil {
		return types.DirEntryPayload{}, err
	}
	defer r.Close()

	br := wirecodec.NewReader(r)
	return types.DecodeDirEntryPayload(br)
}

// List iterates every child of parentIno, decrypting each entry and
// reconstructing its plaintext name. Iteration is unordered (spec.md
// §4.5); a single damaged entry is reported inline rather than aborting
// the whole listing.
//
// ListResult is an alias of interfaces.DirListResult so *Store satisfies
// interfaces.DirectoryStore without a conversion at the call site.
type ListResult = interfaces.DirListResult

func (s *Store) List(parentIno uint64) ([]ListResult, error) {
	dir := s.hashDir(parentIno)
	infos, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apferrors.ErrInodeNotFound
		}
		return nil, apferrors.Io("read directory content dir", err)
	}

	results := make([]ListResult, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		path := filepath.Join(dir, info.Name())
		payload, err := s.readEntry(path)
		if err != nil {
			results = append(results, ListResult{Err: apferrors.Serialization("damaged directory entry "+info.Name(), err)})
			continue
		}
		results = append(results, ListResult{Entry: types.DirectoryEntry{
			Ino:  payload.ChildIno,
			Name: crypto.UnreservedName(payload.Name),
			Kind: payload.Kind,
		}})
	}
	return results, nil
}

// Count returns the number of entries (including "." and "..") without
// decrypting them, used to test directory emptiness cheaply.
func (s *Store) Count(parentIno uint64) (int, error) {
	infos, err := os.ReadDir(s.hashDir(parentIno))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, apferrors.ErrInodeNotFound
		}
		return 0, apferrors.Io("read directory content dir", err)
	}
	n := 0
	for _, info := range infos {
		if !info.IsDir() {
			n++
		}
	}
	return n, nil
}

// RewriteParent rewrites the ".." entry of directory ino to point at
// newParentIno, used on cross-parent directory rename (spec.md §4.5).
func (s *Store) RewriteParent(ino, newParentIno uint64) error {
	return s.writeEntry(ino, types.ParentName, newParentIno, types.Directory)
}

// Package handles implements the handle & session manager (spec.md §4.6):
// it owns every open read/write stream against a regular-file inode's
// content, translating random-access read/write/seek/truncate calls into
// the block-encrypted stream's forward-only and restream-on-seek
// primitives. Two disjoint tables (reader, writer) map a 64-bit
// monotonically increasing handle id to its open stream; a mixed
// read+write open installs one id in both tables (spec.md §9 decision 2).
package handles

import (
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/blockstream"
	"github.com/cryptofs/cryptfs/internal/crypto"
	"github.com/cryptofs/cryptfs/internal/inodestore"
	"github.com/cryptofs/cryptfs/internal/types"
)

// Manager owns every open content stream for every regular-file inode in
// one mount.
type Manager struct {
	inodes      *inodestore.Store
	contentsDir string
	suite       *crypto.Suite
	blockSize   int

	nextID uint64 // atomic fetch-add (spec.md §5's "Handle id counter")

	tableMu     sync.RWMutex
	readers     map[types.FileHandle]*readerHandle
	writers     map[types.FileHandle]*writerHandle
	writerByIno map[uint64]types.FileHandle

	contentMu sync.Mutex
	contentLk map[uint64]*sync.RWMutex
}

type readerHandle struct {
	mu           sync.Mutex
	ino          uint64
	r            *blockstream.Reader
	pendingAtime time.Time
}

type writerHandle struct {
	mu           sync.Mutex
	ino          uint64
	sw           *blockstream.SeekWriter
	pendingMtime time.Time
	pendingCtime time.Time
	touched      bool
}

// New builds a handle manager rooted at contentsDir (normally
// "<datadir>/contents").
func New(inodes *inodestore.Store, contentsDir string, suite *crypto.Suite, blockSize int) *Manager {
	return &Manager{
		inodes:      inodes,
		contentsDir: contentsDir,
		suite:       suite,
		blockSize:   blockSize,
		readers:     make(map[types.FileHandle]*readerHandle),
		writers:     make(map[types.FileHandle]*writerHandle),
		writerByIno: make(map[uint64]types.FileHandle),
		contentLk:   make(map[uint64]*sync.RWMutex),
	}
}

func (m *Manager) contentPath(ino uint64) string {
	return filepath.Join(m.contentsDir, strconv.FormatUint(ino, 10))
}

func (m *Manager) tmpPath(ino uint64, fh types.FileHandle) string {
	return m.contentPath(ino) + "." + strconv.FormatUint(uint64(fh), 10) + ".tmp"
}

func (m *Manager) truncateTmpPath(ino uint64) string {
	return m.contentPath(ino) + ".truncate.tmp"
}

func (m *Manager) contentLock(ino uint64) *sync.RWMutex {
	m.contentMu.Lock()
	defer m.contentMu.Unlock()
	l, ok := m.contentLk[ino]
	if !ok {
		l = &sync.RWMutex{}
		m.contentLk[ino] = l
	}
	return l
}

func (m *Manager) allocHandle() types.FileHandle {
	return types.FileHandle(atomic.AddUint64(&m.nextID, 1))
}

// CreateContent writes an empty content stream for a freshly created
// regular-file inode so Open can immediately read or write it.
func (m *Manager) CreateContent(ino uint64) error {
	lock := m.contentLock(ino)
	lock.Lock()
	defer lock.Unlock()

	final := m.contentPath(ino)
	tmp := final + ".create.tmp"
	f, err := createFile(tmp)
	if err != nil {
		return err
	}
	w := blockstream.NewWriter(f, m.suite, m.blockSize)
	if err := w.Finish(); err != nil {
		f.Close()
		removeFile(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		removeFile(tmp)
		return apferrors.Io("close new content file", err)
	}
	if err := renameFile(tmp, final); err != nil {
		removeFile(tmp)
		return err
	}
	return nil
}

// RemoveContent deletes the content file backing ino (spec.md §8 invariant
// 5: removal deletes both the inode record and the content object).
func (m *Manager) RemoveContent(ino uint64) error {
	lock := m.contentLock(ino)
	lock.Lock()
	defer lock.Unlock()
	return removeFileIgnoreMissing(m.contentPath(ino))
}

// Open implements spec.md §4.6's open(ino, read, write). It returns the
// handle id and which side(s) it is valid against.
func (m *Manager) Open(ino uint64, read, write bool) (types.FileHandle, types.HandleSide, error) {
	if !read && !write {
		return 0, 0, apferrors.InvalidInput("open requires read or write")
	}

	rec, err := m.inodes.Read(ino)
	if err != nil {
		return 0, 0, err
	}
	if rec.Kind != types.RegularFile {
		return 0, 0, apferrors.ErrInvalidInodeType
	}

	var side types.HandleSide
	id := m.allocHandle()
	lock := m.contentLock(ino)

	if write {
		m.tableMu.Lock()
		if _, exists := m.writerByIno[ino]; exists {
			m.tableMu.Unlock()
			return 0, 0, apferrors.ErrAlreadyOpenForWrite
		}
		m.tableMu.Unlock()

		lock.Lock()
		sw, err := blockstream.NewSeekWriter(m.contentPath(ino), m.tmpPath(ino, id), m.suite, m.blockSize, rec.Size)
		lock.Unlock()
		if err != nil {
			return 0, 0, err
		}

		m.tableMu.Lock()
		m.writers[id] = &writerHandle{ino: ino, sw: sw}
		m.writerByIno[ino] = id
		m.tableMu.Unlock()
		side |= types.SideWrite
	}

	if read {
		lock.RLock()
		r, err := blockstream.OpenReader(m.contentPath(ino), m.suite, m.blockSize)
		lock.RUnlock()
		if err != nil {
			return 0, 0, err
		}

		m.tableMu.Lock()
		m.readers[id] = &readerHandle{ino: ino, r: r}
		m.tableMu.Unlock()
		side |= types.SideRead
	}

	return id, side, nil
}

func (m *Manager) lookupReader(fh types.FileHandle, ino uint64) (*readerHandle, error) {
	m.tableMu.RLock()
	rh, ok := m.readers[fh]
	m.tableMu.RUnlock()
	if !ok || rh.ino != ino {
		return nil, apferrors.ErrInvalidFileHandle
	}
	return rh, nil
}

func (m *Manager) lookupWriter(fh types.FileHandle, ino uint64) (*writerHandle, error) {
	m.tableMu.RLock()
	wh, ok := m.writers[fh]
	m.tableMu.RUnlock()
	if !ok || wh.ino != ino {
		return nil, apferrors.ErrInvalidFileHandle
	}
	return wh, nil
}

// Read implements spec.md §4.6's read operation.
func (m *Manager) Read(ino uint64, fh types.FileHandle, offset uint64, buf []byte) (int, error) {
	lock := m.contentLock(ino)
	lock.RLock()
	defer lock.RUnlock()

	rh, err := m.lookupReader(fh, ino)
	if err != nil {
		return 0, err
	}
	rh.mu.Lock()
	defer rh.mu.Unlock()

	rec, err := m.inodes.Read(ino)
	if err != nil {
		return 0, err
	}
	if offset > rec.Size {
		return 0, nil
	}

	if offset < rh.r.Pos() {
		if err := rh.r.Close(); err != nil {
			return 0, err
		}
		r, err := blockstream.OpenReader(m.contentPath(ino), m.suite, m.blockSize)
		if err != nil {
			return 0, err
		}
		rh.r = r
	}
	if offset > rh.r.Pos() {
		if err := rh.r.Discard(offset - rh.r.Pos()); err != nil {
			return 0, err
		}
	}

	want := rec.Size - offset
	if want > uint64(len(buf)) {
		want = uint64(len(buf))
	}
	if want == 0 {
		return 0, nil
	}

	total := 0
	for uint64(total) < want {
		n, err := rh.r.Read(buf[total:want])
		total += n
		if err != nil {
			if total > 0 {
				break
			}
			return 0, err
		}
		if n == 0 {
			break
		}
	}

	// atime is not persisted here; it accumulates in-memory and is
	// written back on Release, matching get_attr's delta-merge contract
	// (spec.md §4.4).
	rh.pendingAtime = time.Now().UTC()
	return total, nil
}

// Write implements spec.md §4.6's write operation.
func (m *Manager) Write(ino uint64, fh types.FileHandle, offset uint64, buf []byte) (int, error) {
	lock := m.contentLock(ino)
	lock.Lock()
	defer lock.Unlock()

	wh, err := m.lookupWriter(fh, ino)
	if err != nil {
		return 0, err
	}
	wh.mu.Lock()
	defer wh.mu.Unlock()

	if offset != wh.sw.Pos() {
		backward := offset < wh.sw.Pos()
		if err := wh.sw.SeekTo(int64(offset)); err != nil {
			return 0, err
		}
		if backward {
			// A backward seek restreams the content file in place
			// (blockstream.SeekWriter.flushAndRename), so any reader
			// already open against ino is pinned to the old *os.File
			// and must be recreated against the new one (spec.md
			// §4.6 write step 3).
			if err := m.invalidateReaders(ino); err != nil {
				return 0, err
			}
		}
	}

	n, err := wh.sw.Write(buf)
	if err != nil {
		return n, err
	}

	now := time.Now().UTC()
	wh.pendingMtime = now
	wh.pendingCtime = now
	wh.touched = true
	return n, nil
}

// MergeAttr applies the in-memory deltas of every handle currently open
// against ino onto rec, without touching the on-disk record (spec.md
// §4.4's get_attr contract: "merges any deltas accumulated by
// currently-open read handles ... and the open write handle").
func (m *Manager) MergeAttr(ino uint64, rec types.InodeRecord) types.InodeRecord {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()

	for _, rh := range m.readers {
		if rh.ino != ino {
			continue
		}
		rh.mu.Lock()
		if !rh.pendingAtime.IsZero() {
			rec.Atime = types.MaxTime(rec.Atime, rh.pendingAtime)
		}
		rh.mu.Unlock()
	}

	for _, wh := range m.writers {
		if wh.ino != ino {
			continue
		}
		wh.mu.Lock()
		if wh.touched {
			rec.Size = wh.sw.Size()
			rec.Mtime = types.MaxTime(rec.Mtime, wh.pendingMtime)
			rec.Ctime = types.MaxTime(rec.Ctime, wh.pendingCtime)
		}
		wh.mu.Unlock()
	}

	return rec
}

// Flush forwards to the underlying stream without committing (spec.md
// §4.6): there is nothing to do since writes are already streamed to the
// tmp file; only Release renames it into place.
func (m *Manager) Flush(ino uint64, fh types.FileHandle) error {
	if _, err := m.lookupWriter(fh, ino); err == nil {
		return nil
	}
	if _, err := m.lookupReader(fh, ino); err == nil {
		return nil
	}
	return apferrors.ErrInvalidFileHandle
}

// Release closes a handle. For a write handle this commits the tmp file
// over the content file, persists the new size/mtime/ctime and invalidates
// open readers; for a read handle it closes the stream and persists any
// pending atime.
func (m *Manager) Release(ino uint64, fh types.FileHandle) error {
	lock := m.contentLock(ino)
	lock.Lock()
	defer lock.Unlock()

	m.tableMu.Lock()
	wh, isWriter := m.writers[fh]
	rh, isReader := m.readers[fh]
	m.tableMu.Unlock()

	if !isWriter && !isReader {
		return apferrors.ErrInvalidFileHandle
	}

	if isWriter {
		wh.mu.Lock()
		if err := wh.sw.Commit(); err != nil {
			wh.mu.Unlock()
			return err
		}
		size := wh.sw.Size()
		mtime, ctime := wh.pendingMtime, wh.pendingCtime
		touched := wh.touched
		wh.mu.Unlock()

		m.tableMu.Lock()
		delete(m.writers, fh)
		delete(m.writerByIno, ino)
		m.tableMu.Unlock()

		if touched {
			if _, err := m.inodes.SetAttr(ino, types.SetAttrRequest{Size: &size, Mtime: &mtime, Ctime: &ctime}); err != nil {
				return err
			}
		}

		if err := m.invalidateReaders(ino); err != nil {
			return err
		}
	}

	if isReader {
		rh.mu.Lock()
		atime := rh.pendingAtime
		err := rh.r.Close()
		rh.mu.Unlock()
		if err != nil {
			return err
		}
		m.tableMu.Lock()
		delete(m.readers, fh)
		m.tableMu.Unlock()

		if !atime.IsZero() {
			if _, err := m.inodes.SetAttr(ino, types.SetAttrRequest{Atime: &atime}); err != nil {
				return err
			}
		}
	}

	return nil
}

// invalidateReaders recreates every open reader for ino from offset 0
// against the just-committed content file (spec.md §4.6 release step).
func (m *Manager) invalidateReaders(ino uint64) error {
	m.tableMu.RLock()
	var stale []*readerHandle
	for _, rh := range m.readers {
		if rh.ino == ino {
			stale = append(stale, rh)
		}
	}
	m.tableMu.RUnlock()

	for _, rh := range stale {
		rh.mu.Lock()
		rh.r.Close()
		r, err := blockstream.OpenReader(m.contentPath(ino), m.suite, m.blockSize)
		if err != nil {
			rh.mu.Unlock()
			return err
		}
		rh.r = r
		rh.mu.Unlock()
	}
	return nil
}

// CopyFileRange implements spec.md §4.6's bounded read→write loop.
func (m *Manager) CopyFileRange(srcIno uint64, srcFh types.FileHandle, srcOffset uint64, dstIno uint64, dstFh types.FileHandle, dstOffset uint64, length uint64) (uint64, error) {
	buf := make([]byte, 32*1024)
	var total uint64
	for total < length {
		chunk := uint64(len(buf))
		if remain := length - total; chunk > remain {
			chunk = remain
		}
		n, err := m.Read(srcIno, srcFh, srcOffset+total, buf[:chunk])
		if n == 0 && err == nil {
			break
		}
		if n == 0 {
			if err != nil {
				return total, err
			}
			break
		}
		wn, werr := m.Write(dstIno, dstFh, dstOffset+total, buf[:n])
		total += uint64(wn)
		if werr != nil {
			return total, werr
		}
		if err != nil {
			break
		}
	}
	return total, nil
}

// SetLen implements spec.md §4.6's set-length/truncate algorithm.
func (m *Manager) SetLen(ino uint64, newSize uint64) error {
	lock := m.contentLock(ino)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.inodes.Read(ino)
	if err != nil {
		return err
	}
	if rec.Kind != types.RegularFile {
		return apferrors.ErrInvalidInodeType
	}
	if newSize == rec.Size {
		return nil
	}

	m.tableMu.RLock()
	fh, hasWriter := m.writerByIno[ino]
	var wh *writerHandle
	if hasWriter {
		wh = m.writers[fh]
	}
	m.tableMu.RUnlock()

	if hasWriter {
		wh.mu.Lock()
		err := wh.sw.Commit()
		wh.mu.Unlock()
		if err != nil {
			return err
		}
	}

	if err := blockstream.Truncate(m.contentPath(ino), m.truncateTmpPath(ino), m.suite, m.blockSize, rec.Size, newSize); err != nil {
		return err
	}

	if hasWriter {
		wh.mu.Lock()
		sw, err := blockstream.NewSeekWriter(m.contentPath(ino), m.tmpPath(ino, fh), m.suite, m.blockSize, newSize)
		if err != nil {
			wh.mu.Unlock()
			return err
		}
		if err := sw.SeekTo(int64(newSize)); err != nil {
			wh.mu.Unlock()
			return err
		}
		wh.sw = sw
		wh.mu.Unlock()
	}

	if err := m.invalidateReaders(ino); err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := m.inodes.SetAttr(ino, types.SetAttrRequest{Size: &newSize, Mtime: &now, Ctime: &now}); err != nil {
		return err
	}
	return nil
}

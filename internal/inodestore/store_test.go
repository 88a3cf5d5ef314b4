package inodestore

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/crypto"
	"github.com/cryptofs/cryptfs/internal/types"
)

func testSuite(t *testing.T) *crypto.Suite {
	t.Helper()
	key := make([]byte, crypto.KeyLen)
	for i := range key {
		key[i] = byte(i * 3)
	}
	suite, err := crypto.NewSuite(crypto.SuiteAES256GCM, key)
	require.NoError(t, err)
	return suite
}

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(dir, testSuite(t), 4096)
}

func TestWriteThenRead(t *testing.T) {
	s := newStore(t)
	now := time.Now().Truncate(time.Second).UTC()
	rec := types.InodeRecord{
		Ino: 7, Size: 123, Kind: types.RegularFile, Perm: 0o644,
		Nlink: 1, Uid: 1000, Gid: 1000,
		Atime: now, Mtime: now, Ctime: now, Crtime: now,
	}
	require.NoError(t, s.Write(rec))

	got, err := s.Read(7)
	require.NoError(t, err)
	require.Equal(t, rec.Ino, got.Ino)
	require.Equal(t, rec.Size, got.Size)
	require.Equal(t, rec.Kind, got.Kind)
	require.Equal(t, rec.Perm, got.Perm)
	require.WithinDuration(t, rec.Mtime, got.Mtime, time.Second)
}

func TestReadMissingInodeReturnsInodeNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Read(42)
	require.ErrorIs(t, err, apferrors.ErrInodeNotFound)
}

func TestSetAttrPreservesUnsetFieldsAndMergesTime(t *testing.T) {
	s := newStore(t)
	base := time.Now().Truncate(time.Second).UTC()
	rec := types.InodeRecord{Ino: 1, Size: 10, Perm: 0o600, Mtime: base, Atime: base, Ctime: base, Crtime: base}
	require.NoError(t, s.Write(rec))

	newSize := uint64(99)
	earlier := base.Add(-time.Hour)
	updated, err := s.SetAttr(1, types.SetAttrRequest{Size: &newSize, Mtime: &earlier})
	require.NoError(t, err)
	require.Equal(t, uint64(99), updated.Size)
	require.Equal(t, uint16(0o600), updated.Perm)
	// Mtime must not regress: earlier < base, so base is kept.
	require.WithinDuration(t, base, updated.Mtime, time.Second)

	later := base.Add(time.Hour)
	updated2, err := s.SetAttr(1, types.SetAttrRequest{Mtime: &later})
	require.NoError(t, err)
	require.WithinDuration(t, later, updated2.Mtime, time.Second)
}

func TestRemoveThenReadNotFound(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Write(types.InodeRecord{Ino: 5}))
	require.True(t, s.Exists(5))
	require.NoError(t, s.Remove(5))
	require.False(t, s.Exists(5))
	_, err := s.Read(5)
	require.ErrorIs(t, err, apferrors.ErrInodeNotFound)
}

func TestWriteLeavesNoStrayTmpOnSuccess(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, testSuite(t), 4096)
	require.NoError(t, s.Write(types.InodeRecord{Ino: 3}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "3", entries[0].Name())
}

package dirstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/crypto"
	"github.com/cryptofs/cryptfs/internal/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	key := make([]byte, crypto.KeyLen)
	for i := range key {
		key[i] = byte(i * 5)
	}
	suite, err := crypto.NewSuite(crypto.SuiteChaCha20Poly1305, key)
	require.NoError(t, err)
	nameHashKey, err := crypto.NameHashKey(key)
	require.NoError(t, err)
	return New(dir, suite, 4096, nameHashKey)
}

func TestCreateDirInsertsSelfAndParent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.CreateDir(2, types.RootIno))

	self, ok, err := s.Lookup(2, types.SelfName)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), self.Ino)

	parent, ok, err := s.Lookup(2, types.ParentName)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.RootIno, parent.Ino)

	n, err := s.Count(2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestInsertLookupRemove(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.CreateDir(types.RootIno, types.RootIno))

	require.NoError(t, s.Insert(types.RootIno, "hello.txt", 10, types.RegularFile))

	entry, ok, err := s.Lookup(types.RootIno, "hello.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(10), entry.Ino)
	require.Equal(t, "hello.txt", entry.Name)
	require.Equal(t, types.RegularFile, entry.Kind)

	_, ok, err = s.Lookup(types.RootIno, "nope.txt")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Remove(types.RootIno, "hello.txt"))
	_, ok, err = s.Lookup(types.RootIno, "hello.txt")
	require.NoError(t, err)
	require.False(t, ok)

	err = s.Remove(types.RootIno, "hello.txt")
	require.ErrorIs(t, err, apferrors.ErrNotFound)
}

func TestInsertRejectsReservedNames(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.CreateDir(types.RootIno, types.RootIno))

	err := s.Insert(types.RootIno, ".", 5, types.RegularFile)
	require.ErrorIs(t, err, apferrors.ErrInvalidInput)

	err = s.Insert(types.RootIno, "..", 5, types.RegularFile)
	require.ErrorIs(t, err, apferrors.ErrInvalidInput)
}

func TestListReconstructsNamesFromPayload(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.CreateDir(types.RootIno, types.RootIno))
	require.NoError(t, s.Insert(types.RootIno, "a", 2, types.RegularFile))
	require.NoError(t, s.Insert(types.RootIno, "b", 3, types.Directory))

	results, err := s.List(types.RootIno)
	require.NoError(t, err)
	require.Len(t, results, 4) // ".", "..", "a", "b"

	names := map[string]uint64{}
	for _, r := range results {
		require.NoError(t, r.Err)
		names[r.Entry.Name] = r.Entry.Ino
	}
	require.Equal(t, uint64(2), names["a"])
	require.Equal(t, uint64(3), names["b"])
	require.Equal(t, types.RootIno, names["."])
}

func TestRewriteParentOnCrossParentRename(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.CreateDir(types.RootIno, types.RootIno))
	require.NoError(t, s.CreateDir(2, types.RootIno))
	require.NoError(t, s.CreateDir(3, types.RootIno))

	require.NoError(t, s.RewriteParent(2, 3))
	parent, ok, err := s.Lookup(2, types.ParentName)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), parent.Ino)
}

func TestCountOnMissingDirectoryIsInodeNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Count(999)
	require.ErrorIs(t, err, apferrors.ErrInodeNotFound)
}

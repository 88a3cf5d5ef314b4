package cryptofs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/blockstream"
	"github.com/cryptofs/cryptfs/internal/config"
	"github.com/cryptofs/cryptfs/internal/keystore"
	"github.com/cryptofs/cryptfs/internal/types"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DataDir:        t.TempDir(),
		Cipher:         "chacha20poly1305",
		BlockSize:      blockstream.TestBlockSize,
		KeyCacheTTL:    config.DefaultKeyCacheTTL,
		ArgonTime:      1,
		ArgonMemoryKiB: 8 * 1024,
		ArgonThreads:   1,
	}
}

func mountTest(t *testing.T, cfg config.Config) *Filesystem {
	t.Helper()
	fs, err := Mount(context.Background(), cfg, keystore.StaticPassword("correct horse battery staple"))
	require.NoError(t, err)
	return fs
}

func TestMountBootstrapsRootDirectory(t *testing.T) {
	fs := mountTest(t, testConfig(t))
	rec, err := fs.GetAttr(context.Background(), types.RootIno)
	require.NoError(t, err)
	require.Equal(t, types.Directory, rec.Kind)

	entries, err := fs.ReadDir(context.Background(), types.RootIno)
	require.NoError(t, err)
	require.Len(t, entries, 2) // "." and ".."
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := mountTest(t, testConfig(t))

	fh, _, _, err := fs.Create(ctx, types.RootIno, "hello.txt", CreateAttr{Kind: types.RegularFile, Perm: 0o644}, false, true)
	require.NoError(t, err)
	_, err = fs.Write(ctx, mustLookupIno(t, fs, "hello.txt"), fh, 0, []byte("hi there"))
	require.NoError(t, err)
	require.NoError(t, fs.Release(ctx, mustLookupIno(t, fs, "hello.txt"), fh))

	rec, ok, err := fs.FindByName(ctx, types.RootIno, "hello.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(8), rec.Size)

	rfh, _, err := fs.Open(ctx, rec.Ino, true, false)
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err := fs.Read(ctx, rec.Ino, rfh, 0, buf)
	require.NoError(t, err)
	require.Equal(t, "hi there", string(buf[:n]))
}

func mustLookupIno(t *testing.T, fs *Filesystem, name string) uint64 {
	t.Helper()
	rec, ok, err := fs.FindByName(context.Background(), types.RootIno, name)
	require.NoError(t, err)
	require.True(t, ok)
	return rec.Ino
}

func TestRemoveFileDeletesInodeAndContent(t *testing.T) {
	ctx := context.Background()
	fs := mountTest(t, testConfig(t))

	_, _, _, err := fs.Create(ctx, types.RootIno, "f.txt", CreateAttr{Kind: types.RegularFile, Perm: 0o644}, false, false)
	require.NoError(t, err)

	require.NoError(t, fs.RemoveFile(ctx, types.RootIno, "f.txt"))
	_, ok, err := fs.FindByName(ctx, types.RootIno, "f.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveDirRejectsNonEmpty(t *testing.T) {
	ctx := context.Background()
	fs := mountTest(t, testConfig(t))

	_, _, _, err := fs.Create(ctx, types.RootIno, "sub", CreateAttr{Kind: types.Directory, Perm: 0o755}, false, false)
	require.NoError(t, err)
	subRec, ok, err := fs.FindByName(ctx, types.RootIno, "sub")
	require.NoError(t, err)
	require.True(t, ok)

	_, _, _, err = fs.Create(ctx, subRec.Ino, "inner.txt", CreateAttr{Kind: types.RegularFile, Perm: 0o644}, false, false)
	require.NoError(t, err)

	err = fs.RemoveDir(ctx, types.RootIno, "sub")
	require.ErrorIs(t, err, apferrors.ErrNotEmpty)

	require.NoError(t, fs.RemoveFile(ctx, subRec.Ino, "inner.txt"))
	require.NoError(t, fs.RemoveDir(ctx, types.RootIno, "sub"))
}

func TestRenameSameParentNoOp(t *testing.T) {
	ctx := context.Background()
	fs := mountTest(t, testConfig(t))
	_, _, _, err := fs.Create(ctx, types.RootIno, "a.txt", CreateAttr{Kind: types.RegularFile, Perm: 0o644}, false, false)
	require.NoError(t, err)
	require.NoError(t, fs.Rename(ctx, types.RootIno, "a.txt", types.RootIno, "a.txt"))
	_, ok, err := fs.FindByName(ctx, types.RootIno, "a.txt")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRenameCrossParentRewritesParentEntry(t *testing.T) {
	ctx := context.Background()
	fs := mountTest(t, testConfig(t))

	_, _, _, err := fs.Create(ctx, types.RootIno, "d1", CreateAttr{Kind: types.Directory, Perm: 0o755}, false, false)
	require.NoError(t, err)
	d1, _, err := fs.FindByName(ctx, types.RootIno, "d1")
	require.NoError(t, err)

	_, _, _, err = fs.Create(ctx, types.RootIno, "d2", CreateAttr{Kind: types.Directory, Perm: 0o755}, false, false)
	require.NoError(t, err)
	d2, _, err := fs.FindByName(ctx, types.RootIno, "d2")
	require.NoError(t, err)

	_, _, _, err = fs.Create(ctx, d1.Ino, "child", CreateAttr{Kind: types.Directory, Perm: 0o755}, false, false)
	require.NoError(t, err)
	child, _, err := fs.FindByName(ctx, d1.Ino, "child")
	require.NoError(t, err)

	require.NoError(t, fs.Rename(ctx, d1.Ino, "child", d2.Ino, "child"))

	_, ok, err := fs.FindByName(ctx, d1.Ino, "child")
	require.NoError(t, err)
	require.False(t, ok)

	moved, ok, err := fs.FindByName(ctx, d2.Ino, "child")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, child.Ino, moved.Ino)

	parentEntry, ok, err := fs.FindByName(ctx, moved.Ino, "..")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, d2.Ino, parentEntry.Ino)
}

func TestReopenDataDirWithCorrectPassword(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	fs := mountTest(t, cfg)
	_, _, _, err := fs.Create(ctx, types.RootIno, "persisted.txt", CreateAttr{Kind: types.RegularFile, Perm: 0o644}, false, false)
	require.NoError(t, err)

	fs2, err := Mount(ctx, cfg, keystore.StaticPassword("correct horse battery staple"))
	require.NoError(t, err)
	_, ok, err := fs2.FindByName(ctx, types.RootIno, "persisted.txt")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReopenDataDirWithWrongPasswordFails(t *testing.T) {
	cfg := testConfig(t)
	mountTest(t, cfg)

	_, err := Mount(context.Background(), cfg, keystore.StaticPassword("wrong password"))
	require.ErrorIs(t, err, apferrors.ErrInvalidPassword)
}

// TestMountRejectsExtraneousTopLevelEntry verifies that a data directory
// with an unexpected 4th top-level entry alongside inodes/, contents/ and
// security/ fails to mount instead of silently ignoring the extra entry.
func TestMountRejectsExtraneousTopLevelEntry(t *testing.T) {
	cfg := testConfig(t)
	mountTest(t, cfg)

	stray := filepath.Join(cfg.DataDir, "stray")
	require.NoError(t, os.WriteFile(stray, []byte("unexpected"), 0o600))

	_, err := Mount(context.Background(), cfg, keystore.StaticPassword("correct horse battery staple"))
	require.ErrorIs(t, err, apferrors.ErrInvalidDataDirStruct)
}

// TestMountFailsOnCipherMismatch verifies that remounting with a different
// cipher than the one recorded in security/config.json fails before any
// decryption is attempted.
func TestMountFailsOnCipherMismatch(t *testing.T) {
	cfg := testConfig(t)
	mountTest(t, cfg)

	mismatched := cfg
	mismatched.Cipher = "aes256gcm"
	_, err := Mount(context.Background(), mismatched, keystore.StaticPassword("correct horse battery staple"))
	require.ErrorIs(t, err, apferrors.ErrInvalidDataDirStruct)
}

// TestStrayContentTmpIsCleanedOnMount verifies that a leftover
// "<ino>.<fh>.tmp" under contents/ is removed by Mount and does not affect
// the committed content.
func TestStrayContentTmpIsCleanedOnMount(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	fs := mountTest(t, cfg)

	fh, _, _, err := fs.Create(ctx, types.RootIno, "f.txt", CreateAttr{Kind: types.RegularFile, Perm: 0o644}, false, true)
	require.NoError(t, err)
	ino := mustLookupIno(t, fs, "f.txt")
	_, err = fs.Write(ctx, ino, fh, 0, []byte("stable content"))
	require.NoError(t, err)
	require.NoError(t, fs.Release(ctx, ino, fh))

	strayPath := filepath.Join(cfg.DataDir, contentsSubdir, "999.7.tmp")
	require.NoError(t, os.WriteFile(strayPath, []byte("garbage"), 0o600))

	fs2, err := Mount(ctx, cfg, keystore.StaticPassword("correct horse battery staple"))
	require.NoError(t, err)

	_, err = os.Stat(strayPath)
	require.True(t, os.IsNotExist(err))

	rec, ok, err := fs2.FindByName(ctx, types.RootIno, "f.txt")
	require.NoError(t, err)
	require.True(t, ok)
	rfh, _, err := fs2.Open(ctx, rec.Ino, true, false)
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err := fs2.Read(ctx, rec.Ino, rfh, 0, buf)
	require.NoError(t, err)
	require.Equal(t, "stable content", string(buf[:n]))
}

// TestSameNameUnderDifferentParentsDoesNotCollide verifies that two files
// with the same plaintext name under different parent directories are
// independent entries, not aliases of one another.
func TestSameNameUnderDifferentParentsDoesNotCollide(t *testing.T) {
	ctx := context.Background()
	fs := mountTest(t, testConfig(t))

	_, _, _, err := fs.Create(ctx, types.RootIno, "d1", CreateAttr{Kind: types.Directory, Perm: 0o755}, false, false)
	require.NoError(t, err)
	d1, _, err := fs.FindByName(ctx, types.RootIno, "d1")
	require.NoError(t, err)

	_, _, _, err = fs.Create(ctx, types.RootIno, "d2", CreateAttr{Kind: types.Directory, Perm: 0o755}, false, false)
	require.NoError(t, err)
	d2, _, err := fs.FindByName(ctx, types.RootIno, "d2")
	require.NoError(t, err)

	_, _, _, err = fs.Create(ctx, d1.Ino, "same.txt", CreateAttr{Kind: types.RegularFile, Perm: 0o644}, false, false)
	require.NoError(t, err)
	_, _, _, err = fs.Create(ctx, d2.Ino, "same.txt", CreateAttr{Kind: types.RegularFile, Perm: 0o644}, false, false)
	require.NoError(t, err)

	e1, ok, err := fs.FindByName(ctx, d1.Ino, "same.txt")
	require.NoError(t, err)
	require.True(t, ok)
	e2, ok, err := fs.FindByName(ctx, d2.Ino, "same.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, e1.Ino, e2.Ino)
}

func TestChangePasswordThenReopenWithNewPassword(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	fs := mountTest(t, cfg)

	require.NoError(t, fs.ChangePassword(ctx, "correct horse battery staple", "new password entirely"))

	_, err := Mount(ctx, cfg, keystore.StaticPassword("correct horse battery staple"))
	require.ErrorIs(t, err, apferrors.ErrInvalidPassword)

	fs2, err := Mount(ctx, cfg, keystore.StaticPassword("new password entirely"))
	require.NoError(t, err)
	_, err = fs2.GetAttr(ctx, types.RootIno)
	require.NoError(t, err)
}

package keystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/crypto"
)

func fastKDF() crypto.KDFParams {
	return crypto.KDFParams{TimeCost: 1, MemoryKiB: 8 * 1024, Parallelism: 1}
}

func TestBootstrapThenUnlockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, crypto.SuiteChaCha20Poly1305, fastKDF(), StaticPassword("correct horse"), time.Minute)
	require.NoError(t, err)

	key1, err := s.MasterKey(context.Background())
	require.NoError(t, err)
	require.Len(t, key1, crypto.KeyLen)

	s.cache.Clear()
	key2, err := s.MasterKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, key1, key2)
}

func TestReopenExistingStoreWithSamePassword(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, crypto.SuiteChaCha20Poly1305, fastKDF(), StaticPassword("hunter2"), time.Minute)
	require.NoError(t, err)
	key1, err := s1.MasterKey(context.Background())
	require.NoError(t, err)

	s2, err := Open(dir, crypto.SuiteChaCha20Poly1305, fastKDF(), StaticPassword("hunter2"), time.Minute)
	require.NoError(t, err)
	key2, err := s2.MasterKey(context.Background())
	require.NoError(t, err)

	require.Equal(t, key1, key2)
}

func TestWrongPasswordRejected(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, crypto.SuiteChaCha20Poly1305, fastKDF(), StaticPassword("right"), time.Minute)
	require.NoError(t, err)

	s2, err := Open(dir, crypto.SuiteChaCha20Poly1305, fastKDF(), StaticPassword("wrong"), time.Minute)
	require.NoError(t, err)

	_, err = s2.MasterKey(context.Background())
	require.ErrorIs(t, err, apferrors.ErrInvalidPassword)
}

func TestChangePasswordThenUnlockWithNewOne(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, crypto.SuiteChaCha20Poly1305, fastKDF(), StaticPassword("old-pw"), time.Minute)
	require.NoError(t, err)
	keyBefore, err := s.MasterKey(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.ChangePassword(context.Background(), "old-pw", "new-pw"))

	s.cache.Clear()
	s2, err := Open(dir, crypto.SuiteChaCha20Poly1305, fastKDF(), StaticPassword("new-pw"), time.Minute)
	require.NoError(t, err)
	keyAfter, err := s2.MasterKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, keyBefore, keyAfter)

	s3, err := Open(dir, crypto.SuiteChaCha20Poly1305, fastKDF(), StaticPassword("old-pw"), time.Minute)
	require.NoError(t, err)
	_, err = s3.MasterKey(context.Background())
	require.ErrorIs(t, err, apferrors.ErrInvalidPassword)
}

func TestChangePasswordRejectsWrongOldPassword(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, crypto.SuiteChaCha20Poly1305, fastKDF(), StaticPassword("old-pw"), time.Minute)
	require.NoError(t, err)

	err = s.ChangePassword(context.Background(), "not-old-pw", "new-pw")
	require.ErrorIs(t, err, apferrors.ErrInvalidPassword)
}

func TestExpiringSecretExpiresAfterTTL(t *testing.T) {
	c := NewExpiringSecret(10 * time.Millisecond)
	c.Set([]byte("secret"))
	_, ok := c.Get()
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get()
	require.False(t, ok)
}

func TestInvalidDataDirStructRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeWrapped(dir+"/key.enc", crypto.SuiteChaCha20Poly1305, make([]byte, crypto.KeyLen), make([]byte, crypto.KeyLen), make([]byte, 32)))

	_, err := Open(dir, crypto.SuiteChaCha20Poly1305, fastKDF(), StaticPassword("x"), time.Minute)
	require.ErrorIs(t, err, apferrors.ErrInvalidDataDirStruct)
}

// File: internal/keystore/store.go
package keystore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/crypto"
)

const (
	keyFileName  = "key.enc"
	saltFileName = "key.salt"
)

// Store owns the wrapped master key for one data directory: key.enc and
// key.salt under securityDir (spec.md §3.1, §4.3).
type Store struct {
	securityDir string
	suiteName   crypto.SuiteName
	kdfParams   crypto.KDFParams
	passwords   PasswordProvider
	cache       *ExpiringSecret
}

// Open loads an existing key store, or bootstraps one on first mount if
// securityDir is empty of both key.enc and key.salt. It does not yet
// derive the master key; call MasterKey to unlock.
func Open(securityDir string, suiteName crypto.SuiteName, kdfParams crypto.KDFParams, passwords PasswordProvider, ttl time.Duration) (*Store, error) {
	s := &Store{
		securityDir: securityDir,
		suiteName:   suiteName,
		kdfParams:   kdfParams,
		passwords:   passwords,
		cache:       NewExpiringSecret(ttl),
	}

	keyPath := filepath.Join(securityDir, keyFileName)
	saltPath := filepath.Join(securityDir, saltFileName)

	_, keyErr := os.Stat(keyPath)
	_, saltErr := os.Stat(saltPath)
	switch {
	case os.IsNotExist(keyErr) && os.IsNotExist(saltErr):
		if err := s.bootstrap(); err != nil {
			return nil, err
		}
	case keyErr == nil && saltErr == nil:
		// existing store; unlocked lazily via MasterKey
	default:
		return nil, apferrors.ErrInvalidDataDirStruct
	}
	return s, nil
}

// bootstrap runs spec.md §4.3 step 1: generate K, H(K), a random salt, and
// persist the wrapped key store.
func (s *Store) bootstrap() error {
	password, err := s.passwords.Password(context.Background())
	if err != nil {
		return err
	}

	key, err := crypto.GenerateMasterKey()
	if err != nil {
		return err
	}
	hash, err := crypto.HashKey(key)
	if err != nil {
		return err
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(s.securityDir, saltFileName), salt, 0o600); err != nil {
		return apferrors.Io("write key.salt", err)
	}

	wrapKey := crypto.DeriveWrapKey(password, salt, s.kdfParams)
	if err := writeWrapped(filepath.Join(s.securityDir, keyFileName), s.suiteName, wrapKey, key, hash); err != nil {
		return err
	}

	s.cache.Set(key)
	return nil
}

// MasterKey returns the cached master key, re-deriving it from the
// password provider if the cache is empty or has expired (spec.md §4.3
// step 4).
func (s *Store) MasterKey(ctx context.Context) ([]byte, error) {
	if key, ok := s.cache.Get(); ok {
		return key, nil
	}

	salt, err := os.ReadFile(filepath.Join(s.securityDir, saltFileName))
	if err != nil {
		return nil, apferrors.Io("read key.salt", err)
	}

	password, err := s.passwords.Password(ctx)
	if err != nil {
		return nil, err
	}
	wrapKey := crypto.DeriveWrapKey(password, salt, s.kdfParams)

	key, hash, err := readWrapped(filepath.Join(s.securityDir, keyFileName), s.suiteName, wrapKey)
	if err != nil {
		return nil, err
	}

	gotHash, err := crypto.HashKey(key)
	if err != nil {
		return nil, err
	}
	if !bytesEqual(gotHash, hash) {
		return nil, apferrors.ErrInvalidPassword
	}

	s.cache.Set(key)
	return key, nil
}

// ChangePassword implements spec.md §4.3 step 3: it re-derives the wrap
// key under the new password and rewrites key.enc in place. The salt does
// not need to change.
func (s *Store) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	salt, err := os.ReadFile(filepath.Join(s.securityDir, saltFileName))
	if err != nil {
		return apferrors.Io("read key.salt", err)
	}

	oldWrapKey := crypto.DeriveWrapKey(oldPassword, salt, s.kdfParams)
	key, hash, err := readWrapped(filepath.Join(s.securityDir, keyFileName), s.suiteName, oldWrapKey)
	if err != nil {
		return err
	}
	gotHash, err := crypto.HashKey(key)
	if err != nil {
		return err
	}
	if !bytesEqual(gotHash, hash) {
		return apferrors.ErrInvalidPassword
	}

	newWrapKey := crypto.DeriveWrapKey(newPassword, salt, s.kdfParams)
	if err := writeWrapped(filepath.Join(s.securityDir, keyFileName), s.suiteName, newWrapKey, key, hash); err != nil {
		return err
	}

	s.cache.Set(key)
	_ = ctx
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

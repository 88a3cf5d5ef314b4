// File: internal/crypto/kdf.go
package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"

	"github.com/cryptofs/cryptfs/internal/apferrors"
)

// SaltLen is the size of the random salt persisted in key.salt.
const SaltLen = 16

// KDFParams tunes the Argon2id cost. The zero value is not usable; callers
// get sane defaults from DefaultKDFParams (which internal/config's
// defaults mirror).
type KDFParams struct {
	TimeCost    uint32
	MemoryKiB   uint32
	Parallelism uint8
}

// DefaultKDFParams matches the teacher spec's "production" profile: modest
// enough to unlock in well under a second on a laptop, expensive enough to
// slow down offline guessing.
var DefaultKDFParams = KDFParams{TimeCost: 1, MemoryKiB: 64 * 1024, Parallelism: 4}

// GenerateSalt draws fresh random salt bytes for first-mount key wrapping.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, apferrors.Io("generate salt", err)
	}
	return salt, nil
}

// DeriveWrapKey turns (password, salt) into the 32-byte key that wraps the
// master key on disk, via Argon2id (spec.md §4.1/§4.3).
func DeriveWrapKey(password string, salt []byte, params KDFParams) []byte {
	return argon2.IDKey([]byte(password), salt, params.TimeCost, params.MemoryKiB, params.Parallelism, KeyLen)
}

// GenerateMasterKey draws a fresh random 32-byte master key.
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, KeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, apferrors.Io("generate master key", err)
	}
	return key, nil
}

// HashKey computes H(key), the integrity hash stored alongside the master
// key (spec.md §4.1's hashing helper, §4.3 step 1). It uses BLAKE2b-256
// from golang.org/x/crypto; name hashing (HMAC) and HKDF in this package
// use SHA-256.
func HashKey(key []byte) ([]byte, error) {
	sum := blake2b.Sum256(key)
	return sum[:], nil
}

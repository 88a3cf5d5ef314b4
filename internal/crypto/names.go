// File: internal/crypto/names.go
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/types"
)

// sentinelSelf and sentinelParent are the on-disk stand-ins for "." and
// "..": they are hashed/encrypted like any other name so a directory
// listing never leaks which entry is which before the payload is
// decrypted (spec.md §4.1 "reserved names").
const (
	sentinelSelf   = "$."
	sentinelParent = "$.."
)

// ReservedName maps a plaintext name to its on-disk sentinel spelling, or
// returns it unchanged if it isn't "." or "..".
func ReservedName(name string) string {
	switch name {
	case types.SelfName:
		return sentinelSelf
	case types.ParentName:
		return sentinelParent
	default:
		return name
	}
}

// UnreservedName is the inverse of ReservedName, applied after decrypting
// an entry payload so callers never see the sentinel spellings.
func UnreservedName(name string) string {
	switch name {
	case sentinelSelf:
		return types.SelfName
	case sentinelParent:
		return types.ParentName
	default:
		return name
	}
}

// nameHashKeyInfo, contentKeyInfo and nameEncKeyInfo HKDF-expand the master
// key into three independent sub-keys, so a leak of the name-indexing key
// can never be used to forge or decrypt file content and vice versa (spec.md §4.1
// mandates only that name hashing be "keyed"; this repo derives a
// dedicated key rather than reusing the master key directly).
var (
	nameHashKeyInfo = []byte("cryptfs/name-hash/v1")
	contentKeyInfo  = []byte("cryptfs/content/v1")
	nameEncKeyInfo  = []byte("cryptfs/name-enc/v1")
)

// deriveSubKey HKDF-expands masterKey into a 32-byte sub-key bound to info.
func deriveSubKey(masterKey []byte, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, nil, info)
	sub := make([]byte, KeyLen)
	if _, err := io.ReadFull(r, sub); err != nil {
		return nil, apferrors.Encryption("derive sub-key", err)
	}
	return sub, nil
}

// NameHashKey derives the sub-key used by HashName.
func NameHashKey(masterKey []byte) ([]byte, error) { return deriveSubKey(masterKey, nameHashKeyInfo) }

// ContentKey derives the sub-key used to encrypt file/inode/directory
// content streams.
func ContentKey(masterKey []byte) ([]byte, error) { return deriveSubKey(masterKey, contentKeyInfo) }

// NameEncKey derives the sub-key used to encrypt the plaintext name stored
// inside a directory entry payload.
func NameEncKey(masterKey []byte) ([]byte, error) { return deriveSubKey(masterKey, nameEncKeyInfo) }

// HashName computes hash_name(name, key): a keyed HMAC-SHA256 MAC of the
// (possibly sentinel-remapped) plaintext name, lower-hex encoded. It is
// both the lookup key and the collision-resistant on-disk filename for a
// directory entry (spec.md §4.1, §4.5).
func HashName(name string, nameHashKey []byte) string {
	mac := hmac.New(sha256.New, nameHashKey)
	mac.Write([]byte(ReservedName(name)))
	return hex.EncodeToString(mac.Sum(nil))
}

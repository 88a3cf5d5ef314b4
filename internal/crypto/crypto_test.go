package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuiteRoundTrip(t *testing.T) {
	for _, name := range []SuiteName{SuiteChaCha20Poly1305, SuiteAES256GCM} {
		name := name
		t.Run(string(name), func(t *testing.T) {
			key := make([]byte, KeyLen)
			for i := range key {
				key[i] = byte(i)
			}
			suite, err := NewSuite(name, key)
			require.NoError(t, err)

			nonce, err := suite.RandomNonce()
			require.NoError(t, err)

			plaintext := []byte("hello, encrypted world")
			aad := []byte{0, 0, 0, 0, 0, 0, 0, 7}

			ciphertext := suite.Seal(nonce, aad, plaintext)
			assert.Equal(t, len(plaintext)+suite.OverheadLen(), len(ciphertext))

			got, err := suite.Open(nonce, aad, ciphertext)
			require.NoError(t, err)
			assert.Equal(t, plaintext, got)

			// tamper with a single byte -> must fail closed
			ciphertext[0] ^= 0xFF
			_, err = suite.Open(nonce, aad, ciphertext)
			assert.Error(t, err)
		})
	}
}

func TestNewSuiteRejectsBadKeyLen(t *testing.T) {
	_, err := NewSuite(SuiteAES256GCM, []byte("short"))
	assert.Error(t, err)
}

func TestHashNameIsKeyedAndStable(t *testing.T) {
	k1, err := NameHashKey(mustKey(t, 1))
	require.NoError(t, err)
	k2, err := NameHashKey(mustKey(t, 2))
	require.NoError(t, err)

	h1a := HashName("report.txt", k1)
	h1b := HashName("report.txt", k1)
	h2 := HashName("report.txt", k2)

	assert.Equal(t, h1a, h1b, "same key+name must hash identically")
	assert.NotEqual(t, h1a, h2, "different master keys must diverge")
	assert.Len(t, h1a, 64, "lower-hex of a 32-byte MAC is 64 chars")
}

func TestReservedNameRoundTrip(t *testing.T) {
	assert.Equal(t, "$.", ReservedName("."))
	assert.Equal(t, "$..", ReservedName(".."))
	assert.Equal(t, "notes", ReservedName("notes"))

	assert.Equal(t, ".", UnreservedName("$."))
	assert.Equal(t, "..", UnreservedName("$.."))
	assert.Equal(t, "notes", UnreservedName("notes"))
}

func TestSubKeysAreIndependent(t *testing.T) {
	master := mustKey(t, 5)
	nameKey, err := NameHashKey(master)
	require.NoError(t, err)
	contentKey, err := ContentKey(master)
	require.NoError(t, err)
	nameEncKey, err := NameEncKey(master)
	require.NoError(t, err)

	assert.NotEqual(t, nameKey, contentKey)
	assert.NotEqual(t, nameKey, nameEncKey)
	assert.NotEqual(t, contentKey, nameEncKey)
}

func TestHashKeyDeterministic(t *testing.T) {
	key := mustKey(t, 9)
	h1, err := HashKey(key)
	require.NoError(t, err)
	h2, err := HashKey(key)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 32)
}

func TestDeriveWrapKeyDependsOnSalt(t *testing.T) {
	saltA := []byte("0123456789abcdef")
	saltB := []byte("fedcba9876543210")
	params := KDFParams{TimeCost: 1, MemoryKiB: 8 * 1024, Parallelism: 1}

	a := DeriveWrapKey("correct horse battery staple", saltA, params)
	b := DeriveWrapKey("correct horse battery staple", saltB, params)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, KeyLen)
}

func mustKey(t *testing.T, seed byte) []byte {
	t.Helper()
	key := make([]byte, KeyLen)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

// File: internal/keystore/wrap.go
package keystore

import (
	"os"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/crypto"
)

// writeWrapped seals {key, hash} under wrapKey and writes
// nonce||ciphertext atomically to path.
func writeWrapped(path string, suiteName crypto.SuiteName, wrapKey, key, hash []byte) error {
	suite, err := crypto.NewSuite(suiteName, wrapKey)
	if err != nil {
		return err
	}
	nonce, err := suite.RandomNonce()
	if err != nil {
		return err
	}

	payload := make([]byte, 0, len(key)+len(hash))
	payload = append(payload, key...)
	payload = append(payload, hash...)
	ciphertext := suite.Seal(nonce, nil, payload)

	out := append(append([]byte(nil), nonce...), ciphertext...)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return apferrors.Io("write key store tmp", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apferrors.Io("commit key store", err)
	}
	return nil
}

// readWrapped opens and decrypts the key store at path under wrapKey.
func readWrapped(path string, suiteName crypto.SuiteName, wrapKey []byte) (key, hash []byte, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, apferrors.Io("read key store", err)
	}

	suite, err := crypto.NewSuite(suiteName, wrapKey)
	if err != nil {
		return nil, nil, err
	}

	nonceLen := suite.NonceLen()
	if len(raw) < nonceLen {
		return nil, nil, apferrors.Serialization("key store truncated", nil)
	}
	nonce := raw[:nonceLen]
	ciphertext := raw[nonceLen:]

	plaintext, err := suite.Open(nonce, nil, ciphertext)
	if err != nil {
		// A wrong password produces exactly this failure mode: the wrap
		// key derived from it won't authenticate the sealed payload.
		return nil, nil, apferrors.ErrInvalidPassword
	}
	if len(plaintext) != crypto.KeyLen+32 {
		return nil, nil, apferrors.Serialization("key store payload has unexpected length", nil)
	}
	return plaintext[:crypto.KeyLen], plaintext[crypto.KeyLen:], nil
}

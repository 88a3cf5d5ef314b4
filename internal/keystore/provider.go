// Package keystore implements the key store (spec.md §4.3): a random
// master key persisted encrypted under a password-derived key, with an
// integrity hash and a password-rotation operation. The master key is held
// behind a time-expiring cache so idle mounts don't keep key material
// resident indefinitely.
package keystore

import (
	"context"

	"github.com/cryptofs/cryptfs/internal/interfaces"
)

// PasswordProvider supplies the mount password on demand. The engine never
// prompts directly — that is the external adapter's job (spec.md §1's
// scope note on "password prompting"). It is an alias of
// interfaces.PasswordProvider so the contract is declared once, in
// internal/interfaces, and shared by every package that needs it.
type PasswordProvider = interfaces.PasswordProvider

// StaticPassword is a PasswordProvider that always returns the same
// in-memory password, useful for tests and for adapters that have already
// resolved credentials.
type StaticPassword string

// Password implements PasswordProvider.
func (p StaticPassword) Password(ctx context.Context) (string, error) {
	return string(p), nil
}

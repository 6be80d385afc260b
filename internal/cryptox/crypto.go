// Package cryptox holds password hashing primitives.
package cryptox

import (
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// PasswordHasher derives an opaque hash from a password and a salt and
// compares two hashes.
type PasswordHasher interface {
	Hash(password, salt string) []byte
	Equal(a, b []byte) bool
}

// Argon2Hasher is argon2id with fixed cost parameters.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32}
}

func (h *Argon2Hasher) Hash(password, salt string) []byte {
	return argon2.IDKey([]byte(password), []byte(salt), h.Time, h.Memory, h.Threads, h.KeyLen)
}

// Equal compares in constant time.
func (h *Argon2Hasher) Equal(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

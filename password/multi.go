package password

import (
	"errors"
	"strings"
)

var (
	// ErrUnsupportedHash is returned when an encoded hash uses an unknown scheme.
	ErrUnsupportedHash = errors.New("password: unsupported hash scheme")
	// ErrMalformedHash is returned when an encoded hash cannot be parsed.
	ErrMalformedHash = errors.New("password: malformed hash")
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Multi hashes with argon2id and verifies both argon2id and bcrypt hashes, so
// password history written under either scheme is checked.
type Multi struct {
	argon  *Argon2
	bcrypt *Bcrypt
}

// NewMulti combines the two hashers. bc may be nil to verify argon2id only.
func NewMulti(a *Argon2, bc *Bcrypt) *Multi {
	return &Multi{argon: a, bcrypt: bc}
}

// NewDefault returns a [Multi] with default argon2id parameters and bcrypt
// verification at the default cost.
func NewDefault() *Multi {
	a, _ := NewArgon2(DefaultArgon2Config())
	bc, _ := NewBcrypt(0)
	return NewMulti(a, bc)
}

// Hash hashes with argon2id.
func (m *Multi) Hash(password string) (string, error) {
	return m.argon.Hash(password)
}

// Verify dispatches on the hash prefix.
func (m *Multi) Verify(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		return m.argon.Verify(password, encoded)
	case m.bcrypt != nil && isBcrypt(encoded):
		return m.bcrypt.Verify(password, encoded)
	}
	return false, ErrUnsupportedHash
}

// NeedsRehash reports whether encoded should be replaced by a fresh argon2id
// hash: always for bcrypt, and for argon2id below the current parameters.
func (m *Multi) NeedsRehash(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return true, nil
	}
	return m.argon.NeedsRehash(encoded)
}

package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	argon2Prefix = "$argon2id$"
)

// Argon2Config holds argon2id cost parameters.
type Argon2Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate rejects parameters below the supported floor.
func (c Argon2Config) Validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("argon2 memory must be >= %d KiB", minMemoryKB)
	case c.Time < minTimeCost:
		return fmt.Errorf("argon2 time must be >= %d", minTimeCost)
	case c.Parallelism < minParallelism:
		return fmt.Errorf("argon2 parallelism must be >= %d", minParallelism)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("argon2 salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("argon2 key length must be >= %d", minKeyLength)
	}
	return nil
}

// Argon2 hashes passwords as PHC-encoded argon2id strings.
type Argon2 struct {
	config Argon2Config
}

type argon2Hash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// NewArgon2 returns an argon2id hasher, or an error if cfg is below the floor.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a fresh salted argon2id hash of password.
//
// The password bytes are used as given, without Unicode normalization.
//
//	Performance: dominated by Memory and Time.
func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		a.config.Memory, a.config.Time, a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. The comparison is constant time.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	h, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.parallelism, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the hasher's current config.
func (a *Argon2) NeedsRehash(encoded string) (bool, error) {
	h, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}
	return a.config.Memory > h.memory ||
		a.config.Time > h.time ||
		a.config.Parallelism > h.parallelism ||
		a.config.KeyLength != uint32(len(h.key)), nil
}

func decodeArgon2(encoded string) (*argon2Hash, error) {
	rest, ok := strings.CutPrefix(encoded, argon2Prefix)
	if !ok {
		return nil, ErrUnsupportedHash
	}

	parts := strings.Split(rest, "$")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: argon2id field count", ErrMalformedHash)
	}

	version, ok := strings.CutPrefix(parts[0], "v=")
	if !ok {
		return nil, fmt.Errorf("%w: argon2id version", ErrMalformedHash)
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return nil, fmt.Errorf("%w: argon2id version %q", ErrUnsupportedHash, version)
	}

	h := &argon2Hash{}
	if err := h.parseParams(parts[1]); err != nil {
		return nil, err
	}

	var err error
	if h.salt, err = decodeB64(parts[2]); err != nil || len(h.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: argon2id salt", ErrMalformedHash)
	}
	if h.key, err = decodeB64(parts[3]); err != nil || len(h.key) == 0 {
		return nil, fmt.Errorf("%w: argon2id key", ErrMalformedHash)
	}
	return h, nil
}

func (h *argon2Hash) parseParams(s string) error {
	seen := 0
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: argon2id parameter %q", ErrMalformedHash, pair)
		}
		switch name {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return fmt.Errorf("%w: argon2id memory", ErrMalformedHash)
			}
			h.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(v) < minTimeCost {
				return fmt.Errorf("%w: argon2id time", ErrMalformedHash)
			}
			h.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || uint8(v) < minParallelism {
				return fmt.Errorf("%w: argon2id parallelism", ErrMalformedHash)
			}
			h.parallelism = uint8(v)
		default:
			return fmt.Errorf("%w: argon2id parameter %q", ErrMalformedHash, name)
		}
		seen++
	}
	if seen != 3 || h.memory == 0 || h.time == 0 || h.parallelism == 0 {
		return fmt.Errorf("%w: argon2id parameters", ErrMalformedHash)
	}
	return nil
}

// decodeB64 accepts both padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Package auth hashes and verifies user passwords with Argon2id.
// Sessions and tokens belong to the external identity service.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Prevent DoS from huge passwords consuming CPU and memory during hashing.
const maxPasswordLength = 1024

// Params are the Argon2id cost parameters encoded into every hash.
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams are sensible costs for an interactive login path.
var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// ErrInvalidPassword is returned for empty or oversized passwords.
var ErrInvalidPassword = errors.New("password must be between 1 and 1024 bytes")

// Hasher hashes passwords with fixed parameters.
type Hasher struct {
	params Params
}

// NewHasher creates a hasher. Zero params fall back to DefaultParams.
func NewHasher(params Params) *Hasher {
	if params == (Params{}) {
		params = DefaultParams
	}
	return &Hasher{params: params}
}

// Hash returns the PHC-style encoding "$argon2id$v=19$m=..,t=..,p=..$salt$hash".
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" || len(password) > maxPasswordLength {
		return "", ErrInvalidPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. The parameters stored
// in encoded are used, so hashes made with older costs keep verifying.
// A malformed hash is reported as a mismatch, not an error.
func (h *Hasher) Verify(encoded, password string) bool {
	if len(password) > maxPasswordLength {
		return false
	}

	p, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false
	}

	test := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(key, test) == 1
}

// NeedsRehash reports whether encoded was made with different costs.
func (h *Hasher) NeedsRehash(encoded string) bool {
	p, salt, _, err := decodeHash(encoded)
	if err != nil {
		return true
	}
	p.SaltLength = uint32(len(salt)) //nolint:gosec // salt length is small
	return p != h.params
}

func decodeHash(encoded string) (p Params, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return p, nil, nil, errors.New("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("invalid version: %w", err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("incompatible version: %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("invalid parameters: %w", err)
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, nil, nil, fmt.Errorf("invalid salt encoding: %w", err)
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return p, nil, nil, fmt.Errorf("invalid hash encoding: %w", err)
	}

	p.KeyLength = uint32(len(key)) //nolint:gosec // key length is small
	return p, salt, key, nil
}

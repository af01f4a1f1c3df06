// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/reservd/reservd/internal/apperr"
)

// Supported password hashing algorithms.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

const (
	argon2SaltLen = 16
	argon2KeyLen  = 32

	// bcryptMaxPassword is the longest input bcrypt hashes.
	bcryptMaxPassword = 72
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted digest of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the digest.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid digest.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade reports whether hash was produced with a different
	// algorithm or weaker parameters than the hasher's own.
	NeedsUpgrade(hash string) bool
}

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time    uint32 `koanf:"time" yaml:"time"`
	Memory  uint32 `koanf:"memory" yaml:"memory"` // KiB
	Threads uint8  `koanf:"threads" yaml:"threads"`
}

// HasherConfig selects and tunes the hashing algorithm.
type HasherConfig struct {
	Algorithm  string       `koanf:"algorithm" yaml:"algorithm"`
	Argon2     Argon2Params `koanf:"argon2" yaml:"argon2"`
	BcryptCost int          `koanf:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// DefaultHasherConfig uses the OWASP-recommended argon2id parameters.
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		Algorithm:  AlgorithmArgon2id,
		Argon2:     Argon2Params{Time: 1, Memory: 64 * 1024, Threads: 4},
		BcryptCost: bcrypt.DefaultCost,
	}
}

// Hasher implements PasswordHasher. It hashes with the configured
// algorithm and verifies digests of either algorithm.
type Hasher struct {
	cfg HasherConfig
}

// NewPasswordHasher validates cfg and creates a Hasher.
func NewPasswordHasher(cfg HasherConfig) (*Hasher, error) {
	switch cfg.Algorithm {
	case AlgorithmArgon2id:
		if cfg.Argon2.Time == 0 || cfg.Argon2.Memory == 0 || cfg.Argon2.Threads == 0 {
			return nil, oops.Code("AUTH_HASHER_INVALID").
				With("argon2", cfg.Argon2).
				Errorf("argon2id time, memory and threads must be positive")
		}
	case AlgorithmBcrypt:
		if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
			return nil, oops.Code("AUTH_HASHER_INVALID").
				With("bcrypt_cost", cfg.BcryptCost).
				Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
		}
	default:
		return nil, oops.Code("AUTH_HASHER_INVALID").
			With("algorithm", cfg.Algorithm).
			Errorf("unsupported password algorithm %q", cfg.Algorithm)
	}
	return &Hasher{cfg: cfg}, nil
}

// NewArgon2idHasher creates a Hasher with the default argon2id parameters.
func NewArgon2idHasher() *Hasher {
	return &Hasher{cfg: DefaultHasherConfig()}
}

// Hash produces a digest of the password with the configured algorithm.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if h.cfg.Algorithm == AlgorithmBcrypt {
		if len(password) > bcryptMaxPassword {
			return "", oops.Code(apperr.CodeInvalidArgument).
				With("max", bcryptMaxPassword).
				Errorf("password must be at most %d bytes", bcryptMaxPassword)
		}
		digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cfg.BcryptCost)
		if err != nil {
			return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
		}
		return string(digest), nil
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	p := h.cfg.Argon2
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Time,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// MaxPasswordLength returns the longest password, in bytes, Hash accepts.
func (h *Hasher) MaxPasswordLength() int {
	if h.cfg.Algorithm == AlgorithmBcrypt {
		return bcryptMaxPassword
	}
	return MaxPasswordLength
}

// Verify checks if the password matches the digest, whichever algorithm
// produced it.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case err == bcrypt.ErrMismatchedHashAndPassword: //nolint:errorlint // sentinel returned unwrapped
			return false, nil
		default:
			return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
		}
	}

	d, err := parseArgon2(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), d.salt, d.params.Time, d.params.Memory, d.params.Threads, uint32(len(d.key))) //nolint:gosec // bounded in parseArgon2
	return subtle.ConstantTimeCompare(computed, d.key) == 1, nil
}

// NeedsUpgrade reports whether hash should be re-computed with the
// hasher's current configuration.
func (h *Hasher) NeedsUpgrade(hash string) bool {
	if h.cfg.Algorithm == AlgorithmBcrypt {
		if !isBcrypt(hash) {
			return true
		}
		cost, err := bcrypt.Cost([]byte(hash))
		return err != nil || cost < h.cfg.BcryptCost
	}

	d, err := parseArgon2(hash)
	if err != nil {
		return true
	}
	want := h.cfg.Argon2
	return d.params.Time < want.Time || d.params.Memory < want.Memory || d.params.Threads < want.Threads
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

type argon2Digest struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func parseArgon2(encodedHash string) (argon2Digest, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != AlgorithmArgon2id {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	// Threads must fit in uint8 to avoid silent truncation.
	if threads == 0 || threads > 255 || time == 0 || memory == 0 {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").
			Errorf("invalid argon2 parameters m=%d,t=%d,p=%d", memory, time, threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(key) == 0 || len(key) > 1<<10 {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	return argon2Digest{
		params: Argon2Params{Time: time, Memory: memory, Threads: uint8(threads)},
		salt:   salt,
		key:    key,
	}, nil
}

var _ PasswordHasher = (*Hasher)(nil)

package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/account-service/pkg/jobs"
)

// ErrUnsupportedHash is returned when a stored hash has an unknown format.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// PasswordHasher hashes and verifies passwords. Implementations never retain plaintext.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

// HasherConfig selects the algorithm and its cost parameters.
type HasherConfig struct {
	Algorithm         string
	Argon2MemoryKiB   uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
	BcryptCost        int
}

const (
	algorithmArgon2id = "argon2id"
	algorithmBcrypt   = "bcrypt"

	argon2SaltLen = 16
	argon2KeyLen  = 32
)

type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

// StandardHasher produces Argon2id hashes in PHC string format and still
// verifies bcrypt hashes.
type StandardHasher struct {
	algorithm  string
	argon      argon2Params
	bcryptCost int
}

// NewPasswordHasher builds a hasher, filling unset parameters with defaults.
func NewPasswordHasher(cfg HasherConfig) *StandardHasher {
	h := &StandardHasher{
		algorithm: cfg.Algorithm,
		argon: argon2Params{
			memory:      cfg.Argon2MemoryKiB,
			iterations:  cfg.Argon2Iterations,
			parallelism: cfg.Argon2Parallelism,
		},
		bcryptCost: cfg.BcryptCost,
	}
	if h.algorithm == "" {
		h.algorithm = algorithmArgon2id
	}
	if h.argon.memory == 0 {
		h.argon.memory = 64 * 1024
	}
	if h.argon.iterations == 0 {
		h.argon.iterations = 1
	}
	if h.argon.parallelism == 0 {
		h.argon.parallelism = 4
	}
	if h.bcryptCost < bcrypt.MinCost || h.bcryptCost > bcrypt.MaxCost {
		h.bcryptCost = bcrypt.DefaultCost
	}
	return h
}

// Hash returns a freshly salted encoding of plaintext.
func (h *StandardHasher) Hash(_ context.Context, plaintext string) (string, error) {
	if h.algorithm == algorithmBcrypt {
		out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.bcryptCost)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.argon.iterations, h.argon.memory, h.argon.parallelism, argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.argon.memory,
		h.argon.iterations,
		h.argon.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches encoded. A mismatch is not an error.
func (h *StandardHasher) Verify(_ context.Context, plaintext, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		params, salt, want, err := decodeArgon2(encoded)
		if err != nil {
			return false, err
		}
		got := argon2.IDKey([]byte(plaintext), salt, params.iterations, params.memory, params.parallelism, uint32(len(want)))
		return subtle.ConstantTimeCompare(got, want) == 1, nil
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsRehash reports whether encoded was produced with another algorithm or weaker parameters.
func (h *StandardHasher) NeedsRehash(encoded string) bool {
	if h.algorithm == algorithmBcrypt {
		if !isBcrypt(encoded) {
			return true
		}
		cost, err := bcrypt.Cost([]byte(encoded))
		return err != nil || cost < h.bcryptCost
	}

	params, _, _, err := decodeArgon2(encoded)
	if err != nil {
		return true
	}
	return params.memory < h.argon.memory ||
		params.iterations < h.argon.iterations ||
		params.parallelism < h.argon.parallelism
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") || strings.HasPrefix(encoded, "$2b$") || strings.HasPrefix(encoded, "$2y$")
}

func decodeArgon2(encoded string) (argon2Params, []byte, []byte, error) {
	var p argon2Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != algorithmArgon2id {
		return p, nil, nil, ErrUnsupportedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, ErrUnsupportedHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return p, nil, nil, ErrUnsupportedHash
	}
	if p.memory == 0 || p.iterations == 0 || p.parallelism == 0 {
		return p, nil, nil, ErrUnsupportedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, ErrUnsupportedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrUnsupportedHash
	}
	return p, salt, key, nil
}

// PooledHasher runs hashing on a bounded worker queue so CPU-heavy
// password work does not starve cheap requests.
type PooledHasher struct {
	inner PasswordHasher
	queue *jobs.Queue
}

// NewPooledHasher wraps inner. A nil queue runs work on the caller's goroutine.
func NewPooledHasher(inner PasswordHasher, queue *jobs.Queue) *PooledHasher {
	return &PooledHasher{inner: inner, queue: queue}
}

// Hash implements PasswordHasher.
func (p *PooledHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if p.queue == nil {
		return p.inner.Hash(ctx, plaintext)
	}
	var out string
	err := p.queue.Do(ctx, jobs.Job{Type: "hash", Run: func(ctx context.Context) error {
		var err error
		out, err = p.inner.Hash(ctx, plaintext)
		return err
	}})
	// out is only safe to read once the worker has reported back.
	if err != nil {
		return "", err
	}
	return out, nil
}

// Verify implements PasswordHasher.
func (p *PooledHasher) Verify(ctx context.Context, plaintext, encoded string) (bool, error) {
	if p.queue == nil {
		return p.inner.Verify(ctx, plaintext, encoded)
	}
	var ok bool
	err := p.queue.Do(ctx, jobs.Job{Type: "verify", Run: func(ctx context.Context) error {
		var err error
		ok, err = p.inner.Verify(ctx, plaintext, encoded)
		return err
	}})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// NeedsRehash implements PasswordHasher.
func (p *PooledHasher) NeedsRehash(encoded string) bool {
	return p.inner.NeedsRehash(encoded)
}

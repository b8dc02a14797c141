package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

// argon2id parameters tuned for a self-hosted application running on
// modest hardware (2-4 CPU cores, 2-4 GB RAM). These follow OWASP
// recommendations for argon2id: memory=64MB, iterations=3, parallelism=4.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = errors.New("password cannot be empty")

// ErrInvalidHash is returned by Verify when the stored hash cannot be parsed.
var ErrInvalidHash = errors.New("invalid password hash")

// PasswordHasher provides one-way adaptive hashing and constant-time
// verification of passwords.
type PasswordHasher interface {
	// Hash produces an encoded hash of the password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an error if
	// the hash is unreadable or ctx ends while waiting for a slot.
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// Argon2idHasher implements PasswordHasher with argon2id. Hashing is memory
// hard, so at most a fixed number of hashes run at once; callers beyond that
// wait for a slot or give up when their context ends.
type Argon2idHasher struct {
	slots *semaphore.Weighted

	// time, memory and threads are fixed at construction. Tests use
	// cheaper values; Verify always reads parameters from the hash.
	time    uint32
	memory  uint32
	threads uint8
}

// NewArgon2idHasher creates a hasher that runs at most concurrency hashes
// at a time. Non-positive values fall back to GOMAXPROCS.
func NewArgon2idHasher(concurrency int) *Argon2idHasher {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Argon2idHasher{
		slots:   semaphore.NewWeighted(int64(concurrency)),
		time:    argonTime,
		memory:  argonMemory,
		threads: argonThreads,
	}
}

// Hash creates an argon2id hash of the given password. The output format is:
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
// A fresh salt is drawn every call, so the same password never yields the
// same output twice.
func (h *Argon2idHasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for hash slot: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, argonKeyLen)
	h.slots.Release(1)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))

	return encoded, nil
}

// Verify checks a plaintext password against an argon2id hash string.
func (h *Argon2idHasher) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrInvalidHash
	}

	var memory, iterations, parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if parallelism == 0 || parallelism > 255 {
		return false, fmt.Errorf("%w: parallelism %d out of range", ErrInvalidHash, parallelism)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expectedHash) == 0 {
		return false, ErrInvalidHash
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("waiting for hash slot: %w", err)
	}
	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(parallelism), uint32(len(expectedHash)))
	h.slots.Release(1)

	// Constant-time comparison to prevent timing attacks.
	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1, nil
}

package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

// newCheapHasher keeps the argon2id code path but with tiny cost
// parameters so tests stay fast.
func newCheapHasher(concurrency int64) *Argon2idHasher {
	return &Argon2idHasher{
		slots:   semaphore.NewWeighted(concurrency),
		time:    1,
		memory:  1024,
		threads: 1,
	}
}

func TestArgon2idHasher_RoundTrip(t *testing.T) {
	h := newCheapHasher(2)
	ctx := context.Background()

	hash, err := h.Hash(ctx, "correct-horse-battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := h.Verify(ctx, "correct-horse-battery", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, "correct-horse-batterz", hash)
	require.NoError(t, err, "a wrong password is not an error")
	assert.False(t, ok)
}

func TestArgon2idHasher_FreshSaltEveryHash(t *testing.T) {
	h := newCheapHasher(1)
	ctx := context.Background()

	a, err := h.Hash(ctx, "same-password")
	require.NoError(t, err)
	b, err := h.Hash(ctx, "same-password")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestArgon2idHasher_DefaultParameters(t *testing.T) {
	h := NewArgon2idHasher(0)
	assert.Equal(t, uint32(argonTime), h.time)
	assert.Equal(t, uint32(argonMemory), h.memory)
	assert.Equal(t, uint8(argonThreads), h.threads)
}

func TestArgon2idHasher_EmptyPassword(t *testing.T) {
	_, err := newCheapHasher(1).Hash(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestArgon2idHasher_InvalidHashes(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"bcrypt", "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"},
		{"too few parts", "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA"},
		{"bad params", "$argon2id$v=19$garbage$c2FsdA$aGFzaA"},
		{"zero parallelism", "$argon2id$v=19$m=1024,t=1,p=0$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA"},
		{"bad hash", "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$!!!"},
	}

	h := newCheapHasher(1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := h.Verify(context.Background(), "password", tt.hash)
			assert.False(t, ok)
			assert.ErrorIs(t, err, ErrInvalidHash)
		})
	}
}

func TestArgon2idHasher_WaitsForSlot(t *testing.T) {
	h := newCheapHasher(1)
	require.NoError(t, h.slots.Acquire(context.Background(), 1))
	defer h.slots.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Hash(ctx, "password123")
	assert.ErrorIs(t, err, context.Canceled)
}

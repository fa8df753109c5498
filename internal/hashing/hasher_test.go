package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndVerify(t *testing.T) {
	t.Parallel()

	h := NewHasher(bcrypt.MinCost)

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		hash, err := h.Hash("correct horse battery staple")
		require.NoError(t, err)
		require.NotEmpty(t, hash)
		assert.NotContains(t, hash, "correct horse")

		ok, err := h.Verify("correct horse battery staple", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong password is not an error", func(t *testing.T) {
		t.Parallel()

		hash, err := h.Hash("password-one")
		require.NoError(t, err)

		ok, err := h.Verify("password-two", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("same plaintext hashes differently", func(t *testing.T) {
		t.Parallel()

		first, err := h.Hash("repeated secret")
		require.NoError(t, err)
		second, err := h.Hash("repeated secret")
		require.NoError(t, err)

		assert.NotEqual(t, first, second)

		for _, hash := range []string{first, second} {
			ok, err := h.Verify("repeated secret", hash)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})

	t.Run("malformed stored hash is an error", func(t *testing.T) {
		t.Parallel()

		ok, err := h.Verify("anything", "not-a-bcrypt-hash")
		assert.False(t, ok)
		require.ErrorIs(t, err, ErrMalformedHash)
	})

	t.Run("empty stored hash is an error", func(t *testing.T) {
		t.Parallel()

		ok, err := h.Verify("anything", "")
		assert.False(t, ok)
		require.ErrorIs(t, err, ErrMalformedHash)
	})
}

func TestNewHasher_CostClamping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(100).cost)
	assert.Equal(t, bcrypt.MinCost, NewHasher(bcrypt.MinCost).cost)
}

func TestIdentifierHash(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, IdentifierHash("user@example.com"), IdentifierHash("user@example.com"))
	})

	t.Run("hex sha256", func(t *testing.T) {
		t.Parallel()
		assert.Len(t, IdentifierHash("user@example.com"), 64)
	})

	t.Run("distinct inputs", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t, IdentifierHash("a@example.com"), IdentifierHash("b@example.com"))
	})
}

package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-pass", hash)
	require.True(t, h.Verify(hash, "s3cret-pass"))
	require.False(t, h.Verify(hash, "wrong-pass"))
	require.False(t, h.Verify("", "s3cret-pass"))
}

func TestHasher_UniqueSalts(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	a, err := h.Hash("samepassword")
	require.NoError(t, err)
	b, err := h.Hash("samepassword")
	require.NoError(t, err)
	require.NotEqual(t, a, b, "hashes should differ due to unique salts")
}

func TestNewHasher_CostBounds(t *testing.T) {
	require.Equal(t, DefaultBcryptCost, NewHasher(0).Cost)
	require.Equal(t, DefaultBcryptCost, NewHasher(99).Cost)
	require.Equal(t, 10, NewHasher(10).Cost)
}

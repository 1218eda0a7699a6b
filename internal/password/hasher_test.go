package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("pw123")
	require.NoError(t, err)
	assert.NotEqual(t, "pw123", hash)
	assert.True(t, h.Verify("pw123", hash))
	assert.False(t, h.Verify("pw124", hash))
	assert.False(t, h.Verify("", hash))
}

func TestHashIsSalted(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	first, err := h.Hash("same")
	require.NoError(t, err)
	second, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("same", first))
	assert.True(t, h.Verify("same", second))
}

func TestVerifyMalformedHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	for _, hash := range []string{"", "plain", "$2a$10$short", "$9z$04$abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ01"} {
		assert.False(t, h.Verify("anything", hash), "hash %q", hash)
	}
}

func TestHashRejectsEmpty(t *testing.T) {
	_, err := NewHasher(bcrypt.MinCost).Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestHashRejectsTooLong(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	_, err := h.Hash(strings.Repeat("a", MaxLength+1))
	assert.ErrorIs(t, err, ErrTooLong)

	_, err = h.Hash(strings.Repeat("a", MaxLength))
	assert.NoError(t, err)
}

func TestNewHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(99).cost)
	assert.Equal(t, 12, NewHasher(12).cost)
}

func TestVerifyDummy(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	assert.False(t, h.VerifyDummy("session-gate/dummy"))
	assert.False(t, h.VerifyDummy("anything"))
}

func TestVerifyRejectsSuffixBeyondMaxLength(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	pw := strings.Repeat("a", MaxLength)

	hash, err := h.Hash(pw)
	require.NoError(t, err)

	assert.True(t, h.Verify(pw, hash))
	assert.False(t, h.Verify(pw+"EXTRA", hash))
	assert.False(t, h.Verify(pw+"a", hash))
}

func TestNewHasherPreparesDummyHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	require.NotEmpty(t, h.dummyHash)

	cost, err := bcrypt.Cost(h.dummyHash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
	assert.False(t, h.VerifyDummy(strings.Repeat("a", MaxLength+10)))
}

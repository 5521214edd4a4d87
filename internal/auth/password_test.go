package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasher_Bcrypt(t *testing.T) {
	h, err := NewPasswordHasher("")
	require.NoError(t, err)

	hash, err := h.Hash("chuva-forte")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2"))

	ok, err := h.Verify("chuva-forte", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHasher_Argon2id(t *testing.T) {
	h, err := NewPasswordHasher("argon2id")
	require.NoError(t, err)

	hash, err := h.Hash("chuva-forte")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := h.Verify("chuva-forte", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPasswordHasher_VerifiesEitherAlgorithm(t *testing.T) {
	bcryptHasher, err := NewPasswordHasher(HasherBcrypt)
	require.NoError(t, err)
	argonHasher, err := NewPasswordHasher(HasherArgon2id)
	require.NoError(t, err)

	legacy, err := bcryptHasher.Hash("segredo")
	require.NoError(t, err)

	ok, err := argonHasher.Verify("segredo", legacy)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPasswordHasher_RejectsUnknownAlgorithm(t *testing.T) {
	_, err := NewPasswordHasher("md5")
	require.Error(t, err)
}

func TestPasswordHasher_MalformedHash(t *testing.T) {
	h, err := NewPasswordHasher(HasherBcrypt)
	require.NoError(t, err)

	ok, err := h.Verify("segredo", "not-a-hash")
	assert.False(t, ok)
	assert.Error(t, err)
}

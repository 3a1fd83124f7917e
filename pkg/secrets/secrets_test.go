package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idregistry/pkg/domain-errors"
)

func TestGenerate(t *testing.T) {
	first, err := Generate()
	require.NoError(t, err)
	second, err := Generate()
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestHashAndVerify(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		secret, err := Generate()
		require.NoError(t, err)

		hash, err := Hash(secret)
		require.NoError(t, err)
		assert.NotEqual(t, secret, hash)

		assert.NoError(t, Verify(secret, hash))
	})

	t.Run("wrong secret fails verification", func(t *testing.T) {
		hash, err := Hash("correct-secret")
		require.NoError(t, err)

		err = Verify("wrong-secret", hash)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("empty secret cannot be hashed", func(t *testing.T) {
		_, err := Hash("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

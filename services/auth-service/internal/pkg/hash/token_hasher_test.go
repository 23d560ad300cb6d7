package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenHasher_Generate(t *testing.T) {
	hasher := NewTokenHasher()

	value, hash, err := hasher.Generate()
	require.NoError(t, err)
	assert.Len(t, value, 43)
	assert.NotEqual(t, value, hash)
	assert.Equal(t, hash, hasher.Hash(value))
	assert.NotEqual(t, hash, hasher.Hash(value+"x"))

	other, _, err := hasher.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, value, other)
}

func TestTokenHasher_HashIsDeterministic(t *testing.T) {
	hasher := NewTokenHasher()
	assert.Equal(t, hasher.Hash("abc"), hasher.Hash("abc"))
	assert.NotEqual(t, hasher.Hash("abc"), hasher.Hash("abd"))
}

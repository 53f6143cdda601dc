package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomString(t *testing.T) {
	s, err := RandomString(6, UpperAlphabet)
	require.NoError(t, err)
	assert.Len(t, s, 6)
	for _, r := range s {
		assert.True(t, strings.ContainsRune(UpperAlphabet, r), "unexpected rune %q", r)
	}

	empty, err := RandomString(0, UpperAlphabet)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = RandomString(-1, UpperAlphabet)
	assert.Error(t, err)
	_, err = RandomString(3, "")
	assert.Error(t, err)
}

func TestOpaqueTokenAndHash(t *testing.T) {
	a, err := OpaqueToken(32)
	require.NoError(t, err)
	b, err := OpaqueToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, HashToken(a), 64)
	assert.Equal(t, HashToken(a), HashToken(a))
	assert.NotEqual(t, HashToken(a), HashToken(b))
}

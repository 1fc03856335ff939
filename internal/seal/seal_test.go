package seal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealRoundTrip(t *testing.T) {
	s, err := New("clinic-secret")
	require.NoError(t, err)

	payload, err := s.Seal([]byte(`{"subjective":"knee pain"}`))
	require.NoError(t, err)
	assert.True(t, IsSealed(payload))
	assert.NotContains(t, payload, "knee")

	plain, err := s.Open(payload)
	require.NoError(t, err)
	assert.Equal(t, `{"subjective":"knee pain"}`, string(plain))
}

func TestSealUsesFreshNonce(t *testing.T) {
	s, err := New("k")
	require.NoError(t, err)

	a, err := s.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenErrors(t *testing.T) {
	s, err := New("k")
	require.NoError(t, err)
	other, err := New("different")
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("data"))
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.Error(t, err)

	_, err = s.Open("plain text")
	assert.ErrorIs(t, err, ErrNotSealed)

	_, err = s.Open(Prefix + "AAAA")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	_, err = s.Open(Prefix + "!!!")
	assert.Error(t, err)
}

func TestNewRejectsEmptyKey(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestIsSealed(t *testing.T) {
	assert.False(t, IsSealed(""))
	assert.False(t, IsSealed(Prefix))
	assert.False(t, IsSealed("{}"))
	assert.True(t, IsSealed(Prefix+"abc"))
}

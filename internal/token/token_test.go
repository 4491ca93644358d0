package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer(t.TempDir())
	require.NoError(t, err)

	tok, err := s.Seal("vp-42|2026-01-01T00:00:00Z|1.0")
	require.NoError(t, err)
	assert.NotContains(t, tok, "vp-42", "the cursor must not be visible in the token")

	plain, err := s.Open(tok)
	require.NoError(t, err)
	assert.Equal(t, "vp-42|2026-01-01T00:00:00Z|1.0", plain)
}

func TestOpenRejectsTampering(t *testing.T) {
	s, err := NewSealer(t.TempDir())
	require.NoError(t, err)

	tok, err := s.Seal("cursor")
	require.NoError(t, err)

	flipped := []byte(tok)
	if flipped[len(flipped)-1] == 'A' {
		flipped[len(flipped)-1] = 'B'
	} else {
		flipped[len(flipped)-1] = 'A'
	}
	_, err = s.Open(string(flipped))
	assert.Error(t, err)

	_, err = s.Open("not-base64!!!")
	assert.Error(t, err)

	_, err = s.Open("")
	assert.Error(t, err)
}

func TestKeyPersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	first, err := NewSealer(dir)
	require.NoError(t, err)
	tok, err := first.Seal("survives")
	require.NoError(t, err)

	second, err := NewSealer(dir)
	require.NoError(t, err)
	plain, err := second.Open(tok)
	require.NoError(t, err)
	assert.Equal(t, "survives", plain)
}

func TestDifferentKeysCannotOpen(t *testing.T) {
	a, err := NewSealer(t.TempDir())
	require.NoError(t, err)
	b, err := NewSealer(t.TempDir())
	require.NoError(t, err)

	tok, err := a.Seal("secret")
	require.NoError(t, err)
	_, err = b.Open(tok)
	assert.Error(t, err)
}
